package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/roster/internal/forms"
	"github.com/MarcoPoloResearchLab/roster/internal/records"
)

type formField struct {
	id    string
	label string
}

var formFields = []formField{
	{id: "firstName", label: "First name"},
	{id: "lastName", label: "Last name"},
	{id: "age", label: "Age"},
	{id: "email", label: "Email"},
	{id: "phone", label: "Phone"},
	{id: "birthDate", label: "Birth date"},
}

const formLabelWidth = 12

// recordForm holds one text input per editable record field.
type recordForm struct {
	inputs []textinput.Model
	focus  int
}

func newRecordForm(initial records.Raw) recordForm {
	values := []string{initial.FirstName, initial.LastName, initial.Age, initial.Email, initial.Phone, initial.BirthDate}
	inputs := make([]textinput.Model, len(formFields))
	for index := range formFields {
		input := textinput.New()
		input.Prompt = ""
		input.CharLimit = 64
		input.SetValue(values[index])
		input.CursorEnd()
		inputs[index] = input
	}
	inputs[0].Placeholder = "Jane"
	inputs[5].Placeholder = "YYYY-MM-DD"
	inputs[0].Focus()
	return recordForm{inputs: inputs}
}

func (f recordForm) raw() records.Raw {
	value := func(index int) string {
		return strings.TrimSpace(f.inputs[index].Value())
	}
	return records.Raw{
		FirstName: value(0),
		LastName:  value(1),
		Age:       value(2),
		Email:     value(3),
		Phone:     value(4),
		BirthDate: value(5),
	}
}

func (f *recordForm) move(delta int) tea.Cmd {
	f.inputs[f.focus].Blur()
	f.focus = (f.focus + delta + len(f.inputs)) % len(f.inputs)
	return f.inputs[f.focus].Focus()
}

func (f *recordForm) update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd
}

type submittedMsg struct {
	record records.Record
	err    error
}

func (m Model) openForm(edit *records.Record) (tea.Model, tea.Cmd) {
	var (
		initial records.Raw
		err     error
	)
	if edit == nil {
		err = m.dialog.OpenNew()
	} else {
		initial = records.Serialize(*edit)
		err = m.dialog.OpenEdit(*edit)
	}
	if err != nil {
		m.notices.Publish(err)
		return m, nil
	}
	m.form = newRecordForm(initial)
	return m, textinput.Blink
}

func (m Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.submitting {
		return m, nil
	}
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		if err := m.dialog.Cancel(); err != nil {
			m.logger.Debug("cancel form failed", zap.Error(err))
		}
		return m, nil
	case "tab", "down":
		cmd := m.form.move(1)
		return m, cmd
	case "shift+tab", "up":
		cmd := m.form.move(-1)
		return m, cmd
	case "enter":
		m.submitting = true
		return m, m.submit(m.form.raw())
	}
	cmd := m.form.update(msg)
	return m, cmd
}

func (m Model) submit(raw records.Raw) tea.Cmd {
	dialog, ctx := m.dialog, m.ctx
	return func() tea.Msg {
		record, err := dialog.Submit(ctx, raw)
		return submittedMsg{record: record, err: err}
	}
}

func (m Model) viewForm() string {
	var sb strings.Builder
	title := "Add user"
	if m.dialog.IsEdit() {
		title = fmt.Sprintf("Edit user %s", m.dialog.Fields().ID)
	}
	sb.WriteString(m.styles.Title.Render(title))
	sb.WriteString("\n\n")

	fieldErrors := m.dialog.FieldErrors()
	for index, field := range formFields {
		label := fit(field.label, formLabelWidth)
		if index == m.form.focus {
			label = m.styles.FocusHeader.Render(label)
		}
		sb.WriteString(label + " " + m.form.inputs[index].View())
		sb.WriteString("\n")
		if message, ok := fieldErrors[field.id]; ok {
			sb.WriteString(strings.Repeat(" ", formLabelWidth+1) + m.styles.Error.Render(message))
			sb.WriteString("\n")
		}
	}
	if message, ok := fieldErrors["id"]; ok {
		sb.WriteString(m.styles.Error.Render(message))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	if m.submitting || m.dialog.State() == forms.Submitting {
		sb.WriteString(m.styles.Footer.Render("saving…"))
		sb.WriteString("\n")
	}
	sb.WriteString(m.latestNotice())
	sb.WriteString(m.styles.Help.Render("tab next field · enter save · esc cancel"))
	return sb.String()
}
