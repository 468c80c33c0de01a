// Package tui renders the users collection as an interactive terminal table.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/roster/internal/cache"
	"github.com/MarcoPoloResearchLab/roster/internal/drafts"
	"github.com/MarcoPoloResearchLab/roster/internal/forms"
	"github.com/MarcoPoloResearchLab/roster/internal/notify"
	"github.com/MarcoPoloResearchLab/roster/internal/pagination"
	"github.com/MarcoPoloResearchLab/roster/internal/records"
	"github.com/MarcoPoloResearchLab/roster/internal/table"
)

const (
	filterColumn       = "firstName"
	defaultColumnWidth = 12
	pageWindowSpan     = 5
)

var (
	errMissingCache   = errors.New("tui: users cache is required")
	errMissingDrafts  = errors.New("tui: draft store is required")
	errMissingBridge  = errors.New("tui: form bridge is required")
	errMissingNotices = errors.New("tui: notification center is required")
)

// Config holds Model dependencies.
type Config struct {
	Users         *cache.Cache[records.Record]
	Drafts        *drafts.Store[records.Record]
	Bridge        *forms.Bridge
	Notifications *notify.Center
	Customization table.Customization
	PageSize      int
	Identity      string
	Styles        *Styles
	Logger        *zap.Logger
}

type snapshotMsg struct {
	snapshot cache.Snapshot[records.Record]
}

type fetchedMsg struct {
	err error
}

type deletedMsg struct {
	id  int
	err error
}

type sessionExpiredMsg struct {
	err error
}

// SessionExpired wraps the session watcher's error for Program.Send.
func SessionExpired(err error) tea.Msg {
	return sessionExpiredMsg{err: err}
}

// Model is the bubbletea model of the users table.
type Model struct {
	ctx        context.Context
	users      *cache.Cache[records.Record]
	drafts     *drafts.Store[records.Record]
	bridge     *forms.Bridge
	notices    *notify.Center
	controller *table.Controller[records.Record]
	dialog     *forms.Dialog
	snapshots  <-chan cache.Snapshot[records.Record]
	filter     textinput.Model
	form       recordForm
	styles     Styles
	logger     *zap.Logger

	reconciledAt time.Time

	identity   string
	focus      int
	filtering  bool
	submitting bool
	loading    bool
	signedOut  bool
}

// New builds the model and subscribes to the users cache until ctx ends.
func New(ctx context.Context, cfg Config) (Model, error) {
	if cfg.Users == nil {
		return Model{}, errMissingCache
	}
	if cfg.Drafts == nil {
		return Model{}, errMissingDrafts
	}
	if cfg.Bridge == nil {
		return Model{}, errMissingBridge
	}
	if cfg.Notifications == nil {
		return Model{}, errMissingNotices
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	styles := DefaultStyles()
	if cfg.Styles != nil {
		styles = *cfg.Styles
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	filter := textinput.New()
	filter.Prompt = "filter first name: "
	filter.Placeholder = "type to filter"
	filter.CharLimit = 50

	snapshots, _ := cfg.Users.Subscribe(ctx)

	controller := table.New[records.Record](nil, table.UserColumns(),
		table.WithCustomization(cfg.Customization),
		table.WithPageSize(pageSize))

	users, store := cfg.Users, cfg.Drafts
	dialog := forms.NewDialog(cfg.Bridge, func() []records.Record {
		return table.Merge(users.Rows(), store.List())
	})

	m := Model{
		ctx:        ctx,
		users:      cfg.Users,
		drafts:     cfg.Drafts,
		bridge:     cfg.Bridge,
		notices:    cfg.Notifications,
		controller: controller,
		dialog:     dialog,
		snapshots:  snapshots,
		filter:     filter,
		styles:     styles,
		logger:     logger,
		identity:   cfg.Identity,
	}
	m.refreshRows()
	return m, nil
}

// Controller exposes the table state driven by the model.
func (m Model) Controller() *table.Controller[records.Record] {
	return m.controller
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), m.waitForSnapshot())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case snapshotMsg:
		if msg.snapshot.Loaded && msg.snapshot.FetchedAt.After(m.reconciledAt) {
			m.reconcileDrafts(msg.snapshot)
		}
		m.refreshRows()
		return m, m.waitForSnapshot()
	case fetchedMsg:
		m.loading = false
		if msg.err != nil {
			m.notices.Publish(msg.err)
		} else {
			m.reconcileDrafts(m.users.Snapshot())
		}
		m.refreshRows()
		return m, nil
	case deletedMsg:
		if msg.err != nil {
			m.logger.Warn("delete failed", zap.Int("record_id", msg.id), zap.Error(msg.err))
			m.notices.Publish(msg.err)
		}
		m.refreshRows()
		return m, nil
	case submittedMsg:
		m.submitting = false
		var validationErr *records.ValidationError
		if msg.err != nil && !errors.As(msg.err, &validationErr) {
			m.notices.Publish(msg.err)
		}
		m.refreshRows()
		return m, nil
	case sessionExpiredMsg:
		m.signedOut = true
		m.notices.Publish(msg.err)
		return m, nil
	case tea.KeyMsg:
		if m.dialog.State() != forms.Closed {
			return m.updateForm(msg)
		}
		if m.filtering {
			return m.updateFilter(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "n", "right", "down", "pgdown":
		m.controller.NextPage()
	case "p", "left", "up", "pgup":
		m.controller.PreviousPage()
	case "tab":
		m.moveFocus(1)
	case "shift+tab":
		m.moveFocus(-1)
	case "s":
		if column, ok := m.focusedColumn(); ok {
			m.controller.SetSort(column.ID, nextDirection(m.controller.SortDirection(column.ID)), false)
		}
	case "v":
		if column, ok := m.focusedColumn(); ok {
			m.controller.SetColumnVisible(column.ID, !m.isVisible(column.ID))
		}
	case "/":
		m.filtering = true
		m.filter.SetValue(m.controller.State().ColumnFilters[filterColumn])
		m.filter.CursorEnd()
		cmd := m.filter.Focus()
		return m, cmd
	case "r":
		m.loading = true
		return m, m.fetch()
	case "a":
		return m.openForm(nil)
	case "e":
		page := m.controller.Rows()
		if len(page) == 0 {
			return m, nil
		}
		return m.openForm(&page[0])
	case "d":
		page := m.controller.Rows()
		if len(page) == 0 {
			return m, nil
		}
		return m, m.remove(page[0].ID)
	case "x":
		if latest, ok := m.notices.Latest(); ok {
			m.notices.Dismiss(latest.ID)
		}
	}
	return m, nil
}

func (m Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.filtering = false
		m.filter.Blur()
		return m, nil
	case "esc":
		m.filtering = false
		m.filter.Blur()
		m.filter.SetValue("")
		m.controller.SetColumnFilter(filterColumn, "")
		return m, nil
	}
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.controller.SetColumnFilter(filterColumn, strings.TrimSpace(m.filter.Value()))
	return m, cmd
}

func (m *Model) moveFocus(delta int) {
	count := len(m.controller.Columns())
	if count == 0 {
		return
	}
	m.focus = (m.focus + delta + count) % count
}

func (m Model) focusedColumn() (table.Column[records.Record], bool) {
	columns := m.controller.Columns()
	if m.focus < 0 || m.focus >= len(columns) {
		return table.Column[records.Record]{}, false
	}
	return columns[m.focus], true
}

func (m Model) isVisible(columnID string) bool {
	visible, ok := m.controller.State().ColumnVisibility[columnID]
	return !ok || visible
}

func (m Model) refreshRows() {
	m.controller.SetRows(table.Merge(m.users.Rows(), m.drafts.List()))
}

func (m Model) fetch() tea.Cmd {
	users, ctx := m.users, m.ctx
	return func() tea.Msg {
		_, err := users.Fetch(ctx)
		return fetchedMsg{err: err}
	}
}

// reconcileDrafts drops drafts whose ids the server has confirmed.
func (m *Model) reconcileDrafts(snapshot cache.Snapshot[records.Record]) {
	m.reconciledAt = snapshot.FetchedAt
	removed, err := m.drafts.Reconcile(m.ctx, snapshot.Rows)
	if err != nil {
		m.logger.Warn("draft reconcile failed", zap.Error(err))
		return
	}
	if removed > 0 {
		m.logger.Debug("dropped confirmed drafts", zap.Int("count", removed))
	}
}

func (m Model) remove(id int) tea.Cmd {
	bridge, ctx := m.bridge, m.ctx
	return func() tea.Msg {
		return deletedMsg{id: id, err: bridge.Delete(ctx, id)}
	}
}

func (m Model) waitForSnapshot() tea.Cmd {
	snapshots := m.snapshots
	if snapshots == nil {
		return nil
	}
	return func() tea.Msg {
		snapshot, ok := <-snapshots
		if !ok {
			return nil
		}
		return snapshotMsg{snapshot: snapshot}
	}
}

func nextDirection(current table.Direction) table.Direction {
	switch current {
	case table.None:
		return table.Asc
	case table.Asc:
		return table.Desc
	default:
		return table.None
	}
}

func (m Model) View() string {
	if m.dialog.State() != forms.Closed {
		return m.viewForm()
	}
	var sb strings.Builder

	sb.WriteString(m.styles.Title.Render("Roster users"))
	switch {
	case m.signedOut:
		sb.WriteString("  " + m.styles.Error.Render("signed out"))
	case m.identity != "":
		sb.WriteString("  " + m.styles.Identity.Render(m.identity))
	}
	if m.loading {
		sb.WriteString("  " + m.styles.Footer.Render("loading…"))
	}
	sb.WriteString("\n\n")

	focused, _ := m.focusedColumn()
	columns := m.controller.VisibleColumns()
	headers := make([]string, 0, len(columns))
	for _, column := range columns {
		style := m.styles.Header
		if column.ID == focused.ID {
			style = m.styles.FocusHeader
		}
		label := column.Header
		switch m.controller.SortDirection(column.ID) {
		case table.Asc:
			label += " ▲"
		case table.Desc:
			label += " ▼"
		}
		headers = append(headers, style.Render(fit(label, widthOf(column))))
	}
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, spaced(headers)...))
	sb.WriteString("\n")

	draftIDs := make(map[int]struct{})
	for _, draft := range m.drafts.List() {
		draftIDs[draft.ID] = struct{}{}
	}
	remoteIDs := make(map[int]struct{})
	for _, row := range m.users.Rows() {
		remoteIDs[row.ID] = struct{}{}
	}

	rows := m.controller.Rows()
	if len(rows) == 0 {
		sb.WriteString(m.styles.Footer.Render("No records"))
		sb.WriteString("\n")
	}
	for _, row := range rows {
		style := m.styles.Cell
		_, isDraft := draftIDs[row.ID]
		_, isRemote := remoteIDs[row.ID]
		if isDraft && !isRemote {
			style = m.styles.Draft
		}
		cells := make([]string, 0, len(columns))
		for _, column := range columns {
			cells = append(cells, style.Render(fit(m.controller.CellText(row, column.ID), widthOf(column))))
		}
		sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, spaced(cells)...))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(m.styles.Footer.Render(m.pageSummary()))
	sb.WriteString("\n")

	if m.filtering {
		sb.WriteString(m.filter.View())
		sb.WriteString("\n")
	} else if value := m.controller.State().ColumnFilters[filterColumn]; value != "" {
		sb.WriteString(m.styles.Footer.Render(fmt.Sprintf("filter: first name contains %q", value)))
		sb.WriteString("\n")
	}

	sb.WriteString(m.latestNotice())

	sb.WriteString(m.styles.Help.Render("n/p page · tab focus · s sort · / filter · v toggle column · a add · e edit · d delete · r refresh · x dismiss · q quit"))
	return sb.String()
}

func (m Model) latestNotice() string {
	latest, ok := m.notices.Latest()
	if !ok {
		return ""
	}
	style := m.styles.Error
	if latest.Kind == notify.KindSavedLocal {
		style = m.styles.Notice
	}
	line := style.Render(latest.Message)
	if pending := len(m.notices.List()); pending > 1 {
		line += m.styles.Footer.Render(fmt.Sprintf(" (+%d more)", pending-1))
	}
	return line + "\n"
}

func (m Model) pageSummary() string {
	pages := pagination.Window(m.controller, pageWindowSpan)
	labels := make([]string, 0, len(pages))
	for _, index := range pages {
		label := strconv.Itoa(index + 1)
		if index == m.controller.PageIndex() {
			label = "[" + label + "]"
		}
		labels = append(labels, label)
	}
	return fmt.Sprintf("Page %d of %d · %d rows · %s",
		m.controller.PageIndex()+1,
		m.controller.PageCount(),
		m.controller.RowCount(),
		strings.Join(labels, " "))
}

func widthOf(column table.Column[records.Record]) int {
	if column.Width > 0 {
		return column.Width
	}
	return defaultColumnWidth
}

// fit pads or truncates text to exactly width cells.
func fit(text string, width int) string {
	runes := []rune(text)
	if len(runes) > width {
		if width <= 1 {
			return string(runes[:width])
		}
		return string(runes[:width-1]) + "…"
	}
	return text + strings.Repeat(" ", width-len(runes))
}

func spaced(cells []string) []string {
	out := make([]string, 0, len(cells)*2)
	for index, cell := range cells {
		if index > 0 {
			out = append(out, " ")
		}
		out = append(out, cell)
	}
	return out
}
