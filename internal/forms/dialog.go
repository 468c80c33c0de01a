package forms

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/MarcoPoloResearchLab/roster/internal/records"
)

// ErrInvalidTransition is returned when a dialog action does not apply to its state.
var ErrInvalidTransition = errors.New("forms: invalid dialog transition")

// DialogState is the lifecycle position of a Dialog.
type DialogState int

const (
	Closed DialogState = iota
	Open
	Submitting
	OpenWithErrors
)

func (s DialogState) String() string {
	switch s {
	case Open:
		return "open"
	case Submitting:
		return "submitting"
	case OpenWithErrors:
		return "open_with_errors"
	default:
		return "closed"
	}
}

// Dialog models the add/edit record form.
type Dialog struct {
	bridge   *Bridge
	existing func() []records.Record

	mu     sync.RWMutex
	state  DialogState
	isEdit bool
	fields records.Raw
	errs   records.FieldErrors
	// draftID pins the id of a new record already kept as a draft, so a
	// retry replaces that draft instead of adding another.
	draftID string
}

// NewDialog builds a closed dialog. existing supplies the merged collection
// used to assign ids to new records.
func NewDialog(bridge *Bridge, existing func() []records.Record) *Dialog {
	if existing == nil {
		existing = func() []records.Record { return nil }
	}
	return &Dialog{bridge: bridge, existing: existing}
}

// OpenNew opens an empty form for a new record.
func (d *Dialog) OpenNew() error {
	return d.open(records.Raw{}, false)
}

// OpenEdit opens the form prefilled with record.
func (d *Dialog) OpenEdit(record records.Record) error {
	return d.open(records.Serialize(record), true)
}

func (d *Dialog) open(initial records.Raw, isEdit bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Closed {
		return fmt.Errorf("%w: open from %s", ErrInvalidTransition, d.state)
	}
	d.state = Open
	d.isEdit = isEdit
	d.fields = initial
	d.errs = nil
	return nil
}

// Submit sends raw through the bridge. Only success closes the dialog. Any
// failure, including a local fallback, leaves it OpenWithErrors with the
// field errors of a rejection.
func (d *Dialog) Submit(ctx context.Context, raw records.Raw) (records.Record, error) {
	d.mu.Lock()
	if d.state != Open && d.state != OpenWithErrors {
		state := d.state
		d.mu.Unlock()
		return records.Record{}, fmt.Errorf("%w: submit from %s", ErrInvalidTransition, state)
	}
	if d.isEdit {
		raw.ID = d.fields.ID
	} else {
		raw.ID = d.draftID
	}
	d.state = Submitting
	d.fields = raw
	isEdit := d.isEdit
	d.mu.Unlock()

	record, err := d.bridge.Submit(ctx, raw, isEdit, d.existing())

	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		d.reset()
		return record, nil
	}
	d.state = OpenWithErrors
	d.errs = nil
	var validationErr *records.ValidationError
	if errors.As(err, &validationErr) {
		d.errs = validationErr.Fields
	}
	var fallbackErr *FallbackError
	if !isEdit && errors.As(err, &fallbackErr) {
		d.draftID = strconv.Itoa(fallbackErr.Record.ID)
	}
	return record, err
}

// Cancel closes an open dialog and clears its fields.
func (d *Dialog) Cancel() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Open && d.state != OpenWithErrors {
		return fmt.Errorf("%w: cancel from %s", ErrInvalidTransition, d.state)
	}
	d.reset()
	return nil
}

// State returns the current dialog state.
func (d *Dialog) State() DialogState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// IsEdit reports whether the open form edits an existing record.
func (d *Dialog) IsEdit() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.isEdit
}

// Fields returns the last known form values.
func (d *Dialog) Fields() records.Raw {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.fields
}

// FieldErrors returns a copy of the errors from the last submission.
func (d *Dialog) FieldErrors() records.FieldErrors {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(records.FieldErrors, len(d.errs))
	for field, message := range d.errs {
		out[field] = message
	}
	return out
}

func (d *Dialog) reset() {
	d.state = Closed
	d.isEdit = false
	d.fields = records.Raw{}
	d.errs = nil
	d.draftID = ""
}
