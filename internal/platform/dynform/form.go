package dynform

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/carecenter/dashboard/internal/platform/formschema"
)

// State is the lifecycle state of a Form.
type State string

const (
	StateIdle       State = "idle"
	StateEditing    State = "editing"
	StateSubmitting State = "submitting"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

var (
	// ErrBusy is returned when a form is changed or submitted while a
	// submission is in flight.
	ErrBusy = errors.New("form is submitting")
	// ErrClosed is returned when a succeeded or cancelled form is used.
	ErrClosed = errors.New("form is closed")
)

// SubmitFunc delivers form values. Returning a *formschema.ValidationError
// maps the messages back onto the form fields.
type SubmitFunc func(ctx context.Context, values formschema.Values) error

// Form holds the values of one add or edit dialog. In update mode only the
// fields changed since the form was opened are validated and submitted.
type Form struct {
	mu      sync.Mutex
	v       *formschema.Validator
	mode    Mode
	initial formschema.Values
	values  formschema.Values
	dirty   map[string]bool
	errs    *formschema.ValidationError
	err     error
	state   State
}

// New opens a form. In create mode values start from the schema defaults
// overlaid with initial; in update mode they start from initial, usually the
// row being edited.
func New(v *formschema.Validator, mode Mode, initial formschema.Values) *Form {
	start := formschema.Values{}
	if mode == ModeCreate {
		start = v.Schema().Defaults()
	}
	for k, val := range initial {
		if _, ok := v.Schema().Field(k); ok {
			start[k] = val
		}
	}
	return &Form{
		v:       v,
		mode:    mode,
		initial: start.Clone(),
		values:  start,
		dirty:   make(map[string]bool),
		state:   StateIdle,
	}
}

// Schema returns the schema the form renders.
func (f *Form) Schema() formschema.Schema { return f.v.Schema() }

// Mode returns the form mode.
func (f *Form) Mode() Mode { return f.mode }

func (f *Form) editable() error {
	switch f.state {
	case StateSubmitting:
		return ErrBusy
	case StateSucceeded, StateCancelled:
		return ErrClosed
	}
	return nil
}

// Set assigns a typed value and clears the field's errors.
func (f *Form) Set(name string, val any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.editable(); err != nil {
		return err
	}
	field, ok := f.v.Schema().Field(name)
	if !ok {
		return fmt.Errorf("unknown field %q", name)
	}
	f.values[name] = val
	f.dirty[name] = formschema.FormatValue(field, val) != formschema.FormatValue(field, f.initial[name]) ||
		field.Type == formschema.FieldFile && val != nil
	f.clearFieldError(name)
	f.state = StateEditing
	return nil
}

// SetRaw coerces string input for one field, as typed at a prompt, and
// assigns it. A parse failure is recorded on the field and returned.
func (f *Form) SetRaw(name string, raw ...string) error {
	vals, err := f.v.Coerce(map[string][]string{name: raw}, nil)
	if err != nil {
		f.mu.Lock()
		defer f.mu.Unlock()
		if e := f.editable(); e != nil {
			return e
		}
		if ve, ok := formschema.AsValidationError(err); ok {
			f.clearFieldError(name)
			if f.errs == nil {
				f.errs = &formschema.ValidationError{}
			}
			f.errs.Merge(ve)
			f.state = StateEditing
		}
		return err
	}
	val, ok := vals[name]
	if !ok {
		return fmt.Errorf("unknown field %q", name)
	}
	return f.Set(name, val)
}

// Check reports the validation messages raw would produce for one field
// without assigning it.
func (f *Form) Check(name string, raw ...string) error {
	vals, err := f.v.Coerce(map[string][]string{name: raw}, nil)
	if err != nil {
		return err
	}
	return f.v.Partial(vals)
}

func (f *Form) clearFieldError(name string) {
	if f.errs == nil {
		return
	}
	delete(f.errs.Fields, name)
	if f.errs.Empty() {
		f.errs = nil
	}
}

// Value returns the current value of a field.
func (f *Form) Value(name string) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[name]
}

// Values returns a copy of every current value.
func (f *Form) Values() formschema.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values.Clone()
}

// Changed returns the values assigned since the form was opened whose
// value differs from the initial one.
func (f *Form) Changed() formschema.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.changed()
}

func (f *Form) changed() formschema.Values {
	out := formschema.Values{}
	for k, d := range f.dirty {
		if d {
			out[k] = f.values[k]
		}
	}
	return out
}

// Errors returns the current validation messages, or nil.
func (f *Form) Errors() *formschema.ValidationError {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errs == nil {
		return nil
	}
	cp := &formschema.ValidationError{}
	cp.Merge(f.errs)
	return cp
}

// Err returns the error of the last failed submission.
func (f *Form) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// State returns the lifecycle state.
func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Reset restores the initial values and returns to idle.
func (f *Form) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateSubmitting {
		return ErrBusy
	}
	f.values = f.initial.Clone()
	f.dirty = make(map[string]bool)
	f.errs = nil
	f.err = nil
	f.state = StateIdle
	return nil
}

// Cancel closes the form without submitting. It is allowed from idle,
// editing and failed.
func (f *Form) Cancel() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.editable(); err != nil {
		return err
	}
	f.state = StateCancelled
	return nil
}

// Submit validates the form and hands the payload to fn: every value in
// create mode, the changed values in update mode. Invalid input keeps the
// form editing and returns the *formschema.ValidationError without calling
// fn. A second Submit while one is in flight returns ErrBusy.
func (f *Form) Submit(ctx context.Context, fn SubmitFunc) error {
	f.mu.Lock()
	if err := f.editable(); err != nil {
		f.mu.Unlock()
		return err
	}
	var payload formschema.Values
	var verr error
	if f.mode == ModeUpdate {
		payload = f.v.Strip(f.changed(), true)
		verr = f.v.Partial(payload)
	} else {
		payload = f.values.Clone()
		verr = f.v.Validate(payload)
	}
	if verr != nil {
		f.errs, _ = formschema.AsValidationError(verr)
		f.state = StateEditing
		f.mu.Unlock()
		return verr
	}
	f.errs = nil
	f.err = nil
	f.state = StateSubmitting
	f.mu.Unlock()

	err := fn(ctx, payload)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		f.state = StateSucceeded
		return nil
	}
	if ve, ok := formschema.AsValidationError(err); ok {
		f.errs = &formschema.ValidationError{}
		f.errs.Merge(ve)
		f.state = StateEditing
		return err
	}
	f.err = err
	f.state = StateFailed
	return err
}
