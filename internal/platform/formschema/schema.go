// Package formschema compiles declarative field lists into default values and
// runtime validators. The same schema drives request decoding on the API side
// and the interactive forms of the CLI, so both ends agree on field names,
// types and constraints.
package formschema

import (
	"io"
	"sync/atomic"
	"time"
)

// FieldType enumerates the input kinds a form field can take.
type FieldType string

const (
	FieldText        FieldType = "text"
	FieldTextarea    FieldType = "textarea"
	FieldEmail       FieldType = "email"
	FieldPassword    FieldType = "password"
	FieldPhone       FieldType = "phone"
	FieldNumber      FieldType = "number"
	FieldInteger     FieldType = "integer"
	FieldDate        FieldType = "date"
	FieldDateTime    FieldType = "datetime"
	FieldTime        FieldType = "time"
	FieldSelect      FieldType = "select"
	FieldMultiSelect FieldType = "multiselect"
	FieldCheckbox    FieldType = "checkbox"
	FieldFile        FieldType = "file"
)

var knownTypes = map[FieldType]bool{
	FieldText: true, FieldTextarea: true, FieldEmail: true, FieldPassword: true,
	FieldPhone: true, FieldNumber: true, FieldInteger: true, FieldDate: true,
	FieldDateTime: true, FieldTime: true, FieldSelect: true, FieldMultiSelect: true,
	FieldCheckbox: true, FieldFile: true,
}

// Date layouts accepted from form input.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02T15:04"
	TimeLayout     = "15:04"
)

var location atomic.Pointer[time.Location]

// SetLocation sets the zone that datetimes entered without an offset are
// read in. Nil restores UTC.
func SetLocation(loc *time.Location) {
	location.Store(loc)
}

// Location returns the zone set by SetLocation, UTC by default.
func Location() *time.Location {
	if loc := location.Load(); loc != nil {
		return loc
	}
	return time.UTC
}

// Option is a selectable value for select and multiselect fields.
type Option struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

// Field declares one form input.
type Field struct {
	Name           string    `json:"name" yaml:"name"`
	Label          string    `json:"label,omitempty" yaml:"label"`
	Type           FieldType `json:"type" yaml:"type"`
	Required       bool      `json:"required,omitempty" yaml:"required"`
	Default        any       `json:"default,omitempty" yaml:"default"`
	Placeholder    string    `json:"placeholder,omitempty" yaml:"placeholder"`
	Help           string    `json:"help,omitempty" yaml:"help"`
	Options        []Option  `json:"options,omitempty" yaml:"options"`
	Min            *float64  `json:"min,omitempty" yaml:"min"`
	Max            *float64  `json:"max,omitempty" yaml:"max"`
	MinLength      int       `json:"min_length,omitempty" yaml:"min_length"`
	MaxLength      int       `json:"max_length,omitempty" yaml:"max_length"`
	Pattern        string    `json:"pattern,omitempty" yaml:"pattern"`
	PatternMessage string    `json:"pattern_message,omitempty" yaml:"pattern_message"`
	Accept         []string  `json:"accept,omitempty" yaml:"accept"`
	MaxSize        int64     `json:"max_size,omitempty" yaml:"max_size"`
	// Immutable fields are accepted on create and dropped on update.
	Immutable bool `json:"immutable,omitempty" yaml:"immutable"`
	Hidden    bool `json:"hidden,omitempty" yaml:"hidden"`
}

// DisplayLabel returns the label, falling back to the field name.
func (f Field) DisplayLabel() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}

// HasOption reports whether value is one of the field's options.
func (f Field) HasOption(value string) bool {
	for _, o := range f.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}

// Schema is an ordered list of fields backing one form.
type Schema struct {
	Name   string  `json:"name" yaml:"name"`
	Title  string  `json:"title,omitempty" yaml:"title"`
	Fields []Field `json:"fields" yaml:"fields"`
}

// Field looks a field up by name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// HasFiles reports whether any field takes a file upload.
func (s Schema) HasFiles() bool {
	return len(s.FileFields()) > 0
}

// FileFields returns the file fields in declaration order.
func (s Schema) FileFields() []Field {
	var out []Field
	for _, f := range s.Fields {
		if f.Type == FieldFile {
			out = append(out, f)
		}
	}
	return out
}

// Values holds typed form values keyed by field name. Text-like fields hold
// string, number float64, integer int64, date and datetime time.Time,
// checkbox bool, multiselect []string, file *File. Time fields stay "HH:MM"
// strings. A nil value means the field was submitted empty.
type Values map[string]any

// Clone returns a shallow copy.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// File is an uploaded file attached to a file field.
type File struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`

	Open func() (io.ReadCloser, error) `json:"-"`
}

// Defaults returns the initial values for a blank form. File fields have no
// default and are omitted.
func (s Schema) Defaults() Values {
	out := make(Values, len(s.Fields))
	for _, f := range s.Fields {
		if f.Type == FieldFile {
			continue
		}
		if f.Default != nil {
			if v, err := normalizeDefault(f, f.Default); err == nil {
				out[f.Name] = v
				continue
			}
		}
		out[f.Name] = zeroValue(f.Type)
	}
	return out
}

func zeroValue(t FieldType) any {
	switch t {
	case FieldCheckbox:
		return false
	case FieldMultiSelect:
		return []string{}
	case FieldNumber, FieldInteger, FieldDate, FieldDateTime:
		return nil
	default:
		return ""
	}
}

func normalizeDefault(f Field, def any) (any, error) {
	switch d := def.(type) {
	case time.Time:
		return d, nil
	case []string:
		return append([]string(nil), d...), nil
	}
	raw, err := jsonToStrings(def)
	if err != nil {
		return nil, err
	}
	return coerceField(f, raw)
}
