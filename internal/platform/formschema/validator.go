package formschema

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9 ()\-]{6,20}$`)

// ValidationError carries field-level and form-level messages.
type ValidationError struct {
	Fields map[string][]string `json:"fields,omitempty"`
	Form   []string            `json:"form,omitempty"`
}

// Add records a message against a field.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// AddForm records a message that belongs to no single field.
func (e *ValidationError) AddForm(msg string) {
	e.Form = append(e.Form, msg)
}

// Merge appends all messages of other.
func (e *ValidationError) Merge(other *ValidationError) {
	if other == nil {
		return
	}
	for f, msgs := range other.Fields {
		for _, m := range msgs {
			e.Add(f, m)
		}
	}
	e.Form = append(e.Form, other.Form...)
}

// Empty reports whether no message was recorded.
func (e *ValidationError) Empty() bool {
	return e == nil || (len(e.Fields) == 0 && len(e.Form) == 0)
}

// OrNil returns e as an error, or a nil interface when it is empty.
func (e *ValidationError) OrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names)+len(e.Form))
	parts = append(parts, e.Form...)
	for _, name := range names {
		parts = append(parts, name+": "+strings.Join(e.Fields[name], ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// AsValidationError unwraps err into a *ValidationError.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// FieldError builds a single-field validation error.
func FieldError(field, msg string) *ValidationError {
	e := &ValidationError{}
	e.Add(field, msg)
	return e
}

// ruleFunc returns an empty string when value passes.
type ruleFunc func(val any) string

type compiledField struct {
	field Field
	rules []ruleFunc
}

// Validator is a compiled schema.
type Validator struct {
	schema Schema
	fields []compiledField
}

// Compile checks the schema for consistency and derives the rule list of
// every field. Rules run in a fixed order: type, length, range, pattern,
// options, then file constraints.
func Compile(s Schema) (*Validator, error) {
	seen := make(map[string]bool, len(s.Fields))
	v := &Validator{schema: s}
	for _, f := range s.Fields {
		if f.Name == "" {
			return nil, fmt.Errorf("formschema %s: field with empty name", s.Name)
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("formschema %s: duplicate field %q", s.Name, f.Name)
		}
		seen[f.Name] = true
		if !knownTypes[f.Type] {
			return nil, fmt.Errorf("formschema %s: field %q: unknown type %q", s.Name, f.Name, f.Type)
		}
		cf, err := compileField(f)
		if err != nil {
			return nil, fmt.Errorf("formschema %s: field %q: %w", s.Name, f.Name, err)
		}
		v.fields = append(v.fields, cf)
	}
	return v, nil
}

// MustCompile is Compile for schemas declared in code.
func MustCompile(s Schema) *Validator {
	v, err := Compile(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Schema returns the source schema.
func (v *Validator) Schema() Schema { return v.schema }

func compileField(f Field) (compiledField, error) {
	cf := compiledField{field: f}
	if f.MinLength < 0 || f.MaxLength < 0 {
		return cf, errors.New("negative length bound")
	}
	if f.MaxLength > 0 && f.MinLength > f.MaxLength {
		return cf, errors.New("min_length greater than max_length")
	}
	if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
		return cf, errors.New("min greater than max")
	}
	if (f.Type == FieldSelect || f.Type == FieldMultiSelect) && len(f.Options) == 0 {
		return cf, errors.New("select field without options")
	}

	cf.rules = append(cf.rules, typeRule(f.Type))

	if f.MinLength > 0 {
		n := f.MinLength
		cf.rules = append(cf.rules, func(val any) string {
			if s, ok := val.(string); ok && len([]rune(s)) < n {
				return fmt.Sprintf("must be at least %d characters", n)
			}
			return ""
		})
	}
	if f.MaxLength > 0 {
		n := f.MaxLength
		cf.rules = append(cf.rules, func(val any) string {
			if s, ok := val.(string); ok && len([]rune(s)) > n {
				return fmt.Sprintf("must be at most %d characters", n)
			}
			return ""
		})
	}
	if f.Min != nil {
		min := *f.Min
		cf.rules = append(cf.rules, func(val any) string {
			if n, ok := numeric(val); ok && n < min {
				return "must be at least " + formatBound(min)
			}
			return ""
		})
	}
	if f.Max != nil {
		max := *f.Max
		cf.rules = append(cf.rules, func(val any) string {
			if n, ok := numeric(val); ok && n > max {
				return "must be at most " + formatBound(max)
			}
			return ""
		})
	}
	if f.Pattern != "" {
		re, err := regexp.Compile(f.Pattern)
		if err != nil {
			return cf, fmt.Errorf("invalid pattern: %w", err)
		}
		msg := f.PatternMessage
		if msg == "" {
			msg = "has an invalid format"
		}
		cf.rules = append(cf.rules, func(val any) string {
			if s, ok := val.(string); ok && !re.MatchString(s) {
				return msg
			}
			return ""
		})
	}
	if f.Type == FieldSelect || f.Type == FieldMultiSelect {
		cf.rules = append(cf.rules, optionsRule(f))
	}
	if f.Type == FieldFile {
		if len(f.Accept) > 0 {
			accept := f.Accept
			cf.rules = append(cf.rules, func(val any) string {
				file, _ := val.(*File)
				if file == nil {
					return ""
				}
				for _, a := range accept {
					if matchContentType(a, file.ContentType) {
						return ""
					}
				}
				return fmt.Sprintf("file type %s is not allowed", file.ContentType)
			})
		}
		if f.MaxSize > 0 {
			max := f.MaxSize
			cf.rules = append(cf.rules, func(val any) string {
				if file, _ := val.(*File); file != nil && file.Size > max {
					return fmt.Sprintf("file exceeds %d bytes", max)
				}
				return ""
			})
		}
	}
	return cf, nil
}

func typeRule(t FieldType) ruleFunc {
	return func(val any) string {
		switch t {
		case FieldText, FieldTextarea, FieldPassword, FieldSelect, FieldTime:
			if _, ok := val.(string); !ok {
				return "must be text"
			}
		case FieldEmail:
			s, ok := val.(string)
			if !ok {
				return "must be text"
			}
			addr, err := mail.ParseAddress(s)
			if err != nil || addr.Address != s {
				return "must be a valid email address"
			}
		case FieldPhone:
			s, ok := val.(string)
			if !ok || !phonePattern.MatchString(s) {
				return "must be a valid phone number"
			}
		case FieldNumber:
			if _, ok := numeric(val); !ok {
				return "must be a number"
			}
		case FieldInteger:
			switch n := val.(type) {
			case int64, int:
			case float64:
				if !finite(n) || n != float64(int64(n)) {
					return "must be a whole number"
				}
			default:
				return "must be a whole number"
			}
		case FieldDate, FieldDateTime:
			if _, ok := val.(time.Time); !ok {
				return "must be a date"
			}
		case FieldCheckbox:
			if _, ok := val.(bool); !ok {
				return "must be true or false"
			}
		case FieldMultiSelect:
			if _, ok := val.([]string); !ok {
				return "must be a list"
			}
		case FieldFile:
			if _, ok := val.(*File); !ok {
				return "must be a file"
			}
		}
		return ""
	}
}

func optionsRule(f Field) ruleFunc {
	allowed := make([]string, len(f.Options))
	for i, o := range f.Options {
		allowed[i] = o.Value
	}
	msg := "must be one of: " + strings.Join(allowed, ", ")
	return func(val any) string {
		switch t := val.(type) {
		case string:
			if !f.HasOption(t) {
				return msg
			}
		case []string:
			for _, s := range t {
				if !f.HasOption(s) {
					return msg
				}
			}
		}
		return ""
	}
}

func matchContentType(pattern, ct string) bool {
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if strings.HasSuffix(pattern, "/*") {
		return strings.HasPrefix(ct, strings.TrimSuffix(pattern, "*"))
	}
	return strings.EqualFold(pattern, ct)
}

func numeric(val any) (float64, bool) {
	switch n := val.(type) {
	case float64:
		return n, finite(n)
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

func formatBound(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// isEmpty reports whether val counts as "not filled in". An unchecked
// checkbox is empty so that a required checkbox must be ticked.
func isEmpty(val any) bool {
	switch t := val.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []string:
		return len(t) == 0
	case bool:
		return !t
	case *File:
		return t == nil
	case time.Time:
		return t.IsZero()
	}
	return false
}

// Validate checks a full submission. Missing required fields are errors;
// empty optional fields skip every other rule.
func (v *Validator) Validate(values Values) error {
	return v.validate(values, false)
}

// Partial checks an update: only the keys present in values are validated
// and immutable fields are skipped. Callers drop them with Strip.
func (v *Validator) Partial(values Values) error {
	return v.validate(values, true)
}

func (v *Validator) validate(values Values, partial bool) error {
	verr := &ValidationError{}
	for _, cf := range v.fields {
		val, present := values[cf.field.Name]
		if partial && !present {
			continue
		}
		if partial && cf.field.Immutable {
			continue
		}
		if isEmpty(val) {
			if cf.field.Required {
				verr.Add(cf.field.Name, "is required")
			}
			continue
		}
		for i, rule := range cf.rules {
			if msg := rule(val); msg != "" {
				verr.Add(cf.field.Name, msg)
				if i == 0 {
					break
				}
			}
		}
	}
	return verr.OrNil()
}

// Strip removes values that may not be written: immutable fields on update.
func (v *Validator) Strip(values Values, update bool) Values {
	out := values.Clone()
	if !update {
		return out
	}
	for _, f := range v.schema.Fields {
		if f.Immutable {
			delete(out, f.Name)
		}
	}
	return out
}
