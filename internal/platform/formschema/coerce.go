package formschema

import (
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

var (
	textPolicyOnce sync.Once
	textPolicy     *bluemonday.Policy
)

// sanitizeText strips markup from free text. bluemonday escapes entities in
// its output, so the result is unescaped back to plain text.
func sanitizeText(raw string) string {
	textPolicyOnce.Do(func() {
		textPolicy = bluemonday.StrictPolicy()
	})
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(raw)))
}

// Coerce converts raw form input into typed values. Keys that do not name a
// schema field are dropped; keys that are absent stay absent so partial
// updates can tell "not sent" from "cleared". Parse failures are reported as
// a *ValidationError alongside whatever values did parse.
func (v *Validator) Coerce(raw map[string][]string, files map[string]*File) (Values, error) {
	out := make(Values)
	verr := &ValidationError{}
	for _, f := range v.schema.Fields {
		if f.Type == FieldFile {
			if file, ok := files[f.Name]; ok && file != nil {
				out[f.Name] = file
			}
			continue
		}
		vals, ok := raw[f.Name]
		if !ok {
			continue
		}
		val, err := coerceField(f, vals)
		if err != nil {
			verr.Add(f.Name, err.Error())
			continue
		}
		out[f.Name] = val
	}
	return out, verr.OrNil()
}

// FromJSON converts a decoded JSON object into typed values with the same
// rules as Coerce. JSON null clears a field.
func (v *Validator) FromJSON(m map[string]any) (Values, error) {
	raw := make(map[string][]string, len(m))
	verr := &ValidationError{}
	for k, val := range m {
		f, ok := v.schema.Field(k)
		if !ok || f.Type == FieldFile {
			continue
		}
		strs, err := jsonToStrings(val)
		if err != nil {
			verr.Add(k, err.Error())
			continue
		}
		raw[k] = strs
	}
	out, err := v.Coerce(raw, nil)
	if err != nil {
		if ve, ok := err.(*ValidationError); ok {
			verr.Merge(ve)
		}
	}
	return out, verr.OrNil()
}

func jsonToStrings(val any) ([]string, error) {
	switch t := val.(type) {
	case nil:
		return []string{""}, nil
	case string:
		return []string{t}, nil
	case bool:
		return []string{strconv.FormatBool(t)}, nil
	case float64:
		return []string{strconv.FormatFloat(t, 'f', -1, 64)}, nil
	case float32:
		return []string{strconv.FormatFloat(float64(t), 'f', -1, 32)}, nil
	case int:
		return []string{strconv.Itoa(t)}, nil
	case int64:
		return []string{strconv.FormatInt(t, 10)}, nil
	case time.Time:
		return []string{t.Format(time.RFC3339)}, nil
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			switch item.(type) {
			case map[string]any, []any:
				return nil, fmt.Errorf("unsupported value")
			}
			out = append(out, fmt.Sprint(item))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value")
	}
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}

func coerceField(f Field, vals []string) (any, error) {
	if f.Type == FieldMultiSelect {
		out := make([]string, 0, len(vals))
		for _, s := range vals {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	}

	s := first(vals)
	switch f.Type {
	case FieldText, FieldTextarea:
		return sanitizeText(s), nil
	case FieldEmail:
		return strings.ToLower(s), nil
	case FieldPassword:
		// passwords are taken verbatim
		if len(vals) == 0 {
			return "", nil
		}
		return vals[0], nil
	case FieldPhone, FieldSelect:
		return s, nil
	case FieldTime:
		if s == "" {
			return "", nil
		}
		if _, err := time.Parse(TimeLayout, s); err != nil {
			return nil, fmt.Errorf("must be a time (HH:MM)")
		}
		return s, nil
	case FieldNumber:
		if s == "" {
			return nil, nil
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil || !finite(n) {
			return nil, fmt.Errorf("must be a number")
		}
		return n, nil
	case FieldInteger:
		if s == "" {
			return nil, nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			fl, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil || !finite(fl) || fl != float64(int64(fl)) {
				return nil, fmt.Errorf("must be a whole number")
			}
			n = int64(fl)
		}
		return n, nil
	case FieldDate:
		if s == "" {
			return nil, nil
		}
		return parseDate(s)
	case FieldDateTime:
		if s == "" {
			return nil, nil
		}
		return parseDateTime(s)
	case FieldCheckbox:
		switch strings.ToLower(s) {
		case "true", "on", "1", "yes":
			return true, nil
		case "false", "off", "0", "no", "":
			return false, nil
		}
		return nil, fmt.Errorf("must be true or false")
	}
	return nil, fmt.Errorf("unsupported field type %q", f.Type)
}

// finite rejects NaN and the infinities, which ParseFloat accepts but JSON
// cannot carry.
func finite(n float64) bool {
	return !math.IsNaN(n) && !math.IsInf(n, 0)
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("must be a date (YYYY-MM-DD)")
}

func parseDateTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	loc := Location()
	for _, layout := range []string{DateTimeLayout, "2006-01-02T15:04:05", "2006-01-02 15:04", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("must be a date and time")
}

// FormatValue renders a typed value back to its form input representation.
func FormatValue(f Field, val any) string {
	switch t := val.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case time.Time:
		if f.Type == FieldDate {
			return t.Format(DateLayout)
		}
		return t.Format(time.RFC3339)
	case []string:
		return strings.Join(t, ",")
	case *File:
		if t == nil {
			return ""
		}
		return t.Filename
	}
	return fmt.Sprint(val)
}
