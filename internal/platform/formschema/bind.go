package formschema

import (
	"encoding"
	"fmt"
	"reflect"
	"strings"
	"time"
)

var (
	timeType            = reflect.TypeOf(time.Time{})
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// Bind copies typed values onto the struct pointed to by dst, matching keys
// against the first segment of each field's json tag. Unknown keys and file
// values are ignored; a nil value resets the field to its zero value.
func Bind(values Values, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("formschema: bind target must be a struct pointer, got %T", dst)
	}
	elem := rv.Elem()
	index := jsonFieldIndex(elem.Type())
	for key, val := range values {
		path, ok := index[key]
		if !ok {
			continue
		}
		if _, isFile := val.(*File); isFile {
			continue
		}
		field := elem.FieldByIndex(path)
		if !field.CanSet() {
			continue
		}
		if err := assign(field, val); err != nil {
			return fmt.Errorf("formschema: bind %s: %w", key, err)
		}
	}
	return nil
}

func jsonFieldIndex(t reflect.Type) map[string][]int {
	out := make(map[string][]int)
	for _, sf := range reflect.VisibleFields(t) {
		if sf.Anonymous || !sf.IsExported() {
			continue
		}
		name := strings.Split(sf.Tag.Get("json"), ",")[0]
		if name == "" || name == "-" {
			continue
		}
		if _, dup := out[name]; !dup {
			out[name] = sf.Index
		}
	}
	return out
}

func assign(field reflect.Value, val any) error {
	if val == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}
	if field.Kind() == reflect.Pointer {
		if s, ok := val.(string); ok && s == "" {
			field.Set(reflect.Zero(field.Type()))
			return nil
		}
		ptr := reflect.New(field.Type().Elem())
		if err := assign(ptr.Elem(), val); err != nil {
			return err
		}
		field.Set(ptr)
		return nil
	}

	if s, ok := val.(string); ok && field.Type() != timeType && field.CanAddr() &&
		field.Addr().Type().Implements(textUnmarshalerType) {
		return field.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s))
	}

	src := reflect.ValueOf(val)
	switch {
	case field.Type() == timeType:
		t, ok := val.(time.Time)
		if !ok {
			return fmt.Errorf("cannot assign %T to time", val)
		}
		field.Set(reflect.ValueOf(t))
		return nil
	case field.Kind() == reflect.String:
		s, ok := val.(string)
		if !ok {
			return fmt.Errorf("cannot assign %T to string", val)
		}
		field.SetString(s)
		return nil
	case field.Kind() == reflect.Bool:
		b, ok := val.(bool)
		if !ok {
			return fmt.Errorf("cannot assign %T to bool", val)
		}
		field.SetBool(b)
		return nil
	case isInt(field.Kind()):
		n, ok := numeric(val)
		if !ok {
			return fmt.Errorf("cannot assign %T to integer", val)
		}
		field.SetInt(int64(n))
		return nil
	case field.Kind() == reflect.Float64 || field.Kind() == reflect.Float32:
		n, ok := numeric(val)
		if !ok {
			return fmt.Errorf("cannot assign %T to number", val)
		}
		field.SetFloat(n)
		return nil
	case src.Type().AssignableTo(field.Type()):
		field.Set(src)
		return nil
	case src.Type().ConvertibleTo(field.Type()):
		field.Set(src.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", val, field.Type())
}

func isInt(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}
