// Package dynform moves FormSchema values across the wire and drives forms
// through their edit and submit lifecycle.
package dynform

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/carecenter/dashboard/internal/platform/formschema"
)

// DefaultMaxMemory is the part of a multipart body kept in memory; larger
// file parts spill to temporary files.
const DefaultMaxMemory = 32 << 20

// ErrMalformed is returned when a request body cannot be parsed at all.
var ErrMalformed = errors.New("malformed form body")

// Mode selects full (create) or partial (update) validation.
type Mode int

const (
	ModeCreate Mode = iota
	ModeUpdate
)

// Decode reads a JSON, urlencoded or multipart/form-data body, coerces it
// with v and validates the result. Immutable fields are dropped in update
// mode. Field problems are returned as *formschema.ValidationError; a body
// that cannot be parsed yields ErrMalformed.
func Decode(r *http.Request, v *formschema.Validator, mode Mode) (formschema.Values, error) {
	ct := r.Header.Get("Content-Type")
	mediaType := "application/json"
	if ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return nil, fmt.Errorf("%w: content type: %v", ErrMalformed, err)
		}
		mediaType = mt
	}

	var values formschema.Values
	var coerceErr error
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(DefaultMaxMemory); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		files, err := collectFiles(v.Schema(), r.MultipartForm)
		if err != nil {
			return nil, err
		}
		values, coerceErr = v.Coerce(r.MultipartForm.Value, files)
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		values, coerceErr = v.Coerce(r.PostForm, nil)
	case "application/json":
		m := map[string]any{}
		if r.Body != nil {
			if err := json.NewDecoder(r.Body).Decode(&m); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
		}
		values, coerceErr = v.FromJSON(m)
	default:
		return nil, fmt.Errorf("%w: unsupported content type %s", ErrMalformed, mediaType)
	}

	verr := &formschema.ValidationError{}
	if ve, ok := formschema.AsValidationError(coerceErr); ok {
		verr.Merge(ve)
	} else if coerceErr != nil {
		return nil, coerceErr
	}
	values = v.Strip(values, mode == ModeUpdate)
	if err := validate(v, values, mode); err != nil {
		ve, _ := formschema.AsValidationError(err)
		for field, msgs := range ve.Fields {
			// a field that failed to parse reports only the parse error
			if _, failed := verr.Fields[field]; failed {
				continue
			}
			for _, m := range msgs {
				verr.Add(field, m)
			}
		}
		verr.Form = append(verr.Form, ve.Form...)
	}
	return values, verr.OrNil()
}

func validate(v *formschema.Validator, values formschema.Values, mode Mode) error {
	if mode == ModeUpdate {
		return v.Partial(values)
	}
	return v.Validate(values)
}

func collectFiles(s formschema.Schema, form *multipart.Form) (map[string]*formschema.File, error) {
	files := make(map[string]*formschema.File)
	for _, f := range s.FileFields() {
		headers := form.File[f.Name]
		if len(headers) == 0 {
			continue
		}
		fh := headers[0]
		ct, err := partContentType(fh)
		if err != nil {
			return nil, fmt.Errorf("%w: file %s: %v", ErrMalformed, f.Name, err)
		}
		files[f.Name] = &formschema.File{
			Filename:    fh.Filename,
			ContentType: ct,
			Size:        fh.Size,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		}
	}
	return files, nil
}

// partContentType trusts the declared part type unless it is missing or
// generic, in which case the content is sniffed.
func partContentType(fh *multipart.FileHeader) (string, error) {
	ct := fh.Header.Get("Content-Type")
	if ct != "" && ct != "application/octet-stream" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			return mt, nil
		}
	}
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()
	buf := make([]byte, 512)
	n, err := io.ReadFull(src, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(buf[:n]))
	return strings.ToLower(mt), nil
}
