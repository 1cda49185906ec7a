package dynform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
	"time"

	"github.com/carecenter/dashboard/internal/platform/formschema"
)

// Encode builds a request body for values. When a file field carries a
// file the body is multipart/form-data, with multiselect values repeated as
// separate parts; otherwise it is a JSON object. Keys absent from values
// are left out so partial updates stay partial.
func Encode(s formschema.Schema, values formschema.Values) (io.Reader, string, error) {
	if hasFile(s, values) {
		return encodeMultipart(s, values)
	}
	body, err := json.Marshal(JSONValues(s, values))
	if err != nil {
		return nil, "", fmt.Errorf("encode form: %w", err)
	}
	return bytes.NewReader(body), "application/json", nil
}

func hasFile(s formschema.Schema, values formschema.Values) bool {
	for _, f := range s.FileFields() {
		if file, ok := values[f.Name].(*formschema.File); ok && file != nil {
			return true
		}
	}
	return false
}

// JSONValues converts typed values into their JSON form. Dates become
// YYYY-MM-DD, datetimes RFC 3339; files are dropped.
func JSONValues(s formschema.Schema, values formschema.Values) map[string]any {
	out := make(map[string]any, len(values))
	for _, f := range s.Fields {
		val, ok := values[f.Name]
		if !ok || f.Type == formschema.FieldFile {
			continue
		}
		if t, isTime := val.(time.Time); isTime {
			if f.Type == formschema.FieldDate {
				out[f.Name] = t.Format(formschema.DateLayout)
			} else {
				out[f.Name] = t.Format(time.RFC3339)
			}
			continue
		}
		out[f.Name] = val
	}
	return out
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func encodeMultipart(s formschema.Schema, values formschema.Values) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range s.Fields {
		val, ok := values[f.Name]
		if !ok {
			continue
		}
		switch t := val.(type) {
		case *formschema.File:
			if t == nil {
				continue
			}
			if err := writeFilePart(mw, f.Name, t); err != nil {
				return nil, "", err
			}
		case []string:
			// A cleared selection travels as one empty part, which the
			// server reads as an empty list.
			if len(t) == 0 {
				if err := mw.WriteField(f.Name, ""); err != nil {
					return nil, "", err
				}
			}
			for _, item := range t {
				if err := mw.WriteField(f.Name, item); err != nil {
					return nil, "", err
				}
			}
		default:
			if err := mw.WriteField(f.Name, formschema.FormatValue(f, val)); err != nil {
				return nil, "", err
			}
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func writeFilePart(mw *multipart.Writer, name string, file *formschema.File) error {
	if file.Open == nil {
		return fmt.Errorf("file %s has no content", name)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(name), quoteEscaper.Replace(file.Filename)))
	ct := file.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", file.Filename, err)
	}
	defer src.Close()
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("copy %s: %w", file.Filename, err)
	}
	return nil
}
