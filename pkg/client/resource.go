package client

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/carecenter/dashboard/internal/platform/datatable"
	"github.com/carecenter/dashboard/internal/platform/dynform"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

// Resource is the typed REST surface of one resource. Create and update
// bodies are encoded from form values with the resource's schema, so forms
// with a file become multipart uploads.
type Resource[T any] struct {
	c      *Client
	name   string
	schema formschema.Schema
}

func NewResource[T any](c *Client, name string, schema formschema.Schema) *Resource[T] {
	return &Resource[T]{c: c, name: name, schema: schema}
}

func (r *Resource[T]) Name() string { return r.name }

func (r *Resource[T]) path(id uuid.UUID, suffix ...string) string {
	p := "/" + r.name + "/" + id.String()
	for _, s := range suffix {
		p += "/" + s
	}
	return p
}

// List fetches one page. filters are the query parameters of the
// resource's filter bar.
func (r *Resource[T]) List(ctx context.Context, q datatable.Query, filters url.Values) (datatable.Page[*T], error) {
	params := q.Values()
	for k, vs := range filters {
		for _, v := range vs {
			params.Add(k, v)
		}
	}
	var page datatable.Page[*T]
	if err := r.c.GetJSON(ctx, "/"+r.name, params, &page); err != nil {
		return datatable.Page[*T]{}, err
	}
	return page, nil
}

func (r *Resource[T]) Get(ctx context.Context, id uuid.UUID) (*T, error) {
	row := new(T)
	if err := r.c.GetJSON(ctx, r.path(id), nil, row); err != nil {
		return nil, err
	}
	return row, nil
}

func (r *Resource[T]) send(ctx context.Context, method, path string, values formschema.Values) (*T, error) {
	body, ct, err := dynform.Encode(r.schema, values)
	if err != nil {
		return nil, err
	}
	row := new(T)
	if err := r.c.Do(ctx, method, path, nil, body, ct, row); err != nil {
		return nil, err
	}
	return row, nil
}

func (r *Resource[T]) Create(ctx context.Context, values formschema.Values) (*T, error) {
	return r.send(ctx, http.MethodPost, "/"+r.name, values)
}

// Update sends only the given values.
func (r *Resource[T]) Update(ctx context.Context, id uuid.UUID, values formschema.Values) (*T, error) {
	return r.send(ctx, http.MethodPatch, r.path(id), values)
}

func (r *Resource[T]) Delete(ctx context.Context, id uuid.UUID) error {
	return r.c.Do(ctx, http.MethodDelete, r.path(id), nil, nil, "", nil)
}

// Action posts values to a row action endpoint such as
// /dialysis-sessions/:id/start and returns the updated row. schema
// describes values; a zero schema sends an empty body.
func (r *Resource[T]) Action(ctx context.Context, id uuid.UUID, action string, schema formschema.Schema, values formschema.Values) (*T, error) {
	body, ct, err := dynform.Encode(schema, values)
	if err != nil {
		return nil, err
	}
	row := new(T)
	if err := r.c.Do(ctx, http.MethodPost, r.path(id, action), nil, body, ct, row); err != nil {
		return nil, err
	}
	return row, nil
}

// Download copies the content served at /<name>/:id/download into w and
// returns its content type.
func (r *Resource[T]) Download(ctx context.Context, id uuid.UUID, w io.Writer) (string, error) {
	resp, err := r.c.Send(ctx, http.MethodGet, r.path(id, "download"), nil, nil, "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", err
	}
	return resp.Header.Get("Content-Type"), nil
}
