package crud

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carecenter/dashboard/internal/platform/formschema"
)

// Service is the contract the generic handler serves a resource through.
type Service[T any] interface {
	Create(ctx context.Context, values formschema.Values) (*T, error)
	Get(ctx context.Context, id uuid.UUID) (*T, error)
	Update(ctx context.Context, id uuid.UUID, values formschema.Values) (*T, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, p ListParams) ([]*T, int, error)
}

// Resource is the default Service: it validates form values against the
// definition, binds them onto the row and stores it. Domain rules plug in
// through the hooks.
type Resource[T any] struct {
	Def  *Definition
	Repo Repository[T]
	Log  zerolog.Logger

	// BeforeSave runs after values are bound and before the row is
	// written. prev is nil on create and a copy of the stored row on
	// update.
	BeforeSave func(ctx context.Context, row, prev *T) error
	// BeforeDelete runs before a row is removed.
	BeforeDelete func(ctx context.Context, row *T) error
}

// NewResource returns a Resource with no hooks.
func NewResource[T any](def *Definition, repo Repository[T], log zerolog.Logger) *Resource[T] {
	return &Resource[T]{Def: def, Repo: repo, Log: log.With().Str("resource", def.Name).Logger()}
}

func (r *Resource[T]) Create(ctx context.Context, values formschema.Values) (*T, error) {
	v := r.Def.Validator()
	values = v.Strip(values, false)
	if err := v.Validate(values); err != nil {
		return nil, err
	}
	row := new(T)
	if err := formschema.Bind(values, row); err != nil {
		return nil, fmt.Errorf("bind %s: %w", r.Def.Name, err)
	}
	if r.BeforeSave != nil {
		if err := r.BeforeSave(ctx, row, nil); err != nil {
			return nil, err
		}
	}
	if err := r.Repo.Create(ctx, row); err != nil {
		return nil, err
	}
	r.Log.Debug().Str("id", baseOf(row).ID.String()).Msg("created")
	return row, nil
}

func (r *Resource[T]) Get(ctx context.Context, id uuid.UUID) (*T, error) {
	return r.Repo.GetByID(ctx, id)
}

func (r *Resource[T]) Update(ctx context.Context, id uuid.UUID, values formschema.Values) (*T, error) {
	v := r.Def.Validator()
	values = v.Strip(values, true)
	if err := v.Partial(values); err != nil {
		return nil, err
	}
	row, err := r.Repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := *row
	if err := formschema.Bind(values, row); err != nil {
		return nil, fmt.Errorf("bind %s: %w", r.Def.Name, err)
	}
	if r.BeforeSave != nil {
		if err := r.BeforeSave(ctx, row, &prev); err != nil {
			return nil, err
		}
	}
	if err := r.Repo.Update(ctx, row); err != nil {
		return nil, err
	}
	r.Log.Debug().Str("id", id.String()).Msg("updated")
	return row, nil
}

// GuardDelete chains g after BeforeDelete. g gets the id of the row being
// deleted and vetoes the delete by returning an error.
func (r *Resource[T]) GuardDelete(g func(ctx context.Context, id uuid.UUID) error) {
	prev := r.BeforeDelete
	r.BeforeDelete = func(ctx context.Context, row *T) error {
		if prev != nil {
			if err := prev(ctx, row); err != nil {
				return err
			}
		}
		return g(ctx, baseOf(row).ID)
	}
}

func (r *Resource[T]) Delete(ctx context.Context, id uuid.UUID) error {
	if r.BeforeDelete != nil {
		row, err := r.Repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := r.BeforeDelete(ctx, row); err != nil {
			return err
		}
	}
	if err := r.Repo.Delete(ctx, id); err != nil {
		return err
	}
	r.Log.Debug().Str("id", id.String()).Msg("deleted")
	return nil
}

func (r *Resource[T]) List(ctx context.Context, p ListParams) ([]*T, int, error) {
	return r.Repo.List(ctx, p)
}
