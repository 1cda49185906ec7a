package crud

import (
	"context"

	"github.com/google/uuid"

	"github.com/carecenter/dashboard/internal/platform/datatable"
	"github.com/carecenter/dashboard/internal/platform/filterbar"
	"github.com/carecenter/dashboard/pkg/pagination"
)

// ListParams selects a page of rows. Where holds exact column matches that
// are not part of the user-facing filter bar, such as the ward of a bed list.
type ListParams struct {
	Query   datatable.Query
	Filters filterbar.Values
	Where   map[string]any
}

// Repository stores rows of one resource.
type Repository[T any] interface {
	Create(ctx context.Context, row *T) error
	GetByID(ctx context.Context, id uuid.UUID) (*T, error)
	Update(ctx context.Context, row *T) error
	Delete(ctx context.Context, id uuid.UUID) error
	// List returns one page and the total number of matching rows. A page
	// past the end is clamped to the last page.
	List(ctx context.Context, p ListParams) ([]*T, int, error)
	// FindBy returns every row whose columns equal where.
	FindBy(ctx context.Context, where map[string]any) ([]*T, error)
	// Count returns the number of rows matching the search, filters and
	// where clause of p.
	Count(ctx context.Context, p ListParams) (int, error)
}

// ListAll walks every page of p in the order of its query and returns the
// matching rows.
func ListAll[T any](ctx context.Context, repo Repository[T], p ListParams) ([]*T, error) {
	var out []*T
	p.Query.Page = 1
	p.Query.PageSize = pagination.MaxPageSize
	for {
		rows, total, err := repo.List(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
		if len(rows) == 0 || len(out) >= total {
			return out, nil
		}
		p.Query.Page++
	}
}

// Locker is implemented by repositories that can hold a row lock until the
// surrounding transaction ends.
type Locker interface {
	Lock(ctx context.Context, id uuid.UUID) error
}

// Lock locks the row with id when repo is a Locker. Other repositories are
// expected to serialize through their TxRunner.
func Lock[T any](ctx context.Context, repo Repository[T], id uuid.UUID) error {
	if l, ok := repo.(Locker); ok {
		return l.Lock(ctx, id)
	}
	return nil
}
