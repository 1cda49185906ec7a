package crud

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carecenter/dashboard/internal/platform/datatable"
	"github.com/carecenter/dashboard/internal/platform/db"
	"github.com/carecenter/dashboard/internal/platform/filterbar"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// PGRepo is a PostgreSQL Repository. Rows are written to Table and read
// from Source, which defaults to Table and may be a view adding readonly
// columns. Struct fields map onto columns by their db tag.
type PGRepo[T any] struct {
	pool   *pgxpool.Pool
	table  string
	source string
	meta   *meta
	grid   datatable.Table
	bar    filterbar.Bar
}

// NewPGRepo returns a repository over table, listing with grid and bar.
func NewPGRepo[T any](pool *pgxpool.Pool, table string, grid datatable.Table, bar filterbar.Bar) *PGRepo[T] {
	return &PGRepo[T]{
		pool:   pool,
		table:  table,
		source: table,
		meta:   metaOf[T](),
		grid:   grid,
		bar:    bar,
	}
}

// FromView reads rows from view instead of the table.
func (r *PGRepo[T]) FromView(view string) *PGRepo[T] {
	r.source = view
	return r
}

func (r *PGRepo[T]) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *PGRepo[T]) selectCols() string {
	return strings.Join(r.meta.names(false), ", ")
}

func (r *PGRepo[T]) collect(rows pgx.Rows) ([]*T, error) {
	out, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[T])
	if err != nil {
		return nil, mapPGError(err)
	}
	return out, nil
}

func (r *PGRepo[T]) Create(ctx context.Context, row *T) error {
	b := baseOf(row)
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.Stamp(time.Now().UTC())

	cols := r.meta.names(true)
	marks := make([]string, len(cols))
	for i := range cols {
		marks[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, r.table, strings.Join(cols, ", "), strings.Join(marks, ", "))
	if _, err := r.conn(ctx).Exec(ctx, query, r.meta.values(row, cols)...); err != nil {
		return mapPGError(err)
	}
	return r.refresh(ctx, row)
}

// refresh reloads row from the source so view columns are filled in.
func (r *PGRepo[T]) refresh(ctx context.Context, row *T) error {
	if r.source == r.table {
		return nil
	}
	fresh, err := r.GetByID(ctx, baseOf(row).ID)
	if err != nil {
		return err
	}
	*row = *fresh
	return nil
}

func (r *PGRepo[T]) GetByID(ctx context.Context, id uuid.UUID) (*T, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+r.selectCols()+` FROM `+r.source+` WHERE id = $1`, id)
	if err != nil {
		return nil, mapPGError(err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[T])
	if err != nil {
		return nil, mapPGError(err)
	}
	return row, nil
}

// updateSQL returns the UPDATE statement and the column order of its
// arguments after id.
func (r *PGRepo[T]) updateSQL() (string, []string) {
	var cols, sets []string
	for _, c := range r.meta.names(true) {
		if c == "id" || c == "created_at" {
			continue
		}
		cols = append(cols, c)
		sets = append(sets, fmt.Sprintf("%s = $%d", c, len(cols)+1))
	}
	return fmt.Sprintf(`UPDATE %s SET %s WHERE id = $1 RETURNING created_at`, r.table, strings.Join(sets, ", ")), cols
}

func (r *PGRepo[T]) Update(ctx context.Context, row *T) error {
	b := baseOf(row)
	b.UpdatedAt = time.Now().UTC()
	query, cols := r.updateSQL()
	args := append([]interface{}{b.ID}, r.meta.values(row, cols)...)
	if err := r.conn(ctx).QueryRow(ctx, query, args...).Scan(&b.CreatedAt); err != nil {
		return mapPGError(err)
	}
	return r.refresh(ctx, row)
}

// Lock takes a row lock on id for the rest of the transaction in ctx.
func (r *PGRepo[T]) Lock(ctx context.Context, id uuid.UUID) error {
	var got uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, `SELECT id FROM `+r.table+` WHERE id = $1 FOR UPDATE`, id).Scan(&got)
	if err != nil {
		return mapPGError(err)
	}
	return nil
}

func (r *PGRepo[T]) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM `+r.table+` WHERE id = $1`, id)
	if err != nil {
		return mapPGError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// where builds the WHERE clause shared by List and Count.
func (r *PGRepo[T]) where(p ListParams) (string, []interface{}, error) {
	conds, args, err := r.conds(p)
	if err != nil {
		return "", nil, err
	}
	if cond, sargs := r.grid.SearchSQL(p.Query.Search, len(args)+1); cond != "" {
		conds = append(conds, cond)
		args = append(args, sargs...)
	}
	return joinWhere(conds), args, nil
}

// conds returns the equality and filter conditions of p, without search.
func (r *PGRepo[T]) conds(p ListParams) ([]string, []interface{}, error) {
	var conds []string
	var args []interface{}

	keys := make([]string, 0, len(p.Where))
	for k := range p.Where {
		if _, ok := r.meta.byName[k]; !ok {
			return nil, nil, fmt.Errorf("%s: unknown column %q", r.table, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, p.Where[k])
		conds = append(conds, fmt.Sprintf("%s = $%d", k, len(args)))
	}
	if cond, fargs := r.bar.SQL(p.Filters, len(args)+1); cond != "" {
		conds = append(conds, cond)
		args = append(args, fargs...)
	}
	return conds, args, nil
}

func joinWhere(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

// listSQL returns the page query for p. A page past total is moved back
// onto the last page.
func (r *PGRepo[T]) listSQL(p ListParams, total int) (string, []interface{}, error) {
	conds, args, err := r.conds(p)
	if err != nil {
		return "", nil, err
	}
	q := r.grid.Normalize(p.Query)
	q.Page = q.Params().Clamp(total).Page
	cl := r.grid.SQL(q, len(args)+1)
	if cl.Where != "" {
		conds = append(conds, cl.Where)
	}
	query := `SELECT ` + r.selectCols() + ` FROM ` + r.source + joinWhere(conds) + ` ` + cl.OrderBy + ` ` + cl.Limit
	return query, append(args, cl.Args...), nil
}

func (r *PGRepo[T]) List(ctx context.Context, p ListParams) ([]*T, int, error) {
	total, err := r.Count(ctx, p)
	if err != nil {
		return nil, 0, err
	}
	query, args, err := r.listSQL(p, total)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, mapPGError(err)
	}
	items, err := r.collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *PGRepo[T]) FindBy(ctx context.Context, where map[string]any) ([]*T, error) {
	clause, args, err := r.where(ListParams{Where: where})
	if err != nil {
		return nil, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+r.selectCols()+` FROM `+r.source+clause+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, mapPGError(err)
	}
	return r.collect(rows)
}

func (r *PGRepo[T]) Count(ctx context.Context, p ListParams) (int, error) {
	clause, args, err := r.where(p)
	if err != nil {
		return 0, err
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM `+r.source+clause, args...).Scan(&total); err != nil {
		return 0, mapPGError(err)
	}
	return total, nil
}
