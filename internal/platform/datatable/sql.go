package datatable

import (
	"fmt"
	"strings"
)

// Clauses is a query rendered for server paging. Where is the search
// condition without the WHERE keyword and is empty when nothing is searched.
// Args hold the positional arguments of Where and Limit in order.
type Clauses struct {
	Where   string
	OrderBy string
	Limit   string
	Args    []interface{}
}

// SQL renders q, normalized against t, as a search condition, an ORDER BY
// clause and LIMIT/OFFSET. Arguments are numbered from argStart.
func (t Table) SQL(q Query, argStart int) Clauses {
	q = t.Normalize(q)
	where, args := t.SearchSQL(q.Search, argStart)
	limit, largs := q.Params().SQL(argStart + len(args))
	return Clauses{
		Where:   where,
		OrderBy: t.OrderSQL(q),
		Limit:   limit,
		Args:    append(args, largs...),
	}
}

// SearchSQL returns a condition matching term against every searchable
// column, using one positional argument numbered argStart. An empty search
// yields an empty condition.
func (t Table) SearchSQL(term string, argStart int) (string, []interface{}) {
	term = strings.TrimSpace(term)
	if term == "" {
		return "", nil
	}
	var parts []string
	for _, c := range t.Columns {
		if c.Searchable {
			parts = append(parts, fmt.Sprintf("CAST(%s AS TEXT) ILIKE $%d", c.expr(), argStart))
		}
	}
	if len(parts) == 0 {
		return "", nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", []interface{}{"%" + EscapeLike(term) + "%"}
}

// OrderSQL returns the ORDER BY clause for q. Only whitelisted sortable
// column expressions are emitted; id breaks ties so paging is stable.
func (t Table) OrderSQL(q Query) string {
	c, ok := t.Column(q.SortBy)
	if !ok || !c.Sortable {
		return "ORDER BY id ASC"
	}
	dir := "ASC"
	if q.SortDir == Desc {
		dir = "DESC"
	}
	return fmt.Sprintf("ORDER BY %s %s NULLS LAST, id ASC", c.expr(), dir)
}

// EscapeLike escapes LIKE wildcards in s.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
