package datatable

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// Render writes page as a bordered terminal grid followed by a one-line
// navigation summary.
func Render[T any](w io.Writer, t Table, page Page[T], get Accessor[T]) error {
	var cols []Column
	for _, c := range t.Columns {
		if !c.Hidden {
			cols = append(cols, c)
		}
	}
	headers := make([]string, len(cols))
	for i, c := range cols {
		headers[i] = c.Label
		if c.Key == page.SortBy {
			if page.SortDir == Desc {
				headers[i] += " ▼"
			} else {
				headers[i] += " ▲"
			}
		}
	}
	rows := make([][]string, 0, len(page.Rows))
	for _, row := range page.Rows {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = truncate(FormatCell(c, get(row, c.Key)), c.Width)
		}
		rows = append(rows, cells)
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	if _, err := fmt.Fprintln(w, tbl.Render()); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "page %d/%d  ·  %d row(s)", page.Page, page.PageCount, page.Total)
	if err != nil {
		return err
	}
	if page.Search != "" {
		_, err = fmt.Fprintf(w, "  ·  search %q", page.Search)
		if err != nil {
			return err
		}
	}
	_, err = fmt.Fprintln(w)
	return err
}

func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 0 || len(r) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(r[:width-1]) + "…"
}
