package pagination

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Params holds page-number pagination extracted from a request. Page is
// 1-based.
type Params struct {
	Page     int
	PageSize int
}

// FromContext extracts pagination parameters from the echo context. Legacy
// limit/offset parameters are honoured when page/page_size are absent.
func FromContext(c echo.Context) Params {
	size, _ := strconv.Atoi(c.QueryParam("page_size"))
	if size <= 0 {
		size, _ = strconv.Atoi(c.QueryParam("limit"))
	}
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page <= 0 {
		if offset, _ := strconv.Atoi(c.QueryParam("offset")); offset > 0 && size > 0 {
			page = offset/size + 1
		}
	}
	return New(page, size)
}

// New normalizes page and size: page < 1 becomes 1, size falls back to the
// default and is capped at MaxPageSize.
func New(page, size int) Params {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return Params{Page: page, PageSize: size}
}

// Offset returns the zero-based index of the first row on the page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// PageCount returns the number of pages needed for total rows. An empty
// result still has one page.
func (p Params) PageCount(total int) int {
	if total <= 0 || p.PageSize <= 0 {
		return 1
	}
	return (total + p.PageSize - 1) / p.PageSize
}

// Clamp moves a page past the end back onto the last page.
func (p Params) Clamp(total int) Params {
	if last := p.PageCount(total); p.Page > last {
		p.Page = last
	}
	return p
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset()+p.PageSize < total
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Page > 1
}

// Bounds returns the slice bounds of the page within total rows.
func (p Params) Bounds(total int) (start, end int) {
	start = p.Offset()
	if start > total {
		start = total
	}
	end = start + p.PageSize
	if end > total {
		end = total
	}
	return start, end
}

// SQL returns the LIMIT and OFFSET clause using positional arguments
// starting at argStart, together with the arguments.
func (p Params) SQL(argStart int) (string, []interface{}) {
	return fmt.Sprintf("LIMIT $%d OFFSET $%d", argStart, argStart+1), []interface{}{p.PageSize, p.Offset()}
}
