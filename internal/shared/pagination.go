package shared

import "math"

// DefaultPerPage bounds listing responses when the caller does not ask
// for a window size.
const DefaultPerPage = 50

// Pagination describes one window over a listing, with the totals a
// client needs to render pager controls.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Paginate normalises the requested window against the item count.
func Paginate(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// PageSlice returns the window of items the pagination describes. A page
// past the end yields an empty, non-nil slice so it serialises as [].
func PageSlice[T any](items []T, pg Pagination) []T {
	start := (pg.Page - 1) * pg.PerPage
	if start >= len(items) {
		return []T{}
	}
	end := start + pg.PerPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
