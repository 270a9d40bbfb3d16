package common

// Pagination holds pagination metadata for list responses.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// NewPagination derives the page count from the item total.
func NewPagination(page, perPage, total int) Pagination {
	pages := 0
	if perPage > 0 {
		pages = (total + perPage - 1) / perPage
	}
	return Pagination{Page: page, PerPage: perPage, TotalItems: total, TotalPages: pages}
}

// PageBounds returns the [start:end) slice bounds of page within total items. Pages past the
// end yield an empty range; the multiplication only happens once the page is known to be in range.
func PageBounds(page, perPage, total int) (start, end int) {
	if perPage < 1 || total <= 0 {
		return 0, 0
	}
	if page < 1 {
		page = 1
	}
	if page-1 >= (total+perPage-1)/perPage {
		return total, total
	}
	start = (page - 1) * perPage
	end = total
	if total-start > perPage {
		end = start + perPage
	}
	return start, end
}
