package notice

// Page is one fetched page of notices. It is always rebuilt as a whole and
// never merged with a previous page.
type Page struct {
	Items       []Notice `json:"items"`
	CurrentPage int      `json:"current_page"`
	TotalPages  int      `json:"total_pages"`
	Total       int      `json:"total"`
	From        int      `json:"from"`
	To          int      `json:"to"`
}

// NewPage computes page metadata for items fetched at page with perPage rows.
// PRE: page >= 1, perPage >= 1, total >= 0
// POST: TotalPages = ceil(total/perPage); From/To are 1-indexed row numbers, 0 when empty
func NewPage(items []Notice, page, perPage, total int) Page {
	if perPage < 1 {
		perPage = 1
	}
	if page < 1 {
		page = 1
	}
	p := Page{
		Items:       items,
		CurrentPage: page,
		TotalPages:  (total + perPage - 1) / perPage,
		Total:       total,
	}
	if len(items) > 0 {
		p.From = (page-1)*perPage + 1
		p.To = p.From + len(items) - 1
	}
	return p
}

// HasPrev reports whether a previous page exists.
func (p Page) HasPrev() bool {
	return p.CurrentPage > 1
}

// HasNext reports whether a following page exists.
func (p Page) HasNext() bool {
	return p.CurrentPage < p.TotalPages
}

// InRange reports whether n is a valid page number for this result set.
func (p Page) InRange(n int) bool {
	return n >= 1 && n <= p.TotalPages
}
