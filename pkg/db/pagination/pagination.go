package pagination

// Page is the offset-style paging request used across read endpoints.
type Page struct {
	Page     int `json:"page" form:"page"`
	PageSize int `json:"pageSize" form:"page_size"`
}

// PageInfo describes the slice of results a response covers.
type PageInfo struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Normalize clamps the request to sane bounds. Page numbering starts at 1.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = defaultPageSize
	}
	if p.PageSize > maxPageSize {
		p.PageSize = maxPageSize
	}
	return p
}

// Offset returns the row offset for the normalized page.
func (p Page) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PageSize
}

// Limit returns the row limit for the normalized page.
func (p Page) Limit() int {
	return p.Normalize().PageSize
}

// Info builds the response PageInfo for a total row count.
func (p Page) Info(total int64) PageInfo {
	n := p.Normalize()
	return PageInfo{Page: n.Page, PageSize: n.PageSize, Total: total}
}
