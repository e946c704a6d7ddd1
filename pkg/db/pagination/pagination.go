package pagination

const (
	DefaultPageSize = 20
	MaxPageSize     = 250
)

// Page is an offset page request.
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps the page into the allowed window.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

type PageInfo struct {
	Total   int64 `json:"total"`
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	HasMore bool  `json:"has_more"`
}

func BuildPageInfo(page Page, returned int, total int64) PageInfo {
	return PageInfo{
		Total:   total,
		Limit:   page.Limit,
		Offset:  page.Offset,
		HasMore: int64(page.Offset+returned) < total,
	}
}
