package domain

// Query describes one page request against an entity.
type Query struct {
	Filters           []FilterClause
	OrderBy           *OrderBy
	MaxResults        int
	PaginationToken   string
	AlwaysReturnToken bool
	IncludeTotal      bool
	Offset            int
}

// Results is one page of records.
type Results struct {
	Items           []Record `json:"items"`
	PaginationToken string   `json:"paginationToken,omitempty"`
	MoreAvailable   bool     `json:"moreAvailable"`
	Total           *int64   `json:"total,omitempty"`
}
