package domain

// SortDirection represents ordering direction for sortable fields.
type SortDirection string

const (
	SortDirectionAsc  SortDirection = "asc"
	SortDirectionDesc SortDirection = "desc"
)

// OrderBy is one (field, direction) pair of an ordering.
type OrderBy struct {
	Field     string
	Ascending bool
}

// Asc orders by field ascending.
func Asc(field string) OrderBy { return OrderBy{Field: field, Ascending: true} }

// Desc orders by field descending.
func Desc(field string) OrderBy { return OrderBy{Field: field} }

// Direction reports the ordering direction.
func (o OrderBy) Direction() SortDirection {
	if o.Ascending {
		return SortDirectionAsc
	}
	return SortDirectionDesc
}

// OrderFields returns the field names of an ordering.
func OrderFields(order []OrderBy) []string {
	names := make([]string, len(order))
	for i, o := range order {
		names[i] = o.Field
	}
	return names
}
