package domain

// Operator is a filter comparison operator.
type Operator string

const (
	OperatorEquals              Operator = "EQUALS"
	OperatorLessThan            Operator = "LESS_THAN"
	OperatorGreaterThan         Operator = "GREATER_THAN"
	OperatorLessThanOrEquals    Operator = "LESS_THAN_OR_EQUALS"
	OperatorGreaterThanOrEquals Operator = "GREATER_THAN_OR_EQUALS"
	OperatorNotEquals           Operator = "NOT_EQUALS"
	OperatorEqualsOrNone        Operator = "EQUALS_OR_NONE"
)

// FilterClause restricts a query on one field. A nil Value matches rows
// where the field is unset, whatever the operator.
type FilterClause struct {
	Field    string
	Operator Operator
	Value    any
}

// NewFilter builds an EQUALS clause.
func NewFilter(field string, value any) FilterClause {
	return FilterClause{Field: field, Operator: OperatorEquals, Value: value}
}
