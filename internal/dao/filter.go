package dao

import (
	"github.com/rpattn/rdrstore/internal/domain"
)

// BuildFilterPredicate turns filter clauses into one conjunctive predicate.
// It returns nil when there are no clauses.
func BuildFilterPredicate(c *domain.FieldCatalog, clauses []domain.FilterClause) (domain.Predicate, error) {
	preds := make([]domain.Predicate, 0, len(clauses))
	for _, clause := range clauses {
		p, err := filterPredicate(c, clause)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return domain.AllOf(preds...), nil
}

func filterPredicate(c *domain.FieldCatalog, clause domain.FilterClause) (domain.Predicate, error) {
	desc, ok := c.Resolve(clause.Field)
	if !ok {
		return nil, validationf("no such field %s", clause.Field)
	}
	if clause.Value == nil {
		return domain.IsNull{Field: desc.Name}, nil
	}
	value, err := coerceValue(desc, clause.Value)
	if err != nil {
		return nil, err
	}

	switch clause.Operator {
	case "", domain.OperatorEquals:
		return domain.Compare{Field: desc.Name, Op: domain.OperatorEquals, Value: value}, nil
	case domain.OperatorLessThan,
		domain.OperatorGreaterThan,
		domain.OperatorLessThanOrEquals,
		domain.OperatorGreaterThanOrEquals,
		domain.OperatorNotEquals:
		return domain.Compare{Field: desc.Name, Op: clause.Operator, Value: value}, nil
	case domain.OperatorEqualsOrNone:
		return domain.Or{
			domain.Compare{Field: desc.Name, Op: domain.OperatorEquals, Value: value},
			domain.IsNull{Field: desc.Name},
		}, nil
	}
	return nil, validationf("invalid operator %s for field %s", clause.Operator, clause.Field)
}
