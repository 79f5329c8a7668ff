package dao

import (
	"fmt"

	"github.com/rpattn/rdrstore/internal/domain"
)

// BuildSeekPredicate matches the rows strictly after cursor in the given
// order:
//
//	OR over i of ( f1 == v1 AND ... AND f(i-1) == v(i-1) AND step(fi, vi) )
//
// Null sorts below every non-null value, so nulls come first ascending and
// last descending. The backends order rows the same way. The first order
// field uses the same step as every other field.
func BuildSeekPredicate(order []domain.OrderBy, cursor []any) (domain.Predicate, error) {
	if len(cursor) != len(order) {
		return nil, fmt.Errorf("cursor has %d values for %d order fields", len(cursor), len(order))
	}

	clauses := make([]domain.Predicate, 0, len(order))
	for i, o := range order {
		s := step(o, cursor[i])
		if _, never := s.(domain.False); never {
			continue
		}
		parts := make([]domain.Predicate, 0, i+1)
		for j := 0; j < i; j++ {
			parts = append(parts, equal(order[j].Field, cursor[j]))
		}
		parts = append(parts, s)
		clauses = append(clauses, domain.AllOf(parts...))
	}
	return domain.AnyOf(clauses...), nil
}

func equal(field string, v any) domain.Predicate {
	if v == nil {
		return domain.IsNull{Field: field}
	}
	return domain.Compare{Field: field, Op: domain.OperatorEquals, Value: v}
}

// step matches values of one field that sort strictly after v.
func step(o domain.OrderBy, v any) domain.Predicate {
	switch {
	case v == nil && o.Ascending:
		return domain.NotNull{Field: o.Field}
	case v == nil:
		return domain.False{}
	case o.Ascending:
		return domain.Compare{Field: o.Field, Op: domain.OperatorGreaterThan, Value: v}
	}
	return domain.Or{
		domain.Compare{Field: o.Field, Op: domain.OperatorLessThan, Value: v},
		domain.IsNull{Field: o.Field},
	}
}
