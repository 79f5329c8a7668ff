package memory

import (
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/rdrstore/internal/domain"
)

// Evaluate reports whether r satisfies p. A nil predicate matches every row.
func Evaluate(c *domain.FieldCatalog, p domain.Predicate, r domain.Record) (bool, error) {
	switch v := p.(type) {
	case nil:
		return true, nil
	case domain.False:
		return false, nil
	case domain.IsNull:
		d, err := resolve(c, v.Field)
		if err != nil {
			return false, err
		}
		return d.Value(r) == nil, nil
	case domain.NotNull:
		d, err := resolve(c, v.Field)
		if err != nil {
			return false, err
		}
		return d.Value(r) != nil, nil
	case domain.Compare:
		d, err := resolve(c, v.Field)
		if err != nil {
			return false, err
		}
		stored := d.Value(r)
		if stored == nil || v.Value == nil {
			return false, nil
		}
		cmp, err := CompareValues(stored, v.Value)
		if err != nil {
			return false, fmt.Errorf("field %s: %w", v.Field, err)
		}
		switch v.Op {
		case domain.OperatorEquals:
			return cmp == 0, nil
		case domain.OperatorNotEquals:
			return cmp != 0, nil
		case domain.OperatorLessThan:
			return cmp < 0, nil
		case domain.OperatorLessThanOrEquals:
			return cmp <= 0, nil
		case domain.OperatorGreaterThan:
			return cmp > 0, nil
		case domain.OperatorGreaterThanOrEquals:
			return cmp >= 0, nil
		}
		return false, fmt.Errorf("unsupported comparison operator %s", v.Op)
	case domain.And:
		for _, child := range v {
			ok, err := Evaluate(c, child, r)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case domain.Or:
		for _, child := range v {
			ok, err := Evaluate(c, child, r)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("unsupported predicate %T", p)
}

func resolve(c *domain.FieldCatalog, name string) (domain.FieldDescriptor, error) {
	d, ok := c.Resolve(name)
	if !ok {
		return domain.FieldDescriptor{}, fmt.Errorf("unknown field %s", name)
	}
	return d, nil
}

// CompareValues orders two field values. NULL compares below every
// non-null value, so ascending orders put NULLs first and descending orders
// put them last.
func CompareValues(a, b any) (int, error) {
	switch {
	case a == nil && b == nil:
		return 0, nil
	case a == nil:
		return -1, nil
	case b == nil:
		return 1, nil
	}
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv), nil
		}
	case int64:
		if bv, ok := b.(int64); ok {
			switch {
			case av < bv:
				return -1, nil
			case av > bv:
				return 1, nil
			}
			return 0, nil
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv), nil
		}
	}
	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}
