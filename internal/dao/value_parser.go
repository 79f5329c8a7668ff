package dao

import (
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/rdrstore/internal/domain"
)

// UnsetEnumValue queries ENUM fields for rows where the field is unset.
const UnsetEnumValue = "UNSET"

var prefixOperators = map[string]domain.Operator{
	"lt": domain.OperatorLessThan,
	"le": domain.OperatorLessThanOrEquals,
	"gt": domain.OperatorGreaterThan,
	"ge": domain.OperatorGreaterThanOrEquals,
	"ne": domain.OperatorNotEquals,
}

// dateTimeLayouts are tried in order; the zoneless form is read as UTC.
var dateTimeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", domain.DateLayout}

// ParseValue converts a raw string into the typed value of a field.
func ParseValue(desc domain.FieldDescriptor, raw string) (any, error) {
	switch desc.Type {
	case domain.FieldTypeString, domain.FieldTypeCode:
		return raw, nil
	case domain.FieldTypeInteger:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, validationf("invalid integer value %q for field %s", raw, desc.Name)
		}
		return n, nil
	case domain.FieldTypeDate:
		t, err := time.Parse(domain.DateLayout, strings.TrimSpace(raw))
		if err != nil {
			return nil, validationf("invalid date value %q for field %s", raw, desc.Name)
		}
		return t, nil
	case domain.FieldTypeDateTime:
		trimmed := strings.TrimSpace(raw)
		for _, layout := range dateTimeLayouts {
			if t, err := time.Parse(layout, trimmed); err == nil {
				return t.UTC(), nil
			}
		}
		return nil, validationf("invalid datetime value %q for field %s", raw, desc.Name)
	case domain.FieldTypeEnum:
		if !desc.HasEnumValue(raw) {
			return nil, validationf("invalid value %q for enum field %s", raw, desc.Name)
		}
		return raw, nil
	}
	return nil, validationf("field %s has unsupported type %s", desc.Name, desc.Type)
}

// ParseFilter turns a raw query value into a clause. Comparable fields accept
// an operator prefix (lt, le, gt, ge, ne); "UNSET" on an ENUM field matches
// rows where the field is unset.
func ParseFilter(desc domain.FieldDescriptor, raw string) (domain.FilterClause, error) {
	op := domain.OperatorEquals
	if desc.Type.IsComparable() && len(raw) > 2 {
		if prefixed, ok := prefixOperators[raw[:2]]; ok {
			op = prefixed
			raw = raw[2:]
		}
	}
	if desc.Type == domain.FieldTypeEnum && raw == UnsetEnumValue && op == domain.OperatorEquals {
		clause := domain.FilterClause{Field: desc.Name, Operator: domain.OperatorEqualsOrNone}
		// enums that declare UNSET store it explicitly as well as leaving it null
		if desc.HasEnumValue(UnsetEnumValue) {
			clause.Value = UnsetEnumValue
		}
		return clause, nil
	}
	value, err := ParseValue(desc, raw)
	if err != nil {
		return domain.FilterClause{}, err
	}
	return domain.FilterClause{Field: desc.Name, Operator: op, Value: value}, nil
}

// coerceValue accepts either a raw string or an already typed Go value and
// returns the canonical typed value for the field.
func coerceValue(desc domain.FieldDescriptor, v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return ParseValue(desc, val)
	case time.Time:
		switch desc.Type {
		case domain.FieldTypeDate:
			return domain.AsDate(val), nil
		case domain.FieldTypeDateTime:
			return val.UTC(), nil
		}
	case int:
		if desc.Type == domain.FieldTypeInteger {
			return int64(val), nil
		}
	case int32:
		if desc.Type == domain.FieldTypeInteger {
			return int64(val), nil
		}
	case int64:
		if desc.Type == domain.FieldTypeInteger {
			return val, nil
		}
	}
	return nil, validationf("invalid %T value for %s field %s", v, desc.Type, desc.Name)
}

// coerceFields validates and canonicalises every field of a candidate record.
// Nil values are kept so that updates can clear a field.
func coerceFields(e *domain.EntityDescriptor, fields map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for name, v := range fields {
		desc, ok := e.Catalog.Resolve(name)
		if !ok {
			return nil, validationf("no such field %s on %s", name, e.Name)
		}
		cv, err := coerceValue(desc, v)
		if err != nil {
			return nil, err
		}
		out[name] = cv
	}
	return out, nil
}

// coerceKey canonicalises primary key values.
func coerceKey(e *domain.EntityDescriptor, key []any) ([]any, error) {
	if len(key) != len(e.IDFields) {
		return nil, validationf("%s key requires %d values, got %d", e.Name, len(e.IDFields), len(key))
	}
	out := make([]any, len(key))
	for i, name := range e.IDFields {
		desc, _ := e.Catalog.Resolve(name)
		v, err := coerceValue(desc, key[i])
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, validationf("%s key field %s is required", e.Name, name)
		}
		out[i] = v
	}
	return out, nil
}
