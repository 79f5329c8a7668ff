package store

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/rpattn/rdrstore/internal/domain"
)

// SortableDateTimeLayout is a fixed-width UTC layout whose lexical order
// matches chronological order. Backends without a native timestamp type
// store DATETIME values in it.
const SortableDateTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// NormalizeValue converts a driver value into the canonical Go type of the
// field: string for STRING/CODE/ENUM, int64 for INTEGER and UTC time.Time
// for DATE/DATETIME.
func NormalizeValue(desc domain.FieldDescriptor, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch desc.Type {
	case domain.FieldTypeString, domain.FieldTypeCode, domain.FieldTypeEnum:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		}
	case domain.FieldTypeInteger:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int16:
			return int64(n), nil
		case int8:
			return int64(n), nil
		case uint32:
			return int64(n), nil
		case float64:
			if n == math.Trunc(n) {
				return int64(n), nil
			}
		case string:
			return strconv.ParseInt(n, 10, 64)
		case []byte:
			return strconv.ParseInt(string(n), 10, 64)
		}
	case domain.FieldTypeDate:
		t, err := asTime(v, domain.DateLayout)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", desc.Name, err)
		}
		return domain.AsDate(t), nil
	case domain.FieldTypeDateTime:
		t, err := asTime(v, SortableDateTimeLayout)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", desc.Name, err)
		}
		return t.UTC(), nil
	}
	return nil, fmt.Errorf("field %s: unsupported %s value of type %T", desc.Name, desc.Type, v)
}

func asTime(v any, layout string) (time.Time, error) {
	var raw string
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		raw = t
	case []byte:
		raw = string(t)
	default:
		return time.Time{}, fmt.Errorf("unsupported time value of type %T", v)
	}
	for _, l := range []string{layout, time.RFC3339Nano, domain.DateLayout, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(l, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time %q", raw)
}

// NormalizeRecord normalizes every catalog field present in fields.
func NormalizeRecord(e *domain.EntityDescriptor, fields map[string]any, version int64) (domain.Record, error) {
	out := make(map[string]any, len(fields))
	for name, v := range fields {
		desc, ok := e.Catalog.Resolve(name)
		if !ok {
			return domain.Record{}, fmt.Errorf("entity %s: unknown field %s", e.Name, name)
		}
		nv, err := NormalizeValue(desc, v)
		if err != nil {
			return domain.Record{}, err
		}
		out[name] = nv
	}
	return domain.Record{Fields: out, Version: version}, nil
}
