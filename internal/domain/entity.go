package domain

import (
	"fmt"
	"math"
)

// Record is a stored entity row: typed field values plus the optimistic
// concurrency version.
type Record struct {
	Fields  map[string]any `json:"fields"`
	Version int64          `json:"version"`
}

// NewRecord creates a record with a private copy of fields.
func NewRecord(fields map[string]any) Record {
	return Record{Fields: copyFields(fields)}
}

// Get returns a field value, nil when unset.
func (r Record) Get(name string) any {
	return r.Fields[name]
}

// With returns a copy of the record with one field replaced.
func (r Record) With(name string, value any) Record {
	fields := copyFields(r.Fields)
	fields[name] = value
	return Record{Fields: fields, Version: r.Version}
}

// Clone returns a copy that shares no map with the receiver.
func (r Record) Clone() Record {
	return Record{Fields: copyFields(r.Fields), Version: r.Version}
}

// Key extracts the primary key values in idFields order.
func (r Record) Key(idFields []string) []any {
	key := make([]any, len(idFields))
	for i, f := range idFields {
		key[i] = r.Fields[f]
	}
	return key
}

// EntityDescriptor is the capability record the data-access engine is
// parameterised by.
type EntityDescriptor struct {
	Name           string
	Table          string
	HistoryTable   string
	Catalog        *FieldCatalog
	IDFields       []string
	OrderingEnding []string
	SupportsUpdate bool
	SupportsUpsert bool
	IDRanges       map[string]IDRange
}

// IDRange bounds randomly allocated identifier values, inclusive.
type IDRange struct {
	Min int64
	Max int64
}

// Span returns the number of values in the range. It reports false when the
// range is empty or holds more values than an int64 can count.
func (r IDRange) Span() (int64, bool) {
	if r.Min > r.Max {
		return 0, false
	}
	diff := uint64(r.Max) - uint64(r.Min)
	if diff >= math.MaxInt64 {
		return 0, false
	}
	return int64(diff + 1), true
}

// DefaultIDRange is used for random ID fields without an explicit range.
var DefaultIDRange = IDRange{Min: 100000000, Max: 999999999}

// RangeFor returns the configured allocation range of an ID field.
func (e *EntityDescriptor) RangeFor(field string) IDRange {
	if r, ok := e.IDRanges[field]; ok {
		return r
	}
	return DefaultIDRange
}

// Validate checks that every referenced field exists in the catalog.
func (e *EntityDescriptor) Validate() error {
	if e.Name == "" || e.Table == "" {
		return fmt.Errorf("entity name and table are required")
	}
	if e.Catalog == nil {
		return fmt.Errorf("entity %s: catalog is required", e.Name)
	}
	if len(e.IDFields) == 0 {
		return fmt.Errorf("entity %s: at least one id field is required", e.Name)
	}
	for _, group := range [][]string{e.IDFields, e.OrderingEnding} {
		for _, name := range group {
			if _, ok := e.Catalog.Resolve(name); !ok {
				return fmt.Errorf("entity %s: unknown field %s", e.Name, name)
			}
		}
	}
	for name, r := range e.IDRanges {
		d, ok := e.Catalog.Resolve(name)
		if !ok {
			return fmt.Errorf("entity %s: id range for unknown field %s", e.Name, name)
		}
		if d.Type != FieldTypeInteger {
			return fmt.Errorf("entity %s: id range on non-integer field %s", e.Name, name)
		}
		if r.Min > r.Max {
			return fmt.Errorf("entity %s: empty id range for %s", e.Name, name)
		}
		if _, ok := r.Span(); !ok {
			return fmt.Errorf("entity %s: id range for %s is wider than int64", e.Name, name)
		}
	}
	return nil
}

// copyFields creates a shallow copy of the field map; values are immutable
// scalars (string, int64, time.Time) so a shallow copy is sufficient.
func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
