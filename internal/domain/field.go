package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Wire layouts for DATE and DATETIME values.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = time.RFC3339Nano
)

// AsDate drops the time of day, keeping the calendar date in UTC.
func AsDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FieldType is the semantic type of an entity field.
type FieldType string

const (
	FieldTypeString   FieldType = "STRING"
	FieldTypeDate     FieldType = "DATE"
	FieldTypeDateTime FieldType = "DATETIME"
	FieldTypeEnum     FieldType = "ENUM"
	FieldTypeInteger  FieldType = "INTEGER"
	FieldTypeCode     FieldType = "CODE"
)

// IsComparable reports whether values of the type accept the lt/le/gt/ge/ne
// filter prefixes.
func (t FieldType) IsComparable() bool {
	switch t {
	case FieldTypeDate, FieldTypeDateTime, FieldTypeInteger:
		return true
	}
	return false
}

func (t FieldType) valid() bool {
	switch t {
	case FieldTypeString, FieldTypeDate, FieldTypeDateTime, FieldTypeEnum, FieldTypeInteger, FieldTypeCode:
		return true
	}
	return false
}

// FieldDescriptor describes one queryable field of an entity.
type FieldDescriptor struct {
	Name       string
	Column     string
	Type       FieldType
	EnumValues []string
	Accessor   func(Record) any
}

// Value reads the field from a record.
func (d FieldDescriptor) Value(r Record) any {
	if d.Accessor != nil {
		return d.Accessor(r)
	}
	return r.Fields[d.Name]
}

// HasEnumValue reports whether name is a declared value of an ENUM field.
func (d FieldDescriptor) HasEnumValue(name string) bool {
	for _, v := range d.EnumValues {
		if v == name {
			return true
		}
	}
	return false
}

// FieldCatalog is the immutable set of fields of one entity type.
type FieldCatalog struct {
	byName map[string]FieldDescriptor
	order  []string
}

// NewFieldCatalog builds a catalog once per entity type. Columns default to
// the snake_case form of the field name.
func NewFieldCatalog(fields ...FieldDescriptor) (*FieldCatalog, error) {
	c := &FieldCatalog{
		byName: make(map[string]FieldDescriptor, len(fields)),
		order:  make([]string, 0, len(fields)),
	}
	for _, f := range fields {
		if strings.TrimSpace(f.Name) == "" {
			return nil, fmt.Errorf("field name is required")
		}
		if !f.Type.valid() {
			return nil, fmt.Errorf("field %s: unknown type %q", f.Name, f.Type)
		}
		if f.Type == FieldTypeEnum && len(f.EnumValues) == 0 {
			return nil, fmt.Errorf("field %s: enum without values", f.Name)
		}
		if _, exists := c.byName[f.Name]; exists {
			return nil, fmt.Errorf("duplicate field %s", f.Name)
		}
		if f.Column == "" {
			f.Column = SnakeCase(f.Name)
		}
		f.EnumValues = append([]string(nil), f.EnumValues...)
		c.byName[f.Name] = f
		c.order = append(c.order, f.Name)
	}
	return c, nil
}

// MustFieldCatalog is NewFieldCatalog for static registrations.
func MustFieldCatalog(fields ...FieldDescriptor) *FieldCatalog {
	c, err := NewFieldCatalog(fields...)
	if err != nil {
		panic(err)
	}
	return c
}

// Resolve looks a field up by name.
func (c *FieldCatalog) Resolve(name string) (FieldDescriptor, bool) {
	d, ok := c.byName[name]
	return d, ok
}

// Fields returns descriptors in registration order.
func (c *FieldCatalog) Fields() []FieldDescriptor {
	out := make([]FieldDescriptor, len(c.order))
	for i, name := range c.order {
		out[i] = c.byName[name]
	}
	return out
}

// Names returns field names in registration order.
func (c *FieldCatalog) Names() []string {
	return append([]string(nil), c.order...)
}

// SnakeCase converts lowerCamel names ("participantId") to column names
// ("participant_id").
func SnakeCase(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
