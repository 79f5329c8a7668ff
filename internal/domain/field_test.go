package domain

import (
	"math"
	"strings"
	"testing"
)

func TestSnakeCase(t *testing.T) {
	cases := map[string]string{
		"id":             "id",
		"participantId":  "participant_id",
		"dateOfBirth":    "date_of_birth",
		"biobankOrderId": "biobank_order_id",
		"HPOId":          "hpo_id",
		"already_snake":  "already_snake",
	}
	for in, want := range cases {
		if got := SnakeCase(in); got != want {
			t.Errorf("SnakeCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewFieldCatalog(t *testing.T) {
	c, err := NewFieldCatalog(
		FieldDescriptor{Name: "participantId", Type: FieldTypeInteger},
		FieldDescriptor{Name: "status", Type: FieldTypeEnum, EnumValues: []string{"A", "B"}, Column: "enrollment_status"},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d, ok := c.Resolve("participantId")
	if !ok || d.Column != "participant_id" {
		t.Fatalf("expected default snake_case column, got %+v", d)
	}
	d, _ = c.Resolve("status")
	if d.Column != "enrollment_status" || !d.HasEnumValue("B") || d.HasEnumValue("C") {
		t.Fatalf("unexpected enum descriptor %+v", d)
	}
	if _, ok := c.Resolve("participant_id"); ok {
		t.Fatalf("catalog must resolve field names, not columns")
	}
	if names := c.Names(); len(names) != 2 || names[0] != "participantId" || names[1] != "status" {
		t.Fatalf("names not in registration order: %v", names)
	}
}

func TestNewFieldCatalog_Errors(t *testing.T) {
	cases := []struct {
		name   string
		fields []FieldDescriptor
		want   string
	}{
		{"blank name", []FieldDescriptor{{Name: " ", Type: FieldTypeString}}, "name is required"},
		{"unknown type", []FieldDescriptor{{Name: "a", Type: "BLOB"}}, "unknown type"},
		{"enum without values", []FieldDescriptor{{Name: "a", Type: FieldTypeEnum}}, "enum without values"},
		{"duplicate", []FieldDescriptor{{Name: "a", Type: FieldTypeString}, {Name: "a", Type: FieldTypeCode}}, "duplicate field a"},
	}
	for _, tc := range cases {
		_, err := NewFieldCatalog(tc.fields...)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: expected error containing %q, got %v", tc.name, tc.want, err)
		}
	}
}

func TestFieldDescriptor_Accessor(t *testing.T) {
	d := FieldDescriptor{
		Name: "fullName",
		Type: FieldTypeString,
		Accessor: func(r Record) any {
			return r.Get("firstName").(string) + " " + r.Get("lastName").(string)
		},
	}
	r := NewRecord(map[string]any{"firstName": "Ann", "lastName": "Smith"})
	if got := d.Value(r); got != "Ann Smith" {
		t.Fatalf("unexpected computed value %v", got)
	}
}

func TestEntityDescriptor_Validate(t *testing.T) {
	catalog := MustFieldCatalog(
		FieldDescriptor{Name: "id", Type: FieldTypeInteger},
		FieldDescriptor{Name: "name", Type: FieldTypeString},
	)
	valid := EntityDescriptor{Name: "thing", Table: "thing", Catalog: catalog, IDFields: []string{"id"}}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cases := map[string]func(e *EntityDescriptor){
		"no table":          func(e *EntityDescriptor) { e.Table = "" },
		"no id fields":      func(e *EntityDescriptor) { e.IDFields = nil },
		"unknown id field":  func(e *EntityDescriptor) { e.IDFields = []string{"uuid"} },
		"unknown ending":    func(e *EntityDescriptor) { e.OrderingEnding = []string{"age"} },
		"range on string":   func(e *EntityDescriptor) { e.IDRanges = map[string]IDRange{"name": {Min: 1, Max: 2}} },
		"empty range":       func(e *EntityDescriptor) { e.IDRanges = map[string]IDRange{"id": {Min: 2, Max: 1}} },
		"range on no field": func(e *EntityDescriptor) { e.IDRanges = map[string]IDRange{"x": {Min: 1, Max: 2}} },
		"full int64 range":  func(e *EntityDescriptor) { e.IDRanges = map[string]IDRange{"id": {Min: math.MinInt64, Max: math.MaxInt64}} },
		"span above int64":  func(e *EntityDescriptor) { e.IDRanges = map[string]IDRange{"id": {Min: 0, Max: math.MaxInt64}} },
	}
	for name, mutate := range cases {
		e := valid
		mutate(&e)
		if err := e.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}

	if r := valid.RangeFor("id"); r != DefaultIDRange {
		t.Fatalf("expected default range, got %+v", r)
	}
}

func TestIDRange_Span(t *testing.T) {
	cases := []struct {
		r    IDRange
		span int64
		ok   bool
	}{
		{IDRange{Min: 1, Max: 2}, 2, true},
		{IDRange{Min: 5, Max: 5}, 1, true},
		{IDRange{Min: -3, Max: 3}, 7, true},
		{IDRange{Min: 1, Max: math.MaxInt64}, math.MaxInt64, true},
		{IDRange{Min: -1, Max: math.MaxInt64 - 1}, math.MaxInt64, true},
		{IDRange{Min: 0, Max: math.MaxInt64}, 0, false},
		{IDRange{Min: math.MinInt64, Max: math.MaxInt64}, 0, false},
		{IDRange{Min: 2, Max: 1}, 0, false},
	}
	for _, tc := range cases {
		span, ok := tc.r.Span()
		if span != tc.span || ok != tc.ok {
			t.Errorf("%+v.Span() = %d, %v; want %d, %v", tc.r, span, ok, tc.span, tc.ok)
		}
	}
}

func TestRecord_CopySemantics(t *testing.T) {
	fields := map[string]any{"id": int64(1)}
	r := NewRecord(fields)
	fields["id"] = int64(2)
	if r.Get("id") != int64(1) {
		t.Fatalf("NewRecord must copy its input")
	}
	r2 := r.With("id", int64(3))
	if r.Get("id") != int64(1) || r2.Get("id") != int64(3) {
		t.Fatalf("With must not modify the receiver")
	}
	key := r2.Key([]string{"id", "missing"})
	if len(key) != 2 || key[0] != int64(3) || key[1] != nil {
		t.Fatalf("unexpected key %v", key)
	}
}
