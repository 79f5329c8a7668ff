package dao

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rpattn/rdrstore/internal/domain"
)

// invalidTokenMessage is reported for every malformed pagination token.
const invalidTokenMessage = "invalid pagination token"

// EncodeCursor serialises one value per order field into an opaque token.
func EncodeCursor(c *domain.FieldCatalog, order []domain.OrderBy, values []any) (string, error) {
	if len(values) != len(order) {
		return "", fmt.Errorf("cursor has %d values for %d order fields", len(values), len(order))
	}
	wire := make([]any, len(values))
	for i, o := range order {
		desc, err := ResolveField(c, o.Field)
		if err != nil {
			return "", err
		}
		w, err := wireValue(desc, values[i])
		if err != nil {
			return "", err
		}
		wire[i] = w
	}
	raw, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("failed to encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// cursorFor extracts the cursor values of a record.
func cursorFor(c *domain.FieldCatalog, order []domain.OrderBy, r domain.Record) []any {
	values := make([]any, len(order))
	for i, o := range order {
		desc, _ := c.Resolve(o.Field)
		values[i] = desc.Value(r)
	}
	return values
}

func wireValue(desc domain.FieldDescriptor, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch desc.Type {
	case domain.FieldTypeDate:
		if t, ok := v.(time.Time); ok {
			return t.Format(domain.DateLayout), nil
		}
	case domain.FieldTypeDateTime:
		if t, ok := v.(time.Time); ok {
			return t.UTC().Format(domain.DateTimeLayout), nil
		}
	case domain.FieldTypeInteger:
		cv, err := coerceValue(desc, v)
		if err != nil {
			return nil, err
		}
		return cv, nil
	default:
		if s, ok := v.(string); ok {
			return s, nil
		}
	}
	return nil, fmt.Errorf("field %s: cannot encode %T as %s", desc.Name, v, desc.Type)
}

// DecodeCursor parses a token produced by EncodeCursor for the same order.
func DecodeCursor(c *domain.FieldCatalog, order []domain.OrderBy, token string) ([]any, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, &ValidationError{Message: invalidTokenMessage}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var wire []any
	if err := dec.Decode(&wire); err != nil || dec.More() {
		return nil, &ValidationError{Message: invalidTokenMessage}
	}
	if len(wire) != len(order) {
		return nil, &ValidationError{Message: invalidTokenMessage}
	}

	values := make([]any, len(wire))
	for i, o := range order {
		desc, err := ResolveField(c, o.Field)
		if err != nil {
			return nil, err
		}
		var s string
		switch w := wire[i].(type) {
		case nil:
			continue
		case json.Number:
			if desc.Type != domain.FieldTypeInteger {
				return nil, &ValidationError{Message: invalidTokenMessage}
			}
			s = w.String()
		case string:
			s = w
		default:
			return nil, &ValidationError{Message: invalidTokenMessage}
		}
		v, err := ParseValue(desc, s)
		if err != nil {
			return nil, &ValidationError{Message: invalidTokenMessage}
		}
		values[i] = v
	}
	return values, nil
}
