package domain

// Predicate is a storage-neutral row condition. Backends either evaluate it
// directly or render it to SQL.
type Predicate interface {
	isPredicate()
}

// Compare is "Field Op Value" for a non-null Value. Rows where the field
// is null never match a comparison.
type Compare struct {
	Field string
	Op    Operator
	Value any
}

// IsNull matches rows where Field is unset.
type IsNull struct {
	Field string
}

// NotNull matches rows where Field is set.
type NotNull struct {
	Field string
}

// And matches when every child matches; an empty And matches everything.
type And []Predicate

// Or matches when any child matches; an empty Or matches nothing.
type Or []Predicate

// False matches nothing.
type False struct{}

func (Compare) isPredicate() {}
func (IsNull) isPredicate() {}
func (NotNull) isPredicate() {}
func (And) isPredicate() {}
func (Or) isPredicate() {}
func (False) isPredicate() {}

// AllOf conjoins predicates, dropping nils and flattening nested Ands.
// It returns nil when nothing constrains the result.
func AllOf(preds ...Predicate) Predicate {
	var out And
	for _, p := range preds {
		switch v := p.(type) {
		case nil:
			continue
		case And:
			if len(v) == 0 {
				continue
			}
			out = append(out, v...)
		case False:
			return False{}
		default:
			out = append(out, v)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

// AnyOf disjoins predicates, dropping Falses and flattening nested Ors.
// It returns False when no alternative remains.
func AnyOf(preds ...Predicate) Predicate {
	var out Or
	for _, p := range preds {
		switch v := p.(type) {
		case nil:
			// an unconstrained alternative matches everything
			return nil
		case False:
			continue
		case Or:
			out = append(out, v...)
		default:
			out = append(out, v)
		}
	}
	switch len(out) {
	case 0:
		return False{}
	case 1:
		return out[0]
	}
	return out
}

// KeyPredicate matches the row whose id fields equal key.
func KeyPredicate(idFields []string, key []any) Predicate {
	preds := make([]Predicate, len(idFields))
	for i, f := range idFields {
		preds[i] = Compare{Field: f, Op: OperatorEquals, Value: key[i]}
	}
	return AllOf(preds...)
}
