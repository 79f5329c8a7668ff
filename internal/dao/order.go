package dao

import (
	"github.com/rpattn/rdrstore/internal/domain"
)

// ResolveOrder builds the effective ordering of a query: the requested field
// first, then every ending field not already present, ascending. The ending
// normally closes with the primary key so the ordering is total.
func ResolveOrder(c *domain.FieldCatalog, ending []string, requested *domain.OrderBy) ([]domain.OrderBy, error) {
	if requested == nil && len(ending) == 0 {
		return nil, validationf("ordering not supported")
	}

	order := make([]domain.OrderBy, 0, len(ending)+1)
	seen := make(map[string]bool, len(ending)+1)
	if requested != nil {
		desc, err := ResolveField(c, requested.Field)
		if err != nil {
			return nil, err
		}
		order = append(order, domain.OrderBy{Field: desc.Name, Ascending: requested.Ascending})
		seen[desc.Name] = true
	}
	for _, name := range ending {
		if seen[name] {
			continue
		}
		if _, err := ResolveField(c, name); err != nil {
			return nil, err
		}
		order = append(order, domain.Asc(name))
		seen[name] = true
	}
	return order, nil
}
