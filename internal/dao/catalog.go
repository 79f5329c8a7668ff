package dao

import (
	"github.com/rpattn/rdrstore/internal/domain"
)

// ResolveField looks up a field by name, failing with a ValidationError when
// the entity has no such field.
func ResolveField(c *domain.FieldCatalog, name string) (domain.FieldDescriptor, error) {
	desc, ok := c.Resolve(name)
	if !ok {
		return domain.FieldDescriptor{}, validationf("no such field %s", name)
	}
	return desc, nil
}
