// Package entities registers the entity types served by the data-access
// engine.
package entities

import (
	"fmt"
	"sort"

	"github.com/rpattn/rdrstore/internal/domain"
)

// Entity names.
const (
	ParticipantName      = "participant"
	BiobankOrderName     = "biobank_order"
	GenomicSetMemberName = "genomic_set_member"
)

// Enrollment statuses of a participant.
var EnrollmentStatuses = []string{"INTERESTED", "MEMBER", "FULL_PARTICIPANT"}

// ResearchIDRange bounds research identifiers, which are shorter than the
// default participant and biobank identifiers.
var ResearchIDRange = domain.IDRange{Min: 1000000, Max: 9999999}

// Participant is keyed by a random (participantId, biobankId) pair.
func Participant() *domain.EntityDescriptor {
	return &domain.EntityDescriptor{
		Name:         ParticipantName,
		Table:        "participant",
		HistoryTable: "participant_history",
		Catalog: domain.MustFieldCatalog(
			domain.FieldDescriptor{Name: "participantId", Type: domain.FieldTypeInteger},
			domain.FieldDescriptor{Name: "biobankId", Type: domain.FieldTypeInteger},
			domain.FieldDescriptor{Name: "researchId", Type: domain.FieldTypeInteger},
			domain.FieldDescriptor{Name: "lastName", Type: domain.FieldTypeString},
			domain.FieldDescriptor{Name: "firstName", Type: domain.FieldTypeString},
			domain.FieldDescriptor{Name: "dateOfBirth", Type: domain.FieldTypeDate},
			domain.FieldDescriptor{Name: "signUpTime", Type: domain.FieldTypeDateTime},
			domain.FieldDescriptor{Name: "enrollmentStatus", Type: domain.FieldTypeEnum, EnumValues: EnrollmentStatuses},
			domain.FieldDescriptor{Name: "hpoId", Type: domain.FieldTypeCode},
		),
		IDFields:       []string{"participantId", "biobankId"},
		OrderingEnding: []string{"lastName", "firstName", "dateOfBirth", "participantId", "biobankId"},
		SupportsUpdate: true,
		IDRanges: map[string]domain.IDRange{
			"researchId": ResearchIDRange,
		},
	}
}

// Biobank order statuses.
var BiobankOrderStatuses = []string{"UNSET", "CANCELLED", "RESTORED", "AMENDED"}

// BiobankOrder is keyed by the order identifier assigned by the biobank.
func BiobankOrder() *domain.EntityDescriptor {
	return &domain.EntityDescriptor{
		Name:         BiobankOrderName,
		Table:        "biobank_order",
		HistoryTable: "biobank_order_history",
		Catalog: domain.MustFieldCatalog(
			domain.FieldDescriptor{Name: "biobankOrderId", Type: domain.FieldTypeString},
			domain.FieldDescriptor{Name: "participantId", Type: domain.FieldTypeInteger},
			domain.FieldDescriptor{Name: "created", Type: domain.FieldTypeDateTime},
			domain.FieldDescriptor{Name: "orderStatus", Type: domain.FieldTypeEnum, EnumValues: BiobankOrderStatuses},
			domain.FieldDescriptor{Name: "collectedSiteId", Type: domain.FieldTypeCode},
		),
		IDFields:       []string{"biobankOrderId"},
		OrderingEnding: []string{"participantId", "biobankOrderId"},
		SupportsUpdate: true,
		SupportsUpsert: true,
	}
}

// Genomic workflow states.
var GenomicWorkflowStates = []string{"AW0", "AW1", "AW2", "CVL_READY", "GEM_READY", "GEM_RPT_READY"}

// GenomicSetMember tracks one sample through the genomics pipeline.
func GenomicSetMember() *domain.EntityDescriptor {
	return &domain.EntityDescriptor{
		Name:         GenomicSetMemberName,
		Table:        "genomic_set_member",
		HistoryTable: "genomic_set_member_history",
		Catalog: domain.MustFieldCatalog(
			domain.FieldDescriptor{Name: "id", Type: domain.FieldTypeInteger},
			domain.FieldDescriptor{Name: "participantId", Type: domain.FieldTypeInteger},
			domain.FieldDescriptor{Name: "genomeType", Type: domain.FieldTypeCode},
			domain.FieldDescriptor{Name: "sampleId", Type: domain.FieldTypeString},
			domain.FieldDescriptor{Name: "genomicWorkflowState", Type: domain.FieldTypeEnum, EnumValues: GenomicWorkflowStates},
			domain.FieldDescriptor{Name: "modified", Type: domain.FieldTypeDateTime},
		),
		IDFields:       []string{"id"},
		OrderingEnding: []string{"id"},
		SupportsUpdate: true,
	}
}

// Registry maps entity names to descriptors.
type Registry struct {
	byName map[string]*domain.EntityDescriptor
}

// NewRegistry validates and registers descriptors.
func NewRegistry(descs ...*domain.EntityDescriptor) (*Registry, error) {
	r := &Registry{byName: make(map[string]*domain.EntityDescriptor, len(descs))}
	for _, d := range descs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, exists := r.byName[d.Name]; exists {
			return nil, fmt.Errorf("entity %s registered twice", d.Name)
		}
		r.byName[d.Name] = d
	}
	return r, nil
}

// Default registers every built-in entity.
func Default() *Registry {
	r, err := NewRegistry(Participant(), BiobankOrder(), GenomicSetMember())
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup finds a descriptor by name.
func (r *Registry) Lookup(name string) (*domain.EntityDescriptor, error) {
	d, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown entity %q", name)
	}
	return d, nil
}

// Names lists registered entities alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All lists registered descriptors in name order.
func (r *Registry) All() []*domain.EntityDescriptor {
	names := r.Names()
	out := make([]*domain.EntityDescriptor, len(names))
	for i, name := range names {
		out[i] = r.byName[name]
	}
	return out
}
