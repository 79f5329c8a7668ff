package dao

import (
	"context"
	"testing"

	"github.com/rpattn/rdrstore/internal/domain"
	"github.com/rpattn/rdrstore/internal/store"
	"github.com/rpattn/rdrstore/internal/store/memory"
)

var personStatuses = []string{"UNSET", "ACTIVE", "WITHDRAWN"}

func testEntity() *domain.EntityDescriptor {
	return &domain.EntityDescriptor{
		Name:         "person",
		Table:        "person",
		HistoryTable: "person_history",
		Catalog: domain.MustFieldCatalog(
			domain.FieldDescriptor{Name: "id", Type: domain.FieldTypeInteger},
			domain.FieldDescriptor{Name: "lastName", Type: domain.FieldTypeString},
			domain.FieldDescriptor{Name: "firstName", Type: domain.FieldTypeString},
			domain.FieldDescriptor{Name: "dateOfBirth", Type: domain.FieldTypeDate},
			domain.FieldDescriptor{Name: "signUpTime", Type: domain.FieldTypeDateTime},
			domain.FieldDescriptor{Name: "status", Type: domain.FieldTypeEnum, EnumValues: personStatuses},
			domain.FieldDescriptor{Name: "hpoId", Type: domain.FieldTypeCode},
		),
		IDFields:       []string{"id"},
		OrderingEnding: []string{"lastName", "firstName", "id"},
		SupportsUpdate: true,
		SupportsUpsert: true,
	}
}

func newTestDao(t *testing.T, opts ...Option) *Dao {
	t.Helper()
	d, err := New(testEntity(), memory.NewStore(), opts...)
	if err != nil {
		t.Fatalf("failed to create dao: %v", err)
	}
	return d
}

func person(id int64, last, first string) domain.Record {
	return domain.NewRecord(map[string]any{"id": id, "lastName": last, "firstName": first})
}

func mustInsert(t *testing.T, d *Dao, recs ...domain.Record) {
	t.Helper()
	for _, r := range recs {
		if _, err := d.Insert(context.Background(), r); err != nil {
			t.Fatalf("insert %v: %v", r.Fields, err)
		}
	}
}

func ids(recs []domain.Record) []int64 {
	out := make([]int64, len(recs))
	for i, r := range recs {
		out[i], _ = r.Get("id").(int64)
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// faultyStore injects storage errors in front of a real store.
type faultyStore struct {
	inner store.Store

	txErrs     []error // returned by successive WithTx calls before fn runs
	insertErrs []error // returned by successive Insert calls
	updateMiss bool    // Update reports that no row matched

	txCalls  int
	inserted [][]any
}

func (s *faultyStore) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	s.txCalls++
	if len(s.txErrs) > 0 {
		err := s.txErrs[0]
		s.txErrs = s.txErrs[1:]
		if err != nil {
			return err
		}
	}
	return s.inner.WithTx(ctx, func(tx store.Tx) error {
		return fn(&faultyTx{Tx: tx, s: s})
	})
}

type faultyTx struct {
	store.Tx
	s *faultyStore
}

func (t *faultyTx) Insert(ctx context.Context, e *domain.EntityDescriptor, rec domain.Record) error {
	t.s.inserted = append(t.s.inserted, rec.Key(e.IDFields))
	if len(t.s.insertErrs) > 0 {
		err := t.s.insertErrs[0]
		t.s.insertErrs = t.s.insertErrs[1:]
		if err != nil {
			return err
		}
	}
	return t.Tx.Insert(ctx, e, rec)
}

func (t *faultyTx) Update(ctx context.Context, e *domain.EntityDescriptor, rec domain.Record, expectedVersion int64) (bool, error) {
	if t.s.updateMiss {
		return false, nil
	}
	return t.Tx.Update(ctx, e, rec, expectedVersion)
}
