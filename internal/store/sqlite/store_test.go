package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rpattn/rdrstore/internal/dao"
	"github.com/rpattn/rdrstore/internal/domain"
	"github.com/rpattn/rdrstore/internal/entities"
	"github.com/rpattn/rdrstore/internal/store"
)

func openTestStore(t *testing.T, descs ...*domain.EntityDescriptor) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.EnsureSchema(context.Background(), descs...); err != nil {
		t.Fatalf("schema failed: %v", err)
	}
	return s
}

func participant(pid, bid int64, last string, dob any) domain.Record {
	fields := map[string]any{
		"participantId": pid,
		"biobankId":     bid,
		"lastName":      last,
		"firstName":     "X",
	}
	if dob != nil {
		fields["dateOfBirth"] = dob
	}
	return domain.NewRecord(fields)
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	e := entities.Participant()
	s := openTestStore(t, e)
	if err := s.EnsureSchema(context.Background(), e); err != nil {
		t.Fatalf("second EnsureSchema failed: %v", err)
	}
}

func TestStore_RoundTripThroughDao(t *testing.T) {
	e := entities.Participant()
	s := openTestStore(t, e)
	d, err := dao.New(e, s)
	if err != nil {
		t.Fatalf("dao: %v", err)
	}
	ctx := context.Background()

	signUp := time.Date(2021, 3, 4, 5, 6, 7, 890, time.UTC)
	in := participant(1, 2, "Smith", "1980-01-31").
		With("signUpTime", signUp).
		With("enrollmentStatus", "MEMBER")
	if _, err := d.Insert(ctx, in); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	got, err := d.Get(ctx, 1, 2)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Version != 1 || got.Get("lastName") != "Smith" || got.Get("enrollmentStatus") != "MEMBER" {
		t.Fatalf("unexpected record %+v", got)
	}
	if dob, _ := got.Get("dateOfBirth").(time.Time); !dob.Equal(time.Date(1980, 1, 31, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("date did not round-trip: %v", got.Get("dateOfBirth"))
	}
	if at, _ := got.Get("signUpTime").(time.Time); !at.Equal(signUp) {
		t.Fatalf("datetime did not round-trip: %v", got.Get("signUpTime"))
	}
	if _, ok := got.Fields["hpoId"]; ok {
		t.Fatalf("unset field came back set: %v", got.Fields)
	}

	if _, err := d.Update(ctx, got.With("hpoId", "PITT"), dao.ExpectVersion(1)); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if _, err := d.Update(ctx, got.With("hpoId", "AZ"), dao.ExpectVersion(1)); dao.CategoryOf(err) != dao.CategoryConflict {
		t.Fatalf("expected conflict for a stale version, got %v", err)
	}

	history, err := d.History(ctx, 1, 2)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 2 || history[0].ChangeType != domain.ChangeTypeInsert || history[1].Fields["hpoId"] != "PITT" {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestStore_UniqueViolation(t *testing.T) {
	e := entities.Participant()
	s := openTestStore(t, e)
	d, err := dao.New(e, s)
	if err != nil {
		t.Fatalf("dao: %v", err)
	}
	ctx := context.Background()
	if _, err := d.Insert(ctx, participant(1, 2, "A", nil)); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	_, err = d.Insert(ctx, participant(1, 2, "B", nil))
	if !store.IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
}

func TestStore_PaginationWithNulls(t *testing.T) {
	e := entities.Participant()
	s := openTestStore(t, e)
	d, err := dao.New(e, s)
	if err != nil {
		t.Fatalf("dao: %v", err)
	}
	ctx := context.Background()
	dobs := []any{"1990-01-01", nil, "1985-06-30", nil, "1990-01-01", "1970-12-31"}
	for i, dob := range dobs {
		if _, err := d.Insert(ctx, participant(int64(i+1), 100, "Same", dob)); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	cases := []struct {
		order domain.OrderBy
		want  []int64
	}{
		{domain.Asc("dateOfBirth"), []int64{2, 4, 6, 3, 1, 5}},
		{domain.Desc("dateOfBirth"), []int64{1, 5, 3, 6, 2, 4}},
	}
	for _, tc := range cases {
		order := tc.order
		q := domain.Query{OrderBy: &order, MaxResults: 2}
		var got []int64
		for {
			res, err := d.Query(ctx, q)
			if err != nil {
				t.Fatalf("%v: query failed: %v", tc.order, err)
			}
			for _, r := range res.Items {
				got = append(got, r.Get("participantId").(int64))
			}
			if !res.MoreAvailable {
				break
			}
			q.PaginationToken = res.PaginationToken
		}
		if len(got) != len(tc.want) {
			t.Fatalf("%v: got %v, want %v", tc.order, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("%v: got %v, want %v", tc.order, got, tc.want)
			}
		}
	}

	res, err := d.Query(ctx, domain.Query{
		Filters:      []domain.FilterClause{{Field: "dateOfBirth", Operator: domain.OperatorGreaterThanOrEquals, Value: "1985-01-01"}},
		IncludeTotal: true,
		MaxResults:   1,
	})
	if err != nil {
		t.Fatalf("filtered query failed: %v", err)
	}
	if res.Total == nil || *res.Total != 3 {
		t.Fatalf("expected total 3, got %v", res.Total)
	}
}

func TestWithTx_RollsBack(t *testing.T) {
	e := entities.Participant()
	s := openTestStore(t, e)
	ctx := context.Background()
	boom := errors.New("boom")
	rec := participant(1, 2, "A", nil)
	rec.Version = 1

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Insert(ctx, e, rec); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	err = s.WithTx(ctx, func(tx store.Tx) error {
		n, err := tx.Count(ctx, e, nil)
		if err != nil {
			return err
		}
		if n != 0 {
			t.Fatalf("rolled back row is visible")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
