package dao

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rpattn/rdrstore/internal/domain"
	"github.com/rpattn/rdrstore/internal/metrics"
	"github.com/rpattn/rdrstore/internal/store/memory"
)

func names(recs []domain.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i], _ = r.Get("firstName").(string)
	}
	return out
}

func TestQuery_TwoPages(t *testing.T) {
	d := newTestDao(t)
	ctx := context.Background()
	mustInsert(t, d,
		person(3, "Caterpillar", "Chad"),
		person(1, "Aardvark", "Alice"),
		person(2, "Builder", "Bob"),
	)

	page1, err := d.Query(ctx, domain.Query{MaxResults: 2})
	if err != nil {
		t.Fatalf("page 1 failed: %v", err)
	}
	if got := names(page1.Items); len(got) != 2 || got[0] != "Alice" || got[1] != "Bob" {
		t.Fatalf("page 1: expected [Alice Bob], got %v", got)
	}
	if !page1.MoreAvailable || page1.PaginationToken == "" {
		t.Fatalf("page 1: expected more results and a token, got %+v", page1)
	}

	order, _ := ResolveOrder(d.entity.Catalog, d.entity.OrderingEnding, nil)
	cursor, err := DecodeCursor(d.entity.Catalog, order, page1.PaginationToken)
	if err != nil {
		t.Fatalf("token does not decode: %v", err)
	}
	sameValues(t, cursor, []any{"Builder", "Bob", int64(2)})

	page2, err := d.Query(ctx, domain.Query{MaxResults: 2, PaginationToken: page1.PaginationToken})
	if err != nil {
		t.Fatalf("page 2 failed: %v", err)
	}
	if got := names(page2.Items); len(got) != 1 || got[0] != "Chad" {
		t.Fatalf("page 2: expected [Chad], got %v", got)
	}
	if page2.MoreAvailable || page2.PaginationToken != "" {
		t.Fatalf("page 2: expected last page without token, got %+v", page2)
	}
}

func TestQuery_AlwaysReturnToken(t *testing.T) {
	d := newTestDao(t)
	ctx := context.Background()

	res, err := d.Query(ctx, domain.Query{AlwaysReturnToken: true})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if res.Items == nil || len(res.Items) != 0 || res.PaginationToken != "" {
		t.Fatalf("empty result: expected empty items and no token, got %+v", res)
	}

	mustInsert(t, d, person(1, "A", "a"))
	res, err = d.Query(ctx, domain.Query{AlwaysReturnToken: true})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if res.MoreAvailable || res.PaginationToken == "" {
		t.Fatalf("expected a token on the last page, got %+v", res)
	}

	mustInsert(t, d, person(2, "B", "b"))
	res, err = d.Query(ctx, domain.Query{PaginationToken: res.PaginationToken})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if got := ids(res.Items); !equalIDs(got, []int64{2}) {
		t.Fatalf("expected to resume after the first record, got %v", got)
	}
}

func TestQuery_TotalAndOffset(t *testing.T) {
	d := newTestDao(t)
	ctx := context.Background()
	for i := int64(1); i <= 6; i++ {
		rec := person(i, "Same", "x")
		if i%2 == 0 {
			rec = rec.With("hpoId", "PITT")
		}
		mustInsert(t, d, rec)
	}
	filters := []domain.FilterClause{{Field: "hpoId", Value: "PITT"}}

	page1, err := d.Query(ctx, domain.Query{Filters: filters, MaxResults: 1, IncludeTotal: true})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if page1.Total == nil || *page1.Total != 3 {
		t.Fatalf("expected total 3, got %v", page1.Total)
	}

	page2, err := d.Query(ctx, domain.Query{
		Filters:         filters,
		MaxResults:      1,
		IncludeTotal:    true,
		PaginationToken: page1.PaginationToken,
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if page2.Total == nil || *page2.Total != 3 {
		t.Fatalf("total must ignore the pagination token, got %v", page2.Total)
	}
	if got := ids(page2.Items); !equalIDs(got, []int64{4}) {
		t.Fatalf("expected [4], got %v", got)
	}

	res, err := d.Query(ctx, domain.Query{Offset: 4})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if got := ids(res.Items); !equalIDs(got, []int64{5, 6}) {
		t.Fatalf("expected [5 6] after offset 4, got %v", got)
	}
	if res.Total != nil {
		t.Fatalf("total must be omitted unless requested")
	}
}

func TestQuery_PageSizes(t *testing.T) {
	d := newTestDao(t, WithPageSizes(2, 3))
	ctx := context.Background()
	for i := int64(1); i <= 4; i++ {
		mustInsert(t, d, person(i, "Same", "x"))
	}

	res, err := d.Query(ctx, domain.Query{})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(res.Items) != 2 || !res.MoreAvailable {
		t.Fatalf("expected default page of 2, got %d items", len(res.Items))
	}

	_, err = d.Query(ctx, domain.Query{MaxResults: 4})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError above the maximum page size, got %v", err)
	}
	_, err = d.Query(ctx, domain.Query{Offset: -1})
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for negative offset, got %v", err)
	}
}

func TestQuery_InvalidToken(t *testing.T) {
	d := newTestDao(t)
	_, err := d.Query(context.Background(), domain.Query{PaginationToken: "garbage!"})
	if CategoryOf(err) != CategoryBadRequest {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestQuery_TokenFromDifferentOrdering(t *testing.T) {
	d := newTestDao(t)
	ctx := context.Background()
	mustInsert(t, d, person(1, "A", "a"), person(2, "B", "b"))

	res, err := d.Query(ctx, domain.Query{MaxResults: 1})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	order := domain.Desc("dateOfBirth")
	_, err = d.Query(ctx, domain.Query{MaxResults: 1, OrderBy: &order, PaginationToken: res.PaginationToken})
	if CategoryOf(err) != CategoryBadRequest {
		t.Fatalf("expected bad request for a token of another ordering, got %v", err)
	}
}

func TestQueryAll(t *testing.T) {
	d := newTestDao(t, WithPageSizes(2, 10))
	for i := int64(1); i <= 5; i++ {
		mustInsert(t, d, person(i, "Same", "x"))
	}
	var got []domain.Record
	err := d.QueryAll(context.Background(), domain.Query{Offset: 1, IncludeTotal: true}, func(r domain.Record) error {
		got = append(got, r)
		return nil
	})
	if err != nil {
		t.Fatalf("QueryAll failed: %v", err)
	}
	if !equalIDs(ids(got), []int64{2, 3, 4, 5}) {
		t.Fatalf("expected [2 3 4 5], got %v", ids(got))
	}

	stop := errors.New("stop")
	calls := 0
	err = d.QueryAll(context.Background(), domain.Query{}, func(domain.Record) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Fatalf("expected callback error after one call, got %v after %d calls", err, calls)
	}
}

func TestQuery_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	d, err := New(testEntity(), memory.NewStore(), WithMetrics(m))
	if err != nil {
		t.Fatalf("failed to create dao: %v", err)
	}
	ctx := context.Background()
	if _, err := d.Query(ctx, domain.Query{}); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if _, err := d.Query(ctx, domain.Query{MaxResults: DefaultMaxPageSize + 1}); err == nil {
		t.Fatal("expected error")
	}
	if got := testutil.ToFloat64(m.QueriesTotal.WithLabelValues("person", "success")); got != 1 {
		t.Fatalf("expected 1 successful query, got %v", got)
	}
	if got := testutil.ToFloat64(m.QueriesTotal.WithLabelValues("person", "error")); got != 1 {
		t.Fatalf("expected 1 failed query, got %v", got)
	}
}
