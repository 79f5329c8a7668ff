package dao

import (
	"context"
	"time"

	"github.com/rpattn/rdrstore/internal/domain"
	"github.com/rpattn/rdrstore/internal/store"
)

// Query returns one page of records matching q.
//
// The page is read in a single transaction. One extra row is fetched to
// learn whether more pages exist; the pagination token is built from the
// last returned record.
func (d *Dao) Query(ctx context.Context, q domain.Query) (domain.Results, error) {
	start := time.Now()
	res, err := d.query(ctx, q)
	duration := time.Since(start)

	d.metrics.ObserveQuery(d.entity.Name, duration, len(res.Items), err)
	d.log.DbLogger(d.entity.Name, "query").LogDbOperation(duration, len(res.Items), expectedOutcome(err))
	return res, err
}

func (d *Dao) query(ctx context.Context, q domain.Query) (domain.Results, error) {
	limit := q.MaxResults
	if limit <= 0 {
		limit = d.defaultPageSize
	}
	if limit > d.maxPageSize {
		return domain.Results{}, validationf("max results %d exceeds the limit of %d", limit, d.maxPageSize)
	}
	if q.Offset < 0 {
		return domain.Results{}, validationf("offset must not be negative")
	}

	c := d.entity.Catalog
	order, err := ResolveOrder(c, d.entity.OrderingEnding, q.OrderBy)
	if err != nil {
		return domain.Results{}, err
	}
	filter, err := BuildFilterPredicate(c, q.Filters)
	if err != nil {
		return domain.Results{}, err
	}
	where := filter
	if q.PaginationToken != "" {
		cursor, err := DecodeCursor(c, order, q.PaginationToken)
		if err != nil {
			return domain.Results{}, err
		}
		seek, err := BuildSeekPredicate(order, cursor)
		if err != nil {
			return domain.Results{}, err
		}
		where = domain.AllOf(filter, seek)
	}

	var (
		items []domain.Record
		total *int64
	)
	err = d.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		items, err = tx.Select(ctx, d.entity, store.Selection{
			Where:   where,
			OrderBy: order,
			Limit:   limit + 1,
			Offset:  q.Offset,
		})
		if err != nil {
			return err
		}
		if q.IncludeTotal {
			n, err := tx.Count(ctx, d.entity, filter)
			if err != nil {
				return err
			}
			total = &n
		}
		return nil
	})
	if err != nil {
		return domain.Results{}, err
	}

	res := domain.Results{Items: items, Total: total}
	if res.Items == nil {
		res.Items = []domain.Record{}
	}
	if len(items) > limit {
		res.Items = items[:limit]
		res.MoreAvailable = true
	}
	if res.MoreAvailable || (q.AlwaysReturnToken && len(res.Items) > 0) {
		last := res.Items[len(res.Items)-1]
		res.PaginationToken, err = EncodeCursor(c, order, cursorFor(c, order, last))
		if err != nil {
			return domain.Results{}, err
		}
	}
	return res, nil
}

// QueryAll follows pagination tokens from q until the last page, calling fn
// for every record in order. Offset and IncludeTotal apply to the first page
// only.
func (d *Dao) QueryAll(ctx context.Context, q domain.Query, fn func(domain.Record) error) error {
	for {
		res, err := d.Query(ctx, q)
		if err != nil {
			return err
		}
		for _, r := range res.Items {
			if err := fn(r); err != nil {
				return err
			}
		}
		if !res.MoreAvailable {
			return nil
		}
		q.PaginationToken = res.PaginationToken
		q.Offset = 0
		q.IncludeTotal = false
	}
}
