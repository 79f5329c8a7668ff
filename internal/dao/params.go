package dao

import (
	"net/url"
	"sort"
	"strconv"

	"github.com/rpattn/rdrstore/internal/domain"
)

// Reserved search parameters.
const (
	ParamCount        = "_count"
	ParamSort         = "_sort"
	ParamSortDesc     = "_sort:desc"
	ParamToken        = "_token"
	ParamIncludeTotal = "_includeTotal"
	ParamOffset       = "_offset"
)

// ParseQueryParams builds a Query from search parameters. Reserved keys
// control paging and ordering; every other key names a field and each of its
// values becomes one filter clause.
func ParseQueryParams(c *domain.FieldCatalog, params url.Values) (domain.Query, error) {
	var q domain.Query
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		values := params[key]
		if len(values) == 0 {
			continue
		}
		switch key {
		case ParamCount:
			n, err := singleInt(key, values)
			if err != nil {
				return domain.Query{}, err
			}
			q.MaxResults = n
		case ParamOffset:
			n, err := singleInt(key, values)
			if err != nil {
				return domain.Query{}, err
			}
			q.Offset = n
		case ParamSort, ParamSortDesc:
			if q.OrderBy != nil || len(values) > 1 {
				return domain.Query{}, validationf("only one sort order is supported")
			}
			desc, err := ResolveField(c, values[0])
			if err != nil {
				return domain.Query{}, err
			}
			q.OrderBy = &domain.OrderBy{Field: desc.Name, Ascending: key == ParamSort}
		case ParamToken:
			q.PaginationToken = values[len(values)-1]
		case ParamIncludeTotal:
			b, err := strconv.ParseBool(values[len(values)-1])
			if err != nil {
				return domain.Query{}, validationf("invalid %s value %q", key, values[len(values)-1])
			}
			q.IncludeTotal = b
		default:
			desc, err := ResolveField(c, key)
			if err != nil {
				return domain.Query{}, err
			}
			for _, raw := range values {
				clause, err := ParseFilter(desc, raw)
				if err != nil {
					return domain.Query{}, err
				}
				q.Filters = append(q.Filters, clause)
			}
		}
	}
	return q, nil
}

func singleInt(key string, values []string) (int, error) {
	if len(values) > 1 {
		return 0, validationf("%s may only be given once", key)
	}
	n, err := strconv.Atoi(values[0])
	if err != nil {
		return 0, validationf("invalid %s value %q", key, values[0])
	}
	return n, nil
}
