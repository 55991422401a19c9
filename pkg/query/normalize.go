// Package query normalizes declarative queries and compiles them onto a
// backend-query handle. A declarative query is a plain map with the
// recognized keys where, orderBy (or sort), limit and skip (or offset);
// every other top-level key is shorthand for an equality filter.
package query

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/stratakv/strata/pkg/errors"
)

// Query is the declarative query shape accepted by the adapter's read and
// bulk operations. Constructed per call; never persisted.
type Query map[string]any

// Sort is one normalized ordering clause.
type Sort struct {
	Field      string
	Descending bool
}

// Normalized is the canonical form a Query reduces to before translation.
// Normalizing an already-normalized query yields the same result.
type Normalized struct {
	Where  map[string]map[string]any
	Order  []Sort
	Offset int
	Limit  int
}

var reservedKeys = map[string]bool{
	"where":   true,
	"orderBy": true,
	"sort":    true,
	"limit":   true,
	"skip":    true,
	"offset":  true,
}

// Normalize reduces a declarative query to its canonical form without
// mutating the input: where defaults to empty, orderBy falls back to sort,
// skip falls back to offset, and non-reserved top-level keys become
// equality criteria (bare values are sugar for {"==": value}).
func Normalize(q Query) (*Normalized, error) {
	n := &Normalized{Where: make(map[string]map[string]any)}
	if q == nil {
		return n, nil
	}

	var err error
	if n.Where, err = parseWhere(q["where"]); err != nil {
		return nil, err
	}

	orderRaw := q["orderBy"]
	if orderRaw == nil {
		orderRaw = q["sort"]
	}
	if n.Order, err = parseOrder(orderRaw); err != nil {
		return nil, err
	}

	skipRaw := q["skip"]
	if skipRaw == nil {
		skipRaw = q["offset"]
	}
	if skipRaw != nil {
		if n.Offset, err = coerceInt("skip", skipRaw); err != nil {
			return nil, err
		}
	}
	if q["limit"] != nil {
		if n.Limit, err = coerceInt("limit", q["limit"]); err != nil {
			return nil, err
		}
	}

	// Shorthand: any other top-level key is a filter on that field and
	// overrides a same-named entry in where.
	for k, v := range q {
		if reservedKeys[k] {
			continue
		}
		n.Where[k] = toCriteria(v)
	}
	return n, nil
}

func parseWhere(v any) (map[string]map[string]any, error) {
	out := make(map[string]map[string]any)
	switch t := v.(type) {
	case nil:
	case map[string]map[string]any:
		for field, criteria := range t {
			cp := make(map[string]any, len(criteria))
			for op, val := range criteria {
				cp[op] = val
			}
			out[field] = cp
		}
	case map[string]any:
		for field, raw := range t {
			out[field] = toCriteria(raw)
		}
	default:
		return nil, fmt.Errorf("%w: where must be a map, got %T", errors.ErrInvalidQuery, v)
	}
	return out, nil
}

func toCriteria(raw any) map[string]any {
	if m, ok := raw.(map[string]any); ok {
		cp := make(map[string]any, len(m))
		for op, val := range m {
			cp[op] = val
		}
		return cp
	}
	return map[string]any{"==": raw}
}

func parseOrder(v any) ([]Sort, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []Sort{{Field: t}}, nil
	case Sort:
		return []Sort{t}, nil
	case []Sort:
		out := make([]Sort, len(t))
		copy(out, t)
		return out, nil
	case []string:
		out := make([]Sort, 0, len(t))
		for _, f := range t {
			out = append(out, Sort{Field: f})
		}
		return out, nil
	case []any:
		out := make([]Sort, 0, len(t))
		for _, el := range t {
			s, err := parseOrderClause(el)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported orderBy shape %T", errors.ErrInvalidQuery, v)
	}
}

func parseOrderClause(el any) (Sort, error) {
	switch c := el.(type) {
	case string:
		return Sort{Field: c}, nil
	case Sort:
		return c, nil
	case []string:
		return pairToSort(c)
	case []any:
		pair := make([]string, 0, len(c))
		for _, p := range c {
			s, ok := p.(string)
			if !ok {
				return Sort{}, fmt.Errorf("%w: orderBy clause element %T", errors.ErrInvalidQuery, p)
			}
			pair = append(pair, s)
		}
		return pairToSort(pair)
	default:
		return Sort{}, fmt.Errorf("%w: unsupported orderBy clause %T", errors.ErrInvalidQuery, el)
	}
}

func pairToSort(pair []string) (Sort, error) {
	switch len(pair) {
	case 1:
		return Sort{Field: pair[0]}, nil
	case 2:
		// Only a case-insensitive "desc" flips direction.
		return Sort{Field: pair[0], Descending: strings.EqualFold(pair[1], "desc")}, nil
	default:
		return Sort{}, fmt.Errorf("%w: orderBy clause needs [field] or [field, direction]", errors.ErrInvalidQuery)
	}
}

func coerceInt(key string, v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int8:
		return int(t), nil
	case int16:
		return int(t), nil
	case int32:
		return int(t), nil
	case int64:
		return int(t), nil
	case uint:
		return int(t), nil
	case uint8:
		return int(t), nil
	case uint16:
		return int(t), nil
	case uint32:
		return int(t), nil
	case uint64:
		return int(t), nil
	case float32:
		return int(t), nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, fmt.Errorf("%w: %s is not a finite number", errors.ErrInvalidQuery, key)
		}
		return int(t), nil
	case string:
		i, err := strconv.Atoi(t)
		if err != nil {
			return 0, fmt.Errorf("%w: %s %q is not numeric", errors.ErrInvalidQuery, key, t)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("%w: %s has unsupported type %T", errors.ErrInvalidQuery, key, v)
	}
}
