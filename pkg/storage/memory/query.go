package memory

import (
	"fmt"
	"sort"

	"github.com/stratakv/strata/pkg/core"
	customerrors "github.com/stratakv/strata/pkg/errors"
	"github.com/stratakv/strata/pkg/record"
)

type filterClause struct {
	field string
	op    string
	value any
}

type orderClause struct {
	field      string
	descending bool
}

// Query is the memory backend's query handle. Every method returns a
// modified copy, so a partially compiled handle never aliases its base.
type Query struct {
	kind     string
	filters  []filterClause
	orders   []orderClause
	offset   int
	limit    int
	fields   []string
	keysOnly bool
}

func (q *Query) clone() *Query {
	cp := *q
	cp.filters = append([]filterClause(nil), q.filters...)
	cp.orders = append([]orderClause(nil), q.orders...)
	cp.fields = append([]string(nil), q.fields...)
	return &cp
}

// Filter adds a conjunctive predicate.
func (q *Query) Filter(field, op string, value any) core.Query {
	cp := q.clone()
	cp.filters = append(cp.filters, filterClause{field: field, op: op, value: value})
	return cp
}

// Order appends a sort clause.
func (q *Query) Order(field string, descending bool) core.Query {
	cp := q.clone()
	cp.orders = append(cp.orders, orderClause{field: field, descending: descending})
	return cp
}

// Offset skips n matches.
func (q *Query) Offset(n int) core.Query {
	cp := q.clone()
	cp.offset = n
	return cp
}

// Limit caps the result count.
func (q *Query) Limit(n int) core.Query {
	cp := q.clone()
	cp.limit = n
	return cp
}

// Select restricts returned fields; core.KeyField selects keys only.
func (q *Query) Select(fields ...string) core.Query {
	cp := q.clone()
	for _, f := range fields {
		if f == core.KeyField {
			cp.keysOnly = true
			continue
		}
		cp.fields = append(cp.fields, f)
	}
	return cp
}

// validate rejects filter operators the backend cannot evaluate.
func (q *Query) validate() error {
	for _, f := range q.filters {
		switch f.op {
		case core.OpEqual, core.OpNotEqual, core.OpGreater, core.OpGreaterOrEqual, core.OpLess, core.OpLessOrEqual:
		default:
			return fmt.Errorf("%w: %q", customerrors.ErrUnsupportedOperator, f.op)
		}
	}
	return nil
}

// evaluate runs the query over a snapshot of one kind's entries. Results
// order deterministically: user sort clauses first, key path as the final
// tie-break.
func (q *Query) evaluate(snapshot []entry) []core.Entity {
	var matched []entry
	for _, e := range snapshot {
		if q.matches(e.data) {
			matched = append(matched, e)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		for _, c := range q.orders {
			av, _ := matched[i].data.GetPath(c.field)
			bv, _ := matched[j].data.GetPath(c.field)
			cmp, ok := record.Compare(av, bv)
			if !ok || cmp == 0 {
				continue
			}
			if c.descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return matched[i].key.String() < matched[j].key.String()
	})

	if q.offset > 0 {
		if q.offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.offset:]
		}
	}
	if q.limit > 0 && len(matched) > q.limit {
		matched = matched[:q.limit]
	}

	out := make([]core.Entity, 0, len(matched))
	for _, e := range matched {
		out = append(out, q.project(e))
	}
	return out
}

func (q *Query) matches(data record.Record) bool {
	for _, f := range q.filters {
		value, _ := data.GetPath(f.field)
		if !applyFilter(value, f.op, f.value) {
			return false
		}
	}
	return true
}

func (q *Query) project(e entry) core.Entity {
	if q.keysOnly {
		return core.Entity{Key: e.key}
	}
	if len(q.fields) == 0 {
		return core.Entity{Key: e.key, Data: e.data.Clone()}
	}
	data := make(record.Record, len(q.fields))
	for _, f := range q.fields {
		if v, ok := e.data.GetPath(f); ok {
			data.SetPath(f, v)
		}
	}
	return core.Entity{Key: e.key, Data: data}
}

func applyFilter(have any, op string, want any) bool {
	switch op {
	case core.OpEqual:
		return record.Equal(have, want)
	case core.OpNotEqual:
		return !record.Equal(have, want)
	case core.OpGreater:
		cmp, ok := record.Compare(have, want)
		return ok && cmp > 0
	case core.OpGreaterOrEqual:
		cmp, ok := record.Compare(have, want)
		return ok && cmp >= 0
	case core.OpLess:
		cmp, ok := record.Compare(have, want)
		return ok && cmp < 0
	case core.OpLessOrEqual:
		cmp, ok := record.Compare(have, want)
		return ok && cmp <= 0
	default:
		return false
	}
}
