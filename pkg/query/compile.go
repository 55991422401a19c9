package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stratakv/strata/pkg/core"
	"github.com/stratakv/strata/pkg/errors"
	"github.com/stratakv/strata/pkg/predicate"
)

// Compile normalizes q and applies it to base in the contract order:
// filter predicates, then ordering, then offset, then limit. Backends may
// depend on predicates preceding paging clauses, so the order is fixed.
//
// Go maps do not preserve declaration order; fields apply in sorted name
// order and a field's symbols in the built-in canonical order (equality,
// inequality, then range operators), so compiled output is deterministic
// for a given query.
func Compile(base core.Query, q Query, resolve predicate.Resolver) (core.Query, error) {
	n, err := Normalize(q)
	if err != nil {
		return nil, err
	}
	return CompileNormalized(base, n, resolve)
}

// CompileNormalized applies an already-normalized query to base.
func CompileNormalized(base core.Query, n *Normalized, resolve predicate.Resolver) (core.Query, error) {
	if resolve == nil {
		resolve = predicate.NewResolver(nil, nil)
	}

	out := base
	for _, field := range sortedFields(n.Where) {
		criteria := n.Where[field]
		for _, symbol := range orderedSymbols(criteria) {
			if strings.HasPrefix(symbol, "|") {
				// OR grouping has no translation to a conjunction-only
				// filter model; rejected before resolution so call-level
				// overrides cannot re-enable it.
				return nil, fmt.Errorf("%w: %q", errors.ErrUnsupportedOperator, symbol)
			}
			builder, ok := resolve(symbol)
			if !ok {
				return nil, fmt.Errorf("%w: %q", errors.ErrUnsupportedOperator, symbol)
			}
			out = builder(out, field, criteria[symbol])
		}
	}

	for _, clause := range n.Order {
		out = out.Order(clause.Field, clause.Descending)
	}
	if n.Offset != 0 {
		out = out.Offset(n.Offset)
	}
	if n.Limit != 0 {
		out = out.Limit(n.Limit)
	}
	return out, nil
}

func sortedFields(where map[string]map[string]any) []string {
	fields := make([]string, 0, len(where))
	for f := range where {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

func orderedSymbols(criteria map[string]any) []string {
	symbols := make([]string, 0, len(criteria))
	for s := range criteria {
		symbols = append(symbols, s)
	}
	sort.Slice(symbols, func(i, j int) bool {
		ri, _ := predicate.Rank(symbols[i])
		rj, _ := predicate.Rank(symbols[j])
		if ri != rj {
			return ri < rj
		}
		return symbols[i] < symbols[j]
	})
	return symbols
}
