// Package predicate maps the comparison symbols accepted in declarative
// queries onto backend filter calls. The default table can be shadowed per
// adapter instance and again per call; resolution is call > instance >
// default.
package predicate

import "github.com/stratakv/strata/pkg/core"

// Builder applies one comparison to a backend query and returns the handle
// to use from then on. Builders must not assume in-place mutation.
type Builder func(q core.Query, field string, value any) core.Query

// Built-in comparison symbols.
const (
	Equal          = "=="
	StrictEqual    = "==="
	NotEqual       = "!="
	StrictNotEqual = "!=="
	Greater        = ">"
	GreaterOrEqual = ">="
	Less           = "<"
	LessOrEqual    = "<="
)

// canonicalOrder fixes the application order of built-in symbols when a
// field carries several operators; see Rank.
var canonicalOrder = []string{
	Equal, StrictEqual, NotEqual, StrictNotEqual,
	Greater, GreaterOrEqual, Less, LessOrEqual,
}

var defaults = map[string]Builder{
	Equal:          filterWith(core.OpEqual),
	StrictEqual:    filterWith(core.OpEqual),
	NotEqual:       filterWith(core.OpNotEqual),
	StrictNotEqual: filterWith(core.OpNotEqual),
	Greater:        filterWith(core.OpGreater),
	GreaterOrEqual: filterWith(core.OpGreaterOrEqual),
	Less:           filterWith(core.OpLess),
	LessOrEqual:    filterWith(core.OpLessOrEqual),
}

func filterWith(op string) Builder {
	return func(q core.Query, field string, value any) core.Query {
		return q.Filter(field, op, value)
	}
}

// Default returns the built-in builder for a symbol.
func Default(symbol string) (Builder, bool) {
	b, ok := defaults[symbol]
	return b, ok
}

// Rank returns a built-in symbol's position in the canonical application
// order. Symbols outside the built-in set report ok=false and sort after
// all built-ins.
func Rank(symbol string) (int, bool) {
	for i, s := range canonicalOrder {
		if s == symbol {
			return i, true
		}
	}
	return len(canonicalOrder), false
}

// Resolver resolves a comparison symbol to a builder.
type Resolver func(symbol string) (Builder, bool)

// NewResolver builds a Resolver over the given call-level and
// instance-level override tables. A nil builder in an override table does
// not shadow the levels below it.
func NewResolver(call, instance map[string]Builder) Resolver {
	return func(symbol string) (Builder, bool) {
		if b, ok := call[symbol]; ok && b != nil {
			return b, true
		}
		if b, ok := instance[symbol]; ok && b != nil {
			return b, true
		}
		return Default(symbol)
	}
}
