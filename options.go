package strata

import (
	"github.com/stratakv/strata/pkg/core"
	"github.com/stratakv/strata/pkg/predicate"
)

// Option adjusts a single adapter call. Options never outlive the call they
// are passed to.
type Option func(*callOptions)

type callOptions struct {
	raw       *Response
	operators map[string]predicate.Builder
	with      []string
	kind      string
	base      core.Query
}

func newCallOptions(opts []Option) *callOptions {
	call := &callOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(call)
		}
	}
	return call
}

// kindFor returns the storage kind for the call, preferring a WithKind
// override over the mapper's default.
func (c *callOptions) kindFor(fallback string) string {
	if c.kind != "" {
		return c.kind
	}
	return fallback
}

// Raw asks the operation to copy its full response envelope into dst after
// the after hook has run. The typed return values are unaffected.
func Raw(dst *Response) Option {
	return func(c *callOptions) {
		c.raw = dst
	}
}

// WithRelations selects the relations to resolve on the returned records.
// Names match either a relation's target mapper or its local field; names
// that match nothing are ignored.
func WithRelations(names ...string) Option {
	return func(c *callOptions) {
		c.with = append(c.with, names...)
	}
}

// WithOperators installs call-level operator overrides. They take precedence
// over the adapter's operator table, which in turn shadows the built-in one.
func WithOperators(table map[string]predicate.Builder) Option {
	return func(c *callOptions) {
		if c.operators == nil {
			c.operators = make(map[string]predicate.Builder, len(table))
		}
		for sym, b := range table {
			c.operators[sym] = b
		}
	}
}

// WithKind overrides the storage kind the operation addresses, leaving the
// mapper untouched.
func WithKind(kind string) Option {
	return func(c *callOptions) {
		c.kind = kind
	}
}

// WithBaseQuery supplies the backend query handle FindAll, UpdateAll and
// DestroyAll compile onto instead of a fresh CreateQuery(kind). The handle
// must come from the adapter's own storage.
func WithBaseQuery(q core.Query) Option {
	return func(c *callOptions) {
		c.base = q
	}
}
