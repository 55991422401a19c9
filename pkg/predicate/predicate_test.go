package predicate_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratakv/strata/pkg/core"
	"github.com/stratakv/strata/pkg/predicate"
)

// recordingQuery captures filter applications for assertions.
type recordingQuery struct {
	calls []string
}

func (q *recordingQuery) Filter(field, op string, value any) core.Query {
	q.calls = append(q.calls, fmt.Sprintf("%s %s %v", field, op, value))
	return q
}
func (q *recordingQuery) Order(field string, descending bool) core.Query { return q }
func (q *recordingQuery) Offset(n int) core.Query                        { return q }
func (q *recordingQuery) Limit(n int) core.Query                         { return q }
func (q *recordingQuery) Select(fields ...string) core.Query             { return q }

func TestDefault_BuiltinSymbols(t *testing.T) {
	cases := []struct {
		symbol string
		want   string
	}{
		{"==", "age = 21"},
		{"===", "age = 21"},
		{"!=", "age != 21"},
		{"!==", "age != 21"},
		{">", "age > 21"},
		{">=", "age >= 21"},
		{"<", "age < 21"},
		{"<=", "age <= 21"},
	}
	for _, tc := range cases {
		b, ok := predicate.Default(tc.symbol)
		require.True(t, ok, tc.symbol)

		q := &recordingQuery{}
		b(q, "age", 21)
		assert.Equal(t, []string{tc.want}, q.calls, tc.symbol)
	}
}

func TestDefault_UnknownSymbol(t *testing.T) {
	_, ok := predicate.Default("in")
	assert.False(t, ok)

	_, ok = predicate.Default("|==")
	assert.False(t, ok)
}

func TestNewResolver_PrecedenceOrder(t *testing.T) {
	tag := func(name string) predicate.Builder {
		return func(q core.Query, field string, value any) core.Query {
			return q.Filter(field, name, value)
		}
	}

	call := map[string]predicate.Builder{"==": tag("call")}
	instance := map[string]predicate.Builder{"==": tag("instance"), ">": tag("instance")}

	resolve := predicate.NewResolver(call, instance)

	// Call-level wins over instance and default.
	b, ok := resolve("==")
	require.True(t, ok)
	q := &recordingQuery{}
	b(q, "f", 1)
	assert.Equal(t, []string{"f call 1"}, q.calls)

	// Instance-level wins over default.
	b, ok = resolve(">")
	require.True(t, ok)
	q = &recordingQuery{}
	b(q, "f", 1)
	assert.Equal(t, []string{"f instance 1"}, q.calls)

	// Anything else falls through to the default table.
	b, ok = resolve("<")
	require.True(t, ok)
	q = &recordingQuery{}
	b(q, "f", 1)
	assert.Equal(t, []string{"f < 1"}, q.calls)

	_, ok = resolve("between")
	assert.False(t, ok)
}

func TestNewResolver_NilBuilderDoesNotShadow(t *testing.T) {
	call := map[string]predicate.Builder{"==": nil}
	resolve := predicate.NewResolver(call, nil)

	b, ok := resolve("==")
	require.True(t, ok)
	q := &recordingQuery{}
	b(q, "f", 1)
	assert.Equal(t, []string{"f = 1"}, q.calls)
}

func TestRank_CanonicalOrder(t *testing.T) {
	prev := -1
	for _, sym := range []string{"==", "===", "!=", "!==", ">", ">=", "<", "<="} {
		r, ok := predicate.Rank(sym)
		require.True(t, ok, sym)
		assert.Greater(t, r, prev, sym)
		prev = r
	}

	r, ok := predicate.Rank("custom")
	assert.False(t, ok)
	assert.Equal(t, 8, r)
}
