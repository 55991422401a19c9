package record_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratakv/strata/pkg/record"
)

func TestRecord_Clone(t *testing.T) {
	r := record.Record{
		"id":   int64(1),
		"name": "alice",
		"profile": map[string]any{
			"city": "porto",
			"tags": []any{"a", "b"},
		},
	}

	c := r.Clone()
	require.Equal(t, map[string]any(r), map[string]any(c))

	// Mutating the clone must not reach the original.
	c["name"] = "bob"
	c["profile"].(map[string]any)["city"] = "lisbon"
	c["profile"].(map[string]any)["tags"].([]any)[0] = "z"

	assert.Equal(t, "alice", r["name"])
	assert.Equal(t, "porto", r["profile"].(map[string]any)["city"])
	assert.Equal(t, "a", r["profile"].(map[string]any)["tags"].([]any)[0])
}

func TestRecord_CloneNil(t *testing.T) {
	var r record.Record
	assert.Nil(t, r.Clone())
}

func TestMerge_DeepMerge(t *testing.T) {
	dst := record.Record{
		"id": int64(7),
		"profile": map[string]any{
			"city": "porto",
			"zip":  "4000",
		},
	}
	src := record.Record{
		"name": "alice",
		"profile": map[string]any{
			"city": "lisbon",
		},
	}

	out := record.Merge(dst, src)

	assert.Equal(t, int64(7), out["id"])
	assert.Equal(t, "alice", out["name"])
	profile := out["profile"].(map[string]any)
	assert.Equal(t, "lisbon", profile["city"])
	assert.Equal(t, "4000", profile["zip"])
}

func TestMerge_NonMapCollisionTakesSource(t *testing.T) {
	dst := record.Record{"meta": map[string]any{"a": 1}}
	src := record.Record{"meta": "flat"}

	out := record.Merge(dst, src)
	assert.Equal(t, "flat", out["meta"])
}

func TestMerge_NilDestination(t *testing.T) {
	out := record.Merge(nil, record.Record{"a": 1})
	assert.Equal(t, 1, out["a"])
}

func TestRecord_GetPath(t *testing.T) {
	r := record.Record{
		"id": int64(3),
		"author": map[string]any{
			"id":   int64(9),
			"name": "kim",
		},
	}

	v, ok := r.GetPath("author.id")
	require.True(t, ok)
	assert.Equal(t, int64(9), v)

	v, ok = r.GetPath("id")
	require.True(t, ok)
	assert.Equal(t, int64(3), v)

	_, ok = r.GetPath("author.missing")
	assert.False(t, ok)

	_, ok = r.GetPath("author.name.last")
	assert.False(t, ok)
}

func TestRecord_SetPath(t *testing.T) {
	r := record.Record{}
	r.SetPath("author.id", int64(4))
	r.SetPath("status", "active")

	v, ok := r.GetPath("author.id")
	require.True(t, ok)
	assert.Equal(t, int64(4), v)
	assert.Equal(t, "active", r["status"])
}

func TestRecord_StripFields(t *testing.T) {
	r := record.Record{
		"id":     int64(1),
		"posts":  []any{map[string]any{"id": int64(2)}},
		"author": map[string]any{"id": int64(3)},
		"meta":   map[string]any{"inner": map[string]any{"x": 1}, "keep": true},
	}

	r.StripFields([]string{"posts", "author", "meta.inner", "nope"})

	assert.NotContains(t, r, "posts")
	assert.NotContains(t, r, "author")
	assert.Contains(t, r, "id")
	meta := r["meta"].(map[string]any)
	assert.NotContains(t, meta, "inner")
	assert.Contains(t, meta, "keep")
}
