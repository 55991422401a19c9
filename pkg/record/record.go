// Package record defines the plain map shape records take between the
// adapter and its storage backends, plus the nested-path helpers the
// adapter uses for id and relation fields.
package record

import "strings"

// Record is a single stored record: field name to value. Nested objects
// are map[string]any, lists are []any.
type Record map[string]any

// Clone returns a deep copy of the record. Nested maps and slices are
// copied; all other values are assigned as-is.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Record:
		return map[string]any(t.Clone())
	case map[string]any:
		return map[string]any(Record(t).Clone())
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Merge deep-merges src into dst and returns dst. Where both sides hold a
// map the maps are merged recursively; any other collision takes the src
// value. Merge allocates dst when it is nil.
func Merge(dst, src Record) Record {
	if dst == nil {
		dst = make(Record, len(src))
	}
	for k, v := range src {
		dm, dok := asMap(dst[k])
		sm, sok := asMap(v)
		if dok && sok {
			dst[k] = map[string]any(Merge(dm, sm))
			continue
		}
		dst[k] = cloneValue(v)
	}
	return dst
}

func asMap(v any) (Record, bool) {
	switch t := v.(type) {
	case Record:
		return t, true
	case map[string]any:
		return Record(t), true
	default:
		return nil, false
	}
}

// GetPath resolves a dotted field path ("author.id"). The second return
// reports whether every segment existed.
func (r Record) GetPath(path string) (any, bool) {
	if r == nil || path == "" {
		return nil, false
	}
	segs := strings.Split(path, ".")
	cur := r
	for i, seg := range segs {
		v, ok := cur[seg]
		if !ok {
			return nil, false
		}
		if i == len(segs)-1 {
			return v, true
		}
		next, ok := asMap(v)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return nil, false
}

// SetPath sets a dotted field path, creating intermediate maps as needed.
// Intermediate non-map values are replaced.
func (r Record) SetPath(path string, value any) {
	if r == nil || path == "" {
		return
	}
	segs := strings.Split(path, ".")
	cur := r
	for _, seg := range segs[:len(segs)-1] {
		next, ok := asMap(cur[seg])
		if !ok {
			next = make(Record)
			cur[seg] = map[string]any(next)
		}
		cur = next
	}
	cur[segs[len(segs)-1]] = value
}

// DeletePath removes a dotted field path. Missing segments are a no-op.
func (r Record) DeletePath(path string) {
	if r == nil || path == "" {
		return
	}
	segs := strings.Split(path, ".")
	cur := r
	for _, seg := range segs[:len(segs)-1] {
		next, ok := asMap(cur[seg])
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, segs[len(segs)-1])
}

// StripFields removes the named fields (dotted paths allowed) from the
// record. Used to drop relation fields before a write.
func (r Record) StripFields(fields []string) {
	for _, f := range fields {
		r.DeletePath(f)
	}
}
