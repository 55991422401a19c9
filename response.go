package strata

import "github.com/stratakv/strata/pkg/record"

// Response is the envelope every operation produces. Data carries the
// operation's natural result (a record, a record slice, or nil) and exactly
// one of the counters is meaningful per operation. Callers normally consume
// the typed return values; pass Raw to receive the envelope as well.
type Response struct {
	Data    any
	Created int
	Updated int
	Deleted int
	Found   int
}

// Record returns Data as a single record, or nil when the response holds
// something else.
func (r *Response) Record() record.Record {
	if r == nil {
		return nil
	}
	switch d := r.Data.(type) {
	case record.Record:
		return d
	case map[string]any:
		return record.Record(d)
	default:
		return nil
	}
}

// Records returns Data as a record slice, or nil when the response holds
// something else. A single record comes back as a one-element slice.
func (r *Response) Records() []record.Record {
	if r == nil {
		return nil
	}
	switch d := r.Data.(type) {
	case []record.Record:
		return d
	case record.Record:
		return []record.Record{d}
	case map[string]any:
		return []record.Record{record.Record(d)}
	default:
		return nil
	}
}
