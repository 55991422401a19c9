// Package driver replays contract fixtures against the Go adapter. The
// cross-language harness feeds every port the same fixture files; outcomes
// are normalized through JSON so numbers and records compare cleanly across
// runtimes.
package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/stratakv/strata"
	strataerrors "github.com/stratakv/strata/pkg/errors"
	"github.com/stratakv/strata/pkg/mapper"
	"github.com/stratakv/strata/pkg/query"
	"github.com/stratakv/strata/pkg/record"
	"github.com/stratakv/strata/pkg/storage/memory"
)

// ErrorCode is the backend-neutral name a contract fixture uses for an
// expected failure.
type ErrorCode string

const (
	ErrNotFound                 ErrorCode = "ErrNotFound"
	ErrUnsupportedOperator      ErrorCode = "ErrUnsupportedOperator"
	ErrUnsupportedRelationShape ErrorCode = "ErrUnsupportedRelationShape"
	ErrUnknownMapper            ErrorCode = "ErrUnknownMapper"
	ErrInvalidMapper            ErrorCode = "ErrInvalidMapper"
	ErrInvalidQuery             ErrorCode = "ErrInvalidQuery"
)

// MapError translates an adapter error into its contract code. Errors
// outside the contract vocabulary map to "".
func MapError(err error) ErrorCode {
	switch {
	case errors.Is(err, strataerrors.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, strataerrors.ErrUnsupportedOperator):
		return ErrUnsupportedOperator
	case errors.Is(err, strataerrors.ErrUnsupportedRelationShape):
		return ErrUnsupportedRelationShape
	case errors.Is(err, strataerrors.ErrUnknownMapper):
		return ErrUnknownMapper
	case errors.Is(err, strataerrors.ErrInvalidMapper):
		return ErrInvalidMapper
	case errors.Is(err, strataerrors.ErrInvalidQuery):
		return ErrInvalidQuery
	default:
		return ""
	}
}

// Fixture is one contract file: the mappers it needs plus an operation
// script replayed in order against a fresh adapter.
type Fixture struct {
	Name       string           `json:"name"`
	Mappers    []*mapper.Mapper `json:"mappers,omitempty"`
	Operations []Operation      `json:"operations"`
}

// Operation is a single scripted adapter call.
type Operation struct {
	Op        string           `json:"op"`
	Mapper    string           `json:"mapper"`
	ID        any              `json:"id,omitempty"`
	Props     map[string]any   `json:"props,omitempty"`
	PropsList []map[string]any `json:"propsList,omitempty"`
	Query     map[string]any   `json:"query,omitempty"`
	With      []string         `json:"with,omitempty"`

	Expect *Outcome `json:"expect,omitempty"`
}

// Outcome is what one operation produced: the response envelope, or the
// contract code of the error it raised.
type Outcome struct {
	Data    any       `json:"data,omitempty"`
	Created int       `json:"created,omitempty"`
	Updated int       `json:"updated,omitempty"`
	Deleted int       `json:"deleted,omitempty"`
	Found   int       `json:"found,omitempty"`
	Error   ErrorCode `json:"error,omitempty"`
}

// Driver owns the adapter a fixture runs against.
type Driver struct {
	adapter *strata.Adapter
}

// New builds a driver over a fresh in-memory backend. Fixtures pin adapter
// semantics, not backend behavior, so the memory store is the reference.
func New() *Driver {
	return &Driver{adapter: strata.NewWithStorage(memory.New())}
}

// Run registers the fixture's mappers and applies its operations in order.
// The returned slice has one outcome per operation.
func (d *Driver) Run(ctx context.Context, fx *Fixture) ([]Outcome, error) {
	for _, m := range fx.Mappers {
		if err := d.adapter.RegisterMapper(m); err != nil {
			return nil, fmt.Errorf("register mapper %q: %w", m.Name, err)
		}
	}
	outs := make([]Outcome, 0, len(fx.Operations))
	for i, op := range fx.Operations {
		out, err := d.Apply(ctx, op)
		if err != nil {
			return nil, fmt.Errorf("operation %d (%s): %w", i, op.Op, err)
		}
		outs = append(outs, out)
	}
	return outs, nil
}

// Apply executes one operation. Contract-vocabulary errors come back inside
// the outcome; anything else is a runner failure.
func (d *Driver) Apply(ctx context.Context, op Operation) (Outcome, error) {
	m, err := d.adapter.Mapper(op.Mapper)
	if err != nil {
		m = &mapper.Mapper{Name: op.Mapper}
	}

	var raw strata.Response
	opts := []strata.Option{strata.Raw(&raw)}
	if len(op.With) > 0 {
		opts = append(opts, strata.WithRelations(op.With...))
	}

	var opErr error
	switch op.Op {
	case "create":
		_, opErr = d.adapter.Create(ctx, m, record.Record(op.Props), opts...)
	case "createMany":
		_, opErr = d.adapter.CreateMany(ctx, m, toRecords(op.PropsList), opts...)
	case "find":
		_, opErr = d.adapter.Find(ctx, m, op.ID, opts...)
	case "findAll":
		_, opErr = d.adapter.FindAll(ctx, m, query.Query(op.Query), opts...)
	case "update":
		_, opErr = d.adapter.Update(ctx, m, op.ID, record.Record(op.Props), opts...)
	case "updateAll":
		_, opErr = d.adapter.UpdateAll(ctx, m, record.Record(op.Props), query.Query(op.Query), opts...)
	case "updateMany":
		_, opErr = d.adapter.UpdateMany(ctx, m, toRecords(op.PropsList), opts...)
	case "destroy":
		opErr = d.adapter.Destroy(ctx, m, op.ID, opts...)
	case "destroyAll":
		opErr = d.adapter.DestroyAll(ctx, m, query.Query(op.Query), opts...)
	default:
		return Outcome{}, fmt.Errorf("unknown operation %q", op.Op)
	}

	if opErr != nil {
		code := MapError(opErr)
		if code == "" {
			return Outcome{}, opErr
		}
		return Outcome{Error: code}, nil
	}

	return Outcome{
		Data:    jsonRound(raw.Data),
		Created: raw.Created,
		Updated: raw.Updated,
		Deleted: raw.Deleted,
		Found:   raw.Found,
	}, nil
}

// Matches reports whether an outcome satisfies an expectation. Counters and
// the error code always compare; data compares only when the expectation
// carries some.
func Matches(want *Outcome, got Outcome) bool {
	if want == nil {
		return true
	}
	if want.Error != got.Error {
		return false
	}
	if want.Created != got.Created || want.Updated != got.Updated ||
		want.Deleted != got.Deleted || want.Found != got.Found {
		return false
	}
	if want.Data != nil && !reflect.DeepEqual(jsonRound(want.Data), got.Data) {
		return false
	}
	return true
}

func toRecords(list []map[string]any) []record.Record {
	recs := make([]record.Record, len(list))
	for i, props := range list {
		recs[i] = record.Record(props)
	}
	return recs
}

// jsonRound pushes a value through JSON so records become plain maps and
// every number becomes float64, the same shapes fixture files parse into.
func jsonRound(v any) any {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}
