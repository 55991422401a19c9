package strata

import (
	"context"
	"fmt"
	"sort"
	"sync"

	customerrors "github.com/stratakv/strata/pkg/errors"
	"github.com/stratakv/strata/pkg/mapper"
	"github.com/stratakv/strata/pkg/predicate"
	"github.com/stratakv/strata/pkg/query"
	"github.com/stratakv/strata/pkg/record"
)

// loadRelations resolves the relations selected by WithRelations and
// attaches the results under each relation's localField. Resolution is
// defined for single-record operations only: findAll produces an array
// result set, so selecting any relation there is an unsupported shape no
// matter how many records the query happens to match.
func (a *Adapter) loadRelations(ctx context.Context, m *mapper.Mapper, op string, recs []record.Record, call *callOptions) error {
	if len(call.with) == 0 {
		return nil
	}

	var selected []*mapper.Relation
	if err := mapper.ForEachRelation(m, call.with, func(rel *mapper.Relation) error {
		selected = append(selected, rel)
		return nil
	}); err != nil {
		return opError(op, m, err)
	}
	if len(selected) == 0 {
		return nil
	}

	if op == OpFindAll {
		return customerrors.NewErrorWithContext(op, m.Name, customerrors.ErrUnsupportedRelationShape,
			map[string]any{"relation": selected[0].Relation, "records": len(recs)})
	}
	if len(recs) == 0 {
		return nil
	}

	rec := recs[0]
	results := make([]any, len(selected))
	errs := make([]error, len(selected))

	var wg sync.WaitGroup
	for i, rel := range selected {
		wg.Add(1)
		go func(i int, rel *mapper.Relation) {
			defer wg.Done()
			results[i], errs[i] = a.loadRelation(ctx, m, op, rel, rec)
		}(i, rel)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	// Attach only after every lookup has finished; the lookups read rec
	// concurrently.
	for i, rel := range selected {
		rec.SetPath(rel.LocalField, results[i])
	}
	return nil
}

// loadRelation resolves one relation for one record. Sub-lookups run
// through the public Find/FindAll with default options, so their hooks
// fire and they never load relations of their own.
func (a *Adapter) loadRelation(ctx context.Context, m *mapper.Mapper, op string, rel *mapper.Relation, rec record.Record) (any, error) {
	related, err := a.registry.Get(rel.Relation)
	if err != nil {
		return nil, opError(op, m, err)
	}

	switch {
	case rel.Type == mapper.BelongsTo && rel.ForeignKey != "":
		v, _ := rec.GetPath(rel.ForeignKey)
		id, ok := usableID(v)
		if !ok {
			return nil, nil
		}
		return a.Find(ctx, related, id)

	case rel.Type == mapper.HasOne && rel.ForeignKey != "":
		matches, err := a.findByForeignKey(ctx, related, rel.ForeignKey, m, rec)
		if err != nil || len(matches) == 0 {
			return nil, err
		}
		return matches[0], nil

	case rel.Type == mapper.HasMany && rel.ForeignKey != "":
		return a.findByForeignKey(ctx, related, rel.ForeignKey, m, rec)

	case rel.Type == mapper.HasMany && rel.LocalKeys != "":
		return a.findByLocalKeys(ctx, related, rel, rec)
	}

	return nil, customerrors.NewErrorWithContext(op, m.Name, customerrors.ErrUnsupportedRelationShape,
		map[string]any{"relation": rel.Relation, "type": string(rel.Type)})
}

// findByForeignKey fetches the related records whose foreign key points at
// the primary record's id.
func (a *Adapter) findByForeignKey(ctx context.Context, related *mapper.Mapper, foreignKey string, m *mapper.Mapper, rec record.Record) ([]record.Record, error) {
	id, ok := usableID(rec[m.IDField()])
	if !ok {
		return []record.Record{}, nil
	}
	return a.FindAll(ctx, related, query.Query{
		"where": map[string]any{
			foreignKey: map[string]any{predicate.Equal: id},
		},
	})
}

// findByLocalKeys fetches one related record per id listed in the primary
// record's localKeys field. Lookups run concurrently and re-associate by
// index; ids that resolve to nothing are dropped.
func (a *Adapter) findByLocalKeys(ctx context.Context, related *mapper.Mapper, rel *mapper.Relation, rec record.Record) (any, error) {
	raw, _ := rec.GetPath(rel.LocalKeys)
	ids := relationIDs(raw)
	if len(ids) == 0 {
		return []record.Record{}, nil
	}

	found := make([]record.Record, len(ids))
	errs := make([]error, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id any) {
			defer wg.Done()
			found[i], errs[i] = a.Find(ctx, related, id)
		}(i, id)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	out := make([]record.Record, 0, len(ids))
	for _, rec := range found {
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

// relationIDs extracts the id list from a localKeys value: a slice keeps
// its order, a map contributes its values in key order. Unusable ids are
// filtered and duplicates keep their first position.
func relationIDs(raw any) []any {
	var values []any
	switch t := raw.(type) {
	case nil:
		return nil
	case []any:
		values = t
	case []string:
		for _, v := range t {
			values = append(values, v)
		}
	case []int:
		for _, v := range t {
			values = append(values, v)
		}
	case []int64:
		for _, v := range t {
			values = append(values, v)
		}
	case []float64:
		for _, v := range t {
			values = append(values, v)
		}
	case map[string]any:
		names := make([]string, 0, len(t))
		for name := range t {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			values = append(values, t[name])
		}
	default:
		values = []any{raw}
	}

	seen := make(map[string]bool, len(values))
	ids := make([]any, 0, len(values))
	for _, v := range values {
		id, ok := usableID(v)
		if !ok {
			continue
		}
		fingerprint := fmt.Sprintf("%T %v", id, id)
		if seen[fingerprint] {
			continue
		}
		seen[fingerprint] = true
		ids = append(ids, id)
	}
	return ids
}
