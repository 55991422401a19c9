package strata

import (
	"context"
	"fmt"
	"sync"

	"github.com/stratakv/strata/pkg/core"
	customerrors "github.com/stratakv/strata/pkg/errors"
	"github.com/stratakv/strata/pkg/mapper"
	"github.com/stratakv/strata/pkg/predicate"
	"github.com/stratakv/strata/pkg/query"
	"github.com/stratakv/strata/pkg/record"
)

// create allocates an id and saves the record inside one transaction.
func (a *Adapter) create(ctx context.Context, m *mapper.Mapper, props record.Record, call *callOptions) (record.Record, error) {
	kind := call.kindFor(m.StorageKind())
	rec := props.Clone()
	if rec == nil {
		rec = record.Record{}
	}
	rec.StripFields(m.RelationFieldNames())

	err := a.storage.RunInTransaction(ctx, func(tx core.Transaction) error {
		key, err := a.storage.Key(kind)
		if err != nil {
			return err
		}
		keys, err := tx.AllocateIDs(ctx, []*core.Key{key})
		if err != nil {
			return err
		}
		rec[m.IDField()] = keys[0].IDValue()

		stored, err := a.encryptRecord(ctx, m, rec)
		if err != nil {
			return err
		}
		return tx.Save(ctx, []core.Entity{{Key: keys[0], Data: stored}})
	})
	if err != nil {
		return nil, opError(OpCreate, m, err)
	}
	return rec, nil
}

// createMany allocates ids and saves the whole batch in one transaction, so
// either every record lands or none do.
func (a *Adapter) createMany(ctx context.Context, m *mapper.Mapper, propsList []record.Record, call *callOptions) ([]record.Record, error) {
	kind := call.kindFor(m.StorageKind())
	strip := m.RelationFieldNames()

	recs := make([]record.Record, len(propsList))
	for i, props := range propsList {
		rec := props.Clone()
		if rec == nil {
			rec = record.Record{}
		}
		rec.StripFields(strip)
		recs[i] = rec
	}

	err := a.storage.RunInTransaction(ctx, func(tx core.Transaction) error {
		incomplete := make([]*core.Key, len(recs))
		for i := range recs {
			key, err := a.storage.Key(kind)
			if err != nil {
				return err
			}
			incomplete[i] = key
		}
		keys, err := tx.AllocateIDs(ctx, incomplete)
		if err != nil {
			return err
		}

		entities := make([]core.Entity, len(recs))
		for i, rec := range recs {
			rec[m.IDField()] = keys[i].IDValue()
			stored, err := a.encryptRecord(ctx, m, rec)
			if err != nil {
				return err
			}
			entities[i] = core.Entity{Key: keys[i], Data: stored}
		}
		return tx.Save(ctx, entities)
	})
	if err != nil {
		return nil, opError(OpCreateMany, m, err)
	}
	return recs, nil
}

// find fetches one record by id. Absent records return (nil, nil).
func (a *Adapter) find(ctx context.Context, m *mapper.Mapper, id any, call *callOptions) (record.Record, error) {
	kind := call.kindFor(m.StorageKind())
	key, err := a.storage.Key(kind, id)
	if err != nil {
		return nil, opError(OpFind, m, err)
	}

	rec, err := a.storage.Get(ctx, key)
	if err != nil {
		return nil, opError(OpFind, m, err)
	}
	if rec == nil {
		return nil, nil
	}

	if _, ok := rec[m.IDField()]; !ok {
		rec[m.IDField()] = key.IDValue()
	}
	if err := a.decryptRecord(ctx, m, rec); err != nil {
		return nil, opError(OpFind, m, err)
	}
	return rec, nil
}

// findAll compiles the declarative query onto a backend handle and maps the
// resulting entities to records.
func (a *Adapter) findAll(ctx context.Context, m *mapper.Mapper, q query.Query, call *callOptions) ([]record.Record, error) {
	kind := call.kindFor(m.StorageKind())
	base := call.base
	if base == nil {
		base = a.storage.CreateQuery(kind)
	}

	compiled, err := query.Compile(base, q, a.resolverFor(call))
	if err != nil {
		return nil, opError(OpFindAll, m, err)
	}
	entities, err := a.storage.RunQuery(ctx, compiled)
	if err != nil {
		return nil, opError(OpFindAll, m, err)
	}

	recs := make([]record.Record, 0, len(entities))
	for _, e := range entities {
		rec := e.Data
		if rec == nil {
			continue
		}
		if _, ok := rec[m.IDField()]; !ok && e.Key != nil {
			rec[m.IDField()] = e.Key.IDValue()
		}
		if err := a.decryptRecord(ctx, m, rec); err != nil {
			return nil, opError(OpFindAll, m, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// update merges props onto the stored record and writes it back. A missing
// id wraps errors.ErrNotFound.
func (a *Adapter) update(ctx context.Context, m *mapper.Mapper, id any, props record.Record, call *callOptions) (record.Record, error) {
	kind := call.kindFor(m.StorageKind())
	key, err := a.storage.Key(kind, id)
	if err != nil {
		return nil, opError(OpUpdate, m, err)
	}

	current, err := a.storage.Get(ctx, key)
	if err != nil {
		return nil, opError(OpUpdate, m, err)
	}
	if current == nil {
		return nil, customerrors.NewErrorWithContext(OpUpdate, m.Name, customerrors.ErrNotFound,
			map[string]any{"id": id})
	}

	if _, ok := current[m.IDField()]; !ok {
		current[m.IDField()] = key.IDValue()
	}
	if err := a.decryptRecord(ctx, m, current); err != nil {
		return nil, opError(OpUpdate, m, err)
	}

	clean := props.Clone()
	clean.StripFields(m.RelationFieldNames())
	merged := record.Merge(current, clean)

	stored, err := a.encryptRecord(ctx, m, merged)
	if err != nil {
		return nil, opError(OpUpdate, m, err)
	}
	if err := a.storage.Save(ctx, []core.Entity{{Key: key, Data: stored}}); err != nil {
		return nil, opError(OpUpdate, m, err)
	}
	return merged, nil
}

// updateAll finds every match and merges the same props onto each. Zero
// matches short-circuit before any write.
func (a *Adapter) updateAll(ctx context.Context, m *mapper.Mapper, props record.Record, q query.Query, call *callOptions) ([]record.Record, error) {
	matches, err := a.findAll(ctx, m, q, call)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return []record.Record{}, nil
	}

	kind := call.kindFor(m.StorageKind())
	clean := props.Clone()
	clean.StripFields(m.RelationFieldNames())

	entities := make([]core.Entity, len(matches))
	for i, match := range matches {
		merged := record.Merge(match, clean)
		id, ok := usableID(merged[m.IDField()])
		if !ok {
			return nil, opError(OpUpdateAll, m, fmt.Errorf("match %d has no usable %s", i, m.IDField()))
		}
		key, err := a.storage.Key(kind, id)
		if err != nil {
			return nil, opError(OpUpdateAll, m, err)
		}
		stored, err := a.encryptRecord(ctx, m, merged)
		if err != nil {
			return nil, opError(OpUpdateAll, m, err)
		}
		entities[i] = core.Entity{Key: key, Data: stored}
	}

	if err := a.storage.Save(ctx, entities); err != nil {
		return nil, opError(OpUpdateAll, m, err)
	}
	return matches, nil
}

// updateMany re-fetches each record by id and merges the caller's copy onto
// the stored state before one batched save. Records without a usable id and
// records that have vanished are skipped.
func (a *Adapter) updateMany(ctx context.Context, m *mapper.Mapper, records []record.Record, call *callOptions) ([]record.Record, error) {
	kind := call.kindFor(m.StorageKind())

	type item struct {
		id    any
		props record.Record
	}
	var items []item
	for _, rec := range records {
		id, ok := usableID(rec[m.IDField()])
		if !ok {
			continue
		}
		items = append(items, item{id: id, props: rec})
	}
	if len(items) == 0 {
		return []record.Record{}, nil
	}

	keys := make([]*core.Key, len(items))
	currents := make([]record.Record, len(items))
	errs := make([]error, len(items))

	var wg sync.WaitGroup
	for i, it := range items {
		wg.Add(1)
		go func(i int, it item) {
			defer wg.Done()
			key, err := a.storage.Key(kind, it.id)
			if err != nil {
				errs[i] = err
				return
			}
			keys[i] = key
			currents[i], errs[i] = a.storage.Get(ctx, key)
		}(i, it)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, opError(OpUpdateMany, m, err)
		}
	}

	strip := m.RelationFieldNames()
	updated := make([]record.Record, 0, len(items))
	entities := make([]core.Entity, 0, len(items))
	for i, it := range items {
		current := currents[i]
		if current == nil {
			continue
		}
		if _, ok := current[m.IDField()]; !ok {
			current[m.IDField()] = keys[i].IDValue()
		}
		if err := a.decryptRecord(ctx, m, current); err != nil {
			return nil, opError(OpUpdateMany, m, err)
		}

		clean := it.props.Clone()
		clean.StripFields(strip)
		merged := record.Merge(current, clean)

		stored, err := a.encryptRecord(ctx, m, merged)
		if err != nil {
			return nil, opError(OpUpdateMany, m, err)
		}
		updated = append(updated, merged)
		entities = append(entities, core.Entity{Key: keys[i], Data: stored})
	}
	if len(entities) == 0 {
		return []record.Record{}, nil
	}

	if err := a.storage.Save(ctx, entities); err != nil {
		return nil, opError(OpUpdateMany, m, err)
	}
	return updated, nil
}

// destroy deletes one record by id.
func (a *Adapter) destroy(ctx context.Context, m *mapper.Mapper, id any, call *callOptions) error {
	kind := call.kindFor(m.StorageKind())
	key, err := a.storage.Key(kind, id)
	if err != nil {
		return opError(OpDestroy, m, err)
	}
	if err := a.storage.Delete(ctx, []*core.Key{key}); err != nil {
		return opError(OpDestroy, m, err)
	}
	return nil
}

// destroyAll runs the query keys-only, then deletes the matches. The
// returned count is the match count, taken before the delete.
func (a *Adapter) destroyAll(ctx context.Context, m *mapper.Mapper, q query.Query, call *callOptions) (int, error) {
	kind := call.kindFor(m.StorageKind())
	base := call.base
	if base == nil {
		base = a.storage.CreateQuery(kind)
	}
	base = base.Select(core.KeyField)

	compiled, err := query.Compile(base, q, a.resolverFor(call))
	if err != nil {
		return 0, opError(OpDestroyAll, m, err)
	}
	entities, err := a.storage.RunQuery(ctx, compiled)
	if err != nil {
		return 0, opError(OpDestroyAll, m, err)
	}
	if len(entities) == 0 {
		return 0, nil
	}

	keys := make([]*core.Key, 0, len(entities))
	for _, e := range entities {
		if e.Key != nil {
			keys = append(keys, e.Key)
		}
	}
	if err := a.storage.Delete(ctx, keys); err != nil {
		return 0, opError(OpDestroyAll, m, err)
	}
	return len(entities), nil
}

func (a *Adapter) resolverFor(call *callOptions) predicate.Resolver {
	return predicate.NewResolver(call.operators, a.operators)
}

// encryptRecord returns a copy with the mapper's encrypted fields replaced
// by envelopes. Without a cipher or encrypted fields it returns rec itself.
func (a *Adapter) encryptRecord(ctx context.Context, m *mapper.Mapper, rec record.Record) (record.Record, error) {
	if a.cipher == nil || len(m.EncryptedFields) == 0 {
		return rec, nil
	}
	out := rec.Clone()
	for _, field := range m.EncryptedFields {
		v, ok := out.GetPath(field)
		if !ok || v == nil {
			continue
		}
		envelope, err := a.cipher.EncryptValue(ctx, field, v)
		if err != nil {
			return nil, fmt.Errorf("encrypt %s: %w", field, err)
		}
		out.SetPath(field, envelope)
	}
	return out, nil
}

// decryptRecord reverses encryptRecord in place. Fields that do not hold a
// string envelope are left alone.
func (a *Adapter) decryptRecord(ctx context.Context, m *mapper.Mapper, rec record.Record) error {
	if a.cipher == nil || len(m.EncryptedFields) == 0 {
		return nil
	}
	for _, field := range m.EncryptedFields {
		v, ok := rec.GetPath(field)
		if !ok {
			continue
		}
		envelope, ok := v.(string)
		if !ok {
			continue
		}
		plain, err := a.cipher.DecryptValue(ctx, field, envelope)
		if err != nil {
			return fmt.Errorf("decrypt %s: %w", field, err)
		}
		rec.SetPath(field, plain)
	}
	return nil
}

// opError wraps storage and translation failures with operation context.
// Hook errors and already-wrapped errors pass through elsewhere.
func opError(op string, m *mapper.Mapper, err error) error {
	if err == nil {
		return nil
	}
	return customerrors.NewError(op, m.Name, err)
}

func hookArgError(op string, m *mapper.Mapper, arg any) error {
	return customerrors.NewError(op, m.Name, fmt.Errorf("before hook returned incompatible argument %T", arg))
}

// asRecord accepts the map shapes a hook may hand back in place of a record.
func asRecord(v any) (record.Record, bool) {
	switch t := v.(type) {
	case record.Record:
		return t, true
	case map[string]any:
		return record.Record(t), true
	}
	return nil, false
}

func asRecords(v any) ([]record.Record, bool) {
	switch t := v.(type) {
	case []record.Record:
		return t, true
	case []map[string]any:
		out := make([]record.Record, len(t))
		for i, m := range t {
			out[i] = record.Record(m)
		}
		return out, true
	case []any:
		out := make([]record.Record, len(t))
		for i, el := range t {
			rec, ok := asRecord(el)
			if !ok {
				return nil, false
			}
			out[i] = rec
		}
		return out, true
	}
	return nil, false
}

func asQuery(v any) (query.Query, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case query.Query:
		return t, true
	case map[string]any:
		return query.Query(t), true
	}
	return nil, false
}

// usableID reports whether a value can address a record: non-nil, non-empty
// and non-zero. The id is returned unchanged for convenience.
func usableID(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case string:
		return t, t != ""
	case bool:
		return t, t
	case int:
		return t, t != 0
	case int8:
		return t, t != 0
	case int16:
		return t, t != 0
	case int32:
		return t, t != 0
	case int64:
		return t, t != 0
	case uint:
		return t, t != 0
	case uint8:
		return t, t != 0
	case uint16:
		return t, t != 0
	case uint32:
		return t, t != 0
	case uint64:
		return t, t != 0
	case float32:
		return t, t != 0
	case float64:
		return t, t != 0
	}
	return v, true
}
