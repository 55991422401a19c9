// Package strata is a relation-aware adapter over hierarchical key-value
// storage services. Application code describes records through mappers and
// issues declarative queries; the adapter translates them onto a pluggable
// storage backend, resolves mapped relations, and surrounds every operation
// with lifecycle hooks.
package strata

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stratakv/strata/internal/encryption"
	"github.com/stratakv/strata/pkg/core"
	customerrors "github.com/stratakv/strata/pkg/errors"
	"github.com/stratakv/strata/pkg/mapper"
	"github.com/stratakv/strata/pkg/predicate"
	"github.com/stratakv/strata/pkg/query"
	"github.com/stratakv/strata/pkg/record"
	"github.com/stratakv/strata/pkg/session"
	"github.com/stratakv/strata/pkg/storage/dynamo"
)

// Cipher encrypts and decrypts individual record fields. The adapter applies
// it to a mapper's EncryptedFields around every read and write, keeping the
// storage backend unaware of plaintext.
type Cipher interface {
	EncryptValue(ctx context.Context, field string, value any) (string, error)
	DecryptValue(ctx context.Context, field string, envelope string) (any, error)
}

// Adapter is the main entry point. It is safe for concurrent use; all
// configuration is fixed at construction time.
type Adapter struct {
	storage   core.Storage
	registry  *mapper.Registry
	hooks     Hooks
	operators map[string]predicate.Builder
	cipher    Cipher
	logger    *slog.Logger
}

// AdapterOption configures an Adapter at construction time.
type AdapterOption func(*Adapter)

// WithHooks installs the lifecycle hooks.
func WithHooks(h Hooks) AdapterOption {
	return func(a *Adapter) {
		a.hooks = h
	}
}

// WithDefaultOperators installs adapter-level operator overrides. Call-level
// WithOperators tables shadow these.
func WithDefaultOperators(table map[string]predicate.Builder) AdapterOption {
	return func(a *Adapter) {
		a.operators = table
	}
}

// WithLogger sets the structured logger. Nil is ignored.
func WithLogger(l *slog.Logger) AdapterOption {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithCipher sets the field cipher used for mappers that declare
// EncryptedFields.
func WithCipher(c Cipher) AdapterOption {
	return func(a *Adapter) {
		a.cipher = c
	}
}

// New creates an Adapter backed by DynamoDB using the given configuration.
func New(cfg session.Config, opts ...AdapterOption) (*Adapter, error) {
	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	store, err := dynamo.NewFromSession(sess)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	all := append([]AdapterOption{WithLogger(cfg.Logger)}, opts...)
	adapter := NewWithStorage(store, all...)
	if cfg.KMSKeyARN != "" && adapter.cipher == nil {
		adapter.cipher = encryption.NewServiceFromAWSConfig(sess.AWSConfig(), cfg.KMSKeyARN)
	}
	return adapter, nil
}

// NewWithStorage creates an Adapter over any core.Storage implementation.
func NewWithStorage(storage core.Storage, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		storage:  storage,
		registry: mapper.NewRegistry(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Storage exposes the backend the adapter runs on, mainly so callers can
// build base query handles for WithBaseQuery.
func (a *Adapter) Storage() core.Storage {
	return a.storage
}

// Registry exposes the mapper registry.
func (a *Adapter) Registry() *mapper.Registry {
	return a.registry
}

// RegisterMapper registers a mapper up front. Operations register their
// mapper on first use, so this is only required for mappers that are only
// ever reached through relations.
func (a *Adapter) RegisterMapper(m *mapper.Mapper) error {
	return a.registry.Register(m)
}

// LoadMappers registers every mapper defined in a YAML file.
func (a *Adapter) LoadMappers(path string) error {
	return a.registry.LoadFile(path)
}

// Mapper returns a registered mapper by name.
func (a *Adapter) Mapper(name string) (*mapper.Mapper, error) {
	return a.registry.Get(name)
}

// use validates the mapper and ensures it is registered so relations can
// resolve it by name. The first registration of a name wins.
func (a *Adapter) use(op string, m *mapper.Mapper) error {
	if m == nil {
		return customerrors.NewError(op, "", fmt.Errorf("nil mapper"))
	}
	if err := a.registry.Register(m); err != nil {
		return customerrors.NewError(op, m.Name, err)
	}
	return nil
}

// Create inserts one record. The returned record is a copy of props with
// relation fields stripped and the mapper's id attribute stamped from the
// allocated key.
func (a *Adapter) Create(ctx context.Context, m *mapper.Mapper, props record.Record, opts ...Option) (record.Record, error) {
	call := newCallOptions(opts)
	if err := a.use(OpCreate, m); err != nil {
		return nil, err
	}

	arg, err := a.runBefore(ctx, m, OpCreate, props)
	if err != nil {
		return nil, err
	}
	props, ok := asRecord(arg)
	if !ok {
		return nil, hookArgError(OpCreate, m, arg)
	}

	created, err := a.create(ctx, m, props, call)
	if err != nil {
		return nil, err
	}

	resp, err := a.finish(ctx, m, OpCreate, props, &Response{Data: created, Created: 1}, call)
	if err != nil {
		return nil, err
	}
	return resp.Record(), nil
}

// CreateMany inserts a batch of records in a single transaction. An empty
// batch never touches storage.
func (a *Adapter) CreateMany(ctx context.Context, m *mapper.Mapper, propsList []record.Record, opts ...Option) ([]record.Record, error) {
	call := newCallOptions(opts)
	if err := a.use(OpCreateMany, m); err != nil {
		return nil, err
	}

	arg, err := a.runBefore(ctx, m, OpCreateMany, propsList)
	if err != nil {
		return nil, err
	}
	propsList, ok := asRecords(arg)
	if !ok {
		return nil, hookArgError(OpCreateMany, m, arg)
	}

	created := []record.Record{}
	if len(propsList) > 0 {
		created, err = a.createMany(ctx, m, propsList, call)
		if err != nil {
			return nil, err
		}
	}

	resp, err := a.finish(ctx, m, OpCreateMany, propsList, &Response{Data: created, Created: len(created)}, call)
	if err != nil {
		return nil, err
	}
	return resp.Records(), nil
}

// Find fetches one record by id. A missing record is (nil, nil) with a zero
// Found counter, never an error.
func (a *Adapter) Find(ctx context.Context, m *mapper.Mapper, id any, opts ...Option) (record.Record, error) {
	call := newCallOptions(opts)
	if err := a.use(OpFind, m); err != nil {
		return nil, err
	}

	id, err := a.runBefore(ctx, m, OpFind, id)
	if err != nil {
		return nil, err
	}

	rec, err := a.find(ctx, m, id, call)
	if err != nil {
		return nil, err
	}

	resp := &Response{}
	if rec != nil {
		if err := a.loadRelations(ctx, m, OpFind, []record.Record{rec}, call); err != nil {
			return nil, err
		}
		resp.Data = rec
		resp.Found = 1
	}

	resp, err = a.finish(ctx, m, OpFind, id, resp, call)
	if err != nil {
		return nil, err
	}
	return resp.Record(), nil
}

// FindAll runs a declarative query and returns every match.
func (a *Adapter) FindAll(ctx context.Context, m *mapper.Mapper, q query.Query, opts ...Option) ([]record.Record, error) {
	call := newCallOptions(opts)
	if err := a.use(OpFindAll, m); err != nil {
		return nil, err
	}

	arg, err := a.runBefore(ctx, m, OpFindAll, q)
	if err != nil {
		return nil, err
	}
	q, ok := asQuery(arg)
	if !ok {
		return nil, hookArgError(OpFindAll, m, arg)
	}

	recs, err := a.findAll(ctx, m, q, call)
	if err != nil {
		return nil, err
	}
	if err := a.loadRelations(ctx, m, OpFindAll, recs, call); err != nil {
		return nil, err
	}

	resp, err := a.finish(ctx, m, OpFindAll, q, &Response{Data: recs, Found: len(recs)}, call)
	if err != nil {
		return nil, err
	}
	return resp.Records(), nil
}

// Update merges props into the stored record with the given id and writes
// the result back. A missing id is an error wrapping errors.ErrNotFound.
func (a *Adapter) Update(ctx context.Context, m *mapper.Mapper, id any, props record.Record, opts ...Option) (record.Record, error) {
	call := newCallOptions(opts)
	if err := a.use(OpUpdate, m); err != nil {
		return nil, err
	}

	arg, err := a.runBefore(ctx, m, OpUpdate, UpdateArgs{ID: id, Props: props})
	if err != nil {
		return nil, err
	}
	ua, ok := arg.(UpdateArgs)
	if !ok {
		return nil, hookArgError(OpUpdate, m, arg)
	}

	updated, err := a.update(ctx, m, ua.ID, ua.Props, call)
	if err != nil {
		return nil, err
	}

	resp, err := a.finish(ctx, m, OpUpdate, arg, &Response{Data: updated, Updated: 1}, call)
	if err != nil {
		return nil, err
	}
	return resp.Record(), nil
}

// UpdateAll merges the same props into every record the query matches. When
// nothing matches, storage is never written to.
func (a *Adapter) UpdateAll(ctx context.Context, m *mapper.Mapper, props record.Record, q query.Query, opts ...Option) ([]record.Record, error) {
	call := newCallOptions(opts)
	if err := a.use(OpUpdateAll, m); err != nil {
		return nil, err
	}

	arg, err := a.runBefore(ctx, m, OpUpdateAll, UpdateAllArgs{Props: props, Query: q})
	if err != nil {
		return nil, err
	}
	ua, ok := arg.(UpdateAllArgs)
	if !ok {
		return nil, hookArgError(OpUpdateAll, m, arg)
	}

	updated, err := a.updateAll(ctx, m, ua.Props, ua.Query, call)
	if err != nil {
		return nil, err
	}

	resp, err := a.finish(ctx, m, OpUpdateAll, arg, &Response{Data: updated, Updated: len(updated)}, call)
	if err != nil {
		return nil, err
	}
	return resp.Records(), nil
}

// UpdateMany writes back a batch of already-loaded records. Records without
// a resolvable id are skipped, as are records that have vanished from
// storage since they were loaded; the result holds the survivors.
func (a *Adapter) UpdateMany(ctx context.Context, m *mapper.Mapper, records []record.Record, opts ...Option) ([]record.Record, error) {
	call := newCallOptions(opts)
	if err := a.use(OpUpdateMany, m); err != nil {
		return nil, err
	}

	arg, err := a.runBefore(ctx, m, OpUpdateMany, records)
	if err != nil {
		return nil, err
	}
	records, ok := asRecords(arg)
	if !ok {
		return nil, hookArgError(OpUpdateMany, m, arg)
	}

	updated, err := a.updateMany(ctx, m, records, call)
	if err != nil {
		return nil, err
	}

	resp, err := a.finish(ctx, m, OpUpdateMany, records, &Response{Data: updated, Updated: len(updated)}, call)
	if err != nil {
		return nil, err
	}
	return resp.Records(), nil
}

// Destroy deletes one record by id. Deleting an id that does not exist is
// not an error.
func (a *Adapter) Destroy(ctx context.Context, m *mapper.Mapper, id any, opts ...Option) error {
	call := newCallOptions(opts)
	if err := a.use(OpDestroy, m); err != nil {
		return err
	}

	id, err := a.runBefore(ctx, m, OpDestroy, id)
	if err != nil {
		return err
	}

	if err := a.destroy(ctx, m, id, call); err != nil {
		return err
	}

	_, err = a.finish(ctx, m, OpDestroy, id, &Response{Deleted: 1}, call)
	return err
}

// DestroyAll deletes every record the query matches and reports the match
// count through the response envelope. When nothing matches, storage is
// never written to.
func (a *Adapter) DestroyAll(ctx context.Context, m *mapper.Mapper, q query.Query, opts ...Option) error {
	call := newCallOptions(opts)
	if err := a.use(OpDestroyAll, m); err != nil {
		return err
	}

	arg, err := a.runBefore(ctx, m, OpDestroyAll, q)
	if err != nil {
		return err
	}
	q, ok := asQuery(arg)
	if !ok {
		return hookArgError(OpDestroyAll, m, arg)
	}

	deleted, err := a.destroyAll(ctx, m, q, call)
	if err != nil {
		return err
	}

	_, err = a.finish(ctx, m, OpDestroyAll, q, &Response{Deleted: deleted}, call)
	return err
}
