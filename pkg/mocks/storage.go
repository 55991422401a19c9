package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/stratakv/strata/pkg/core"
	"github.com/stratakv/strata/pkg/record"
)

// Contract compliance.
var (
	_ core.Storage     = (*MockStorage)(nil)
	_ core.Query       = (*MockQuery)(nil)
	_ core.Transaction = (*MockTransaction)(nil)
)

// MockStorage is a testify mock of core.Storage.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) Key(path ...any) (*core.Key, error) {
	args := m.Called(path)
	var key *core.Key
	if v := args.Get(0); v != nil {
		key = v.(*core.Key)
	}
	return key, args.Error(1)
}

func (m *MockStorage) Get(ctx context.Context, key *core.Key) (record.Record, error) {
	args := m.Called(ctx, key)
	var rec record.Record
	if v := args.Get(0); v != nil {
		rec = v.(record.Record)
	}
	return rec, args.Error(1)
}

func (m *MockStorage) CreateQuery(kind string) core.Query {
	args := m.Called(kind)
	q, _ := args.Get(0).(core.Query)
	return q
}

func (m *MockStorage) RunQuery(ctx context.Context, q core.Query) ([]core.Entity, error) {
	args := m.Called(ctx, q)
	var entities []core.Entity
	if v := args.Get(0); v != nil {
		entities = v.([]core.Entity)
	}
	return entities, args.Error(1)
}

func (m *MockStorage) Save(ctx context.Context, entities []core.Entity) error {
	return m.Called(ctx, entities).Error(0)
}

func (m *MockStorage) Delete(ctx context.Context, keys []*core.Key) error {
	return m.Called(ctx, keys).Error(0)
}

// RunInTransaction returns the expectation's first value when it is a
// non-nil error. Otherwise, when the expectation carries a second value
// implementing core.Transaction, fn runs against it and its error is
// returned.
func (m *MockStorage) RunInTransaction(ctx context.Context, fn func(tx core.Transaction) error) error {
	args := m.Called(ctx, fn)
	if err := args.Error(0); err != nil {
		return err
	}
	if len(args) > 1 {
		if tx, ok := args.Get(1).(core.Transaction); ok && tx != nil {
			return fn(tx)
		}
	}
	return nil
}

// MockQuery is a testify mock of core.Query. Chainable expectations should
// return the handle to continue with, usually the mock itself.
type MockQuery struct {
	mock.Mock
}

func (m *MockQuery) Filter(field, op string, value any) core.Query {
	args := m.Called(field, op, value)
	q, _ := args.Get(0).(core.Query)
	return q
}

func (m *MockQuery) Order(field string, descending bool) core.Query {
	args := m.Called(field, descending)
	q, _ := args.Get(0).(core.Query)
	return q
}

func (m *MockQuery) Offset(n int) core.Query {
	args := m.Called(n)
	q, _ := args.Get(0).(core.Query)
	return q
}

func (m *MockQuery) Limit(n int) core.Query {
	args := m.Called(n)
	q, _ := args.Get(0).(core.Query)
	return q
}

func (m *MockQuery) Select(fields ...string) core.Query {
	args := m.Called(fields)
	q, _ := args.Get(0).(core.Query)
	return q
}

// MockTransaction is a testify mock of core.Transaction.
type MockTransaction struct {
	mock.Mock
}

func (m *MockTransaction) AllocateIDs(ctx context.Context, keys []*core.Key) ([]*core.Key, error) {
	args := m.Called(ctx, keys)
	var out []*core.Key
	if v := args.Get(0); v != nil {
		out = v.([]*core.Key)
	}
	return out, args.Error(1)
}

func (m *MockTransaction) Save(ctx context.Context, entities []core.Entity) error {
	return m.Called(ctx, entities).Error(0)
}

func (m *MockTransaction) Delete(ctx context.Context, keys []*core.Key) error {
	return m.Called(ctx, keys).Error(0)
}

// MockCipher is a testify mock of the adapter's field cipher.
type MockCipher struct {
	mock.Mock
}

func (m *MockCipher) EncryptValue(ctx context.Context, field string, value any) (string, error) {
	args := m.Called(ctx, field, value)
	return args.String(0), args.Error(1)
}

func (m *MockCipher) DecryptValue(ctx context.Context, field string, envelope string) (any, error) {
	args := m.Called(ctx, field, envelope)
	return args.Get(0), args.Error(1)
}
