// Package mocks provides testify mock implementations of the storage
// contracts, so adapter and application tests can run without a real
// backend and without hand-writing a core.Storage implementation per test.
//
// # Installation
//
// Import the mocks package in your test files:
//
//	import "github.com/stratakv/strata/pkg/mocks"
//
// # Basic Usage
//
// The most common use case is stubbing reads through the storage contract:
//
//	func TestUserLookup(t *testing.T) {
//	    storage := new(mocks.MockStorage)
//	    key := &core.Key{Kind: "users", ID: 5}
//
//	    storage.On("Key", []any{"users", int64(5)}).Return(key, nil)
//	    storage.On("Get", mock.Anything, key).
//	        Return(record.Record{"name": "alice"}, nil)
//
//	    adapter := strata.NewWithStorage(storage)
//	    // ... exercise the adapter ...
//
//	    storage.AssertExpectations(t)
//	}
//
// # Chaining Methods
//
// Query methods return the next handle, so chainable expectations should
// return the mock itself:
//
//	query := new(mocks.MockQuery)
//	query.On("Filter", "age", ">", 18).Return(query)
//	query.On("Limit", 10).Return(query)
//	storage.On("CreateQuery", "users").Return(query)
//	storage.On("RunQuery", mock.Anything, query).Return(entities, nil)
//
// # Transactions
//
// RunInTransaction accepts a second return value naming the transaction to
// run the callback against. With Return(nil, tx) the callback executes on
// tx and its error is returned; with Return(err) the callback never runs:
//
//	tx := new(mocks.MockTransaction)
//	tx.On("AllocateIDs", mock.Anything, mock.Anything).Return(keys, nil)
//	tx.On("Save", mock.Anything, mock.Anything).Return(nil)
//	storage.On("RunInTransaction", mock.Anything, mock.Anything).Return(nil, tx)
//
// # Error Handling
//
// To simulate failures, return the error from the expectation:
//
//	storage.On("Get", mock.Anything, mock.Anything).
//	    Return(nil, errors.New("throttled"))
//
// # Tips
//
// 1. Use mock.Anything for the context argument
// 2. Use mock.MatchedBy for structural argument matching
// 3. Always assert expectations were met with AssertExpectations
// 4. Return the mock itself for chainable query methods
package mocks

// Shorter aliases for the common declarations.
type (
	// Storage is an alias for MockStorage.
	Storage = MockStorage

	// Query is an alias for MockQuery.
	Query = MockQuery

	// Transaction is an alias for MockTransaction.
	Transaction = MockTransaction
)
