// Package core defines the storage contract strata adapts to: hierarchical
// keys, entities, progressively built backend queries, and the transaction
// scope used for id allocation. Backends implement these interfaces; the
// adapter and query compiler consume them and nothing else.
package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	customerrors "github.com/stratakv/strata/pkg/errors"
	"github.com/stratakv/strata/pkg/record"
)

// KeyField is the reserved projection name that selects only keys. A query
// with Select(KeyField) returns entities whose Data is nil.
const KeyField = "__key__"

// Filter operators every Storage implementation understands. Predicate
// builders translate user-facing comparison symbols into these.
const (
	OpEqual          = "="
	OpNotEqual       = "!="
	OpGreater        = ">"
	OpGreaterOrEqual = ">="
	OpLess           = "<"
	OpLessOrEqual    = "<="
)

// Key identifies one record in the hierarchical keyspace. A key has a kind
// plus either a numeric ID (backend-allocated) or a caller-chosen Name, and
// an optional Parent forming the ancestor path. A key with neither ID nor
// Name is incomplete and only valid as input to AllocateIDs.
type Key struct {
	Kind   string
	ID     int64
	Name   string
	Parent *Key
}

// Incomplete reports whether the key still needs an allocated id.
func (k *Key) Incomplete() bool {
	return k.ID == 0 && k.Name == ""
}

// IDValue returns the key's identifier as the value records carry in their
// id attribute: the Name when present, otherwise the numeric ID.
func (k *Key) IDValue() any {
	if k.Name != "" {
		return k.Name
	}
	return k.ID
}

// String renders the full ancestor path, e.g. "orgs/1/users/5".
func (k *Key) String() string {
	if k == nil {
		return ""
	}
	var parts []string
	for cur := k; cur != nil; cur = cur.Parent {
		seg := cur.Kind
		if cur.Name != "" {
			seg += "/" + cur.Name
		} else if cur.ID != 0 {
			seg += "/" + strconv.FormatInt(cur.ID, 10)
		}
		parts = append(parts, seg)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}

// BuildKey assembles a Key from alternating kind and identifier segments:
// BuildKey("users", 5), BuildKey("orgs", 1, "users", 5). A trailing kind
// without an identifier produces an incomplete key. Identifiers may be any
// integer type or a string name. Both shipped backends delegate their
// Storage.Key to this helper so key semantics never diverge.
func BuildKey(path ...any) (*Key, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: empty path", customerrors.ErrInvalidKey)
	}
	var parent *Key
	for i := 0; i < len(path); i += 2 {
		kind, ok := path[i].(string)
		if !ok || kind == "" {
			return nil, fmt.Errorf("%w: segment %d must be a non-empty kind string", customerrors.ErrInvalidKey, i)
		}
		k := &Key{Kind: kind, Parent: parent}
		if i+1 < len(path) {
			if err := assignID(k, path[i+1]); err != nil {
				return nil, err
			}
		}
		parent = k
	}
	return parent, nil
}

func assignID(k *Key, id any) error {
	switch v := id.(type) {
	case nil:
		return nil
	case string:
		k.Name = v
	case int:
		k.ID = int64(v)
	case int32:
		k.ID = int64(v)
	case int64:
		k.ID = v
	case uint:
		k.ID = int64(v)
	case uint32:
		k.ID = int64(v)
	case uint64:
		k.ID = int64(v)
	case float64:
		k.ID = int64(v)
	case float32:
		k.ID = int64(v)
	default:
		return fmt.Errorf("%w: unsupported identifier type %T", customerrors.ErrInvalidKey, id)
	}
	return nil
}

// Entity pairs a key with its stored data. Keys-only query results carry a
// nil Data.
type Entity struct {
	Key  *Key
	Data record.Record
}

// Query is the opaque backend-query handle. Every method returns the handle
// to use from then on; implementations may mutate in place or return a
// copy, so callers must always thread the returned value forward.
type Query interface {
	// Filter adds one conjunctive predicate using a core.Op* operator.
	Filter(field, op string, value any) Query
	// Order appends a sort clause. Clauses apply in the order added.
	Order(field string, descending bool) Query
	// Offset skips n matches before results are returned.
	Offset(n int) Query
	// Limit caps the number of returned matches.
	Limit(n int) Query
	// Select restricts returned fields; Select(KeyField) requests keys only.
	Select(fields ...string) Query
}

// Transaction is the atomic scope passed to RunInTransaction. Saves and
// deletes are buffered and applied only if the transaction function returns
// nil; AllocateIDs takes effect immediately (allocated ids are not returned
// to the pool on rollback).
type Transaction interface {
	// AllocateIDs completes the given incomplete keys with newly allocated
	// numeric ids, returned in input order.
	AllocateIDs(ctx context.Context, keys []*Key) ([]*Key, error)
	// Save buffers upserts of the given entities.
	Save(ctx context.Context, entities []Entity) error
	// Delete buffers deletes of the given keys.
	Delete(ctx context.Context, keys []*Key) error
}

// Storage is the full contract the adapter consumes. Implementations must
// be safe for concurrent use. Get reports a missing record as (nil, nil),
// never as an error.
type Storage interface {
	// Key builds a hierarchical key from alternating kind/id segments.
	Key(path ...any) (*Key, error)
	// Get fetches one record, or (nil, nil) when the key has no record.
	Get(ctx context.Context, key *Key) (record.Record, error)
	// CreateQuery starts a backend query over one kind.
	CreateQuery(kind string) Query
	// RunQuery executes a handle produced by CreateQuery on this storage.
	RunQuery(ctx context.Context, q Query) ([]Entity, error)
	// Save upserts entities outside any transaction.
	Save(ctx context.Context, entities []Entity) error
	// Delete removes the records for the given keys. Missing keys are not
	// an error.
	Delete(ctx context.Context, keys []*Key) error
	// RunInTransaction executes fn inside one atomic scope. A non-nil
	// error from fn discards all buffered writes and is returned as-is.
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error
}
