package dynamo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/stratakv/strata/pkg/core"
)

// Item attribute names reserved for the single-table layout. Records must
// not carry fields with these names.
const (
	attrPK       = "pk"
	attrSK       = "sk"
	attrOverflow = "__overflow__"

	// counterAttr holds the high-water mark on a partition's sequence item.
	counterAttr = "last_id"

	// sequencePK is the partition holding one sequence item per record
	// partition. It cannot collide with record partitions because kinds
	// never contain "#".
	sequencePK = "__sequence__"

	idPrefix   = "id#"
	namePrefix = "name#"
)

// encodeID renders a key's own identifier segment. Numeric ids are
// zero-padded so lexicographic sort-key order matches allocation order.
func encodeID(k *core.Key) string {
	if k.Name != "" {
		return namePrefix + k.Name
	}
	return fmt.Sprintf("%s%020d", idPrefix, k.ID)
}

func decodeID(k *core.Key, seg string) error {
	if name, ok := strings.CutPrefix(seg, namePrefix); ok {
		k.Name = name
		return nil
	}
	if raw, ok := strings.CutPrefix(seg, idPrefix); ok {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("dynamo: malformed id segment %q: %w", seg, err)
		}
		k.ID = id
		return nil
	}
	return fmt.Errorf("dynamo: malformed key segment %q", seg)
}

// partitionKey renders the ancestor path plus the key's own kind. Sibling
// records of one kind under one parent share a partition, so a kind query
// is a single-partition Query call.
func partitionKey(k *core.Key) string {
	var parts []string
	for cur := k.Parent; cur != nil; cur = cur.Parent {
		parts = append(parts, encodeID(cur), cur.Kind)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	parts = append(parts, k.Kind)
	return strings.Join(parts, "/")
}

func sortKey(k *core.Key) string {
	return encodeID(k)
}

// decodeKey reverses partitionKey and sortKey back into a hierarchical key.
func decodeKey(pk, sk string) (*core.Key, error) {
	parts := strings.Split(pk, "/")
	if len(parts)%2 == 0 {
		return nil, fmt.Errorf("dynamo: malformed partition key %q", pk)
	}
	var parent *core.Key
	for i := 0; i+1 < len(parts); i += 2 {
		k := &core.Key{Kind: parts[i], Parent: parent}
		if err := decodeID(k, parts[i+1]); err != nil {
			return nil, err
		}
		parent = k
	}
	k := &core.Key{Kind: parts[len(parts)-1], Parent: parent}
	if err := decodeID(k, sk); err != nil {
		return nil, err
	}
	return k, nil
}
