// Package dynamo implements the storage contract on DynamoDB using a
// single-table layout: the partition key is the record's ancestor path
// plus kind, the sort key its own id or name. Queries stay inside one
// partition; filters compile to filter expressions; writes go through
// TransactWriteItems so multi-record saves stay atomic per chunk.
package dynamo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/stratakv/strata/internal/expr"
	"github.com/stratakv/strata/pkg/core"
	customerrors "github.com/stratakv/strata/pkg/errors"
	"github.com/stratakv/strata/pkg/record"
	"github.com/stratakv/strata/pkg/session"
)

// maxTransactItems is the DynamoDB per-transaction item cap. Plain Save
// and Delete chunk at this size; RunInTransaction refuses to exceed it
// because splitting would break atomicity.
const maxTransactItems = 25

const tableWaitTimeout = 2 * time.Minute

// API is the slice of the DynamoDB client the store calls. It is satisfied
// by *dynamodb.Client and narrow enough to fake in tests.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// Store is the DynamoDB-backed storage implementation.
type Store struct {
	api      API
	table    string
	overflow *overflowStore
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger. A nil logger is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithOverflow routes record payloads larger than threshold bytes to the
// given S3 bucket, leaving a pointer item in the table. A threshold of 0
// uses the default.
func WithOverflow(api S3API, bucket string, threshold int) Option {
	return func(s *Store) {
		s.overflow = newOverflowStore(api, bucket, threshold)
	}
}

// New builds a Store over an existing client.
func New(api API, table string, opts ...Option) (*Store, error) {
	if api == nil {
		return nil, fmt.Errorf("dynamo: nil client")
	}
	if table == "" {
		return nil, fmt.Errorf("dynamo: table name required")
	}
	s := &Store{api: api, table: table, logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// NewFromSession builds a Store from a configured session, wiring the S3
// overflow store when the session config names an overflow bucket.
func NewFromSession(sess *session.Session) (*Store, error) {
	if sess == nil {
		return nil, fmt.Errorf("dynamo: nil session")
	}
	client, err := sess.Client()
	if err != nil {
		return nil, err
	}
	cfg := sess.Config()
	opts := []Option{WithLogger(sess.Logger())}
	if cfg.OverflowBucket != "" {
		opts = append(opts, WithOverflow(s3.NewFromConfig(sess.AWSConfig()), cfg.OverflowBucket, cfg.OverflowThreshold))
	}
	return New(client, cfg.TableName, opts...)
}

// Key builds a hierarchical key from alternating kind/id segments.
func (s *Store) Key(path ...any) (*core.Key, error) {
	return core.BuildKey(path...)
}

// Get fetches one record with a strongly consistent read. A missing item
// is (nil, nil).
func (s *Store) Get(ctx context.Context, key *core.Key) (record.Record, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamo: get %s: %w", key, mapError(err))
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	_, rec, err := s.unmarshalItem(ctx, out.Item)
	return rec, err
}

// Save upserts the given entities. A single entity writes with PutItem;
// larger batches go through TransactWriteItems in chunks.
func (s *Store) Save(ctx context.Context, entities []core.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	items := make([]map[string]types.AttributeValue, 0, len(entities))
	for i, e := range entities {
		if err := validateEntity(e); err != nil {
			return fmt.Errorf("dynamo: entity %d: %w", i, err)
		}
		item, err := s.marshalItem(ctx, e)
		if err != nil {
			return err
		}
		items = append(items, item)
	}
	if len(items) == 1 {
		_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.table),
			Item:      items[0],
		})
		if err != nil {
			return fmt.Errorf("dynamo: put %s: %w", entities[0].Key, mapError(err))
		}
		return nil
	}
	writes := make([]types.TransactWriteItem, 0, len(items))
	for _, item := range items {
		writes = append(writes, types.TransactWriteItem{
			Put: &types.Put{TableName: aws.String(s.table), Item: item},
		})
	}
	return s.write(ctx, writes)
}

// Delete removes the records for the given keys. Nil or incomplete keys
// are skipped; missing records are not an error.
func (s *Store) Delete(ctx context.Context, keys []*core.Key) error {
	targets := make([]*core.Key, 0, len(keys))
	for _, k := range keys {
		if k == nil || k.Incomplete() {
			continue
		}
		targets = append(targets, k)
	}
	if len(targets) == 0 {
		return nil
	}
	if len(targets) == 1 {
		_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.table),
			Key:       itemKey(targets[0]),
		})
		if err != nil {
			return fmt.Errorf("dynamo: delete %s: %w", targets[0], mapError(err))
		}
		return nil
	}
	writes := make([]types.TransactWriteItem, 0, len(targets))
	for _, k := range targets {
		writes = append(writes, types.TransactWriteItem{
			Delete: &types.Delete{TableName: aws.String(s.table), Key: itemKey(k)},
		})
	}
	return s.write(ctx, writes)
}

// RunInTransaction executes fn against a buffering transaction scope and
// commits the buffered writes in one TransactWriteItems call. Id
// allocation inside fn takes effect immediately and is not rolled back.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx core.Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := &txn{store: s}
	if err := fn(t); err != nil {
		return err
	}
	return t.commit(ctx)
}

// EnsureTable creates the backing table when it does not exist and waits
// for it to become active.
func (s *Store) EnsureTable(ctx context.Context) error {
	_, err := s.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("dynamo: describe table %s: %w", s.table, err)
	}

	s.logger.InfoContext(ctx, "creating table", "table", s.table)
	_, err = s.api.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(s.table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(attrPK), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(attrSK), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrPK), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(attrSK), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("dynamo: create table %s: %w", s.table, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(s.api)
	input := &dynamodb.DescribeTableInput{TableName: aws.String(s.table)}
	if err := waiter.Wait(ctx, input, tableWaitTimeout); err != nil {
		return fmt.Errorf("dynamo: wait for table %s: %w", s.table, err)
	}
	return nil
}

// write applies transactional writes in chunks of maxTransactItems, each
// with its own idempotency token.
func (s *Store) write(ctx context.Context, writes []types.TransactWriteItem) error {
	for start := 0; start < len(writes); start += maxTransactItems {
		end := min(start+maxTransactItems, len(writes))
		_, err := s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems:      writes[start:end],
			ClientRequestToken: aws.String(uuid.NewString()),
		})
		if err != nil {
			return fmt.Errorf("dynamo: transact write: %w", mapError(err))
		}
	}
	return nil
}

// reserveIDs atomically advances the partition's sequence item by n and
// returns the new high-water mark.
func (s *Store) reserveIDs(ctx context.Context, partition string, n int64) (int64, error) {
	b := expr.NewBuilder()
	if err := b.AddUpdateAdd(counterAttr, n); err != nil {
		return 0, fmt.Errorf("dynamo: allocate ids for %s: %w", partition, err)
	}
	components := b.Build()

	out, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			attrPK: &types.AttributeValueMemberS{Value: sequencePK},
			attrSK: &types.AttributeValueMemberS{Value: namePrefix + partition},
		},
		UpdateExpression:          aws.String(components.UpdateExpression),
		ExpressionAttributeNames:  components.ExpressionAttributeNames,
		ExpressionAttributeValues: components.ExpressionAttributeValues,
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("dynamo: allocate ids for %s: %w", partition, mapError(err))
	}
	var last int64
	if err := attributevalue.Unmarshal(out.Attributes[counterAttr], &last); err != nil {
		return 0, fmt.Errorf("dynamo: allocate ids for %s: %w", partition, err)
	}
	return last, nil
}

// txn buffers saves and deletes until RunInTransaction commits them.
type txn struct {
	store   *Store
	saves   []core.Entity
	deletes []*core.Key
}

// AllocateIDs completes incomplete keys from each partition's sequence
// item, one UpdateItem per partition regardless of how many keys need ids.
// Complete keys pass through unchanged.
func (t *txn) AllocateIDs(ctx context.Context, keys []*core.Key) ([]*core.Key, error) {
	out := make([]*core.Key, len(keys))
	need := make(map[string][]int)
	for i, k := range keys {
		if k == nil {
			return nil, fmt.Errorf("dynamo: nil key at index %d", i)
		}
		if !k.Incomplete() {
			out[i] = k
			continue
		}
		pk := partitionKey(k)
		need[pk] = append(need[pk], i)
	}
	for pk, idxs := range need {
		last, err := t.store.reserveIDs(ctx, pk, int64(len(idxs)))
		if err != nil {
			return nil, err
		}
		first := last - int64(len(idxs)) + 1
		for n, i := range idxs {
			out[i] = &core.Key{Kind: keys[i].Kind, ID: first + int64(n), Parent: keys[i].Parent}
		}
	}
	return out, nil
}

// Save buffers upserts for commit.
func (t *txn) Save(ctx context.Context, entities []core.Entity) error {
	for i, e := range entities {
		if err := validateEntity(e); err != nil {
			return fmt.Errorf("dynamo: entity %d: %w", i, err)
		}
	}
	t.saves = append(t.saves, entities...)
	return nil
}

// Delete buffers deletes for commit.
func (t *txn) Delete(ctx context.Context, keys []*core.Key) error {
	for _, k := range keys {
		if k == nil || k.Incomplete() {
			continue
		}
		t.deletes = append(t.deletes, k)
	}
	return nil
}

func (t *txn) commit(ctx context.Context) error {
	total := len(t.saves) + len(t.deletes)
	if total == 0 {
		return nil
	}
	if total > maxTransactItems {
		return fmt.Errorf("dynamo: %d writes in one transaction: %w", total, customerrors.ErrTransactionTooLarge)
	}
	writes := make([]types.TransactWriteItem, 0, total)
	for _, e := range t.saves {
		item, err := t.store.marshalItem(ctx, e)
		if err != nil {
			return err
		}
		writes = append(writes, types.TransactWriteItem{
			Put: &types.Put{TableName: aws.String(t.store.table), Item: item},
		})
	}
	for _, k := range t.deletes {
		writes = append(writes, types.TransactWriteItem{
			Delete: &types.Delete{TableName: aws.String(t.store.table), Key: itemKey(k)},
		})
	}
	_, err := t.store.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems:      writes,
		ClientRequestToken: aws.String(uuid.NewString()),
	})
	if err != nil {
		return fmt.Errorf("dynamo: transact commit: %w", mapError(err))
	}
	return nil
}

func itemKey(k *core.Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: partitionKey(k)},
		attrSK: &types.AttributeValueMemberS{Value: sortKey(k)},
	}
}

// marshalItem converts an entity into a table item, spilling oversized
// payloads to the overflow store when one is configured.
func (s *Store) marshalItem(ctx context.Context, e core.Entity) (map[string]types.AttributeValue, error) {
	if s.overflow != nil {
		payload, err := json.Marshal(e.Data)
		if err != nil {
			return nil, fmt.Errorf("dynamo: marshal record %s: %w", e.Key, err)
		}
		if len(payload) > s.overflow.threshold {
			objKey, err := s.overflow.put(ctx, e.Key, payload)
			if err != nil {
				return nil, fmt.Errorf("dynamo: spill record %s: %w", e.Key, err)
			}
			item := itemKey(e.Key)
			item[attrOverflow] = &types.AttributeValueMemberS{Value: objKey}
			return item, nil
		}
	}
	item, err := attributevalue.MarshalMap(map[string]any(e.Data))
	if err != nil {
		return nil, fmt.Errorf("dynamo: marshal record %s: %w", e.Key, err)
	}
	item[attrPK] = &types.AttributeValueMemberS{Value: partitionKey(e.Key)}
	item[attrSK] = &types.AttributeValueMemberS{Value: sortKey(e.Key)}
	return item, nil
}

// DecodeItem converts a raw table item, in the shape a DynamoDB stream
// delivers it, back into the entity it stores. Spilled records are not
// inflated; their data carries only the "__overflow__" pointer attribute.
func DecodeItem(item map[string]types.AttributeValue) (*core.Entity, error) {
	key, err := decodeKey(stringAttr(item[attrPK]), stringAttr(item[attrSK]))
	if err != nil {
		return nil, err
	}
	var rec record.Record
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, fmt.Errorf("dynamo: unmarshal record %s: %w", key, err)
	}
	delete(rec, attrPK)
	delete(rec, attrSK)
	return &core.Entity{Key: key, Data: rec}, nil
}

// unmarshalItem converts a table item back into its key and record,
// fetching the payload from the overflow store when the item is a pointer.
func (s *Store) unmarshalItem(ctx context.Context, item map[string]types.AttributeValue) (*core.Key, record.Record, error) {
	ent, err := DecodeItem(item)
	if err != nil {
		return nil, nil, err
	}
	ref, ok := ent.Data[attrOverflow].(string)
	if !ok {
		return ent.Key, ent.Data, nil
	}
	if s.overflow == nil {
		return nil, nil, fmt.Errorf("dynamo: record %s spilled but no overflow store configured", ent.Key)
	}
	payload, err := s.overflow.get(ctx, ref)
	if err != nil {
		return nil, nil, fmt.Errorf("dynamo: inflate record %s: %w", ent.Key, err)
	}
	var rec record.Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, nil, fmt.Errorf("dynamo: inflate record %s: %w", ent.Key, err)
	}
	return ent.Key, rec, nil
}

func stringAttr(v types.AttributeValue) string {
	if s, ok := v.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func validateKey(key *core.Key) error {
	if key == nil {
		return fmt.Errorf("dynamo: nil key")
	}
	if key.Incomplete() {
		return fmt.Errorf("dynamo: incomplete key %s", key)
	}
	for cur := key; cur != nil; cur = cur.Parent {
		if strings.ContainsAny(cur.Kind, "/#") {
			return fmt.Errorf("dynamo: kind %q contains a reserved character", cur.Kind)
		}
	}
	return nil
}

func validateEntity(e core.Entity) error {
	if err := validateKey(e.Key); err != nil {
		return err
	}
	if e.Data == nil {
		return fmt.Errorf("dynamo: nil data for %s", e.Key)
	}
	if _, ok := e.Data[attrPK]; ok {
		return fmt.Errorf("dynamo: record %s uses reserved field %q", e.Key, attrPK)
	}
	if _, ok := e.Data[attrSK]; ok {
		return fmt.Errorf("dynamo: record %s uses reserved field %q", e.Key, attrSK)
	}
	return nil
}

// mapError translates SDK failures into the adapter's sentinel errors
// where one applies, otherwise returns the error unchanged.
func mapError(err error) error {
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, reason := range canceled.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return fmt.Errorf("%w: %s", customerrors.ErrConditionFailed, aws.ToString(reason.Message))
			}
		}
		return err
	}
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s", customerrors.ErrTableNotFound, aws.ToString(notFound.Message))
	}
	return err
}
