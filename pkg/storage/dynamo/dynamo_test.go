package dynamo

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"strconv"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratakv/strata/pkg/core"
	customerrors "github.com/stratakv/strata/pkg/errors"
	"github.com/stratakv/strata/pkg/record"
)

// fakeAPI routes each call to an optional handler; a call with no handler
// fails the test.
type fakeAPI struct {
	t *testing.T

	getItem     func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error)
	putItem     func(*dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error)
	deleteItem  func(*dynamodb.DeleteItemInput) (*dynamodb.DeleteItemOutput, error)
	query       func(*dynamodb.QueryInput) (*dynamodb.QueryOutput, error)
	updateItem  func(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error)
	transact    func(*dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error)
	describe    func(*dynamodb.DescribeTableInput) (*dynamodb.DescribeTableOutput, error)
	createTable func(*dynamodb.CreateTableInput) (*dynamodb.CreateTableOutput, error)
}

func (f *fakeAPI) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.getItem == nil {
		f.t.Fatal("unexpected GetItem call")
	}
	return f.getItem(in)
}

func (f *fakeAPI) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.putItem == nil {
		f.t.Fatal("unexpected PutItem call")
	}
	return f.putItem(in)
}

func (f *fakeAPI) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if f.deleteItem == nil {
		f.t.Fatal("unexpected DeleteItem call")
	}
	return f.deleteItem(in)
}

func (f *fakeAPI) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if f.query == nil {
		f.t.Fatal("unexpected Query call")
	}
	return f.query(in)
}

func (f *fakeAPI) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if f.updateItem == nil {
		f.t.Fatal("unexpected UpdateItem call")
	}
	return f.updateItem(in)
}

func (f *fakeAPI) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	if f.transact == nil {
		f.t.Fatal("unexpected TransactWriteItems call")
	}
	return f.transact(in)
}

func (f *fakeAPI) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if f.describe == nil {
		f.t.Fatal("unexpected DescribeTable call")
	}
	return f.describe(in)
}

func (f *fakeAPI) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	if f.createTable == nil {
		f.t.Fatal("unexpected CreateTable call")
	}
	return f.createTable(in)
}

type fakeS3 struct {
	t *testing.T

	putObject func(*s3.PutObjectInput) (*s3.PutObjectOutput, error)
	getObject func(*s3.GetObjectInput) (*s3.GetObjectOutput, error)
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putObject == nil {
		f.t.Fatal("unexpected PutObject call")
	}
	return f.putObject(in)
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getObject == nil {
		f.t.Fatal("unexpected GetObject call")
	}
	return f.getObject(in)
}

func newTestStore(t *testing.T, api API, opts ...Option) *Store {
	t.Helper()
	s, err := New(api, "strata-test", opts...)
	require.NoError(t, err)
	return s
}

func strAttr(v string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: v}
}

func numAttr(v string) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: v}
}

func userItem(id int64, name string, age int) map[string]types.AttributeValue {
	item := itemKey(&core.Key{Kind: "users", ID: id})
	item["name"] = strAttr(name)
	item["age"] = numAttr(strconv.Itoa(age))
	return item
}

func TestStore_Get(t *testing.T) {
	api := &fakeAPI{t: t}
	var captured *dynamodb.GetItemInput
	api.getItem = func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
		captured = in
		return &dynamodb.GetItemOutput{Item: userItem(5, "alice", 30)}, nil
	}
	s := newTestStore(t, api)

	key, err := s.Key("users", int64(5))
	require.NoError(t, err)
	rec, err := s.Get(context.Background(), key)
	require.NoError(t, err)

	assert.Equal(t, "strata-test", aws.ToString(captured.TableName))
	assert.True(t, aws.ToBool(captured.ConsistentRead))
	assert.Equal(t, "users", stringAttr(captured.Key[attrPK]))
	assert.Equal(t, "id#00000000000000000005", stringAttr(captured.Key[attrSK]))
	assert.Equal(t, record.Record{"name": "alice", "age": float64(30)}, rec)
}

func TestStore_GetMissing(t *testing.T) {
	api := &fakeAPI{t: t}
	api.getItem = func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
		return &dynamodb.GetItemOutput{}, nil
	}
	s := newTestStore(t, api)

	key, err := s.Key("users", int64(99))
	require.NoError(t, err)
	rec, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestStore_GetTableMissing(t *testing.T) {
	api := &fakeAPI{t: t}
	api.getItem = func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
		return nil, &types.ResourceNotFoundException{Message: aws.String("no table")}
	}
	s := newTestStore(t, api)

	key, err := s.Key("users", int64(1))
	require.NoError(t, err)
	_, err = s.Get(context.Background(), key)
	assert.ErrorIs(t, err, customerrors.ErrTableNotFound)
}

func TestStore_GetIncompleteKey(t *testing.T) {
	api := &fakeAPI{t: t}
	s := newTestStore(t, api)

	key, err := s.Key("users")
	require.NoError(t, err)
	_, err = s.Get(context.Background(), key)
	assert.Error(t, err)
}

func TestStore_SaveSingleUsesPutItem(t *testing.T) {
	api := &fakeAPI{t: t}
	var captured *dynamodb.PutItemInput
	api.putItem = func(in *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
		captured = in
		return &dynamodb.PutItemOutput{}, nil
	}
	s := newTestStore(t, api)

	key, err := s.Key("users", int64(1))
	require.NoError(t, err)
	err = s.Save(context.Background(), []core.Entity{{Key: key, Data: record.Record{"name": "alice"}}})
	require.NoError(t, err)

	assert.Equal(t, "users", stringAttr(captured.Item[attrPK]))
	assert.Equal(t, "id#00000000000000000001", stringAttr(captured.Item[attrSK]))
	assert.Equal(t, "alice", stringAttr(captured.Item["name"]))
}

func TestStore_SaveChunksLargeBatches(t *testing.T) {
	api := &fakeAPI{t: t}
	var inputs []*dynamodb.TransactWriteItemsInput
	api.transact = func(in *dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
		inputs = append(inputs, in)
		return &dynamodb.TransactWriteItemsOutput{}, nil
	}
	s := newTestStore(t, api)

	entities := make([]core.Entity, 26)
	for i := range entities {
		entities[i] = core.Entity{
			Key:  &core.Key{Kind: "users", ID: int64(i + 1)},
			Data: record.Record{"n": i},
		}
	}
	require.NoError(t, s.Save(context.Background(), entities))

	require.Len(t, inputs, 2)
	assert.Len(t, inputs[0].TransactItems, 25)
	assert.Len(t, inputs[1].TransactItems, 1)
	assert.NotNil(t, inputs[0].TransactItems[0].Put)
	assert.NotEmpty(t, aws.ToString(inputs[0].ClientRequestToken))
	assert.NotEqual(t, aws.ToString(inputs[0].ClientRequestToken), aws.ToString(inputs[1].ClientRequestToken))
}

func TestStore_SaveValidation(t *testing.T) {
	api := &fakeAPI{t: t}
	s := newTestStore(t, api)
	ctx := context.Background()

	err := s.Save(ctx, []core.Entity{{Key: &core.Key{Kind: "users", ID: 1}}})
	assert.ErrorContains(t, err, "nil data")

	err = s.Save(ctx, []core.Entity{{Key: &core.Key{Kind: "users"}, Data: record.Record{}}})
	assert.ErrorContains(t, err, "incomplete key")

	err = s.Save(ctx, []core.Entity{{
		Key:  &core.Key{Kind: "users", ID: 1},
		Data: record.Record{attrPK: "boom"},
	}})
	assert.ErrorContains(t, err, "reserved field")
}

func TestStore_DeleteSingleUsesDeleteItem(t *testing.T) {
	api := &fakeAPI{t: t}
	var captured *dynamodb.DeleteItemInput
	api.deleteItem = func(in *dynamodb.DeleteItemInput) (*dynamodb.DeleteItemOutput, error) {
		captured = in
		return &dynamodb.DeleteItemOutput{}, nil
	}
	s := newTestStore(t, api)

	err := s.Delete(context.Background(), []*core.Key{nil, {Kind: "users"}, {Kind: "users", ID: 2}})
	require.NoError(t, err)
	assert.Equal(t, "id#00000000000000000002", stringAttr(captured.Key[attrSK]))
}

func TestStore_DeleteManyUsesTransaction(t *testing.T) {
	api := &fakeAPI{t: t}
	var captured *dynamodb.TransactWriteItemsInput
	api.transact = func(in *dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
		captured = in
		return &dynamodb.TransactWriteItemsOutput{}, nil
	}
	s := newTestStore(t, api)

	keys := []*core.Key{{Kind: "users", ID: 1}, {Kind: "users", ID: 2}, {Kind: "users", ID: 3}}
	require.NoError(t, s.Delete(context.Background(), keys))

	require.Len(t, captured.TransactItems, 3)
	for _, item := range captured.TransactItems {
		assert.NotNil(t, item.Delete)
	}
}

func TestStore_RunQueryBuildsExpressions(t *testing.T) {
	api := &fakeAPI{t: t}
	var captured *dynamodb.QueryInput
	api.query = func(in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
		captured = in
		return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
			userItem(1, "alice", 30),
			userItem(3, "carol", 41),
		}}, nil
	}
	s := newTestStore(t, api)

	q := s.CreateQuery("users").
		Filter("age", core.OpGreater, 18).
		Filter("age", core.OpLess, 65)
	out, err := s.RunQuery(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, "#n1 = :v1", aws.ToString(captured.KeyConditionExpression))
	assert.Equal(t, "#n2 > :v2 AND #n2 < :v3", aws.ToString(captured.FilterExpression))
	assert.Equal(t, map[string]string{"#n1": attrPK, "#n2": "age"}, captured.ExpressionAttributeNames)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "users"}, captured.ExpressionAttributeValues[":v1"])
	assert.True(t, aws.ToBool(captured.ConsistentRead))

	require.Len(t, out, 2)
	assert.Equal(t, int64(1), out[0].Key.ID)
	assert.Equal(t, "alice", out[0].Data["name"])
}

func TestStore_RunQueryOrderOffsetLimit(t *testing.T) {
	api := &fakeAPI{t: t}
	api.query = func(*dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
		return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
			userItem(1, "alice", 30),
			userItem(2, "bob", 17),
			userItem(3, "carol", 41),
		}}, nil
	}
	s := newTestStore(t, api)

	q := s.CreateQuery("users").Order("age", false).Offset(1).Limit(1)
	out, err := s.RunQuery(context.Background(), q)
	require.NoError(t, err)

	require.Len(t, out, 1)
	assert.Equal(t, "alice", out[0].Data["name"])
}

func TestStore_RunQueryStopsPagingAtWindow(t *testing.T) {
	api := &fakeAPI{t: t}
	calls := 0
	var captured *dynamodb.QueryInput
	api.query = func(in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
		calls++
		captured = in
		return &dynamodb.QueryOutput{
			Items: []map[string]types.AttributeValue{
				userItem(1, "alice", 30),
				userItem(2, "bob", 17),
			},
			LastEvaluatedKey: itemKey(&core.Key{Kind: "users", ID: 2}),
		}, nil
	}
	s := newTestStore(t, api)

	q := s.CreateQuery("users").Limit(2)
	out, err := s.RunQuery(context.Background(), q)
	require.NoError(t, err)

	assert.Len(t, out, 2)
	assert.Equal(t, 1, calls)
	assert.Equal(t, int32(2), aws.ToInt32(captured.Limit))
}

func TestStore_RunQueryOversizedWindowSkipsPageCap(t *testing.T) {
	api := &fakeAPI{t: t}
	var captured *dynamodb.QueryInput
	api.query = func(in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
		captured = in
		return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
			userItem(1, "alice", 30),
		}}, nil
	}
	s := newTestStore(t, api)

	q := s.CreateQuery("users").Offset(math.MaxInt32).Limit(1)
	out, err := s.RunQuery(context.Background(), q)
	require.NoError(t, err)

	assert.Empty(t, out, "the offset consumes every match")
	assert.Nil(t, captured.Limit, "a window past int32 range gets no truncated page cap")
}

func TestStore_RunQueryKeysOnly(t *testing.T) {
	api := &fakeAPI{t: t}
	var captured *dynamodb.QueryInput
	api.query = func(in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
		captured = in
		return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
			itemKey(&core.Key{Kind: "users", ID: 1}),
			itemKey(&core.Key{Kind: "users", ID: 2}),
		}}, nil
	}
	s := newTestStore(t, api)

	q := s.CreateQuery("users").Select(core.KeyField)
	out, err := s.RunQuery(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, "#n1, #n2", aws.ToString(captured.ProjectionExpression))
	require.Len(t, out, 2)
	assert.Nil(t, out[0].Data)
	assert.Equal(t, int64(1), out[0].Key.ID)
}

func TestStore_RunQueryProjectionCarriesOrderFields(t *testing.T) {
	api := &fakeAPI{t: t}
	var captured *dynamodb.QueryInput
	api.query = func(in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
		captured = in
		return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
			userItem(1, "alice", 30),
			userItem(3, "carol", 41),
		}}, nil
	}
	s := newTestStore(t, api)

	q := s.CreateQuery("users").Select("name").Order("age", true)
	out, err := s.RunQuery(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, "#n1, #n2, #n3, #name, #n4", aws.ToString(captured.ProjectionExpression))
	assert.Equal(t, "age", captured.ExpressionAttributeNames["#n4"])

	require.Len(t, out, 2)
	assert.Equal(t, record.Record{"name": "carol"}, out[0].Data)
	assert.Equal(t, record.Record{"name": "alice"}, out[1].Data)
}

func TestStore_RunQueryUnknownOperator(t *testing.T) {
	api := &fakeAPI{t: t}
	s := newTestStore(t, api)

	q := s.CreateQuery("users").Filter("age", "BETWEEN", 18)
	_, err := s.RunQuery(context.Background(), q)
	assert.ErrorIs(t, err, customerrors.ErrUnsupportedOperator)
}

func TestStore_RunQueryForeignHandle(t *testing.T) {
	api := &fakeAPI{t: t}
	s := newTestStore(t, api)

	_, err := s.RunQuery(context.Background(), nil)
	assert.ErrorContains(t, err, "foreign query handle")
}

func TestStore_TransactionCommit(t *testing.T) {
	api := &fakeAPI{t: t}
	var captured *dynamodb.TransactWriteItemsInput
	api.transact = func(in *dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
		captured = in
		return &dynamodb.TransactWriteItemsOutput{}, nil
	}
	s := newTestStore(t, api)
	ctx := context.Background()

	err := s.RunInTransaction(ctx, func(tx core.Transaction) error {
		if err := tx.Save(ctx, []core.Entity{
			{Key: &core.Key{Kind: "users", ID: 1}, Data: record.Record{"name": "alice"}},
			{Key: &core.Key{Kind: "users", ID: 2}, Data: record.Record{"name": "bob"}},
		}); err != nil {
			return err
		}
		return tx.Delete(ctx, []*core.Key{{Kind: "users", ID: 3}})
	})
	require.NoError(t, err)

	require.Len(t, captured.TransactItems, 3)
	assert.NotNil(t, captured.TransactItems[0].Put)
	assert.NotNil(t, captured.TransactItems[2].Delete)
	assert.NotEmpty(t, aws.ToString(captured.ClientRequestToken))
}

func TestStore_TransactionRollback(t *testing.T) {
	api := &fakeAPI{t: t}
	s := newTestStore(t, api)
	ctx := context.Background()

	err := s.RunInTransaction(ctx, func(tx core.Transaction) error {
		if err := tx.Save(ctx, []core.Entity{
			{Key: &core.Key{Kind: "users", ID: 1}, Data: record.Record{"name": "alice"}},
		}); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestStore_TransactionTooLarge(t *testing.T) {
	api := &fakeAPI{t: t}
	s := newTestStore(t, api)
	ctx := context.Background()

	entities := make([]core.Entity, 26)
	for i := range entities {
		entities[i] = core.Entity{
			Key:  &core.Key{Kind: "users", ID: int64(i + 1)},
			Data: record.Record{"n": i},
		}
	}
	err := s.RunInTransaction(ctx, func(tx core.Transaction) error {
		return tx.Save(ctx, entities)
	})
	assert.ErrorIs(t, err, customerrors.ErrTransactionTooLarge)
}

func TestStore_TransactionCanceledMapsConditionFailed(t *testing.T) {
	api := &fakeAPI{t: t}
	api.transact = func(*dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
		return nil, &types.TransactionCanceledException{
			CancellationReasons: []types.CancellationReason{
				{Code: aws.String("ConditionalCheckFailed"), Message: aws.String("item exists")},
			},
		}
	}
	s := newTestStore(t, api)
	ctx := context.Background()

	err := s.RunInTransaction(ctx, func(tx core.Transaction) error {
		return tx.Save(ctx, []core.Entity{
			{Key: &core.Key{Kind: "users", ID: 1}, Data: record.Record{"name": "alice"}},
		})
	})
	assert.ErrorIs(t, err, customerrors.ErrConditionFailed)
}

func TestTxn_AllocateIDs(t *testing.T) {
	api := &fakeAPI{t: t}
	var inputs []*dynamodb.UpdateItemInput
	api.updateItem = func(in *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
		inputs = append(inputs, in)
		var n int64
		for _, v := range in.ExpressionAttributeValues {
			num, ok := v.(*types.AttributeValueMemberN)
			require.True(t, ok)
			parsed, err := strconv.ParseInt(num.Value, 10, 64)
			require.NoError(t, err)
			n = parsed
		}
		return &dynamodb.UpdateItemOutput{
			Attributes: map[string]types.AttributeValue{counterAttr: numAttr(strconv.FormatInt(n, 10))},
		}, nil
	}
	s := newTestStore(t, api)
	ctx := context.Background()

	complete := &core.Key{Kind: "users", ID: 9}
	var out []*core.Key
	err := s.RunInTransaction(ctx, func(tx core.Transaction) error {
		var err error
		out, err = tx.AllocateIDs(ctx, []*core.Key{
			{Kind: "users"},
			{Kind: "posts"},
			{Kind: "users"},
			complete,
		})
		return err
	})
	require.NoError(t, err)

	// Two partitions need ids, so exactly two counter updates run. The
	// fake returns a high-water mark equal to the block size, making the
	// blocks start at 1.
	require.Len(t, inputs, 2)
	assert.Equal(t, sequencePK, stringAttr(inputs[0].Key[attrPK]))
	assert.Equal(t, "ADD #n1 :v1", aws.ToString(inputs[0].UpdateExpression))
	assert.Equal(t, types.ReturnValueUpdatedNew, inputs[0].ReturnValues)

	assert.Equal(t, int64(1), out[0].ID)
	assert.Equal(t, int64(1), out[1].ID)
	assert.Equal(t, int64(2), out[2].ID)
	assert.Same(t, complete, out[3])
	assert.Equal(t, "users", out[0].Kind)
	assert.Equal(t, "posts", out[1].Kind)
}

func TestStore_OverflowSpill(t *testing.T) {
	api := &fakeAPI{t: t}
	var putInput *dynamodb.PutItemInput
	api.putItem = func(in *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
		putInput = in
		return &dynamodb.PutItemOutput{}, nil
	}
	s3api := &fakeS3{t: t}
	var objKey string
	var payload []byte
	s3api.putObject = func(in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		objKey = aws.ToString(in.Key)
		var err error
		payload, err = io.ReadAll(in.Body)
		require.NoError(t, err)
		assert.Equal(t, "overflow-bucket", aws.ToString(in.Bucket))
		return &s3.PutObjectOutput{}, nil
	}
	s := newTestStore(t, api, WithOverflow(s3api, "overflow-bucket", 10))

	err := s.Save(context.Background(), []core.Entity{{
		Key:  &core.Key{Kind: "users", ID: 1},
		Data: record.Record{"name": "alice", "bio": "a reasonably long biography"},
	}})
	require.NoError(t, err)

	assert.Equal(t, objKey, stringAttr(putInput.Item[attrOverflow]))
	assert.NotContains(t, putInput.Item, "name")

	var stored record.Record
	require.NoError(t, json.Unmarshal(payload, &stored))
	assert.Equal(t, "alice", stored["name"])
}

func TestStore_OverflowInflate(t *testing.T) {
	api := &fakeAPI{t: t}
	api.getItem = func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
		item := itemKey(&core.Key{Kind: "users", ID: 1})
		item[attrOverflow] = strAttr("users/obj-1")
		return &dynamodb.GetItemOutput{Item: item}, nil
	}
	s3api := &fakeS3{t: t}
	s3api.getObject = func(in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
		assert.Equal(t, "users/obj-1", aws.ToString(in.Key))
		body := []byte(`{"name":"alice","age":30}`)
		return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
	}
	s := newTestStore(t, api, WithOverflow(s3api, "overflow-bucket", 10))

	key, err := s.Key("users", int64(1))
	require.NoError(t, err)
	rec, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, record.Record{"name": "alice", "age": float64(30)}, rec)
}

func TestStore_EnsureTableCreates(t *testing.T) {
	api := &fakeAPI{t: t}
	describes := 0
	api.describe = func(*dynamodb.DescribeTableInput) (*dynamodb.DescribeTableOutput, error) {
		describes++
		if describes == 1 {
			return nil, &types.ResourceNotFoundException{}
		}
		return &dynamodb.DescribeTableOutput{
			Table: &types.TableDescription{TableStatus: types.TableStatusActive},
		}, nil
	}
	var created *dynamodb.CreateTableInput
	api.createTable = func(in *dynamodb.CreateTableInput) (*dynamodb.CreateTableOutput, error) {
		created = in
		return &dynamodb.CreateTableOutput{}, nil
	}
	s := newTestStore(t, api)

	require.NoError(t, s.EnsureTable(context.Background()))
	require.NotNil(t, created)
	assert.Equal(t, "strata-test", aws.ToString(created.TableName))
	assert.Equal(t, types.BillingModePayPerRequest, created.BillingMode)
	assert.GreaterOrEqual(t, describes, 2)
}

func TestStore_EnsureTableExisting(t *testing.T) {
	api := &fakeAPI{t: t}
	api.describe = func(*dynamodb.DescribeTableInput) (*dynamodb.DescribeTableOutput, error) {
		return &dynamodb.DescribeTableOutput{
			Table: &types.TableDescription{TableStatus: types.TableStatusActive},
		}, nil
	}
	s := newTestStore(t, api)

	require.NoError(t, s.EnsureTable(context.Background()))
}
