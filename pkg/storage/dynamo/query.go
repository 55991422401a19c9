package dynamo

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/stratakv/strata/internal/expr"
	"github.com/stratakv/strata/pkg/core"
	"github.com/stratakv/strata/pkg/record"
)

type filterClause struct {
	field string
	op    string
	value any
}

type orderClause struct {
	field      string
	descending bool
}

// Query is the DynamoDB backend's query handle. Filters compile to a
// server-side filter expression; ordering and the offset/limit window are
// applied client-side after the partition has been read.
type Query struct {
	kind     string
	filters  []filterClause
	orders   []orderClause
	offset   int
	limit    int
	fields   []string
	keysOnly bool
}

// CreateQuery starts a query over one kind partition.
func (s *Store) CreateQuery(kind string) core.Query {
	return &Query{kind: kind}
}

func (q *Query) clone() *Query {
	cp := *q
	cp.filters = append([]filterClause(nil), q.filters...)
	cp.orders = append([]orderClause(nil), q.orders...)
	cp.fields = append([]string(nil), q.fields...)
	return &cp
}

// Filter adds a conjunctive predicate.
func (q *Query) Filter(field, op string, value any) core.Query {
	cp := q.clone()
	cp.filters = append(cp.filters, filterClause{field: field, op: op, value: value})
	return cp
}

// Order appends a sort clause.
func (q *Query) Order(field string, descending bool) core.Query {
	cp := q.clone()
	cp.orders = append(cp.orders, orderClause{field: field, descending: descending})
	return cp
}

// Offset skips n matches.
func (q *Query) Offset(n int) core.Query {
	cp := q.clone()
	cp.offset = n
	return cp
}

// Limit caps the result count.
func (q *Query) Limit(n int) core.Query {
	cp := q.clone()
	cp.limit = n
	return cp
}

// Select restricts returned fields; core.KeyField selects keys only.
func (q *Query) Select(fields ...string) core.Query {
	cp := q.clone()
	for _, f := range fields {
		if f == core.KeyField {
			cp.keysOnly = true
			continue
		}
		cp.fields = append(cp.fields, f)
	}
	return cp
}

// projection returns the attributes the server must project, or nil for
// the full item. Order fields ride along so client-side sorting still
// sees them when the caller projected them away; they are stripped again
// before results are returned.
func (q *Query) projection() []string {
	if !q.keysOnly && len(q.fields) == 0 {
		return nil
	}
	fields := []string{attrPK, attrSK}
	seen := map[string]bool{attrPK: true, attrSK: true}
	if !q.keysOnly {
		fields = append(fields, attrOverflow)
		seen[attrOverflow] = true
	}
	for _, f := range q.fields {
		if !seen[f] {
			seen[f] = true
			fields = append(fields, f)
		}
	}
	for _, c := range q.orders {
		if !seen[c.field] {
			seen[c.field] = true
			fields = append(fields, c.field)
		}
	}
	return fields
}

// RunQuery executes a handle created by CreateQuery as a single-partition
// Query call, paging until the window is satisfied.
func (s *Store) RunQuery(ctx context.Context, q core.Query) ([]core.Entity, error) {
	dq, ok := q.(*Query)
	if !ok {
		return nil, fmt.Errorf("dynamo: foreign query handle %T", q)
	}
	input, err := s.buildQueryInput(dq)
	if err != nil {
		return nil, err
	}
	items, err := s.collectItems(ctx, dq, input)
	if err != nil {
		return nil, err
	}

	type row struct {
		key  *core.Key
		data record.Record
	}
	rows := make([]row, 0, len(items))
	for _, item := range items {
		if dq.keysOnly {
			key, err := decodeKey(stringAttr(item[attrPK]), stringAttr(item[attrSK]))
			if err != nil {
				return nil, err
			}
			var data record.Record
			if len(dq.orders) > 0 {
				if err := attributevalue.UnmarshalMap(item, &data); err != nil {
					return nil, fmt.Errorf("dynamo: unmarshal record %s: %w", key, err)
				}
				delete(data, attrPK)
				delete(data, attrSK)
			}
			rows = append(rows, row{key: key, data: data})
			continue
		}
		key, rec, err := s.unmarshalItem(ctx, item)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row{key: key, data: rec})
	}

	if len(dq.orders) > 0 {
		sort.SliceStable(rows, func(i, j int) bool {
			for _, c := range dq.orders {
				av, _ := rows[i].data.GetPath(c.field)
				bv, _ := rows[j].data.GetPath(c.field)
				cmp, ok := record.Compare(av, bv)
				if !ok || cmp == 0 {
					continue
				}
				if c.descending {
					return cmp > 0
				}
				return cmp < 0
			}
			return rows[i].key.String() < rows[j].key.String()
		})
	}

	if dq.offset > 0 {
		if dq.offset >= len(rows) {
			rows = nil
		} else {
			rows = rows[dq.offset:]
		}
	}
	if dq.limit > 0 && len(rows) > dq.limit {
		rows = rows[:dq.limit]
	}

	out := make([]core.Entity, 0, len(rows))
	for _, r := range rows {
		switch {
		case dq.keysOnly:
			out = append(out, core.Entity{Key: r.key})
		case len(dq.fields) > 0:
			data := make(record.Record, len(dq.fields))
			for _, f := range dq.fields {
				if v, ok := r.data.GetPath(f); ok {
					data.SetPath(f, v)
				}
			}
			out = append(out, core.Entity{Key: r.key, Data: data})
		default:
			out = append(out, core.Entity{Key: r.key, Data: r.data})
		}
	}
	return out, nil
}

func (s *Store) buildQueryInput(q *Query) (*dynamodb.QueryInput, error) {
	b := expr.NewBuilder()
	if err := b.AddKeyCondition(attrPK, core.OpEqual, q.kind); err != nil {
		return nil, err
	}
	for _, f := range q.filters {
		if err := b.AddFilterCondition(f.field, f.op, f.value); err != nil {
			return nil, err
		}
	}
	b.AddProjection(q.projection()...)
	components := b.Build()

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		KeyConditionExpression:    aws.String(components.KeyConditionExpression),
		ExpressionAttributeNames:  components.ExpressionAttributeNames,
		ExpressionAttributeValues: components.ExpressionAttributeValues,
		ConsistentRead:            aws.Bool(true),
	}
	if components.FilterExpression != "" {
		input.FilterExpression = aws.String(components.FilterExpression)
	}
	if components.ProjectionExpression != "" {
		input.ProjectionExpression = aws.String(components.ProjectionExpression)
	}
	// A pure window query can cap page size server-side; with filters the
	// cap counts pre-filter evaluations, so leave it off and stop paging
	// client-side instead. Windows past int32 range get no cap rather than
	// a truncated one; the client-side stop still applies.
	if len(q.filters) == 0 && len(q.orders) == 0 && q.limit > 0 {
		if window := q.offset + q.limit; window <= math.MaxInt32 {
			input.Limit = aws.Int32(int32(window))
		}
	}
	return input, nil
}

func (s *Store) collectItems(ctx context.Context, q *Query, input *dynamodb.QueryInput) ([]map[string]types.AttributeValue, error) {
	target := 0
	if len(q.orders) == 0 && q.limit > 0 {
		target = q.offset + q.limit
	}
	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewQueryPaginator(s.api, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamo: query %s: %w", q.kind, mapError(err))
		}
		items = append(items, page.Items...)
		if target > 0 && len(items) >= target {
			break
		}
	}
	return items, nil
}
