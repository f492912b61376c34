// Package dynamo implements the store gateway against AWS DynamoDB.
package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/nightjar-tv/nightjar/internal/store"
)

// Client is the slice of the DynamoDB API the gateway needs.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// NewClient builds a DynamoDB client from resolved AWS config, optionally
// pointed at a custom endpoint (LocalStack).
func NewClient(cfg aws.Config, endpointURL string) *dynamodb.Client {
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpointURL != "" {
			o.BaseEndpoint = aws.String(endpointURL)
		}
	})
}

// Gateway is the DynamoDB-backed store gateway over a single table.
type Gateway struct {
	client Client
	table  string
	log    *zap.Logger
}

var _ store.Gateway = (*Gateway)(nil)

func New(client Client, table string, log *zap.Logger) *Gateway {
	return &Gateway{client: client, table: table, log: log}
}

func (g *Gateway) Put(ctx context.Context, key store.Key, data store.Payload) error {
	_, err := g.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &g.table,
		Item:      itemFromRow(key, data),
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", key.PK, key.SK, err)
	}
	return nil
}

func (g *Gateway) Get(ctx context.Context, key store.Key) (store.Payload, error) {
	res, err := g.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &g.table,
		Key:       keyAttrs(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", key.PK, key.SK, err)
	}
	if res.Item == nil {
		return nil, store.ErrNotFound
	}
	row, err := rowFromItem(res.Item)
	if err != nil {
		return nil, err
	}
	return row.Data, nil
}

func (g *Gateway) Delete(ctx context.Context, key store.Key) error {
	_, err := g.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &g.table,
		Key:       keyAttrs(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", key.PK, key.SK, err)
	}
	return nil
}

// QueryPartition returns all rows of one partition in sort-key order,
// following continuation tokens until the partition is exhausted.
func (g *Gateway) QueryPartition(ctx context.Context, pk string) ([]store.Row, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.KeyEqual(expression.Key(store.AttrPK), expression.Value(pk))).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build query expression: %w", err)
	}

	var rows []store.Row
	var cursor map[string]types.AttributeValue
	for {
		res, err := g.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 &g.table,
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("query partition %q: %w", pk, err)
		}
		for _, item := range res.Items {
			row, err := rowFromItem(item)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
		if res.LastEvaluatedKey == nil {
			return rows, nil
		}
		cursor = res.LastEvaluatedKey
	}
}

// ScanPrefix walks the whole table filtering on a partition-key prefix.
// Only low-cardinality prefixes (the source/genre catalogs, the preference
// aggregation) may be scanned; per-title and per-user lookups go through
// QueryPartition or BatchGet.
func (g *Gateway) ScanPrefix(ctx context.Context, pkPrefix string) ([]store.Row, error) {
	expr, err := expression.NewBuilder().
		WithFilter(expression.BeginsWith(expression.Name(store.AttrPK), pkPrefix)).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build scan expression: %w", err)
	}

	var rows []store.Row
	var cursor map[string]types.AttributeValue
	for {
		res, err := g.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 &g.table,
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("scan prefix %q: %w", pkPrefix, err)
		}
		for _, item := range res.Items {
			row, err := rowFromItem(item)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
		if res.LastEvaluatedKey == nil {
			return rows, nil
		}
		cursor = res.LastEvaluatedKey
	}
}

// BatchWrite applies puts and deletes in chunks of MaxBatchWriteItems.
// Unprocessed items of a chunk are retried once; items still unprocessed
// after that fail the call. Not atomic across items: the caller must be
// safe to re-run.
func (g *Gateway) BatchWrite(ctx context.Context, ops []store.WriteOp) error {
	for start := 0; start < len(ops); start += store.MaxBatchWriteItems {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+store.MaxBatchWriteItems, len(ops))
		reqs := make([]types.WriteRequest, 0, end-start)
		for _, op := range ops[start:end] {
			if op.Delete {
				reqs = append(reqs, types.WriteRequest{
					DeleteRequest: &types.DeleteRequest{Key: keyAttrs(op.Key)},
				})
			} else {
				reqs = append(reqs, types.WriteRequest{
					PutRequest: &types.PutRequest{Item: itemFromRow(op.Key, op.Data)},
				})
			}
		}

		pending := reqs
		for attempt := 0; ; attempt++ {
			res, err := g.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{g.table: pending},
			})
			if err != nil {
				return fmt.Errorf("batch write: %w", err)
			}
			pending = res.UnprocessedItems[g.table]
			if len(pending) == 0 {
				break
			}
			if attempt >= 1 {
				return fmt.Errorf("batch write: %d items unprocessed after retry", len(pending))
			}
			g.log.Warn("retrying unprocessed batch write items", zap.Int("count", len(pending)))
		}
	}
	return nil
}

// BatchGet fetches rows in chunks of MaxBatchGetItems, draining unprocessed
// keys. Missing keys are simply absent from the result.
func (g *Gateway) BatchGet(ctx context.Context, keys []store.Key) ([]store.Row, error) {
	var rows []store.Row
	for start := 0; start < len(keys); start += store.MaxBatchGetItems {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+store.MaxBatchGetItems, len(keys))
		chunk := make([]map[string]types.AttributeValue, 0, end-start)
		for _, key := range keys[start:end] {
			chunk = append(chunk, keyAttrs(key))
		}

		request := map[string]types.KeysAndAttributes{g.table: {Keys: chunk}}
		for len(request[g.table].Keys) > 0 {
			res, err := g.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
				RequestItems: request,
			})
			if err != nil {
				return nil, fmt.Errorf("batch get: %w", err)
			}
			for _, item := range res.Responses[g.table] {
				row, err := rowFromItem(item)
				if err != nil {
					return nil, err
				}
				rows = append(rows, row)
			}
			request = res.UnprocessedKeys
			if _, ok := request[g.table]; !ok {
				break
			}
		}
	}
	return rows, nil
}

func keyAttrs(key store.Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		store.AttrPK: &types.AttributeValueMemberS{Value: key.PK},
		store.AttrSK: &types.AttributeValueMemberS{Value: key.SK},
	}
}

func itemFromRow(key store.Key, data store.Payload) map[string]types.AttributeValue {
	item := make(map[string]types.AttributeValue, len(data)+2)
	for k, v := range data {
		item[k] = v
	}
	item[store.AttrPK] = &types.AttributeValueMemberS{Value: key.PK}
	item[store.AttrSK] = &types.AttributeValueMemberS{Value: key.SK}
	return item
}

func rowFromItem(item map[string]types.AttributeValue) (store.Row, error) {
	pk, ok := item[store.AttrPK].(*types.AttributeValueMemberS)
	if !ok {
		return store.Row{}, errors.New("item missing string PK attribute")
	}
	sk, ok := item[store.AttrSK].(*types.AttributeValueMemberS)
	if !ok {
		return store.Row{}, errors.New("item missing string SK attribute")
	}
	var data store.Payload
	for k, v := range item {
		if k == store.AttrPK || k == store.AttrSK {
			continue
		}
		if data == nil {
			data = make(store.Payload, len(item)-2)
		}
		data[k] = v
	}
	return store.Row{Key: store.Key{PK: pk.Value, SK: sk.Value}, Data: data}, nil
}
