// Package store defines the narrow gateway every other component uses to
// talk to the shared key-value table. Two implementations exist: dynamo
// (AWS DynamoDB) and local (BadgerDB, for offline development and tests).
package store

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Attribute names of the table's composite primary key.
const (
	AttrPK = "PK"
	AttrSK = "SK"
)

// Per-request item limits of the underlying store's batch primitives.
const (
	MaxBatchWriteItems = 25
	MaxBatchGetItems   = 100
)

// ErrNotFound reports an absent key. Absence is not a failure; callers that
// treat it as one must decide so themselves.
var ErrNotFound = errors.New("item not found")

// Key is the composite primary key of a row.
type Key struct {
	PK string
	SK string
}

// Payload is the entity-specific attribute map carried by a row. Pure index
// rows have a nil payload. The gateway treats it as opaque: it never reads
// or rewrites individual attributes.
type Payload = map[string]types.AttributeValue

// Row is a stored item: its key plus its payload, with the key attributes
// already stripped from the payload.
type Row struct {
	Key  Key
	Data Payload
}

// WriteOp is a single element of a batch write: a put of (Key, Data) or,
// if Delete is set, a deletion of Key.
type WriteOp struct {
	Key    Key
	Data   Payload
	Delete bool
}

// PutOp builds a put operation for a batch write.
func PutOp(key Key, data Payload) WriteOp {
	return WriteOp{Key: key, Data: data}
}

// DeleteOp builds a delete operation for a batch write.
func DeleteOp(key Key) WriteOp {
	return WriteOp{Key: key, Delete: true}
}

// Gateway is the only surface the catalog components depend on.
//
// QueryPartition returns every row of one partition ordered by sort key,
// transparently following continuation tokens. ScanPrefix walks the whole
// table and must therefore only be used on low-cardinality prefixes
// (the source/genre catalogs and the admin-side preference aggregation),
// never on per-user or per-title prefixes.
//
// BatchWrite chunks operations to MaxBatchWriteItems per request and retries
// unprocessed items once before reporting failure. It is best-effort and not
// atomic across items; callers must be safe to re-run. BatchGet chunks to
// MaxBatchGetItems; keys that do not exist are simply absent from the result.
type Gateway interface {
	Put(ctx context.Context, key Key, data Payload) error
	Get(ctx context.Context, key Key) (Payload, error)
	Delete(ctx context.Context, key Key) error
	QueryPartition(ctx context.Context, pk string) ([]Row, error)
	ScanPrefix(ctx context.Context, pkPrefix string) ([]Row, error)
	BatchWrite(ctx context.Context, ops []WriteOp) error
	BatchGet(ctx context.Context, keys []Key) ([]Row, error)
}
