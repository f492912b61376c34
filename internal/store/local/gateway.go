// Package local implements the store gateway on BadgerDB for offline
// development and component tests. Rows are stored under pk||0x00||sk so a
// partition query and a prefix scan are both single prefix iterations, and
// iteration order within a partition is sort-key order.
package local

import (
	"bytes"
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/nightjar-tv/nightjar/internal/store"
)

const keySep = 0x00

// Options configures the local store.
type Options struct {
	// Path to the database directory. If empty, the store is in-memory.
	Path string
	// InMemory forces in-memory mode even if Path is set.
	InMemory bool
}

// Gateway is the BadgerDB-backed store gateway.
type Gateway struct {
	db *badger.DB
}

var _ store.Gateway = (*Gateway)(nil)

// Open opens or creates the local store.
func Open(opts Options) (*Gateway, error) {
	badgerOpts := badger.DefaultOptions(opts.Path).WithLogger(nil)
	if opts.Path == "" || opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &Gateway{db: db}, nil
}

func (g *Gateway) Close() error {
	return g.db.Close()
}

func (g *Gateway) Put(ctx context.Context, key store.Key, data store.Payload) error {
	val, err := serializePayload(data)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", key.PK, key.SK, err)
	}
	err = g.db.Update(func(txn *badger.Txn) error {
		return txn.Set(encodeKey(key), val)
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", key.PK, key.SK, err)
	}
	return nil
}

func (g *Gateway) Get(ctx context.Context, key store.Key) (store.Payload, error) {
	var data store.Payload
	err := g.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(encodeKey(key))
		if err == badger.ErrKeyNotFound {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data, err = deserializePayload(val)
			return err
		})
	})
	if err == store.ErrNotFound {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", key.PK, key.SK, err)
	}
	return data, nil
}

func (g *Gateway) Delete(ctx context.Context, key store.Key) error {
	err := g.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(encodeKey(key))
	})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", key.PK, key.SK, err)
	}
	return nil
}

func (g *Gateway) QueryPartition(ctx context.Context, pk string) ([]store.Row, error) {
	prefix := append([]byte(pk), keySep)
	rows, err := g.iterate(prefix)
	if err != nil {
		return nil, fmt.Errorf("query partition %q: %w", pk, err)
	}
	return rows, nil
}

func (g *Gateway) ScanPrefix(ctx context.Context, pkPrefix string) ([]store.Row, error) {
	rows, err := g.iterate([]byte(pkPrefix))
	if err != nil {
		return nil, fmt.Errorf("scan prefix %q: %w", pkPrefix, err)
	}
	return rows, nil
}

func (g *Gateway) iterate(prefix []byte) ([]store.Row, error) {
	var rows []store.Row
	err := g.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key, err := decodeKey(item.Key())
			if err != nil {
				return err
			}
			var data store.Payload
			if err := item.Value(func(val []byte) error {
				data, err = deserializePayload(val)
				return err
			}); err != nil {
				return err
			}
			rows = append(rows, store.Row{Key: key, Data: data})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// BatchWrite applies operations in chunks of MaxBatchWriteItems, one
// transaction per chunk. Chunks are independent, mirroring the non-atomic
// contract of the real store's batch writes.
func (g *Gateway) BatchWrite(ctx context.Context, ops []store.WriteOp) error {
	for start := 0; start < len(ops); start += store.MaxBatchWriteItems {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+store.MaxBatchWriteItems, len(ops))
		err := g.db.Update(func(txn *badger.Txn) error {
			for _, op := range ops[start:end] {
				if op.Delete {
					if err := txn.Delete(encodeKey(op.Key)); err != nil {
						return err
					}
					continue
				}
				val, err := serializePayload(op.Data)
				if err != nil {
					return err
				}
				if err := txn.Set(encodeKey(op.Key), val); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("batch write: %w", err)
		}
	}
	return nil
}

func (g *Gateway) BatchGet(ctx context.Context, keys []store.Key) ([]store.Row, error) {
	var rows []store.Row
	for start := 0; start < len(keys); start += store.MaxBatchGetItems {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+store.MaxBatchGetItems, len(keys))
		for _, key := range keys[start:end] {
			data, err := g.Get(ctx, key)
			if err == store.ErrNotFound {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("batch get: %w", err)
			}
			rows = append(rows, store.Row{Key: key, Data: data})
		}
	}
	return rows, nil
}

func encodeKey(key store.Key) []byte {
	b := make([]byte, 0, len(key.PK)+1+len(key.SK))
	b = append(b, key.PK...)
	b = append(b, keySep)
	b = append(b, key.SK...)
	return b
}

func decodeKey(b []byte) (store.Key, error) {
	i := bytes.IndexByte(b, keySep)
	if i < 0 {
		return store.Key{}, fmt.Errorf("malformed stored key %q", b)
	}
	return store.Key{PK: string(b[:i]), SK: string(b[i+1:])}, nil
}
