// Package storetest provides an in-memory gateway wrapper that records the
// operations components issue, so tests can assert write minimality (delta
// reconciliation, no-op detection) and read discipline (no index queries
// for users without preferences).
package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nightjar-tv/nightjar/internal/store"
	"github.com/nightjar-tv/nightjar/internal/store/local"
)

// Spy delegates to an inner gateway and records calls.
type Spy struct {
	inner store.Gateway

	mu                sync.Mutex
	Puts              []store.Key
	Deletes           []store.Key
	BatchWrites       [][]store.WriteOp
	QueriedPartitions []string
	ScannedPrefixes   []string
	BatchGets         [][]store.Key
}

var _ store.Gateway = (*Spy)(nil)

// New returns a spy over a fresh in-memory local gateway, closed when the
// test finishes.
func New(t *testing.T) *Spy {
	t.Helper()
	g, err := local.Open(local.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return &Spy{inner: g}
}

// Wrap returns a spy over an arbitrary gateway.
func Wrap(g store.Gateway) *Spy {
	return &Spy{inner: g}
}

// WriteOps returns every operation issued through BatchWrite, flattened.
func (s *Spy) WriteOps() []store.WriteOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ops []store.WriteOp
	for _, batch := range s.BatchWrites {
		ops = append(ops, batch...)
	}
	return ops
}

func (s *Spy) Put(ctx context.Context, key store.Key, data store.Payload) error {
	s.mu.Lock()
	s.Puts = append(s.Puts, key)
	s.mu.Unlock()
	return s.inner.Put(ctx, key, data)
}

func (s *Spy) Get(ctx context.Context, key store.Key) (store.Payload, error) {
	return s.inner.Get(ctx, key)
}

func (s *Spy) Delete(ctx context.Context, key store.Key) error {
	s.mu.Lock()
	s.Deletes = append(s.Deletes, key)
	s.mu.Unlock()
	return s.inner.Delete(ctx, key)
}

func (s *Spy) QueryPartition(ctx context.Context, pk string) ([]store.Row, error) {
	s.mu.Lock()
	s.QueriedPartitions = append(s.QueriedPartitions, pk)
	s.mu.Unlock()
	return s.inner.QueryPartition(ctx, pk)
}

func (s *Spy) ScanPrefix(ctx context.Context, pkPrefix string) ([]store.Row, error) {
	s.mu.Lock()
	s.ScannedPrefixes = append(s.ScannedPrefixes, pkPrefix)
	s.mu.Unlock()
	return s.inner.ScanPrefix(ctx, pkPrefix)
}

func (s *Spy) BatchWrite(ctx context.Context, ops []store.WriteOp) error {
	s.mu.Lock()
	batch := make([]store.WriteOp, len(ops))
	copy(batch, ops)
	s.BatchWrites = append(s.BatchWrites, batch)
	s.mu.Unlock()
	return s.inner.BatchWrite(ctx, ops)
}

func (s *Spy) BatchGet(ctx context.Context, keys []store.Key) ([]store.Row, error) {
	s.mu.Lock()
	batch := make([]store.Key, len(keys))
	copy(batch, keys)
	s.BatchGets = append(s.BatchGets, batch)
	s.mu.Unlock()
	return s.inner.BatchGet(ctx, keys)
}
