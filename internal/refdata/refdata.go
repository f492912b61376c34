// Package refdata maintains the source and genre catalogs: idempotent
// upserts from the external catalog API and prefix-scan listings. Catalog
// rows are overwritten wholesale (last write wins) and never deleted here.
package refdata

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/nightjar-tv/nightjar/internal/keyspace"
	"github.com/nightjar-tv/nightjar/internal/store"
)

type Writer struct {
	store store.Gateway
	log   *zap.Logger
}

func NewWriter(g store.Gateway, log *zap.Logger) *Writer {
	return &Writer{store: g, log: log}
}

// UpsertSources writes the valid entries and skips the rest: one bad record
// never fails the batch. Returns true when everything valid was written,
// including the trivial case of no input.
func (w *Writer) UpsertSources(ctx context.Context, sources []keyspace.Source) (bool, error) {
	var ops []store.WriteOp
	for _, s := range sources {
		if s.ID == "" || s.Name == "" {
			w.log.Warn("skipping source without id or name",
				zap.String("id", string(s.ID)), zap.String("name", s.Name))
			continue
		}
		key, data, err := keyspace.EncodeSource(s)
		if err != nil {
			w.log.Warn("skipping unencodable source", zap.String("id", string(s.ID)), zap.Error(err))
			continue
		}
		ops = append(ops, store.PutOp(key, data))
	}
	return w.flush(ctx, ops, "sources")
}

// UpsertGenres mirrors UpsertSources for the genre catalog.
func (w *Writer) UpsertGenres(ctx context.Context, genres []keyspace.Genre) (bool, error) {
	var ops []store.WriteOp
	for _, g := range genres {
		if g.ID == "" || g.Name == "" {
			w.log.Warn("skipping genre without id or name",
				zap.String("id", string(g.ID)), zap.String("name", g.Name))
			continue
		}
		key, data, err := keyspace.EncodeGenre(g)
		if err != nil {
			w.log.Warn("skipping unencodable genre", zap.String("id", string(g.ID)), zap.Error(err))
			continue
		}
		ops = append(ops, store.PutOp(key, data))
	}
	return w.flush(ctx, ops, "genres")
}

func (w *Writer) flush(ctx context.Context, ops []store.WriteOp, kind string) (bool, error) {
	if len(ops) == 0 {
		w.log.Info("no valid reference items to save", zap.String("kind", kind))
		return true, nil
	}
	if err := w.store.BatchWrite(ctx, ops); err != nil {
		return false, fmt.Errorf("upsert %s: %w", kind, err)
	}
	w.log.Info("saved reference items", zap.String("kind", kind), zap.Int("count", len(ops)))
	return true, nil
}

// Ref is a catalog listing entry, served from keys alone.
type Ref struct {
	ID   keyspace.ID `json:"id"`
	Name string      `json:"name"`
}

type Lister struct {
	store store.Gateway
	log   *zap.Logger
}

func NewLister(g store.Gateway, log *zap.Logger) *Lister {
	return &Lister{store: g, log: log}
}

// Sources lists the source catalog. The scan also sweeps up
// recommendation-index rows, which share the source: prefix; decoding
// filters them out by kind.
func (l *Lister) Sources(ctx context.Context) ([]Ref, error) {
	return l.list(ctx, keyspace.SourcePrefix, keyspace.KindSource)
}

// Genres lists the genre catalog.
func (l *Lister) Genres(ctx context.Context) ([]Ref, error) {
	return l.list(ctx, keyspace.GenrePrefix, keyspace.KindGenre)
}

func (l *Lister) list(ctx context.Context, prefix string, want keyspace.Kind) ([]Ref, error) {
	rows, err := l.store.ScanPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", want, err)
	}
	refs := make([]Ref, 0, len(rows))
	for _, row := range rows {
		dec, err := keyspace.Decode(row.Key, row.Data)
		if err != nil || dec.Kind != want {
			continue
		}
		switch want {
		case keyspace.KindSource:
			refs = append(refs, Ref{ID: dec.Source.ID, Name: dec.Source.Name})
		case keyspace.KindGenre:
			refs = append(refs, Ref{ID: dec.Genre.ID, Name: dec.Genre.Name})
		}
	}
	slices.SortFunc(refs, func(a, b Ref) int {
		if a.Name != b.Name {
			if a.Name < b.Name {
				return -1
			}
			return 1
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return refs, nil
}
