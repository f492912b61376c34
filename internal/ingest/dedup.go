// Package ingest writes title batches into the table: one canonical row per
// title plus one inverted-index row per (source, genre) pair the title
// belongs to. All writes are idempotent puts, so re-running an ingestion is
// always safe.
package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nightjar-tv/nightjar/internal/keyspace"
	"github.com/nightjar-tv/nightjar/internal/store"
)

// Report summarizes one ingestion call. Written lists the title ids whose
// canonical row was queued, in input order; downstream enrichment feeds off
// it. Skipped items are warnings, not failures.
type Report struct {
	Written        []keyspace.ID
	IndexRows      int
	SkippedInvalid int
	Unindexed      []keyspace.ID
}

type Deduplicator struct {
	store store.Gateway
	log   *zap.Logger
}

func NewDeduplicator(g store.Gateway, log *zap.Logger) *Deduplicator {
	return &Deduplicator{store: g, log: log}
}

// Ingest queues one put per distinct key and flushes them in a single batch
// write. A per-call seen-keys set suppresses duplicates, so a batch never
// carries two writes for the same key; the store would reject that or
// resolve it arbitrarily.
//
// Payloads without an id are dropped and counted. A payload whose own
// source/genre lists are empty inherits the context lists; a title still
// left without both dimensions gets its canonical row but no index rows,
// since the resolver assumes every index partition carries both.
//
// A store error fails the whole call: partial ingestion would silently
// under-serve recommendations with no marker, so the event must be retried
// upstream.
func (d *Deduplicator) Ingest(ctx context.Context, titles []keyspace.Title, sourceIDs, genreIDs []keyspace.ID) (Report, error) {
	seen := make(map[store.Key]struct{})
	var ops []store.WriteOp
	var report Report

	for _, t := range titles {
		if t.ID == "" {
			d.log.Warn("skipping title payload without id", zap.String("title", t.Name))
			report.SkippedInvalid++
			continue
		}
		if len(t.SourceIDs) == 0 {
			t.SourceIDs = sourceIDs
		}
		if len(t.GenreIDs) == 0 {
			t.GenreIDs = genreIDs
		}

		key, data, err := keyspace.EncodeTitle(t)
		if err != nil {
			d.log.Warn("skipping unencodable title payload",
				zap.String("id", string(t.ID)), zap.Error(err))
			report.SkippedInvalid++
			continue
		}
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			ops = append(ops, store.PutOp(key, data))
			report.Written = append(report.Written, t.ID)
		}

		if len(t.SourceIDs) == 0 || len(t.GenreIDs) == 0 {
			d.log.Warn("title has no source or genre ids, not indexing",
				zap.String("id", string(t.ID)))
			report.Unindexed = append(report.Unindexed, t.ID)
			continue
		}
		for _, sourceID := range t.SourceIDs {
			for _, genreID := range t.GenreIDs {
				indexKey := keyspace.IndexKey(sourceID, genreID, t.ID)
				if _, dup := seen[indexKey]; dup {
					continue
				}
				seen[indexKey] = struct{}{}
				ops = append(ops, store.PutOp(indexKey, nil))
				report.IndexRows++
			}
		}
	}

	if len(ops) == 0 {
		return report, nil
	}
	if err := d.store.BatchWrite(ctx, ops); err != nil {
		return Report{}, fmt.Errorf("ingest batch write: %w", err)
	}
	d.log.Info("ingested titles",
		zap.Int("titles", len(report.Written)),
		zap.Int("index_rows", report.IndexRows),
		zap.Int("skipped", report.SkippedInvalid))
	return report, nil
}
