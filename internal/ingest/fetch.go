package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nightjar-tv/nightjar/internal/keyspace"
	"github.com/nightjar-tv/nightjar/internal/prefs"
)

// TitleLister fetches titles matching source and genre sets from the
// external catalog.
type TitleLister interface {
	Titles(ctx context.Context, sourceIDs, genreIDs []keyspace.ID, limit int) ([]keyspace.Title, error)
}

// Publisher hands fetched titles to the ingestion stream.
type Publisher interface {
	PublishTitles(ctx context.Context, titles []keyspace.Title, cause string) error
}

// Fetcher drives the preference-based title refresh: aggregate every user's
// preference dimensions, fetch matching titles from the catalog, stamp each
// title with the aggregate context ids, and publish to the stream. The
// stream consumer does the table writes.
type Fetcher struct {
	prefs     *prefs.Service
	catalog   TitleLister
	publisher Publisher
	limit     int
	log       *zap.Logger
}

func NewFetcher(p *prefs.Service, catalog TitleLister, publisher Publisher, limit int, log *zap.Logger) *Fetcher {
	return &Fetcher{prefs: p, catalog: catalog, publisher: publisher, limit: limit, log: log}
}

const fetchCause = "scheduled_user_prefs_ingestion"

func (f *Fetcher) Run(ctx context.Context) error {
	all, err := f.prefs.AggregateAll(ctx)
	if err != nil {
		return err
	}
	if len(all.Sources) == 0 || len(all.Genres) == 0 {
		f.log.Info("no user preferences found, nothing to ingest")
		return nil
	}

	titles, err := f.catalog.Titles(ctx, all.Sources, all.Genres, f.limit)
	if err != nil {
		return fmt.Errorf("fetch titles: %w", err)
	}
	if len(titles) == 0 {
		f.log.Info("no titles matched aggregated preferences")
		return nil
	}

	// Stamp each title with the aggregate context so the consumer can
	// index it even when the catalog payload omits the lists.
	for i := range titles {
		titles[i].SourceIDs = all.Sources
		titles[i].GenreIDs = all.Genres
	}

	if err := f.publisher.PublishTitles(ctx, titles, fetchCause); err != nil {
		return fmt.Errorf("publish titles: %w", err)
	}
	f.log.Info("published fetched titles",
		zap.Int("titles", len(titles)),
		zap.Int("sources", len(all.Sources)),
		zap.Int("genres", len(all.Genres)))
	return nil
}
