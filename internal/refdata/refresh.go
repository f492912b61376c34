package refdata

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nightjar-tv/nightjar/internal/keyspace"
)

// CatalogAPI is the slice of the external catalog client the refresher
// needs.
type CatalogAPI interface {
	Sources(ctx context.Context, region string) ([]keyspace.Source, error)
	Genres(ctx context.Context) ([]keyspace.Genre, error)
}

// Refresher pulls the source and genre catalogs from the external API and
// upserts them. This backs the periodic reference-data job.
type Refresher struct {
	catalog CatalogAPI
	writer  *Writer
	log     *zap.Logger
}

func NewRefresher(catalog CatalogAPI, writer *Writer, log *zap.Logger) *Refresher {
	return &Refresher{catalog: catalog, writer: writer, log: log}
}

func (r *Refresher) RefreshSources(ctx context.Context, region string) error {
	sources, err := r.catalog.Sources(ctx, region)
	if err != nil {
		return fmt.Errorf("fetch sources for region %s: %w", region, err)
	}
	ok, err := r.writer.UpsertSources(ctx, sources)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("saving sources for region %s did not complete", region)
	}
	r.log.Info("refreshed sources", zap.String("region", region), zap.Int("count", len(sources)))
	return nil
}

func (r *Refresher) RefreshGenres(ctx context.Context) error {
	genres, err := r.catalog.Genres(ctx)
	if err != nil {
		return fmt.Errorf("fetch genres: %w", err)
	}
	ok, err := r.writer.UpsertGenres(ctx, genres)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("saving genres did not complete")
	}
	r.log.Info("refreshed genres", zap.Int("count", len(genres)))
	return nil
}
