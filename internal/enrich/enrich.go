// Package enrich fills in display fields on canonical title rows after
// ingestion: plot, poster and rating from the external catalog's details
// endpoint. Enrichment merges into the stored record; it never replaces it,
// and the rating keeps its exact decimal text through the cycle.
package enrich

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nightjar-tv/nightjar/internal/keyspace"
	"github.com/nightjar-tv/nightjar/internal/store"
)

// Detailer fetches full details for one title from the external catalog.
type Detailer interface {
	TitleDetails(ctx context.Context, id keyspace.ID) (keyspace.Title, error)
}

type Enricher struct {
	store   store.Gateway
	catalog Detailer
	log     *zap.Logger
}

func New(g store.Gateway, catalog Detailer, log *zap.Logger) *Enricher {
	return &Enricher{store: g, catalog: catalog, log: log}
}

// EnrichTitle merges details into the canonical row of one title. A title
// with no canonical row is skipped: enrichment follows ingestion, it never
// creates records.
func (e *Enricher) EnrichTitle(ctx context.Context, id keyspace.ID) error {
	key := keyspace.TitleKey(id)
	data, err := e.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		e.log.Warn("no canonical row to enrich", zap.String("id", string(id)))
		return nil
	}
	if err != nil {
		return err
	}
	dec, err := keyspace.Decode(key, data)
	if err != nil || dec.Kind != keyspace.KindTitle {
		return fmt.Errorf("row %s is not a canonical title", key.PK)
	}
	title := *dec.Title

	details, err := e.catalog.TitleDetails(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch details for title %s: %w", id, err)
	}
	if details.PlotOverview != "" {
		title.PlotOverview = details.PlotOverview
	}
	if details.Poster != "" {
		title.Poster = details.Poster
	}
	if details.UserRating.IsSet() {
		title.UserRating = details.UserRating
	}

	newKey, newData, err := keyspace.EncodeTitle(title)
	if err != nil {
		return fmt.Errorf("encode enriched title %s: %w", id, err)
	}
	if err := e.store.Put(ctx, newKey, newData); err != nil {
		return err
	}
	e.log.Info("enriched title", zap.String("id", string(id)))
	return nil
}

// EnrichAll enriches a set of titles, typically an ingestion report's
// written ids. Per-title failures are logged and skipped; the loop stops
// only on cancellation.
func (e *Enricher) EnrichAll(ctx context.Context, ids []keyspace.ID) (int, error) {
	enriched := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return enriched, err
		}
		if err := e.EnrichTitle(ctx, id); err != nil {
			e.log.Error("failed to enrich title", zap.String("id", string(id)), zap.Error(err))
			continue
		}
		enriched++
	}
	return enriched, nil
}
