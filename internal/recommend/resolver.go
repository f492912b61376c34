// Package recommend answers "titles matching this user's preferred sources
// and genres" by walking the inverted index instead of scanning canonical
// records.
package recommend

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/nightjar-tv/nightjar/internal/keyspace"
	"github.com/nightjar-tv/nightjar/internal/prefs"
	"github.com/nightjar-tv/nightjar/internal/store"
)

// PreferenceReader is the slice of the preference service the resolver
// needs.
type PreferenceReader interface {
	Get(ctx context.Context, userID string) (prefs.Preferences, error)
}

// Filter narrows resolved titles; nil keeps everything.
type Filter func(keyspace.Title) bool

// recommendationMinRating is the cutoff for the recommendations view.
const recommendationMinRating = 7

type Resolver struct {
	store store.Gateway
	prefs PreferenceReader
	log   *zap.Logger
}

func NewResolver(g store.Gateway, p PreferenceReader, log *zap.Logger) *Resolver {
	return &Resolver{store: g, prefs: p, log: log}
}

// TitlesForUser returns every displayable title matching the user's
// preferences.
func (r *Resolver) TitlesForUser(ctx context.Context, userID string) ([]keyspace.Title, error) {
	return r.Resolve(ctx, userID, nil)
}

// RecommendationsForUser returns the subset rated above the recommendation
// cutoff.
func (r *Resolver) RecommendationsForUser(ctx context.Context, userID string) ([]keyspace.Title, error) {
	return r.Resolve(ctx, userID, func(t keyspace.Title) bool {
		return t.UserRating.IsSet() && t.UserRating.Float64() > recommendationMinRating
	})
}

// Resolve loads the user's preferences, queries the index partition of every
// (source, genre) pair in their cross product, batch-fetches the canonical
// rows of the collected title ids, and drops titles that are not yet
// displayable. Result order is unspecified; callers wanting a stable order
// sort client-side.
//
// A user without preferences, or missing either dimension, resolves to
// empty without touching the index: there is no bounded way to answer "all
// titles".
func (r *Resolver) Resolve(ctx context.Context, userID string, filter Filter) ([]keyspace.Title, error) {
	p, err := r.prefs.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(p.Sources) == 0 || len(p.Genres) == 0 {
		r.log.Info("user has no resolvable preferences", zap.String("user", userID))
		return []keyspace.Title{}, nil
	}

	titleIDs := make(map[keyspace.ID]struct{})
	for _, sourceID := range p.Sources {
		for _, genreID := range p.Genres {
			rows, err := r.store.QueryPartition(ctx, keyspace.IndexPartition(sourceID, genreID))
			if err != nil {
				return nil, fmt.Errorf("query index for source %s genre %s: %w", sourceID, genreID, err)
			}
			for _, row := range rows {
				dec, err := keyspace.Decode(row.Key, row.Data)
				if err != nil || dec.Kind != keyspace.KindIndexEntry {
					r.log.Warn("skipping malformed index row",
						zap.String("pk", row.Key.PK),
						zap.String("sk", row.Key.SK))
					continue
				}
				titleIDs[dec.Index.TitleID] = struct{}{}
			}
		}
	}
	if len(titleIDs) == 0 {
		r.log.Info("no indexed titles for user preferences", zap.String("user", userID))
		return []keyspace.Title{}, nil
	}

	keys := make([]store.Key, 0, len(titleIDs))
	for id := range titleIDs {
		keys = append(keys, keyspace.TitleKey(id))
	}
	// Deterministic request order; result order stays unspecified.
	slices.SortFunc(keys, func(a, b store.Key) int {
		if a.PK < b.PK {
			return -1
		}
		if a.PK > b.PK {
			return 1
		}
		return 0
	})

	rows, err := r.store.BatchGet(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("fetch canonical titles: %w", err)
	}

	titles := make([]keyspace.Title, 0, len(rows))
	for _, row := range rows {
		dec, err := keyspace.Decode(row.Key, row.Data)
		if err != nil || dec.Kind != keyspace.KindTitle {
			r.log.Warn("skipping malformed title row", zap.String("pk", row.Key.PK))
			continue
		}
		t := *dec.Title
		if !t.Displayable() {
			// Not enriched yet; an empty card is worse than no card.
			continue
		}
		if filter != nil && !filter(t) {
			continue
		}
		titles = append(titles, t)
	}
	return titles, nil
}
