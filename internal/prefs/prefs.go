// Package prefs stores and reconciles per-user preference rows.
//
// A user's stored preferences are exactly the set last applied: Apply
// computes the add/delete delta against the stored rows and issues one
// batch write, so an unchanged key is never deleted and reinserted. That
// keeps concurrent readers from observing a window where a still-wanted
// preference is missing, and makes a repeated Apply of the same set a
// write-free no-op.
package prefs

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/nightjar-tv/nightjar/internal/keyspace"
	"github.com/nightjar-tv/nightjar/internal/store"
)

// Preferences is a user's liked sources and genres.
type Preferences struct {
	Sources []keyspace.ID `json:"sources"`
	Genres  []keyspace.ID `json:"genres"`
}

// Empty reports whether neither dimension has entries.
func (p Preferences) Empty() bool {
	return len(p.Sources) == 0 && len(p.Genres) == 0
}

// Outcome distinguishes an apply that changed rows from one that found
// nothing to do, so the caller can answer 200 vs 204.
type Outcome int

const (
	OutcomeNoChange Outcome = iota
	OutcomeApplied
)

type Service struct {
	store store.Gateway
	log   *zap.Logger
}

func New(g store.Gateway, log *zap.Logger) *Service {
	return &Service{store: g, log: log}
}

// Get returns the user's stored preferences, sorted per dimension. Rows
// with a malformed sort key are skipped, not fatal.
func (s *Service) Get(ctx context.Context, userID string) (Preferences, error) {
	sources, genres, err := s.load(ctx, userID)
	if err != nil {
		return Preferences{}, err
	}
	return collect(sources, genres), nil
}

// Apply reconciles the user's stored rows to the desired set. Any store
// error aborts the whole reconciliation; the caller retries the full call.
func (s *Service) Apply(ctx context.Context, userID string, desired Preferences) (Outcome, error) {
	existingSources, existingGenres, err := s.load(ctx, userID)
	if err != nil {
		return OutcomeNoChange, err
	}

	desiredSources := toSet(desired.Sources)
	desiredGenres := toSet(desired.Genres)

	var ops []store.WriteOp
	for id := range existingSources {
		if _, keep := desiredSources[id]; !keep {
			ops = append(ops, store.DeleteOp(keyspace.PreferenceKey(userID, keyspace.DimensionSource, id)))
		}
	}
	for id := range existingGenres {
		if _, keep := desiredGenres[id]; !keep {
			ops = append(ops, store.DeleteOp(keyspace.PreferenceKey(userID, keyspace.DimensionGenre, id)))
		}
	}
	for id := range desiredSources {
		if _, have := existingSources[id]; !have {
			ops = append(ops, store.PutOp(keyspace.PreferenceKey(userID, keyspace.DimensionSource, id), nil))
		}
	}
	for id := range desiredGenres {
		if _, have := existingGenres[id]; !have {
			ops = append(ops, store.PutOp(keyspace.PreferenceKey(userID, keyspace.DimensionGenre, id), nil))
		}
	}

	if len(ops) == 0 {
		s.log.Info("no preference changes", zap.String("user", userID))
		return OutcomeNoChange, nil
	}

	if err := s.store.BatchWrite(ctx, ops); err != nil {
		return OutcomeNoChange, fmt.Errorf("apply preferences for user %s: %w", userID, err)
	}
	s.log.Info("applied preference delta",
		zap.String("user", userID),
		zap.Int("ops", len(ops)))
	return OutcomeApplied, nil
}

// AggregateAll unions every user's preference dimensions, for jobs that
// fetch titles matching anyone's taste. This walks the whole userpref:
// prefix and is only run from admin-triggered jobs.
func (s *Service) AggregateAll(ctx context.Context) (Preferences, error) {
	rows, err := s.store.ScanPrefix(ctx, keyspace.UserPrefPrefix)
	if err != nil {
		return Preferences{}, fmt.Errorf("aggregate preferences: %w", err)
	}
	sources := make(map[keyspace.ID]struct{})
	genres := make(map[keyspace.ID]struct{})
	s.accumulate(rows, sources, genres)
	return collect(sources, genres), nil
}

func (s *Service) load(ctx context.Context, userID string) (sources, genres map[keyspace.ID]struct{}, err error) {
	rows, err := s.store.QueryPartition(ctx, keyspace.UserPartition(userID))
	if err != nil {
		return nil, nil, fmt.Errorf("load preferences for user %s: %w", userID, err)
	}
	sources = make(map[keyspace.ID]struct{})
	genres = make(map[keyspace.ID]struct{})
	s.accumulate(rows, sources, genres)
	return sources, genres, nil
}

func (s *Service) accumulate(rows []store.Row, sources, genres map[keyspace.ID]struct{}) {
	for _, row := range rows {
		dec, err := keyspace.Decode(row.Key, row.Data)
		if err != nil || dec.Kind != keyspace.KindUserPreference {
			s.log.Warn("skipping malformed preference row",
				zap.String("pk", row.Key.PK),
				zap.String("sk", row.Key.SK))
			continue
		}
		switch dec.Preference.Dimension {
		case keyspace.DimensionSource:
			sources[dec.Preference.RefID] = struct{}{}
		case keyspace.DimensionGenre:
			genres[dec.Preference.RefID] = struct{}{}
		}
	}
}

func toSet(ids []keyspace.ID) map[keyspace.ID]struct{} {
	set := make(map[keyspace.ID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func collect(sources, genres map[keyspace.ID]struct{}) Preferences {
	p := Preferences{
		Sources: make([]keyspace.ID, 0, len(sources)),
		Genres:  make([]keyspace.ID, 0, len(genres)),
	}
	for id := range sources {
		p.Sources = append(p.Sources, id)
	}
	for id := range genres {
		p.Genres = append(p.Genres, id)
	}
	slices.Sort(p.Sources)
	slices.Sort(p.Genres)
	return p
}
