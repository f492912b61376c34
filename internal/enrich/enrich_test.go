package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nightjar-tv/nightjar/internal/ingest"
	"github.com/nightjar-tv/nightjar/internal/keyspace"
	"github.com/nightjar-tv/nightjar/internal/store/storetest"
)

type fakeDetailer struct {
	details map[keyspace.ID]keyspace.Title
	err     error
	calls   int
}

func (f *fakeDetailer) TitleDetails(_ context.Context, id keyspace.ID) (keyspace.Title, error) {
	f.calls++
	if f.err != nil {
		return keyspace.Title{}, f.err
	}
	return f.details[id], nil
}

func seedTitle(t *testing.T, spy *storetest.Spy, title keyspace.Title) {
	t.Helper()
	_, err := ingest.NewDeduplicator(spy, zap.NewNop()).
		Ingest(context.Background(), []keyspace.Title{title}, nil, nil)
	require.NoError(t, err)
}

func loadTitle(t *testing.T, spy *storetest.Spy, id keyspace.ID) keyspace.Title {
	t.Helper()
	data, err := spy.Get(context.Background(), keyspace.TitleKey(id))
	require.NoError(t, err)
	dec, err := keyspace.Decode(keyspace.TitleKey(id), data)
	require.NoError(t, err)
	return *dec.Title
}

func TestEnrichTitleMergesDetails(t *testing.T) {
	spy := storetest.New(t)
	seedTitle(t, spy, keyspace.Title{
		ID: "T1", Name: "The Thing", Year: 1982,
		SourceIDs: []keyspace.ID{"S1"}, GenreIDs: []keyspace.ID{"G1"},
	})
	detailer := &fakeDetailer{details: map[keyspace.ID]keyspace.Title{
		"T1": {
			PlotOverview: "A shape-shifting alien.",
			Poster:       "https://cdn.example.com/t1.jpg",
			UserRating:   "8.1",
		},
	}}
	e := New(spy, detailer, zap.NewNop())

	require.NoError(t, e.EnrichTitle(context.Background(), "T1"))

	got := loadTitle(t, spy, "T1")
	assert.Equal(t, "The Thing", got.Name)
	assert.Equal(t, 1982, got.Year)
	assert.Equal(t, []keyspace.ID{"S1"}, got.SourceIDs)
	assert.Equal(t, "A shape-shifting alien.", got.PlotOverview)
	assert.Equal(t, keyspace.Rating("8.1"), got.UserRating)
	assert.True(t, got.Displayable())
}

func TestEnrichKeepsExactRatingAcrossCycles(t *testing.T) {
	spy := storetest.New(t)
	seedTitle(t, spy, keyspace.Title{ID: "T1", Name: "The Thing"})
	detailer := &fakeDetailer{details: map[keyspace.ID]keyspace.Title{
		"T1": {PlotOverview: "p", Poster: "x", UserRating: "7.3"},
	}}
	e := New(spy, detailer, zap.NewNop())
	ctx := context.Background()

	// Repeated enrichment must never drift the stored decimal text.
	for i := 0; i < 3; i++ {
		require.NoError(t, e.EnrichTitle(ctx, "T1"))
	}
	assert.Equal(t, keyspace.Rating("7.3"), loadTitle(t, spy, "T1").UserRating)
}

func TestEnrichPreservesExistingFieldsWhenDetailsEmpty(t *testing.T) {
	spy := storetest.New(t)
	seedTitle(t, spy, keyspace.Title{
		ID: "T1", Name: "The Thing",
		PlotOverview: "existing plot", Poster: "existing.jpg", UserRating: "8.1",
	})
	detailer := &fakeDetailer{details: map[keyspace.ID]keyspace.Title{"T1": {}}}
	e := New(spy, detailer, zap.NewNop())

	require.NoError(t, e.EnrichTitle(context.Background(), "T1"))

	got := loadTitle(t, spy, "T1")
	assert.Equal(t, "existing plot", got.PlotOverview)
	assert.Equal(t, "existing.jpg", got.Poster)
	assert.Equal(t, keyspace.Rating("8.1"), got.UserRating)
}

func TestEnrichMissingCanonicalRowIsSkipped(t *testing.T) {
	spy := storetest.New(t)
	detailer := &fakeDetailer{}
	e := New(spy, detailer, zap.NewNop())

	require.NoError(t, e.EnrichTitle(context.Background(), "T-gone"))
	assert.Zero(t, detailer.calls)
	assert.Empty(t, spy.Puts)
}

func TestEnrichAllSkipsFailuresAndCounts(t *testing.T) {
	spy := storetest.New(t)
	seedTitle(t, spy, keyspace.Title{ID: "T1", Name: "A"})
	seedTitle(t, spy, keyspace.Title{ID: "T2", Name: "B"})

	detailer := &fakeDetailer{details: map[keyspace.ID]keyspace.Title{
		"T1": {PlotOverview: "p", Poster: "x"},
		"T2": {PlotOverview: "p", Poster: "x"},
	}}
	e := New(spy, detailer, zap.NewNop())

	count, err := e.EnrichAll(context.Background(), []keyspace.ID{"T1", "T2"})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Per-title detail failures skip the title, not the run.
	detailer.err = errors.New("api down")
	count, err = e.EnrichAll(context.Background(), []keyspace.ID{"T1"})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestEnrichAllStopsOnCancellation(t *testing.T) {
	spy := storetest.New(t)
	e := New(spy, &fakeDetailer{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.EnrichAll(ctx, []keyspace.ID{"T1"})
	assert.ErrorIs(t, err, context.Canceled)
}
