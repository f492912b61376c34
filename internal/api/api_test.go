package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nightjar-tv/nightjar/internal/enrich"
	"github.com/nightjar-tv/nightjar/internal/ingest"
	"github.com/nightjar-tv/nightjar/internal/jobs"
	"github.com/nightjar-tv/nightjar/internal/keyspace"
	"github.com/nightjar-tv/nightjar/internal/prefs"
	"github.com/nightjar-tv/nightjar/internal/recommend"
	"github.com/nightjar-tv/nightjar/internal/refdata"
	"github.com/nightjar-tv/nightjar/internal/store/storetest"
)

const testSecret = "test-secret"

type fakeCatalog struct {
	sources []keyspace.Source
	genres  []keyspace.Genre
	details map[keyspace.ID]keyspace.Title
}

func (f *fakeCatalog) Sources(context.Context, string) ([]keyspace.Source, error) {
	return f.sources, nil
}

func (f *fakeCatalog) Genres(context.Context) ([]keyspace.Genre, error) {
	return f.genres, nil
}

func (f *fakeCatalog) TitleDetails(_ context.Context, id keyspace.ID) (keyspace.Title, error) {
	return f.details[id], nil
}

type fakeFetcher struct{ runs int }

func (f *fakeFetcher) Run(context.Context) error {
	f.runs++
	return nil
}

type harness struct {
	spy     *storetest.Spy
	prefs   *prefs.Service
	fetcher *fakeFetcher
	handler http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := zap.NewNop()
	spy := storetest.New(t)
	catalog := &fakeCatalog{details: map[keyspace.ID]keyspace.Title{}}
	prefService := prefs.New(spy, log)
	fetcher := &fakeFetcher{}

	srv := NewServer(Deps{
		Lister:        refdata.NewLister(spy, log),
		Refresher:     refdata.NewRefresher(catalog, refdata.NewWriter(spy, log), log),
		Prefs:         prefService,
		Resolver:      recommend.NewResolver(spy, prefService, log),
		Fetcher:       fetcher,
		Enricher:      enrich.New(spy, catalog, log),
		IngestReports: ingest.NewReportLog(),
		Runner:        jobs.NewRunner(log),
		JWTSecret:     testSecret,
		CatalogRegion: "GB",
		Log:           log,
	})
	return &harness{spy: spy, prefs: prefService, fetcher: fetcher, handler: srv.Router()}
}

func token(t *testing.T, sub string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (h *harness) do(t *testing.T, method, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func TestSourcesArePublic(t *testing.T) {
	h := newHarness(t)
	w := refdata.NewWriter(h.spy, zap.NewNop())
	_, err := w.UpsertSources(context.Background(), []keyspace.Source{{ID: "203", Name: "Netflix"}})
	require.NoError(t, err)

	rec := h.do(t, http.MethodGet, "/api/sources", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var refs []refdata.Ref
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &refs))
	require.Len(t, refs, 1)
	assert.Equal(t, "Netflix", refs[0].Name)
}

func TestPreferencesRequireAuth(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/preferences", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/preferences", "", "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTokenWithoutSubjectIsRejected(t *testing.T) {
	h := newHarness(t)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)

	rec := h.do(t, http.MethodGet, "/api/preferences", "", signed)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPutPreferencesAppliedVsNoop(t *testing.T) {
	h := newHarness(t)
	bearer := token(t, "u-1")
	body := `{"sources": ["203"], "genres": ["7"]}`

	rec := h.do(t, http.MethodPut, "/api/preferences", body, bearer)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Same set again changes nothing.
	rec = h.do(t, http.MethodPut, "/api/preferences", body, bearer)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/preferences", "", bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	var got prefs.Preferences
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, []keyspace.ID{"203"}, got.Sources)
	assert.Equal(t, []keyspace.ID{"7"}, got.Genres)
}

func TestPutPreferencesBadPayload(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPut, "/api/preferences", `{"sources": "nope"`, token(t, "u-1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreferencesAreScopedToTokenSubject(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPut, "/api/preferences", `{"sources": ["203"]}`, token(t, "u-1"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/preferences", "", token(t, "u-2"))
	require.Equal(t, http.StatusOK, rec.Code)
	var got prefs.Preferences
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Empty())
}

func TestTitlesAndRecommendations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := ingest.NewDeduplicator(h.spy, zap.NewNop()).Ingest(ctx, []keyspace.Title{
		{ID: "T1", Name: "The Thing", PlotOverview: "p", Poster: "x", UserRating: "8.1",
			SourceIDs: []keyspace.ID{"203"}, GenreIDs: []keyspace.ID{"7"}},
		{ID: "T2", Name: "Middling", PlotOverview: "p", Poster: "x", UserRating: "6.5",
			SourceIDs: []keyspace.ID{"203"}, GenreIDs: []keyspace.ID{"7"}},
	}, nil, nil)
	require.NoError(t, err)

	bearer := token(t, "u-1")
	rec := h.do(t, http.MethodPut, "/api/preferences", `{"sources": ["203"], "genres": ["7"]}`, bearer)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/titles", "", bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	var titles []keyspace.Title
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &titles))
	assert.Len(t, titles, 2)

	rec = h.do(t, http.MethodGet, "/api/recommendations", "", bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	titles = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &titles))
	require.Len(t, titles, 1)
	assert.Equal(t, keyspace.ID("T1"), titles[0].ID)
	assert.Equal(t, 8.1, titles[0].UserRating.Float64())
}

func TestAdminTriggersReturnJobIDs(t *testing.T) {
	h := newHarness(t)
	bearer := token(t, "admin")

	rec := h.do(t, http.MethodPost, "/admin/titles/refresh", "", bearer)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.JobID)

	require.Eventually(t, func() bool {
		status := h.do(t, http.MethodGet, "/admin/jobs/"+resp.JobID, "", bearer)
		if status.Code != http.StatusOK {
			return false
		}
		var job jobs.Job
		if err := json.Unmarshal(status.Body.Bytes(), &job); err != nil {
			return false
		}
		return job.State == jobs.StateSucceeded
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.fetcher.runs)
}

func TestJobStatusUnknownID(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/admin/jobs/no-such-job", "", token(t, "admin"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReferenceRefreshPopulatesCatalog(t *testing.T) {
	h := newHarness(t)
	bearer := token(t, "admin")

	rec := h.do(t, http.MethodPost, "/admin/reference/refresh", "", bearer)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.Eventually(t, func() bool {
		status := h.do(t, http.MethodGet, "/admin/jobs/"+resp.JobID, "", bearer)
		var job jobs.Job
		if err := json.Unmarshal(status.Body.Bytes(), &job); err != nil {
			return false
		}
		return job.State != jobs.StateRunning
	}, time.Second, 5*time.Millisecond)
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
