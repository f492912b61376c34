package watchmode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nightjar-tv/nightjar/internal/keyspace"
	"github.com/nightjar-tv/nightjar/internal/secrets"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		Hostname: srv.URL,
		SecretID: "watchmode",
		Region:   "GB",
	}, secrets.Static{"watchmode": "k-123"}, zap.NewNop())
}

func TestSourcesSendsKeyAndRegion(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/sources/", r.URL.Path)
		assert.Equal(t, "k-123", r.URL.Query().Get("apiKey"))
		assert.Equal(t, "US", r.URL.Query().Get("regions"))
		w.Write([]byte(`[{"id": 203, "name": "Netflix", "regions": ["US"]}]`))
	})

	sources, err := c.Sources(context.Background(), "US")
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, keyspace.ID("203"), sources[0].ID)
	assert.Equal(t, "Netflix", sources[0].Name)
}

func TestTitlesUnwrapsEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/list-titles/", r.URL.Path)
		assert.Equal(t, "203,26", r.URL.Query().Get("source_ids"))
		assert.Equal(t, "7", r.URL.Query().Get("genres"))
		assert.Equal(t, "GB", r.URL.Query().Get("regions"))
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"titles": [{"id": 345534, "title": "The Thing", "year": 1982}]}`))
	})

	titles, err := c.Titles(context.Background(), []keyspace.ID{"203", "26"}, []keyspace.ID{"7"}, 20)
	require.NoError(t, err)
	require.Len(t, titles, 1)
	assert.Equal(t, keyspace.ID("345534"), titles[0].ID)
	assert.Equal(t, "The Thing", titles[0].Name)
}

func TestTitleDetails(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/title/345534/details/", r.URL.Path)
		assert.Equal(t, "sources", r.URL.Query().Get("append_to_response"))
		w.Write([]byte(`{"id": 345534, "title": "The Thing", "user_rating": 8.1, "plot_overview": "p", "poster": "x"}`))
	})

	title, err := c.TitleDetails(context.Background(), "345534")
	require.NoError(t, err)
	assert.Equal(t, keyspace.Rating("8.1"), title.UserRating)
	assert.True(t, title.Displayable())
}

func TestNon200IsAnError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Genres(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestMissingSecretFailsBeforeRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	t.Cleanup(srv.Close)
	c := New(Config{Hostname: srv.URL, SecretID: "absent"}, secrets.Static{}, zap.NewNop())

	_, err := c.Genres(context.Background())
	require.Error(t, err)
	assert.False(t, called)
}
