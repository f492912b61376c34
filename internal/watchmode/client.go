// Package watchmode is the client for the external title catalog API. The
// core never calls it directly; the refresher, fetcher and enricher consume
// it through their own narrow interfaces.
package watchmode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/nightjar-tv/nightjar/internal/keyspace"
	"github.com/nightjar-tv/nightjar/internal/secrets"
)

const defaultTimeout = 20 * time.Second

// Config carries the client's connection settings. The API key is resolved
// through the secret provider on each call and cached there, never stored
// on the client.
type Config struct {
	Hostname string
	SecretID string
	Region   string
	Timeout  time.Duration
}

type Client struct {
	http     *http.Client
	host     string
	region   string
	secrets  secrets.Provider
	secretID string
	breaker  *gobreaker.CircuitBreaker[[]byte]
	log      *zap.Logger
}

func New(cfg Config, provider secrets.Provider, log *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		http:     &http.Client{Timeout: timeout},
		host:     strings.TrimSuffix(cfg.Hostname, "/"),
		region:   cfg.Region,
		secrets:  provider,
		secretID: cfg.SecretID,
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name: "watchmode",
		}),
		log: log,
	}
}

// Sources fetches the streaming sources available in a region.
func (c *Client) Sources(ctx context.Context, region string) ([]keyspace.Source, error) {
	var out []keyspace.Source
	params := url.Values{"regions": {region}}
	if err := c.get(ctx, "sources", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Genres fetches all genres.
func (c *Client) Genres(ctx context.Context) ([]keyspace.Genre, error) {
	var out []keyspace.Genre
	if err := c.get(ctx, "genres", url.Values{}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Titles fetches titles available on any of the sources in any of the
// genres, capped at limit.
func (c *Client) Titles(ctx context.Context, sourceIDs, genreIDs []keyspace.ID, limit int) ([]keyspace.Title, error) {
	params := url.Values{
		"source_ids": {strings.Join(keyspace.IDStrings(sourceIDs), ",")},
		"genres":     {strings.Join(keyspace.IDStrings(genreIDs), ",")},
		"regions":    {c.region},
		"limit":      {strconv.Itoa(limit)},
	}
	var out struct {
		Titles []keyspace.Title `json:"titles"`
	}
	if err := c.get(ctx, "list-titles", params, &out); err != nil {
		return nil, err
	}
	return out.Titles, nil
}

// TitleDetails fetches the full record of one title, including the display
// and rating fields enrichment needs.
func (c *Client) TitleDetails(ctx context.Context, id keyspace.ID) (keyspace.Title, error) {
	params := url.Values{"append_to_response": {"sources"}}
	var out keyspace.Title
	if err := c.get(ctx, fmt.Sprintf("title/%s/details", id), params, &out); err != nil {
		return keyspace.Title{}, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	apiKey, err := c.secrets.Get(ctx, c.secretID)
	if err != nil {
		return fmt.Errorf("resolve catalog api key: %w", err)
	}
	params.Set("apiKey", apiKey)

	reqURL := fmt.Sprintf("%s/v1/%s/?%s", c.host, endpoint, params.Encode())
	body, err := c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		res, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("catalog api returned %s", res.Status)
		}
		return io.ReadAll(res.Body)
	})
	if err != nil {
		c.log.Error("catalog api request failed",
			zap.String("endpoint", endpoint), zap.Error(err))
		return fmt.Errorf("catalog api %s: %w", endpoint, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode catalog api %s response: %w", endpoint, err)
	}
	return nil
}
