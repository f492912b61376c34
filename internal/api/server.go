// Package api is the HTTP surface: public catalog listings, per-user
// preference and recommendation endpoints behind JWT auth, and admin
// triggers that start background jobs.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nightjar-tv/nightjar/internal/enrich"
	"github.com/nightjar-tv/nightjar/internal/ingest"
	"github.com/nightjar-tv/nightjar/internal/jobs"
	"github.com/nightjar-tv/nightjar/internal/prefs"
	"github.com/nightjar-tv/nightjar/internal/recommend"
	"github.com/nightjar-tv/nightjar/internal/refdata"
)

// Fetcher runs one preference-driven title fetch cycle.
type Fetcher interface {
	Run(ctx context.Context) error
}

type Server struct {
	lister        *refdata.Lister
	refresher     *refdata.Refresher
	prefs         *prefs.Service
	resolver      *recommend.Resolver
	fetcher       Fetcher
	enricher      *enrich.Enricher
	ingestReports *ingest.ReportLog
	runner        *jobs.Runner

	jwtSecret     []byte
	catalogRegion string
	log           *zap.Logger
}

type Deps struct {
	Lister        *refdata.Lister
	Refresher     *refdata.Refresher
	Prefs         *prefs.Service
	Resolver      *recommend.Resolver
	Fetcher       Fetcher
	Enricher      *enrich.Enricher
	IngestReports *ingest.ReportLog
	Runner        *jobs.Runner

	JWTSecret     string
	CatalogRegion string
	Log           *zap.Logger
}

func NewServer(d Deps) *Server {
	return &Server{
		lister:        d.Lister,
		refresher:     d.Refresher,
		prefs:         d.Prefs,
		resolver:      d.Resolver,
		fetcher:       d.Fetcher,
		enricher:      d.Enricher,
		ingestReports: d.IngestReports,
		runner:        d.Runner,
		jwtSecret:     []byte(d.JWTSecret),
		catalogRegion: d.CatalogRegion,
		log:           d.Log,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/sources", s.handleListSources)
	r.Get("/api/genres", s.handleListGenres)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/api/preferences", s.handleGetPreferences)
		r.Put("/api/preferences", s.handlePutPreferences)
		r.Get("/api/titles", s.handleListTitles)
		r.Get("/api/recommendations", s.handleListRecommendations)

		r.Post("/admin/reference/refresh", s.handleRefreshReference)
		r.Post("/admin/titles/refresh", s.handleRefreshTitles)
		r.Post("/admin/titles/enrich", s.handleEnrichTitles)
		r.Get("/admin/jobs/{id}", s.handleJobStatus)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
