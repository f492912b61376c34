package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nightjar-tv/nightjar/internal/keyspace"
	"github.com/nightjar-tv/nightjar/internal/prefs"
)

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	refs, err := s.lister.Sources(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list sources")
		return
	}
	s.writeJSON(w, http.StatusOK, refs)
}

func (s *Server) handleListGenres(w http.ResponseWriter, r *http.Request) {
	refs, err := s.lister.Genres(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list genres")
		return
	}
	s.writeJSON(w, http.StatusOK, refs)
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	p, err := s.prefs.Get(r.Context(), userID(r.Context()))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load preferences")
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

// handlePutPreferences replaces the user's preference set. A request that
// matches the stored set answers 204; one that changed rows answers 200
// with the stored set.
func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	var desired prefs.Preferences
	if err := json.NewDecoder(r.Body).Decode(&desired); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid preferences payload")
		return
	}

	outcome, err := s.prefs.Apply(r.Context(), userID(r.Context()), desired)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to save preferences")
		return
	}
	if outcome == prefs.OutcomeNoChange {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusOK, desired)
}

func (s *Server) handleListTitles(w http.ResponseWriter, r *http.Request) {
	titles, err := s.resolver.TitlesForUser(r.Context(), userID(r.Context()))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to resolve titles")
		return
	}
	s.writeJSON(w, http.StatusOK, titles)
}

func (s *Server) handleListRecommendations(w http.ResponseWriter, r *http.Request) {
	titles, err := s.resolver.RecommendationsForUser(r.Context(), userID(r.Context()))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to resolve recommendations")
		return
	}
	s.writeJSON(w, http.StatusOK, titles)
}

type jobResponse struct {
	JobID string `json:"job_id"`
}

// handleRefreshReference pulls the source and genre catalogs from the
// external API in the background.
func (s *Server) handleRefreshReference(w http.ResponseWriter, _ *http.Request) {
	region := s.catalogRegion
	id := s.runner.Start("reference-refresh", func(ctx context.Context) error {
		if err := s.refresher.RefreshSources(ctx, region); err != nil {
			return err
		}
		return s.refresher.RefreshGenres(ctx)
	})
	s.writeJSON(w, http.StatusAccepted, jobResponse{JobID: id})
}

// handleRefreshTitles runs the preference-driven title fetch in the
// background. The stream consumer does the resulting table writes.
func (s *Server) handleRefreshTitles(w http.ResponseWriter, _ *http.Request) {
	id := s.runner.Start("title-refresh", func(ctx context.Context) error {
		return s.fetcher.Run(ctx)
	})
	s.writeJSON(w, http.StatusAccepted, jobResponse{JobID: id})
}

type enrichRequest struct {
	IDs []keyspace.ID `json:"ids"`
}

// handleEnrichTitles enriches the given title ids, or everything queued by
// ingestion when the body names none.
func (s *Server) handleEnrichTitles(w http.ResponseWriter, r *http.Request) {
	var req enrichRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid enrich payload")
			return
		}
	}
	ids := req.IDs
	if len(ids) == 0 {
		ids = s.ingestReports.TakePending()
	}

	id := s.runner.Start("title-enrichment", func(ctx context.Context) error {
		_, err := s.enricher.EnrichAll(ctx, ids)
		return err
	})
	s.writeJSON(w, http.StatusAccepted, jobResponse{JobID: id})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.runner.Status(chi.URLParam(r, "id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown job")
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}
