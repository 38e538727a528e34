// Package handlers exposes the engine over a thin JSON API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cesargomez89/tidepool/internal/domain"
	"github.com/cesargomez89/tidepool/internal/download"
	"github.com/cesargomez89/tidepool/internal/logger"
	"github.com/cesargomez89/tidepool/internal/search"
	"github.com/cesargomez89/tidepool/internal/store"
)

type Handler struct {
	Search    *search.Engine
	Downloads *download.Engine
	Settings  *store.SettingsRepo
	Logger    *logger.Logger
}

func NewHandler(searchEngine *search.Engine, downloads *download.Engine, settings *store.SettingsRepo, log *logger.Logger) *Handler {
	return &Handler{
		Search:    searchEngine,
		Downloads: downloads,
		Settings:  settings,
		Logger:    log.WithComponent("http"),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/search", h.SearchItems)
		r.Get("/album-tracks", h.AlbumTracks)

		r.Post("/download", h.DownloadSync)

		r.Post("/downloads", h.EnqueueDownload)
		r.Get("/downloads", h.ListDownloads)
		r.Get("/downloads/{id}", h.GetDownload)
		r.Post("/downloads/{id}/cancel", h.CancelDownload)
		r.Post("/downloads/{id}/retry", h.RetryDownload)

		r.Get("/stream/{id}", h.StreamArtifact)

		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.PutSettings)
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// respondError maps error kinds to status codes. Anything unexpected
// is a 500.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrNotDownloadable),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrMissingRetryData):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrTimeout):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

// downloadRequestBody is the wire shape of both download endpoints.
type downloadRequestBody struct {
	Index   *int         `json:"index"`
	Item    *domain.Item `json:"item"`
	Quality string       `json:"quality"`
}

func (b downloadRequestBody) toRequest() domain.DownloadRequest {
	return domain.DownloadRequest{Index: b.Index, Target: b.Item, Quality: b.Quality}
}

// settingsBody is the settings document, both directions.
type settingsBody struct {
	Quality       string `json:"quality"`
	AutomationURL string `json:"automation_url"`
}
