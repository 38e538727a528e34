package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cesargomez89/tidepool/internal/catalog"
	"github.com/cesargomez89/tidepool/internal/domain"
	"github.com/cesargomez89/tidepool/internal/session"
	"github.com/cesargomez89/tidepool/internal/store"
)

func (h *Handler) SearchItems(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	itemType := domain.ItemType(r.URL.Query().Get("type"))

	items, err := h.Search.Search(r.Context(), query, itemType)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) AlbumTracks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	meta := session.AlbumMeta{
		Album:      q.Get("album"),
		Artist:     q.Get("artist"),
		ArtworkURL: q.Get("artwork_url"),
	}
	items, err := h.Search.AlbumTracks(r.Context(), q.Get("url"), meta)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": items})
}

// DownloadSync runs the whole pipeline inside the request and returns
// the finished job.
func (h *Handler) DownloadSync(w http.ResponseWriter, r *http.Request) {
	var body downloadRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, r, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}
	job, err := h.Downloads.Run(r.Context(), body.toRequest())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func (h *Handler) EnqueueDownload(w http.ResponseWriter, r *http.Request) {
	var body downloadRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, r, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}
	job, err := h.Downloads.Enqueue(body.toRequest())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, job)
}

func (h *Handler) ListDownloads(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.respondError(w, r, fmt.Errorf("%w: limit %q", domain.ErrValidation, raw))
			return
		}
		limit = n
	}
	respondJSON(w, http.StatusOK, map[string]any{"jobs": h.Downloads.List(limit)})
}

func (h *Handler) GetDownload(w http.ResponseWriter, r *http.Request) {
	job, err := h.Downloads.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func (h *Handler) CancelDownload(w http.ResponseWriter, r *http.Request) {
	if err := h.Downloads.Cancel(chi.URLParam(r, "id")); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "canceled"})
}

func (h *Handler) RetryDownload(w http.ResponseWriter, r *http.Request) {
	job, err := h.Downloads.Retry(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, job)
}

// StreamArtifact serves an artifact range-aware. A completed non-range
// stream releases the artifact; range requests keep it alive through
// the cache's sliding TTL.
func (h *Handler) StreamArtifact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, ok := h.Downloads.Artifacts().Get(id)
	if !ok {
		h.respondError(w, r, fmt.Errorf("%w: artifact %s", domain.ErrNotFound, id))
		return
	}

	file, err := os.Open(entry.FilePath)
	if err != nil {
		// Backing file lost: degrade to not found rather than 500.
		h.Logger.Warn("artifact file missing", "id", id, "path", entry.FilePath)
		h.Downloads.Artifacts().Release(id)
		h.respondError(w, r, fmt.Errorf("%w: artifact %s", domain.ErrNotFound, id))
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		h.respondError(w, r, fmt.Errorf("%w: artifact %s", domain.ErrNotFound, id))
		return
	}

	w.Header().Set("Content-Type", entry.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", entry.Filename))

	isRange := r.Header.Get("Range") != ""
	http.ServeContent(w, r, entry.Filename, info.ModTime(), file)

	if !isRange {
		h.Downloads.Artifacts().Release(id)
	}
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	quality, err := h.Settings.Get(store.SettingQuality)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	automationURL, err := h.Settings.Get(store.SettingAutomationURL)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, settingsBody{Quality: quality, AutomationURL: automationURL})
}

func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var body settingsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, r, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}

	if body.Quality != "" {
		canonical := catalog.CanonicalQuality(body.Quality)
		if canonical == "" {
			h.respondError(w, r, fmt.Errorf("%w: quality %q", domain.ErrValidation, body.Quality))
			return
		}
		if err := h.Settings.Set(store.SettingQuality, canonical); err != nil {
			h.respondError(w, r, err)
			return
		}
	}
	if body.AutomationURL != "" {
		if err := session.ValidateBaseURL(body.AutomationURL); err != nil {
			h.respondError(w, r, err)
			return
		}
		if err := h.Settings.Set(store.SettingAutomationURL, body.AutomationURL); err != nil {
			h.respondError(w, r, err)
			return
		}
	}
	h.GetSettings(w, r)
}
