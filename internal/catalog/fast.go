// Package catalog implements the fast out-of-band catalog lookup. It
// talks to public search mirrors directly, needs no automation
// session, and therefore returns items without session handles.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cesargomez89/tidepool/internal/constants"
	"github.com/cesargomez89/tidepool/internal/domain"
	"github.com/cesargomez89/tidepool/internal/logger"
)

// FastProvider races every configured mirror on each query and takes
// the first non-empty payload.
type FastProvider struct {
	baseURLs []string
	client   *http.Client
	log      *logger.Logger
}

// NewFastProvider creates a provider over the given mirror base URLs.
func NewFastProvider(baseURLs []string, client *http.Client, log *logger.Logger) *FastProvider {
	if client == nil {
		client = &http.Client{Timeout: constants.DefaultFastSearchTimeout}
	}
	return &FastProvider{
		baseURLs: baseURLs,
		client:   client,
		log:      log.WithComponent("fast-catalog"),
	}
}

// SearchTracks queries all mirrors concurrently and returns the first
// non-empty result set, capped to limit. It fails only when every
// mirror fails or returns nothing.
func (p *FastProvider) SearchTracks(ctx context.Context, query string, limit int) ([]domain.Item, error) {
	if limit <= 0 || limit > constants.MaxFastSearchResults {
		limit = constants.MaxFastSearchResults
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		items []domain.Item
		err   error
	}
	results := make(chan outcome, len(p.baseURLs))
	for _, base := range p.baseURLs {
		base := base
		go func() {
			items, err := p.searchOne(ctx, base, query, limit)
			results <- outcome{items, err}
		}()
	}

	var lastErr error
	for range p.baseURLs {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: fast search", domain.ErrTimeout)
		case out := <-results:
			if out.err != nil {
				lastErr = out.err
				continue
			}
			if len(out.items) > 0 {
				cancel() // winner found, abandon the slower mirrors
				return out.items, nil
			}
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("fast search failed on all mirrors: %w", lastErr)
	}
	return nil, nil
}

func (p *FastProvider) searchOne(ctx context.Context, base, query string, limit int) ([]domain.Item, error) {
	u := fmt.Sprintf("%s/search/?s=%s", strings.TrimRight(base, "/"), url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("mirror %s returned status %d", base, resp.StatusCode)
	}

	var payload struct {
		Items []struct {
			ID           json.Number `json:"id"`
			Title        string      `json:"title"`
			Duration     int         `json:"duration"`
			AudioQuality string      `json:"audioQuality"`
			Artist       struct {
				Name string `json:"name"`
			} `json:"artist"`
			Artists []struct {
				Name string `json:"name"`
			} `json:"artists"`
			Album struct {
				Title string `json:"title"`
				Cover string `json:"cover"`
			} `json:"album"`
			URL            string `json:"url"`
			AllowStreaming bool   `json:"allowStreaming"`
			StreamReady    bool   `json:"streamReady"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("mirror %s: decode: %w", base, err)
	}

	items := make([]domain.Item, 0, limit)
	for i, row := range payload.Items {
		if len(items) >= limit {
			break
		}
		artist := row.Artist.Name
		if artist == "" && len(row.Artists) > 0 {
			artist = row.Artists[0].Name
		}
		items = append(items, domain.Item{
			Index:        i,
			Type:         domain.ItemTypeTrack,
			Title:        row.Title,
			Artist:       artist,
			Album:        row.Album.Title,
			Subtitle:     Subtitle(row.Album.Title, QualityLabel(row.AudioQuality)),
			Duration:     row.Duration,
			ArtworkURL:   ArtworkURL(row.Album.Cover, constants.ImageSizeMedium),
			Downloadable: row.AllowStreaming || row.StreamReady,
			CatalogID:    row.ID.String(),
			URL:          row.URL,
		})
	}
	p.log.Debug("mirror answered", "mirror", base, "items", len(items))
	return items, nil
}

// ArtworkURL turns a cover id into an absolute CDN URL. Already
// absolute URLs pass through unchanged.
func ArtworkURL(coverOrURL, size string) string {
	if coverOrURL == "" {
		return ""
	}
	if strings.HasPrefix(coverOrURL, "http://") || strings.HasPrefix(coverOrURL, "https://") {
		return coverOrURL
	}
	if size == "" {
		size = constants.ImageSizeMedium
	}
	path := strings.ReplaceAll(coverOrURL, "-", "/")
	return fmt.Sprintf("%s/%s/%s.jpg", constants.ImageCDNBase, path, size)
}

// QualityLabel maps a catalog audio-quality tag to the session
// settings label, defaulting to Hi-Res for unknown tags.
func QualityLabel(audioQuality string) string {
	switch strings.ToUpper(strings.TrimSpace(audioQuality)) {
	case "HI_RES", "HI_RES_LOSSLESS":
		return constants.QualityHiRes
	case "LOSSLESS":
		return constants.QualityCDLossless
	case "HIGH":
		return constants.QualityAAC320
	case "LOW":
		return constants.QualityAAC96
	default:
		return constants.QualityHiRes
	}
}

// CanonicalQuality maps a loosely written request label to one of the
// four canonical quality settings. Empty means no match.
func CanonicalQuality(label string) string {
	normalized := strings.ToLower(strings.TrimSpace(label))
	switch {
	case normalized == "":
		return ""
	case strings.Contains(normalized, "hi-res") || strings.Contains(normalized, "hires") || strings.Contains(normalized, "hi res"):
		return constants.QualityHiRes
	case strings.Contains(normalized, "lossless") || normalized == "cd":
		return constants.QualityCDLossless
	case strings.Contains(normalized, "320"):
		return constants.QualityAAC320
	case strings.Contains(normalized, "96"):
		return constants.QualityAAC96
	default:
		return ""
	}
}

// Subtitle builds the display subtitle shown under a track row.
func Subtitle(album, quality string) string {
	parts := make([]string, 0, 3)
	if album != "" {
		parts = append(parts, album)
	}
	if quality != "" {
		parts = append(parts, quality)
	}
	parts = append(parts, "16-bit/44.1 kHz FLAC")
	return strings.Join(parts, " • ")
}
