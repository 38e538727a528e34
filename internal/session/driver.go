package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/cesargomez89/tidepool/internal/constants"
	"github.com/cesargomez89/tidepool/internal/domain"
	"github.com/cesargomez89/tidepool/internal/httpclient"
	"github.com/cesargomez89/tidepool/internal/logger"
)

// SearchOptions tunes an in-session search.
type SearchOptions struct {
	// Thorough trades speed for completeness; used on the retry pass
	// when the fast pass returned nothing.
	Thorough bool
	Limit    int
}

// AlbumMeta carries display metadata to attach to listed album tracks.
type AlbumMeta struct {
	Album      string
	Artist     string
	ArtworkURL string
}

// TransferProgress is a byte-level progress report from a running
// transfer.
type TransferProgress struct {
	DownloadedBytes int64
	TotalBytes      *int64
}

// TransferResult describes the file a completed transfer produced.
type TransferResult struct {
	Filename string
	FilePath string
	Bytes    int64
}

// Driver is the session-side surface the engine drives. All calls must
// go through the Queue; the driver itself does no serialization.
type Driver interface {
	Init(ctx context.Context) error
	Search(ctx context.Context, query string, itemType domain.ItemType, opts SearchOptions) ([]domain.Item, error)
	AlbumTracks(ctx context.Context, path string, meta AlbumMeta) ([]domain.Item, error)
	Transfer(ctx context.Context, handle, quality string, onProgress func(TransferProgress)) (*TransferResult, error)
	SetQuality(ctx context.Context, quality string) error
}

// HTTPDriver drives the automation sidecar over its REST surface.
// Session handles are opaque strings minted by the sidecar.
type HTTPDriver struct {
	baseURL string
	client  *httpclient.Client
	log     *logger.Logger
	tmpDir  string
}

// NewHTTPDriver creates a driver for the sidecar at baseURL. Transfers
// land in tmpDir; "" means the OS temp dir.
func NewHTTPDriver(baseURL string, client *httpclient.Client, tmpDir string, log *logger.Logger) *HTTPDriver {
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	return &HTTPDriver{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		log:     log.WithComponent("session-driver"),
		tmpDir:  tmpDir,
	}
}

// Init asks the sidecar to bring up (or verify) the shared session.
func (d *HTTPDriver) Init(ctx context.Context) error {
	return d.postJSON(ctx, "/session/init", nil, nil)
}

// Search runs an in-session search and decodes the scraped items.
func (d *HTTPDriver) Search(ctx context.Context, query string, itemType domain.ItemType, opts SearchOptions) ([]domain.Item, error) {
	body := map[string]any{
		"query":    query,
		"type":     string(itemType),
		"thorough": opts.Thorough,
	}
	if opts.Limit > 0 {
		body["limit"] = opts.Limit
	}
	var out struct {
		Items []sessionItem `json:"items"`
	}
	if err := d.postJSON(ctx, "/session/search", body, &out); err != nil {
		return nil, fmt.Errorf("session search: %w", err)
	}
	return toItems(out.Items), nil
}

// AlbumTracks lists the tracks of an album page, attaching the given
// display metadata to every track.
func (d *HTTPDriver) AlbumTracks(ctx context.Context, path string, meta AlbumMeta) ([]domain.Item, error) {
	body := map[string]any{"path": path}
	var out struct {
		Items []sessionItem `json:"items"`
	}
	if err := d.postJSON(ctx, "/session/album-tracks", body, &out); err != nil {
		return nil, fmt.Errorf("session album tracks: %w", err)
	}
	items := toItems(out.Items)
	for i := range items {
		if items[i].Album == "" {
			items[i].Album = meta.Album
		}
		if items[i].Artist == "" {
			items[i].Artist = meta.Artist
		}
		if items[i].ArtworkURL == "" {
			items[i].ArtworkURL = meta.ArtworkURL
		}
	}
	return items, nil
}

// SetQuality switches the session's active quality setting.
func (d *HTTPDriver) SetQuality(ctx context.Context, quality string) error {
	return d.postJSON(ctx, "/session/quality", map[string]any{"quality": quality}, nil)
}

// Transfer triggers the download for a session handle and streams the
// resulting bytes to a temp file, reporting progress as they arrive.
func (d *HTTPDriver) Transfer(ctx context.Context, handle, quality string, onProgress func(TransferProgress)) (*TransferResult, error) {
	payload, err := json.Marshal(map[string]any{"handle": handle, "quality": quality})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/session/transfer", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	// The streamed body is paced by the reader, not the rate limiter,
	// and a long download must not count against the request interval.
	resp, err := d.client.Underlying().Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: transfer", domain.ErrTimeout)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrTransferFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: sidecar returned status %d", domain.ErrTransferFailed, resp.StatusCode)
	}

	filename := transferFilename(resp)
	var total *int64
	if resp.ContentLength > 0 {
		n := resp.ContentLength
		total = &n
	}

	tmp, err := os.CreateTemp(d.tmpDir, "transfer-*"+filepath.Ext(filename))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransferFailed, err)
	}

	written, err := copyWithProgress(ctx, tmp, resp.Body, total, onProgress)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: transfer", domain.ErrTimeout)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrTransferFailed, err)
	}

	d.log.Info("transfer complete", "filename", filename, "bytes", written)
	return &TransferResult{Filename: filename, FilePath: tmp.Name(), Bytes: written}, nil
}

func copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, total *int64, onProgress func(TransferProgress)) (int64, error) {
	buf := make([]byte, 128*1024)
	var written int64
	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, err
			}
			written += int64(n)
			if onProgress != nil {
				onProgress(TransferProgress{DownloadedBytes: written, TotalBytes: total})
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

// transferFilename picks a filename from Content-Disposition, falling
// back to a generic FLAC name.
func transferFilename(resp *http.Response) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := params["filename"]; name != "" {
				return filepath.Base(name)
			}
		}
	}
	return "download" + constants.ExtFLAC
}

// sessionItem is the sidecar's wire shape for a scraped result row.
type sessionItem struct {
	Index        int    `json:"index"`
	Type         string `json:"type"`
	Title        string `json:"title"`
	Artist       string `json:"artist"`
	Album        string `json:"album"`
	Subtitle     string `json:"subtitle"`
	Duration     int    `json:"duration"`
	ArtworkURL   string `json:"artworkUrl"`
	Downloadable bool   `json:"downloadable"`
	CatalogID    string `json:"catalogId"`
	URL          string `json:"url"`
	Handle       string `json:"handle"`
}

func toItems(rows []sessionItem) []domain.Item {
	items := make([]domain.Item, 0, len(rows))
	for i, row := range rows {
		itemType := domain.ItemType(row.Type)
		switch itemType {
		case domain.ItemTypeTrack, domain.ItemTypeAlbum, domain.ItemTypePlaylist:
		default:
			itemType = domain.ItemTypeTrack
		}
		items = append(items, domain.Item{
			Index:         i,
			Type:          itemType,
			Title:         row.Title,
			Artist:        row.Artist,
			Album:         row.Album,
			Subtitle:      row.Subtitle,
			Duration:      row.Duration,
			ArtworkURL:    row.ArtworkURL,
			Downloadable:  row.Downloadable,
			CatalogID:     row.CatalogID,
			URL:           row.URL,
			SessionHandle: row.Handle,
		})
	}
	return items
}

func (d *HTTPDriver) postJSON(ctx context.Context, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", domain.ErrTimeout, path)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sidecar %s returned status %d", path, resp.StatusCode)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var _ Driver = (*HTTPDriver)(nil)

// BaseURL reports the sidecar endpoint, for diagnostics.
func (d *HTTPDriver) BaseURL() string { return d.baseURL }

// ValidateBaseURL checks an automation endpoint override before it is
// persisted.
func ValidateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: automation url %q", domain.ErrValidation, raw)
	}
	return nil
}
