package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/cesargomez89/tidepool/internal/domain"
	"github.com/cesargomez89/tidepool/internal/httpclient"
	"github.com/cesargomez89/tidepool/internal/logger"
)

func newTestDriver(t *testing.T, handler http.Handler) *HTTPDriver {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := httpclient.New(srv.Client(), time.Millisecond)
	return NewHTTPDriver(srv.URL, client, t.TempDir(), logger.Default())
}

func TestDriverSearchDecodesItems(t *testing.T) {
	var gotBody map[string]any
	d := newTestDriver(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/session/search" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{{
				"title": "Blue Monday", "artist": "New Order", "duration": 447,
				"downloadable": true, "handle": "h1", "catalogId": "100",
			}},
		})
	}))

	items, err := d.Search(context.Background(), "blue monday", domain.ItemTypeTrack, SearchOptions{Thorough: true, Limit: 24})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(items) != 1 || items[0].SessionHandle != "h1" || items[0].Title != "Blue Monday" {
		t.Errorf("items = %+v", items)
	}
	if gotBody["thorough"] != true {
		t.Errorf("thorough not forwarded: %v", gotBody)
	}
	if limit, ok := gotBody["limit"].(float64); !ok || int(limit) != 24 {
		t.Errorf("limit not forwarded: %v", gotBody)
	}
}

func TestDriverTransferStreamsToFile(t *testing.T) {
	payload := make([]byte, 300*1024)
	d := newTestDriver(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="New Order - Blue Monday.flac"`)
		w.Write(payload)
	}))

	var reports []TransferProgress
	result, err := d.Transfer(context.Background(), "h1", "Hi-Res", func(tp TransferProgress) {
		reports = append(reports, tp)
	})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if result.Filename != "New Order - Blue Monday.flac" {
		t.Errorf("filename = %q", result.Filename)
	}
	if result.Bytes != int64(len(payload)) {
		t.Errorf("bytes = %d, want %d", result.Bytes, len(payload))
	}
	info, err := os.Stat(result.FilePath)
	if err != nil || info.Size() != int64(len(payload)) {
		t.Errorf("file on disk = %v / %v", info, err)
	}
	if len(reports) == 0 || reports[len(reports)-1].DownloadedBytes != int64(len(payload)) {
		t.Errorf("progress reports = %+v", reports)
	}
}

func TestDriverTransferErrorStatus(t *testing.T) {
	d := newTestDriver(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := d.Transfer(context.Background(), "h1", "Hi-Res", nil)
	if err == nil {
		t.Fatal("expected an error for a non-200 transfer response")
	}
}

func TestValidateBaseURL(t *testing.T) {
	if err := ValidateBaseURL("http://127.0.0.1:9222"); err != nil {
		t.Errorf("valid url rejected: %v", err)
	}
	if err := ValidateBaseURL("not a url"); err == nil {
		t.Error("invalid url accepted")
	}
}
