package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cesargomez89/tidepool/internal/cache"
	"github.com/cesargomez89/tidepool/internal/constants"
	"github.com/cesargomez89/tidepool/internal/domain"
	"github.com/cesargomez89/tidepool/internal/logger"
	"github.com/cesargomez89/tidepool/internal/session"
)

// FastSearcher is the out-of-band catalog lookup.
type FastSearcher interface {
	SearchTracks(ctx context.Context, query string, limit int) ([]domain.Item, error)
}

// Timeouts are the layered search timeouts: per-stage values nest
// inside the pipeline values.
type Timeouts struct {
	Fast          time.Duration
	Session       time.Duration
	Pipeline      time.Duration
	AlbumTracks   time.Duration
	AlbumPipeline time.Duration
}

// Engine answers search requests. Track queries try the cached fast
// path first and fall back to in-session scraping; album and playlist
// queries always scrape. Every completed search replaces the last
// result set and its lookup index.
type Engine struct {
	fast     FastSearcher
	driver   session.Driver
	queue    *session.Queue
	cache    *cache.Store[[]domain.Item]
	index    *Index
	timeouts Timeouts
	log      *logger.Logger
}

func NewEngine(fast FastSearcher, driver session.Driver, queue *session.Queue, searchCache *cache.Store[[]domain.Item], index *Index, timeouts Timeouts, log *logger.Logger) *Engine {
	return &Engine{
		fast:     fast,
		driver:   driver,
		queue:    queue,
		cache:    searchCache,
		index:    index,
		timeouts: timeouts,
		log:      log.WithComponent("search"),
	}
}

// Index exposes the lookup index for the resolver.
func (e *Engine) Index() *Index { return e.index }

// Search runs a search by type and stores the result as the new last
// result set. The whole call is bounded by the pipeline timeout.
func (e *Engine) Search(ctx context.Context, query string, itemType domain.ItemType) ([]domain.Item, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrValidation)
	}
	switch itemType {
	case "":
		itemType = domain.ItemTypeTrack
	case domain.ItemTypeTrack, domain.ItemTypeAlbum, domain.ItemTypePlaylist:
	default:
		return nil, fmt.Errorf("%w: unknown search type %q", domain.ErrValidation, itemType)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeouts.Pipeline)
	defer cancel()

	var items []domain.Item
	var err error
	if itemType == domain.ItemTypeTrack {
		items, err = e.searchTracks(ctx, query)
	} else {
		items, err = e.sessionSearch(ctx, query, itemType, session.SearchOptions{})
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: search %q", domain.ErrTimeout, query)
		}
		return nil, err
	}

	e.index.Replace(items)
	return items, nil
}

// searchTracks is the cache → fast mirrors → session fallback chain.
func (e *Engine) searchTracks(ctx context.Context, query string) ([]domain.Item, error) {
	cacheKey := "track:" + strings.ToLower(query)
	if items, ok := e.cache.Get(cacheKey); ok {
		e.log.Debug("search cache hit", "query", query)
		return items, nil
	}

	fastCtx, cancel := context.WithTimeout(ctx, e.timeouts.Fast)
	items, err := e.fast.SearchTracks(fastCtx, query, constants.MaxFastSearchResults)
	cancel()
	if err != nil {
		e.log.Warn("fast search failed, falling back to session", "query", query, "error", err)
	}
	if len(items) == 0 {
		items, err = e.sessionSearch(ctx, query, domain.ItemTypeTrack, session.SearchOptions{})
		if err != nil {
			return nil, err
		}
	}
	if len(items) > 0 {
		e.cache.Set(cacheKey, items)
	}
	return items, nil
}

// SessionSearch runs one in-session search through the task queue with
// the per-stage session timeout. The resolver uses it directly for its
// query variants.
func (e *Engine) SessionSearch(ctx context.Context, query string, itemType domain.ItemType, opts session.SearchOptions) ([]domain.Item, error) {
	return e.sessionSearch(ctx, query, itemType, opts)
}

func (e *Engine) sessionSearch(ctx context.Context, query string, itemType domain.ItemType, opts session.SearchOptions) ([]domain.Item, error) {
	var items []domain.Item
	err := e.queue.Do(ctx, "session-search", func(taskCtx context.Context) error {
		taskCtx, cancel := context.WithTimeout(taskCtx, e.timeouts.Session)
		defer cancel()
		found, err := e.driver.Search(taskCtx, query, itemType, opts)
		if err != nil {
			return err
		}
		items = found
		return nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: session search %q", domain.ErrTimeout, query)
		}
		return nil, err
	}
	return items, nil
}

// AlbumTracks lists an album's tracks in-session and stores them as
// the new last result set.
func (e *Engine) AlbumTracks(ctx context.Context, albumURL string, meta session.AlbumMeta) ([]domain.Item, error) {
	if strings.TrimSpace(albumURL) == "" {
		return nil, fmt.Errorf("%w: empty album url", domain.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeouts.AlbumPipeline)
	defer cancel()

	var items []domain.Item
	err := e.queue.Do(ctx, "album-tracks", func(taskCtx context.Context) error {
		taskCtx, taskCancel := context.WithTimeout(taskCtx, e.timeouts.AlbumTracks)
		defer taskCancel()
		found, err := e.driver.AlbumTracks(taskCtx, albumURL, meta)
		if err != nil {
			return err
		}
		items = found
		return nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: album tracks %q", domain.ErrTimeout, albumURL)
		}
		return nil, err
	}

	e.index.Replace(items)
	return items, nil
}
