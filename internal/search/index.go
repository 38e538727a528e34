// Package search holds the search engine: the cached fast path with
// in-session fallback, the last-result-set store and the lookup index
// the resolver consults.
package search

import (
	"sync"

	"github.com/cesargomez89/tidepool/internal/domain"
	"github.com/cesargomez89/tidepool/internal/match"
)

// durationTolerance is how far apart two durations may be while still
// counting as the same recording.
const durationTolerance = 2

type titleArtistKey struct {
	title  string
	artist string
}

type titleArtistAlbumKey struct {
	title  string
	artist string
	album  string
}

type durationEntry struct {
	item     domain.Item
	duration int
}

// Index is the multi-key lookup over the most recent result set. It is
// rebuilt wholesale on every new set; first-seen item wins on key
// collision.
type Index struct {
	mu sync.RWMutex

	items             []domain.Item
	byCatalogID       map[string]domain.Item
	byURL             map[string]domain.Item
	byTitleArtist     map[titleArtistKey]domain.Item
	byTitleAlbumGroup map[titleArtistAlbumKey][]durationEntry
}

func NewIndex() *Index {
	idx := &Index{}
	idx.Replace(nil)
	return idx
}

// Replace atomically swaps in a new result set and rebuilds every map.
func (x *Index) Replace(items []domain.Item) {
	byID := make(map[string]domain.Item)
	byURL := make(map[string]domain.Item)
	byTA := make(map[titleArtistKey]domain.Item)
	byTAA := make(map[titleArtistAlbumKey][]durationEntry)

	stored := make([]domain.Item, len(items))
	copy(stored, items)

	for _, item := range stored {
		if id := match.ItemCatalogID(&item); id != "" {
			if _, seen := byID[id]; !seen {
				byID[id] = item
			}
		}
		if u := match.NormalizeURL(item.URL); u != "" {
			if _, seen := byURL[u]; !seen {
				byURL[u] = item
			}
		}
		title := match.NormalizeText(item.Title)
		artist := match.NormalizeText(item.Artist)
		if title != "" {
			ta := titleArtistKey{title, artist}
			if _, seen := byTA[ta]; !seen {
				byTA[ta] = item
			}
			taa := titleArtistAlbumKey{title, artist, match.NormalizeText(item.Album)}
			byTAA[taa] = append(byTAA[taa], durationEntry{item, item.Duration})
		}
	}

	x.mu.Lock()
	x.items = stored
	x.byCatalogID = byID
	x.byURL = byURL
	x.byTitleArtist = byTA
	x.byTitleAlbumGroup = byTAA
	x.mu.Unlock()
}

// Items returns a copy of the current result set.
func (x *Index) Items() []domain.Item {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]domain.Item, len(x.items))
	copy(out, x.items)
	return out
}

// ByPosition returns the item at a position of the current set.
func (x *Index) ByPosition(index int) (domain.Item, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if index < 0 || index >= len(x.items) {
		return domain.Item{}, false
	}
	return x.items[index], true
}

// ByCatalogID looks an item up by its catalog id.
func (x *Index) ByCatalogID(id string) (domain.Item, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	item, ok := x.byCatalogID[id]
	return item, ok
}

// ByURL looks an item up by its normalized canonical URL.
func (x *Index) ByURL(rawURL string) (domain.Item, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	item, ok := x.byURL[match.NormalizeURL(rawURL)]
	return item, ok
}

// ByTitleArtist looks an item up by normalized (title, artist).
func (x *Index) ByTitleArtist(title, artist string) (domain.Item, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	item, ok := x.byTitleArtist[titleArtistKey{match.NormalizeText(title), match.NormalizeText(artist)}]
	return item, ok
}

// ByMetadata looks an item up by (title, artist, album), using the
// requested duration to pick among multiple matches within tolerance.
// With no duration (or no entry within tolerance) the first-seen match
// wins.
func (x *Index) ByMetadata(title, artist, album string, duration int) (domain.Item, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	key := titleArtistAlbumKey{
		match.NormalizeText(title),
		match.NormalizeText(artist),
		match.NormalizeText(album),
	}
	entries := x.byTitleAlbumGroup[key]
	if len(entries) == 0 {
		return domain.Item{}, false
	}
	if duration > 0 {
		for _, e := range entries {
			diff := e.duration - duration
			if diff < 0 {
				diff = -diff
			}
			if diff <= durationTolerance {
				return e.item, true
			}
		}
	}
	return entries[0].item, true
}
