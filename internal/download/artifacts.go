package download

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cesargomez89/tidepool/internal/cache"
	"github.com/cesargomez89/tidepool/internal/constants"
	"github.com/cesargomez89/tidepool/internal/logger"
)

// ArtifactEntry is a completed download held for streaming.
type ArtifactEntry struct {
	Filename    string
	FilePath    string
	Bytes       int64
	ContentType string
}

// ArtifactCache keeps finished files alive long enough to be streamed
// out. Entries use a sliding TTL refreshed on every read; eviction for
// any reason deletes the backing file. A background sweep reclaims
// file handles promptly.
type ArtifactCache struct {
	store *cache.Store[ArtifactEntry]
	log   *logger.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

func NewArtifactCache(ttl time.Duration, max int, sweepEvery time.Duration, log *logger.Logger) *ArtifactCache {
	c := &ArtifactCache{
		log:  log.WithComponent("artifacts"),
		stop: make(chan struct{}),
	}
	c.store = cache.New[ArtifactEntry](ttl, max, c.release)
	if sweepEvery > 0 {
		go c.sweepLoop(sweepEvery)
	}
	return c
}

// Put registers a file under an artifact id.
func (c *ArtifactCache) Put(id string, entry ArtifactEntry) {
	if entry.ContentType == "" {
		entry.ContentType = ContentTypeFor(entry.Filename)
	}
	c.store.Set(id, entry)
}

// Get returns a live entry and slides its expiry forward so an
// in-progress stream keeps it alive.
func (c *ArtifactCache) Get(id string) (ArtifactEntry, bool) {
	entry, ok := c.store.Get(id)
	if !ok {
		return ArtifactEntry{}, false
	}
	c.store.Extend(id)
	return entry, true
}

// Release drops an entry and deletes its file. Used after a non-range
// stream completes.
func (c *ArtifactCache) Release(id string) {
	if entry, ok := c.store.Delete(id); ok {
		c.release(id, entry)
	}
}

// Close stops the sweeper and releases every remaining file.
func (c *ArtifactCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.store.Clear()
}

func (c *ArtifactCache) release(id string, entry ArtifactEntry) {
	if entry.FilePath == "" {
		return
	}
	if err := os.Remove(entry.FilePath); err != nil && !os.IsNotExist(err) {
		c.log.Warn("failed to remove artifact file", "id", id, "path", entry.FilePath, "error", err)
		return
	}
	c.log.Debug("artifact released", "id", id, "path", entry.FilePath)
}

func (c *ArtifactCache) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if n := c.store.Sweep(); n > 0 {
				c.log.Debug("swept expired artifacts", "count", n)
			}
		}
	}
}

// ContentTypeFor maps a filename to the MIME type the stream endpoint
// serves.
func ContentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case constants.ExtFLAC:
		return constants.MimeTypeFLAC
	case constants.ExtMP3:
		return constants.MimeTypeMP3
	case constants.ExtM4A:
		return constants.MimeTypeMP4
	case ".aac":
		return constants.MimeTypeAAC
	case ".wav":
		return constants.MimeTypeWAV
	case ".ogg":
		return constants.MimeTypeOGG
	case constants.ExtJPG, ".jpeg":
		return constants.MimeTypeJPEG
	default:
		return "application/octet-stream"
	}
}
