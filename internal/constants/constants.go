// Package constants contains application-wide constants to avoid magic numbers and strings.
package constants

import "time"

// Application defaults
const (
	DefaultPort          = "8080"
	DefaultDBPath        = "tidepool.db"
	DefaultAutomationURL = "http://127.0.0.1:9222"
	DefaultQuality       = "Hi-Res"
)

// Quality settings, as the automation session's settings panel labels them.
const (
	QualityHiRes      = "Hi-Res"
	QualityCDLossless = "CD Lossless"
	QualityAAC320     = "320kbps AAC"
	QualityAAC96      = "96kbps AAC"
)

// Default fast-search endpoints, raced on every out-of-band track query.
var DefaultFastSearchURLs = []string{
	"https://tidal-api.binimum.org",
	"https://tidal.kinoplus.online",
}

// Cache and registry bounds
const (
	DefaultSearchCacheTTL = time.Minute
	DefaultSearchCacheMax = 120
	DefaultArtifactTTL    = 5 * time.Minute
	DefaultArtifactMax    = 64
	DefaultArtifactSweep  = time.Minute
	DefaultMaxJobs        = 120
)

// Timeouts, layered: per-stage timeouts nest inside pipeline timeouts.
const (
	DefaultFastSearchTimeout     = 12 * time.Second
	DefaultSessionInitTimeout    = 10 * time.Second
	DefaultSessionSearchTimeout  = 18 * time.Second
	DefaultSearchPipelineTimeout = 30 * time.Second
	DefaultResolveTimeout        = 18 * time.Second
	DefaultResolveRetryTimeout   = 28 * time.Second
	DefaultAlbumTracksTimeout    = 24 * time.Second
	DefaultAlbumPipelineTimeout  = 34 * time.Second
	DefaultDownloadTimeout       = 5 * time.Minute
	DefaultHTTPTimeout           = 5 * time.Minute
	DefaultRequestInterval       = 200 * time.Millisecond
	DefaultRetryCount            = 3
	DefaultRetryBase             = 1 * time.Second
)

// Search limits
const (
	MaxFastSearchResults   = 25
	MaxResolveTrackResults = 24
	MaxJobListLimit        = 200
	DefaultJobListLimit    = 40
)

// MIME types served by the stream endpoint.
const (
	MimeTypeFLAC = "audio/flac"
	MimeTypeMP3  = "audio/mpeg"
	MimeTypeMP4  = "audio/mp4"
	MimeTypeAAC  = "audio/aac"
	MimeTypeWAV  = "audio/wav"
	MimeTypeOGG  = "audio/ogg"
	MimeTypeJPEG = "image/jpeg"
)

// File extensions
const (
	ExtFLAC = ".flac"
	ExtMP3  = ".mp3"
	ExtM4A  = ".m4a"
	ExtJPG  = ".jpg"
)

// Artwork sizes on the catalog CDN.
const (
	ImageSizeMedium = "640x640"
	ImageCDNBase    = "https://resources.tidal.com/images"
)

// File permissions
const (
	DirPermissions  = 0755
	FilePermissions = 0644
)
