package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cesargomez89/tidepool/internal/constants"
)

// Config holds all application configuration
type Config struct {
	Port           string
	DBPath         string
	AutomationURL  string
	FastSearchURLs []string
	Quality        string
	LogLevel       string
	LogFormat      string

	SearchCacheTTL time.Duration
	SearchCacheMax int
	ArtifactTTL    time.Duration
	ArtifactMax    int
	ArtifactSweep  time.Duration
	MaxJobs        int

	FastSearchTimeout     time.Duration
	SessionInitTimeout    time.Duration
	SessionSearchTimeout  time.Duration
	SearchPipelineTimeout time.Duration
	ResolveTimeout        time.Duration
	ResolveRetryTimeout   time.Duration
	AlbumTracksTimeout    time.Duration
	AlbumPipelineTimeout  time.Duration
	DownloadTimeout       time.Duration
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", constants.DefaultPort),
		DBPath:         getEnv("DB_PATH", constants.DefaultDBPath),
		AutomationURL:  getEnv("AUTOMATION_URL", constants.DefaultAutomationURL),
		FastSearchURLs: getEnvList("FAST_SEARCH_URLS", constants.DefaultFastSearchURLs),
		Quality:        getEnv("QUALITY", constants.DefaultQuality),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),

		SearchCacheTTL: getEnvDuration("SEARCH_CACHE_TTL", constants.DefaultSearchCacheTTL),
		SearchCacheMax: getEnvInt("SEARCH_CACHE_MAX", constants.DefaultSearchCacheMax),
		ArtifactTTL:    getEnvDuration("ARTIFACT_TTL", constants.DefaultArtifactTTL),
		ArtifactMax:    getEnvInt("ARTIFACT_MAX", constants.DefaultArtifactMax),
		ArtifactSweep:  getEnvDuration("ARTIFACT_SWEEP", constants.DefaultArtifactSweep),
		MaxJobs:        getEnvInt("MAX_JOBS", constants.DefaultMaxJobs),

		FastSearchTimeout:     getEnvDuration("FAST_SEARCH_TIMEOUT", constants.DefaultFastSearchTimeout),
		SessionInitTimeout:    getEnvDuration("SESSION_INIT_TIMEOUT", constants.DefaultSessionInitTimeout),
		SessionSearchTimeout:  getEnvDuration("SESSION_SEARCH_TIMEOUT", constants.DefaultSessionSearchTimeout),
		SearchPipelineTimeout: getEnvDuration("SEARCH_PIPELINE_TIMEOUT", constants.DefaultSearchPipelineTimeout),
		ResolveTimeout:        getEnvDuration("RESOLVE_TIMEOUT", constants.DefaultResolveTimeout),
		ResolveRetryTimeout:   getEnvDuration("RESOLVE_RETRY_TIMEOUT", constants.DefaultResolveRetryTimeout),
		AlbumTracksTimeout:    getEnvDuration("ALBUM_TRACKS_TIMEOUT", constants.DefaultAlbumTracksTimeout),
		AlbumPipelineTimeout:  getEnvDuration("ALBUM_PIPELINE_TIMEOUT", constants.DefaultAlbumPipelineTimeout),
		DownloadTimeout:       getEnvDuration("DOWNLOAD_TIMEOUT", constants.DefaultDownloadTimeout),
	}
}

// Validate validates the configuration and returns detailed errors
func (c *Config) Validate() error {
	var errors []string

	if c.Port == "" {
		errors = append(errors, "PORT cannot be empty")
	} else {
		port, err := strconv.Atoi(c.Port)
		if err != nil {
			errors = append(errors, fmt.Sprintf("PORT must be a valid number, got: %s", c.Port))
		} else if port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("PORT must be between 1 and 65535, got: %d", port))
		}
	}

	if c.DBPath == "" {
		errors = append(errors, "DB_PATH cannot be empty")
	}

	if c.AutomationURL == "" {
		errors = append(errors, "AUTOMATION_URL cannot be empty")
	} else if _, err := url.Parse(c.AutomationURL); err != nil {
		errors = append(errors, fmt.Sprintf("AUTOMATION_URL is not a valid URL: %s", c.AutomationURL))
	}

	if len(c.FastSearchURLs) == 0 {
		errors = append(errors, "FAST_SEARCH_URLS cannot be empty")
	}
	for _, u := range c.FastSearchURLs {
		if _, err := url.Parse(u); err != nil {
			errors = append(errors, fmt.Sprintf("FAST_SEARCH_URLS entry is not a valid URL: %s", u))
		}
	}

	validQualities := map[string]bool{
		constants.QualityHiRes:      true,
		constants.QualityCDLossless: true,
		constants.QualityAAC320:     true,
		constants.QualityAAC96:      true,
	}
	if !validQualities[c.Quality] {
		errors = append(errors, fmt.Sprintf("QUALITY must be one of: Hi-Res, CD Lossless, 320kbps AAC, 96kbps AAC, got: %s", c.Quality))
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: debug, info, warn, error, got: %s", c.LogLevel))
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.LogFormat] {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: text, json, got: %s", c.LogFormat))
	}

	if c.SearchCacheMax < 1 {
		errors = append(errors, fmt.Sprintf("SEARCH_CACHE_MAX must be at least 1, got: %d", c.SearchCacheMax))
	}
	if c.ArtifactMax < 1 {
		errors = append(errors, fmt.Sprintf("ARTIFACT_MAX must be at least 1, got: %d", c.ArtifactMax))
	}
	if c.MaxJobs < 1 {
		errors = append(errors, fmt.Sprintf("MAX_JOBS must be at least 1, got: %d", c.MaxJobs))
	}
	if c.DownloadTimeout < time.Minute {
		errors = append(errors, fmt.Sprintf("DOWNLOAD_TIMEOUT must be at least 1m, got: %s", c.DownloadTimeout))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
