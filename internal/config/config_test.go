package config

import (
	"os"
	"testing"
	"time"

	"github.com/cesargomez89/tidepool/internal/constants"
)

func TestLoad(t *testing.T) {
	// Test default values
	cfg := Load()

	if cfg.Port != constants.DefaultPort {
		t.Errorf("Expected Port to be %s, got %s", constants.DefaultPort, cfg.Port)
	}

	if cfg.DBPath != constants.DefaultDBPath {
		t.Errorf("Expected DBPath to be %s, got %s", constants.DefaultDBPath, cfg.DBPath)
	}

	if cfg.AutomationURL != constants.DefaultAutomationURL {
		t.Errorf("Expected AutomationURL to be %s, got %s", constants.DefaultAutomationURL, cfg.AutomationURL)
	}

	if cfg.Quality != constants.DefaultQuality {
		t.Errorf("Expected Quality to be %s, got %s", constants.DefaultQuality, cfg.Quality)
	}

	if len(cfg.FastSearchURLs) == 0 {
		t.Error("Expected FastSearchURLs to not be empty")
	}

	if cfg.DownloadTimeout != constants.DefaultDownloadTimeout {
		t.Errorf("Expected DownloadTimeout to be %s, got %s", constants.DefaultDownloadTimeout, cfg.DownloadTimeout)
	}
}

func TestLoadWithEnvVars(t *testing.T) {
	// Set environment variables
	os.Setenv("PORT", "9090")
	os.Setenv("DB_PATH", "/tmp/test.db")
	os.Setenv("AUTOMATION_URL", "http://example.com:9222")
	os.Setenv("QUALITY", "CD Lossless")
	os.Setenv("FAST_SEARCH_URLS", "http://one.example, http://two.example")
	os.Setenv("DOWNLOAD_TIMEOUT", "7m")
	defer func() {
		os.Unsetenv("PORT")
		os.Unsetenv("DB_PATH")
		os.Unsetenv("AUTOMATION_URL")
		os.Unsetenv("QUALITY")
		os.Unsetenv("FAST_SEARCH_URLS")
		os.Unsetenv("DOWNLOAD_TIMEOUT")
	}()

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("Expected Port to be 9090, got %s", cfg.Port)
	}

	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("Expected DBPath to be /tmp/test.db, got %s", cfg.DBPath)
	}

	if cfg.AutomationURL != "http://example.com:9222" {
		t.Errorf("Expected AutomationURL to be http://example.com:9222, got %s", cfg.AutomationURL)
	}

	if cfg.Quality != "CD Lossless" {
		t.Errorf("Expected Quality to be CD Lossless, got %s", cfg.Quality)
	}

	if len(cfg.FastSearchURLs) != 2 || cfg.FastSearchURLs[0] != "http://one.example" {
		t.Errorf("Expected two fast search URLs, got %v", cfg.FastSearchURLs)
	}

	if cfg.DownloadTimeout != 7*time.Minute {
		t.Errorf("Expected DownloadTimeout to be 7m, got %s", cfg.DownloadTimeout)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Port:            "8080",
			DBPath:          "test.db",
			AutomationURL:   "http://localhost:9222",
			FastSearchURLs:  []string{"http://mirror.example"},
			Quality:         constants.QualityCDLossless,
			LogLevel:        "info",
			LogFormat:       "text",
			SearchCacheMax:  10,
			ArtifactMax:     10,
			MaxJobs:         10,
			DownloadTimeout: 5 * time.Minute,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}, wantErr: false},
		{name: "invalid port - not a number", mutate: func(c *Config) { c.Port = "abc" }, wantErr: true},
		{name: "invalid port - out of range", mutate: func(c *Config) { c.Port = "99999" }, wantErr: true},
		{name: "empty port", mutate: func(c *Config) { c.Port = "" }, wantErr: true},
		{name: "empty db path", mutate: func(c *Config) { c.DBPath = "" }, wantErr: true},
		{name: "empty automation url", mutate: func(c *Config) { c.AutomationURL = "" }, wantErr: true},
		{name: "no fast search urls", mutate: func(c *Config) { c.FastSearchURLs = nil }, wantErr: true},
		{name: "invalid quality", mutate: func(c *Config) { c.Quality = "INVALID" }, wantErr: true},
		{name: "invalid log level", mutate: func(c *Config) { c.LogLevel = "invalid" }, wantErr: true},
		{name: "invalid log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: true},
		{name: "zero max jobs", mutate: func(c *Config) { c.MaxJobs = 0 }, wantErr: true},
		{name: "zero artifact max", mutate: func(c *Config) { c.ArtifactMax = 0 }, wantErr: true},
		{name: "download timeout too small", mutate: func(c *Config) { c.DownloadTimeout = time.Second }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetEnv(t *testing.T) {
	// Test with existing env var
	os.Setenv("TEST_VAR", "test_value")
	defer os.Unsetenv("TEST_VAR")

	value := getEnv("TEST_VAR", "default")
	if value != "test_value" {
		t.Errorf("Expected 'test_value', got '%s'", value)
	}

	// Test with non-existing env var
	value = getEnv("NON_EXISTENT_VAR", "default")
	if value != "default" {
		t.Errorf("Expected 'default', got '%s'", value)
	}
}
