package store

import (
	"path/filepath"
	"testing"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSettingsRoundTrip(t *testing.T) {
	repo := NewSettingsRepo(newTestDB(t))

	if err := repo.Set(SettingQuality, "CD Lossless"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := repo.Get(SettingQuality)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "CD Lossless" {
		t.Errorf("Get = %q, want %q", got, "CD Lossless")
	}
}

func TestSettingsUpsert(t *testing.T) {
	repo := NewSettingsRepo(newTestDB(t))

	repo.Set(SettingQuality, "Hi-Res")
	if err := repo.Set(SettingQuality, "320kbps AAC"); err != nil {
		t.Fatalf("second Set: %v", err)
	}
	got, _ := repo.Get(SettingQuality)
	if got != "320kbps AAC" {
		t.Errorf("Get after upsert = %q", got)
	}
}

func TestSettingsMissingKeyIsEmpty(t *testing.T) {
	repo := NewSettingsRepo(newTestDB(t))

	got, err := repo.Get("nonexistent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "" {
		t.Errorf("missing key = %q, want empty", got)
	}
}

func TestSettingsDelete(t *testing.T) {
	repo := NewSettingsRepo(newTestDB(t))

	repo.Set(SettingAutomationURL, "http://127.0.0.1:9222")
	if err := repo.Delete(SettingAutomationURL); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, _ := repo.Get(SettingAutomationURL)
	if got != "" {
		t.Errorf("deleted key = %q, want empty", got)
	}
}
