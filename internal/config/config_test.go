package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"lyra/internal/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	if cfg.PreferredBitrate != 160 {
		t.Errorf("expected preferred bitrate 160, got %d", cfg.PreferredBitrate)
	}
	if cfg.Volume != 1.0 {
		t.Errorf("expected volume 1.0, got %v", cfg.Volume)
	}
	if cfg.OutputDeviceID != -1 {
		t.Error("expected output device to default to -1")
	}
	if !cfg.NormalisationEnabled {
		t.Error("expected normalisation enabled by default")
	}
	if cfg.NormalisationMethod != "dynamic" {
		t.Errorf("expected default normalisation method 'dynamic', got %q", cfg.NormalisationMethod)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	cfg := config.Config{
		PreferredBitrate:     320,
		Volume:               0.75,
		NormalisationEnabled: true,
		NormalisationMethod:  "basic",
		AutoAsAlbum:          true,
		OutputDeviceID:       3,
		LastCountry:          "US",
		AccessPoints: []config.AccessPointEntry{
			{Host: "ap-gew4.example.net", Port: 4070},
		},
	}

	if err := config.Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := config.Load()
	if loaded.PreferredBitrate != cfg.PreferredBitrate {
		t.Errorf("bitrate: want %d got %d", cfg.PreferredBitrate, loaded.PreferredBitrate)
	}
	if loaded.Volume != cfg.Volume {
		t.Errorf("volume: want %v got %v", cfg.Volume, loaded.Volume)
	}
	if loaded.NormalisationMethod != cfg.NormalisationMethod {
		t.Errorf("normalisation method: want %q got %q", cfg.NormalisationMethod, loaded.NormalisationMethod)
	}
	if loaded.AutoAsAlbum != cfg.AutoAsAlbum {
		t.Errorf("auto as album: want %v got %v", cfg.AutoAsAlbum, loaded.AutoAsAlbum)
	}
	if len(loaded.AccessPoints) != 1 || loaded.AccessPoints[0].Host != "ap-gew4.example.net" {
		t.Errorf("access points: unexpected value %+v", loaded.AccessPoints)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg := config.Load()
	if cfg.PreferredBitrate == 0 {
		t.Error("expected non-zero preferred bitrate from defaults")
	}
}

func TestLoadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path := filepath.Join(dir, "lyra", "config.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("not json {{{"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.Load()
	if cfg.PreferredBitrate != 160 {
		t.Errorf("expected default preferred bitrate on corrupt file, got %d", cfg.PreferredBitrate)
	}
}

func TestSaveCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	if err := config.Save(config.Default()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	path := filepath.Join(dir, "lyra", "config.json")
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file not created: %v", err)
	}
}
