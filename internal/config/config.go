// Package config manages persistent user preferences for the lyra client
// runtime. Settings are stored as JSON at os.UserConfigDir()/lyra/config.json.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config holds all persistent user preferences.
type Config struct {
	PreferredBitrate   int     `json:"preferred_bitrate"` // 96, 160, or 320
	Volume             float64 `json:"volume"`
	NormalisationEnabled bool  `json:"normalisation_enabled"`
	NormalisationMethod string  `json:"normalisation_method"` // "none", "basic", "dynamic"
	AutoAsAlbum        bool    `json:"auto_as_album"`
	OutputDeviceID     int     `json:"output_device_id"`
	LastCountry        string  `json:"last_country"`
	AccessPoints       []AccessPointEntry `json:"access_points"`
}

// AccessPointEntry is a cached access point host, kept so a fresh process
// can try the last-known-good host before asking the resolver service.
type AccessPointEntry struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		PreferredBitrate:     160,
		Volume:               1.0,
		NormalisationEnabled: true,
		NormalisationMethod:  "dynamic",
		OutputDeviceID:       -1,
	}
}

// Path returns the absolute path to the config file.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "lyra", "config.json"), nil
}

// Load reads the config file and returns it. If the file is missing or
// unreadable, the default config is returned, never an error.
func Load() Config {
	path, err := Path()
	if err != nil {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Default()
	}
	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Default()
	}
	return cfg
}

// Save writes cfg to disk, creating the directory if needed.
func Save(cfg Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
