// Package session carries the ambient client-identity configuration that
// the Token Manager and Service Client consume but do not themselves
// produce: populating it (e.g. from a config file) is external to this
// module. Credentials are not carried here; see token.AccessTokenSource.
package session

import (
	"lyra/internal/config"
	"lyra/player"
	"lyra/token"
)

// Config is the client-identity and preference bundle needed to build a
// PlatformDescriptor and to parameterise the Service Client.
type Config struct {
	ClientID         string
	DeviceID         string
	Version          string
	OS               token.PlatformOS
	Windows          *token.WindowsFields
	Country          string
	PreferredBitrate int // kbps: 96, 160, or 320
}

// PlatformDescriptor builds the Token Manager's platform descriptor from
// this config.
func (c Config) PlatformDescriptor() token.PlatformDescriptor {
	return token.PlatformDescriptor{
		ClientID: c.ClientID,
		DeviceID: c.DeviceID,
		Version:  c.Version,
		OS:       c.OS,
		Windows:  c.Windows,
	}
}

// LoadPreferences reads the user's persisted preferences, falling back to
// defaults when no config file exists yet.
func LoadPreferences() config.Config {
	return config.Load()
}

// SavePreferences persists prefs for the next run.
func SavePreferences(prefs config.Config) error {
	return config.Save(prefs)
}

// ApplyPreferences folds persisted preferences into a client-identity Config
// and a Player normalisation config, so a caller only has to thread one
// loaded struct through both collaborators.
func ApplyPreferences(c Config, prefs config.Config) (Config, player.NormalisationConfig) {
	c.PreferredBitrate = prefs.PreferredBitrate

	method := player.MethodDynamic
	switch prefs.NormalisationMethod {
	case "none":
		method = player.MethodNone
	case "basic":
		method = player.MethodBasic
	}
	if !prefs.NormalisationEnabled {
		method = player.MethodNone
	}

	norm := player.NormalisationConfig{
		Method:        method,
		Type:          player.TypeAuto,
		AutoAsAlbum:   prefs.AutoAsAlbum,
		ThresholdDBFS: -1,
		KneeDB:        1,
		AttackCf:      0.9972,
		ReleaseCf:     0.9997,
	}
	return c, norm
}

