package session

import (
	"testing"

	"lyra/token"
)

func TestPlatformDescriptorMapsFields(t *testing.T) {
	win := token.NewWindowsFields(10, 19045, "x86_64")
	cfg := Config{
		ClientID: "client-1",
		DeviceID: "device-1",
		Version:  "1.2.3",
		OS:       token.OSWindows,
		Windows:  &win,
		Country:  "US",
	}
	pd := cfg.PlatformDescriptor()
	if pd.ClientID != cfg.ClientID || pd.DeviceID != cfg.DeviceID || pd.Version != cfg.Version {
		t.Errorf("descriptor = %+v, want identity fields from %+v", pd, cfg)
	}
	if pd.OS != token.OSWindows || pd.Windows != &win {
		t.Errorf("descriptor platform fields not passed through: %+v", pd)
	}
}
