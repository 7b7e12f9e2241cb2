package rtmfp

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rtmfp.yaml")
	const raw = `
window_duration: 4s
is_publisher: true
audio_reliable: true
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.WindowDuration != 4*time.Second {
		t.Fatalf("expected overridden window duration, got %v", cfg.WindowDuration)
	}
	if !cfg.IsPublisher || !cfg.AudioReliable {
		t.Fatalf("expected is_publisher and audio_reliable set, got %+v", cfg)
	}
	if cfg.AvailabilityUpdatePeriod != DefaultConfig().AvailabilityUpdatePeriod {
		t.Fatalf("expected unset field to keep its default, got %v", cfg.AvailabilityUpdatePeriod)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestSaveConfigRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rtmfp.yaml")

	want := DefaultConfig()
	want.VideoReliable = true
	want.SocketRecvBuffer = 1 << 20

	if err := SaveConfig(path, want); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}
