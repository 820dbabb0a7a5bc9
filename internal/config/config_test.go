package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const minimalYAML = `
camera:
  snapshot_url: "http://cam.local/snapshot.jpg"
vision:
  panel: {x: 10, y: 10, w: 200, h: 80}
  digits: {x: 20, y: 30, w: 40, h: 28}
  setting: {x: 70, y: 12, w: 12, h: 12}
  low: {x: 90, y: 12, w: 12, h: 12}
  half: {x: 110, y: 12, w: 12, h: 12}
  full: {x: 130, y: 12, w: 12, h: 12}
actuator:
  gateway_url: "http://gw.local/api"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Vision.Gamma != 2.0 {
		t.Errorf("gamma = %v, want 2.0", cfg.Vision.Gamma)
	}
	if cfg.Vision.NoiseLimit != 20 {
		t.Errorf("noise_limit = %d, want 20", cfg.Vision.NoiseLimit)
	}
	if cfg.Vision.MinPeakBrightness != 60 {
		t.Errorf("min_peak_brightness = %d, want 60", cfg.Vision.MinPeakBrightness)
	}
	if cfg.Vision.ActiveRatio != 0.50 {
		t.Errorf("active_ratio = %v, want 0.50", cfg.Vision.ActiveRatio)
	}
	if cfg.Vision.ValidMin != 10 || cfg.Vision.ValidMax != 80 {
		t.Errorf("valid range = [%d,%d], want [10,80]", cfg.Vision.ValidMin, cfg.Vision.ValidMax)
	}
	if cfg.Fusion.OffConfirmTicks != 8 {
		t.Errorf("off_confirm_ticks = %d, want 8", cfg.Fusion.OffConfirmTicks)
	}
	if cfg.Fusion.SettingBridge.Duration() != 8*time.Second {
		t.Errorf("setting_bridge = %v, want 8s", cfg.Fusion.SettingBridge.Duration())
	}
	if cfg.Actuator.CommandDelay.Duration() != 600*time.Millisecond {
		t.Errorf("command_delay = %v, want 600ms", cfg.Actuator.CommandDelay.Duration())
	}
	if cfg.Control.ReadSamples != 3 {
		t.Errorf("read_samples = %d, want 3", cfg.Control.ReadSamples)
	}
	if cfg.API.Port != 9190 {
		t.Errorf("api port = %d, want 9190", cfg.API.Port)
	}
}

func TestLoadRequiresSnapshotURL(t *testing.T) {
	yaml := `
vision:
  panel: {x: 0, y: 0, w: 10, h: 10}
  digits: {x: 0, y: 0, w: 10, h: 10}
  setting: {x: 0, y: 0, w: 10, h: 10}
  low: {x: 0, y: 0, w: 10, h: 10}
  half: {x: 0, y: 0, w: 10, h: 10}
  full: {x: 0, y: 0, w: 10, h: 10}
`
	if _, err := Load(writeConfig(t, yaml)); err == nil {
		t.Fatal("expected error for missing snapshot_url")
	}
}

func TestLoadRejectsBadGeometry(t *testing.T) {
	broken := `
camera:
  snapshot_url: "http://cam.local/snap.jpg"
vision:
  panel: {x: 0, y: 0, w: 0, h: 10}
  digits: {x: 0, y: 0, w: 10, h: 10}
  setting: {x: 0, y: 0, w: 10, h: 10}
  low: {x: 0, y: 0, w: 10, h: 10}
  half: {x: 0, y: 0, w: 10, h: 10}
  full: {x: 0, y: 0, w: 10, h: 10}
`
	if _, err := Load(writeConfig(t, broken)); err == nil {
		t.Fatal("expected error for zero-width panel")
	}
}

func TestEnvExpansion(t *testing.T) {
	t.Setenv("HEATER_CAM", "http://example.test/snap.jpg")

	yaml := `
camera:
  snapshot_url: "${HEATER_CAM}"
vision:
  panel: {x: 10, y: 10, w: 200, h: 80}
  digits: {x: 20, y: 30, w: 40, h: 28}
  setting: {x: 70, y: 12, w: 12, h: 12}
  low: {x: 90, y: 12, w: 12, h: 12}
  half: {x: 110, y: 12, w: 12, h: 12}
  full: {x: 130, y: 12, w: 12, h: 12}
actuator:
  token: "${HEATER_TOKEN:fallback}"
`
	cfg, err := Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Camera.SnapshotURL != "http://example.test/snap.jpg" {
		t.Errorf("snapshot_url = %q", cfg.Camera.SnapshotURL)
	}
	if cfg.Actuator.Token != "fallback" {
		t.Errorf("token = %q, want default fallback", cfg.Actuator.Token)
	}
}

func TestDurationUnmarshal(t *testing.T) {
	yaml := minimalYAML + `
control:
  read_delay: "750ms"
`
	cfg, err := Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Control.ReadDelay.Duration() != 750*time.Millisecond {
		t.Errorf("read_delay = %v, want 750ms", cfg.Control.ReadDelay.Duration())
	}
}
