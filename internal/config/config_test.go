package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transport.FixedWindowSize != Default().Transport.FixedWindowSize {
		t.Errorf("expected defaults, got %+v", cfg.Transport)
	}
}

func TestLoadEmptyFilenameReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
}

func TestLoadOverlayIsAdditive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qrudp.yaml")
	yamlContent := "Transport:\n  FixedWindowSize: 8192\n  Reno:\n    MinRTO: 50ms\nLog:\n  Level: debug\n"
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Transport.FixedWindowSize != 8192 {
		t.Errorf("FixedWindowSize = %d, want 8192 (overridden)", cfg.Transport.FixedWindowSize)
	}
	if cfg.Transport.Reno.MinRTO != 50*time.Millisecond {
		t.Errorf("Reno.MinRTO = %v, want 50ms (overridden)", cfg.Transport.Reno.MinRTO)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (overridden)", cfg.Log.Level, "debug")
	}

	// Fields the file never mentioned must keep their defaults.
	if cfg.Transport.Reno.MaxRTO != 3*time.Second {
		t.Errorf("Reno.MaxRTO = %v, want unchanged default 3s", cfg.Transport.Reno.MaxRTO)
	}
	if cfg.Transport.SelectiveRepeat.MinRTO != 100*time.Millisecond {
		t.Errorf("SelectiveRepeat.MinRTO = %v, want unchanged default 100ms", cfg.Transport.SelectiveRepeat.MinRTO)
	}
	if cfg.Transport.HandshakeRetries != 5 {
		t.Errorf("HandshakeRetries = %d, want unchanged default 5", cfg.Transport.HandshakeRetries)
	}
	if cfg.Metrics.Addr != "0.0.0.0:9090" {
		t.Errorf("Metrics.Addr = %q, want unchanged default", cfg.Metrics.Addr)
	}
}

func TestLoadMalformedYAMLErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("Transport: [this is not a mapping"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected an error parsing malformed yaml")
	}
}
