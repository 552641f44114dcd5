package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := FromEnv()
	if cfg.Addr != ":9092" || cfg.Quality != "medium" || cfg.Background != "none" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ReconnectDelay != 3*time.Second || cfg.InFlightTimeout != 2*time.Second {
		t.Fatalf("durations: %v %v", cfg.ReconnectDelay, cfg.InFlightTimeout)
	}
	if cfg.RecordingsMax != 10 || cfg.SegmentInterval != time.Second || cfg.RecordingFPS != 30 {
		t.Fatalf("recording defaults: %+v", cfg)
	}
	if cfg.RefreshInterval() != time.Second/60 {
		t.Fatalf("refresh interval %v", cfg.RefreshInterval())
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("QUALITY", "ULTRA")
	t.Setenv("RECONNECT_MAX_ATTEMPTS", "3")
	t.Setenv("SERVICE_HTTP_URL", "http://svc:8000/")
	t.Setenv("COMPRESS_DOWNLOADS", "true")
	t.Setenv("MAX_SEND_FPS", "12.5")
	cfg := FromEnv()
	if cfg.Quality != "ultra" || cfg.ReconnectMaxAttempts != 3 || !cfg.CompressDownloads || cfg.MaxSendFPS != 12.5 {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.ServiceHTTPURL != "http://svc:8000" {
		t.Fatalf("trailing slash kept: %q", cfg.ServiceHTTPURL)
	}
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bgstream.yaml")
	body := "addr: \":7000\"\nbackground: beach\nrecordings_max: 4\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RECORDINGS_MAX", "6")
	v, err := New(path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	cfg := Load(v)
	if cfg.Addr != ":7000" || cfg.Background != "beach" {
		t.Fatalf("file not applied: %+v", cfg)
	}
	if cfg.RecordingsMax != 6 {
		t.Fatalf("env should win over file, got %d", cfg.RecordingsMax)
	}
}

func TestBadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(path, []byte("addr: [unclosed"), 0o600)
	if _, err := New(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
