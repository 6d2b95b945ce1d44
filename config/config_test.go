package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("does-not-exist.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Dispatch.Interval != 2*time.Second {
		t.Errorf("dispatch interval = %v", cfg.Dispatch.Interval)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "fleetkernel.yaml")
	data := []byte("web:\n  port: 9000\nfleet:\n  backend: driverlink\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Web.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Web.Port)
	}
	if cfg.Fleet.Backend != "driverlink" {
		t.Errorf("fleet backend = %q", cfg.Fleet.Backend)
	}
	if cfg.Web.Host != "0.0.0.0" {
		t.Errorf("host default lost: %q", cfg.Web.Host)
	}
}

func TestDotEnvAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("FLEETKERNEL_STATION_ID=hall-7\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("FLEETKERNEL_WEB_PORT", "8181")
	t.Setenv("FLEETKERNEL_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Cleanup(func() { os.Unsetenv("FLEETKERNEL_STATION_ID") })

	cfg, err := Load("missing.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Messaging.StationID != "hall-7" {
		t.Errorf("station id = %q, want hall-7", cfg.Messaging.StationID)
	}
	if cfg.Web.Port != 8181 {
		t.Errorf("port = %d, want 8181", cfg.Web.Port)
	}
	if len(cfg.Messaging.Kafka.Brokers) != 2 || cfg.Messaging.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", cfg.Messaging.Kafka.Brokers)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Defaults()
	cfg.Cleaner.Schedule = "@hourly"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	t.Chdir(t.TempDir())
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Cleaner.Schedule != "@hourly" {
		t.Errorf("schedule = %q", got.Cleaner.Schedule)
	}
}
