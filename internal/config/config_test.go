package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TTT_ADDR", "REDIS_URL", "SESSIONS_FILE", "DATABASE_URL", "ROOM_INACTIVE_AFTER_MIN",
		"ROOM_SWEEP_INTERVAL_SEC", "GAME_RESTART_DELAY_MS", "RELEASE_SEATS_ON_BOOT", "MSGCAT_DIR",
		"ALLOWED_ORIGINS",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Addr != "0.0.0.0:1338" || cfg.SessionsFile != "data/sessions.json" {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.InactiveAfter != 20*time.Minute || cfg.SweepInterval != 2*time.Minute || cfg.RestartDelay != 3*time.Second {
		t.Fatalf("durations: %+v", cfg)
	}
	if !cfg.ReleaseSeats || cfg.RedisURL != "" || len(cfg.AllowedOrigins) != 0 {
		t.Fatalf("flags: %+v", cfg)
	}
}

func TestOverridesAndBadNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("TTT_ADDR", "127.0.0.1:9000")
	t.Setenv("ROOM_INACTIVE_AFTER_MIN", "5")
	t.Setenv("ROOM_SWEEP_INTERVAL_SEC", "abc")
	t.Setenv("GAME_RESTART_DELAY_MS", "0")
	t.Setenv("RELEASE_SEATS_ON_BOOT", "false")
	t.Setenv("ALLOWED_ORIGINS", " example.com, ,*.example.org ")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9000" || cfg.InactiveAfter != 5*time.Minute {
		t.Fatalf("overrides: %+v", cfg)
	}
	if cfg.SweepInterval != 120*time.Second {
		t.Fatalf("bad number should keep default, got %v", cfg.SweepInterval)
	}
	if cfg.RestartDelay != 0 || cfg.ReleaseSeats {
		t.Fatalf("restart/release: %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "*.example.org" {
		t.Fatalf("origins: %v", cfg.AllowedOrigins)
	}
}

func TestRejectsNonPositiveThreshold(t *testing.T) {
	clearEnv(t)
	t.Setenv("ROOM_INACTIVE_AFTER_MIN", "0")
	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected error for zero threshold")
	}
	t.Setenv("ROOM_INACTIVE_AFTER_MIN", "")
	t.Setenv("ROOM_SWEEP_INTERVAL_SEC", "-1")
	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected error for negative interval")
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("SESSIONS_FILE")
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SESSIONS_FILE=/tmp/from-dotenv.json\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Cleanup(func() { os.Unsetenv("SESSIONS_FILE") })
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SessionsFile != "/tmp/from-dotenv.json" {
		t.Fatalf("SessionsFile = %q", cfg.SessionsFile)
	}
}
