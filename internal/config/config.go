package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Addr string

	RedisURL     string
	SessionsFile string
	DatabaseURL  string

	InactiveAfter  time.Duration
	SweepInterval  time.Duration
	RestartDelay   time.Duration
	ReleaseSeats   bool
	MsgcatDir      string
	AllowedOrigins []string
}

const (
	defaultAddr           = "0.0.0.0:1338"
	defaultSessionsFile   = "data/sessions.json"
	defaultInactiveMin    = 20
	defaultSweepSec       = 120
	defaultRestartDelayMS = 3000
)

// Load reads the environment, after merging an optional .env file in the working directory.
// Variables already set in the environment win over .env entries.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the environment only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{
		Addr:          defaultAddr,
		SessionsFile:  defaultSessionsFile,
		InactiveAfter: defaultInactiveMin * time.Minute,
		SweepInterval: defaultSweepSec * time.Second,
		RestartDelay:  defaultRestartDelayMS * time.Millisecond,
		ReleaseSeats:  true,
	}

	if v := strings.TrimSpace(os.Getenv("TTT_ADDR")); v != "" {
		cfg.Addr = v
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	if v := strings.TrimSpace(os.Getenv("SESSIONS_FILE")); v != "" {
		cfg.SessionsFile = v
	}
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.MsgcatDir = strings.TrimSpace(os.Getenv("MSGCAT_DIR"))

	if v := strings.TrimSpace(os.Getenv("ROOM_INACTIVE_AFTER_MIN")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.InactiveAfter = time.Duration(n) * time.Minute
		}
	}
	if v := strings.TrimSpace(os.Getenv("ROOM_SWEEP_INTERVAL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SweepInterval = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("GAME_RESTART_DELAY_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.RestartDelay = time.Duration(n) * time.Millisecond
		}
	}
	if v := strings.TrimSpace(os.Getenv("RELEASE_SEATS_ON_BOOT")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.ReleaseSeats = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, s)
			}
		}
	}

	if cfg.InactiveAfter <= 0 {
		return nil, errors.New("ROOM_INACTIVE_AFTER_MIN must be positive")
	}
	if cfg.SweepInterval <= 0 {
		return nil, errors.New("ROOM_SWEEP_INTERVAL_SEC must be positive")
	}
	return cfg, nil
}
