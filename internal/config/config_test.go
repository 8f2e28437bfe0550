package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"LISTEN_ADDR", "DB_DRIVER", "PAIRING_TTL", "REWARD_TIMEZONE", "REDIS_ADDR"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	if cfg.ListenAddr != ":9090" {
		t.Fatalf("expected default listen addr, got %s", cfg.ListenAddr)
	}
	if cfg.DBDriver != "sqlite" {
		t.Fatalf("expected sqlite driver, got %s", cfg.DBDriver)
	}
	if cfg.PairingTTL != 15*time.Minute {
		t.Fatalf("expected 15m pairing ttl, got %s", cfg.PairingTTL)
	}
	if cfg.RewardLocation != time.UTC {
		t.Fatalf("expected UTC reward location, got %s", cfg.RewardLocation)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "MySQL")
	t.Setenv("PAIRING_TTL", "5m")
	t.Setenv("REDIS_ADDR", " 127.0.0.1:6379 ")
	t.Setenv("DB_MAX_OPEN_CONNS", "not-a-number")

	cfg := Load()
	if cfg.DBDriver != "mysql" {
		t.Fatalf("expected lower-cased driver, got %s", cfg.DBDriver)
	}
	if cfg.PairingTTL != 5*time.Minute {
		t.Fatalf("expected 5m, got %s", cfg.PairingTTL)
	}
	if cfg.RedisAddr != "127.0.0.1:6379" {
		t.Fatalf("expected trimmed redis addr, got %q", cfg.RedisAddr)
	}
	if cfg.DBMaxOpenConns != 25 {
		t.Fatalf("expected default on invalid int, got %d", cfg.DBMaxOpenConns)
	}
}
