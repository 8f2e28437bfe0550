package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr string

	DBDriver          string
	DBPath            string
	DBDSN             string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBLogLevel        string

	JWTSecretFile string

	RedisAddr string
	RedisPass string
	RedisDB   int

	PairingTTL        time.Duration
	RewardLocation    *time.Location
	CollectorInterval time.Duration
	OfflineAfter      time.Duration
	StatsRetention    time.Duration
}

// Load reads .env (without overriding variables already set) and the process
// environment.
func Load() Config {
	if envMap, err := godotenv.Read(); err == nil {
		for k, v := range envMap {
			if os.Getenv(k) == "" {
				os.Setenv(k, v)
			}
		}
	}

	loc, err := time.LoadLocation(getenv("REWARD_TIMEZONE", "UTC"))
	if err != nil {
		log.Printf("Invalid REWARD_TIMEZONE, falling back to UTC: %v", err)
		loc = time.UTC
	}

	return Config{
		ListenAddr: getenv("LISTEN_ADDR", ":9090"),

		DBDriver:          strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DBPath:            getenv("DB_PATH", "data/votes.db"),
		DBDSN:             getenv("DB_DSN", ""),
		DBMaxOpenConns:    getenvInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    getenvInt("DB_MAX_IDLE_CONNS", 25),
		DBConnMaxLifetime: time.Duration(getenvInt("DB_CONN_MAX_LIFETIME", 3600)) * time.Second,
		DBLogLevel:        strings.ToLower(getenv("DB_LOG_LEVEL", "warn")),

		JWTSecretFile: getenv("JWT_SECRET_FILE", "data/.sk"),

		RedisAddr: strings.ReplaceAll(getenv("REDIS_ADDR", ""), " ", ""),
		RedisPass: getenv("REDIS_PASS", ""),
		RedisDB:   getenvInt("REDIS_DB", 0),

		PairingTTL:        getenvDuration("PAIRING_TTL", 15*time.Minute),
		RewardLocation:    loc,
		CollectorInterval: getenvDuration("COLLECTOR_INTERVAL", time.Minute),
		OfflineAfter:      getenvDuration("OFFLINE_AFTER", 3*time.Minute),
		StatsRetention:    getenvDuration("STATS_RETENTION", 30*24*time.Hour),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func getenvInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return v
		}
		log.Printf("Ignoring invalid %s=%q", key, s)
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if v, err := time.ParseDuration(strings.TrimSpace(s)); err == nil && v > 0 {
			return v
		}
		log.Printf("Ignoring invalid %s=%q", key, s)
	}
	return def
}
