package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"kaizen-votes/internal/api"
	"kaizen-votes/internal/api/handler"
	"kaizen-votes/internal/api/websocket"
	"kaizen-votes/internal/bot"
	"kaizen-votes/internal/config"
	"kaizen-votes/internal/database"
	"kaizen-votes/internal/model"
	"kaizen-votes/internal/pairing"
	"kaizen-votes/internal/reward"
	"kaizen-votes/internal/stats"
	"kaizen-votes/internal/vote"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

func loadOrCreateJWTSecret(path string) string {
	secretBytes, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Println("JWT secret file not found, generating a new one...")
			newSecret, err := generateRandomString(32)
			if err != nil {
				log.Fatalf("failed to generate JWT secret: %v", err)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				log.Fatalf("failed to create JWT secret directory: %v", err)
			}
			if err := os.WriteFile(path, []byte(newSecret), 0600); err != nil {
				log.Fatalf("failed to write JWT secret to file: %v", err)
			}
			log.Printf("Generated and saved new JWT secret to %s", path)
			return newSecret
		}
		log.Fatalf("failed to read JWT secret file: %v", err)
	}
	log.Printf("Loaded JWT secret from %s", path)
	return string(secretBytes)
}

func generateRandomString(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func ensureAdmin(db *gorm.DB) {
	var count int64
	db.Model(&model.User{}).Count(&count)
	if count > 0 {
		return
	}
	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password = "admin123"
	}
	admin := model.User{
		Username: "admin",
		Password: password,
		Role:     model.RoleAdmin,
	}
	if err := db.Create(&admin).Error; err != nil {
		log.Fatalf("failed to create initial admin user: %v", err)
	}
	log.Println("Created initial admin user 'admin'. Change its password after the first login.")
}

// newCounter uses redis for the daily award counters when it is configured
// and reachable, the database otherwise.
func newCounter(cfg config.Config) (reward.Counter, func()) {
	if cfg.RedisAddr == "" {
		return reward.NewGormCounter(), func() {}
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("Redis at %s unreachable, using database award counters: %v", cfg.RedisAddr, err)
		rdb.Close()
		return reward.NewGormCounter(), func() {}
	}
	log.Printf("Using redis award counters at %s", cfg.RedisAddr)
	return reward.NewRedisCounter(rdb), func() { rdb.Close() }
}

func main() {
	log.Println("Kaizen Votes | Version 1.0.0")
	cfg := config.Load()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	ensureAdmin(db)
	jwtSecret := loadOrCreateJWTSecret(cfg.JWTSecretFile)

	counter, closeCounter := newCounter(cfg)
	defer closeCounter()

	hub := websocket.NewHub()
	votes := vote.NewService(db, counter, vote.WithLocation(cfg.RewardLocation), vote.WithNotifier(hub))
	pairings := pairing.NewService(db, cfg.PairingTTL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats.StartCollector(ctx, db, stats.Options{
		Interval:     cfg.CollectorInterval,
		OfflineAfter: cfg.OfflineAfter,
		Retention:    cfg.StatsRetention,
		Location:     cfg.RewardLocation,
	})

	botToken, err := handler.ConfigValue(db, model.ConfigKeyTelegramBotToken)
	if err != nil {
		log.Printf("Failed to read Telegram Bot Token: %v", err)
	}
	if botToken != "" {
		siteURL, _ := handler.ConfigValue(db, model.ConfigKeySiteURL)
		botHandler, err := bot.NewBotHandler(botToken, siteURL, db, votes)
		if err != nil {
			log.Fatalf("Failed to initialize Telegram Bot: %v", err)
		}
		votes.AddNotifier(botHandler)
		go botHandler.Start()
		defer botHandler.Stop()
		log.Println("Telegram Bot started.")
	} else {
		log.Println("Telegram Bot Token not configured in DB. Skipping Telegram Bot initialization.")
	}

	router := api.NewRouter(api.Deps{
		DB:        db,
		JWTSecret: jwtSecret,
		Votes:     votes,
		Pairing:   pairings,
		Hub:       hub,
	})
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
}
