// Package pairing binds game-server plugins to listed servers through
// short-lived one-time codes and authenticates them afterwards by bearer
// token.
package pairing

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"kaizen-votes/internal/model"

	"gorm.io/gorm"
)

const (
	DefaultTTL = 15 * time.Minute

	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 8
	minCodeLen   = 6
	prefixLength = 8
)

var (
	// ErrInvalidOrExpiredCode deliberately does not say which of the two it is.
	ErrInvalidOrExpiredCode = errors.New("invalid or expired pairing code")
	ErrUnauthorized         = errors.New("invalid or revoked token")
	ErrServerNotApproved    = errors.New("server not found or not approved")
	ErrServerNotFound       = errors.New("server not found")
	ErrTokenNotFound        = errors.New("token not found")
	ErrAlreadyPaired        = errors.New("token is already paired")
)

type Service struct {
	db  *gorm.DB
	ttl time.Duration
}

func NewService(db *gorm.DB, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{db: db, ttl: ttl}
}

// PairInfo is optional metadata the plugin sends with its pairing request.
type PairInfo struct {
	ServerIP         string
	ServerPort       int
	MinecraftVersion string
	PluginVersion    string
}

// PairResult carries the bearer secret. It is the only time it is revealed.
type PairResult struct {
	Token  string
	Server model.Server
}

// Generate deactivates the server's unpaired tokens and creates a fresh
// pending token with a new code.
func (s *Service) Generate(ctx context.Context, serverID uint, now time.Time) (*model.ServerToken, error) {
	now = now.UTC()
	var tok *model.ServerToken
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureServer(tx, serverID); err != nil {
			return err
		}
		if err := tx.Model(&model.ServerToken{}).
			Where("server_id = ? AND is_paired = ? AND is_active = ?", serverID, false, true).
			Updates(map[string]interface{}{"is_active": false, "pairing_code": nil, "pairing_expires_at": nil, "revoked_at": now}).Error; err != nil {
			return err
		}

		code, err := uniqueCode(tx)
		if err != nil {
			return err
		}
		expires := now.Add(s.ttl)
		tok = &model.ServerToken{
			CreatedAt:        now,
			ServerID:         serverID,
			Name:             "Default",
			PairingCode:      &code,
			PairingExpiresAt: &expires,
			IsActive:         true,
		}
		return tx.Create(tok).Error
	})
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// Refresh replaces the code of the server's pending token and restarts its
// TTL. A server without a pending token gets a new one, as with Generate.
func (s *Service) Refresh(ctx context.Context, serverID uint, now time.Time) (*model.ServerToken, error) {
	now = now.UTC()
	var tok model.ServerToken
	err := s.db.WithContext(ctx).
		Where("server_id = ? AND is_paired = ? AND is_active = ?", serverID, false, true).
		Order("id desc").First(&tok).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.Generate(ctx, serverID, now)
	}
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		code, err := uniqueCode(tx)
		if err != nil {
			return err
		}
		expires := now.Add(s.ttl)
		res := tx.Model(&model.ServerToken{}).
			Where("id = ? AND is_paired = ? AND is_active = ?", tok.ID, false, true).
			Updates(map[string]interface{}{"pairing_code": code, "pairing_expires_at": expires})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyPaired
		}
		tok.PairingCode = &code
		tok.PairingExpiresAt = &expires
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

// Consume pairs the plugin presenting code and mints its bearer token.
func (s *Service) Consume(ctx context.Context, code string, info PairInfo, now time.Time) (*PairResult, error) {
	now = now.UTC()
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) < minCodeLen || len(code) > codeLength {
		return nil, ErrInvalidOrExpiredCode
	}

	secret, err := randomHex(32)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	digest := HashToken(secret)

	var result *PairResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tok model.ServerToken
		err := tx.Where("pairing_code = ? AND is_active = ? AND is_paired = ? AND pairing_expires_at > ?", code, true, false, now).
			First(&tok).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidOrExpiredCode
		}
		if err != nil {
			return err
		}

		res := tx.Model(&model.ServerToken{}).
			Where("id = ? AND is_paired = ? AND pairing_code = ?", tok.ID, false, code).
			Updates(map[string]interface{}{
				"is_paired":          true,
				"paired_at":          now,
				"last_used_at":       now,
				"pairing_code":       nil,
				"pairing_expires_at": nil,
				"token_hash":         digest,
				"token_prefix":       secret[:prefixLength],
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidOrExpiredCode
		}

		var server model.Server
		if err := tx.First(&server, tok.ServerID).Error; err != nil {
			return err
		}
		updates := map[string]interface{}{}
		if info.ServerIP != "" {
			port := info.ServerPort
			if port == 0 {
				port = model.DefaultMinecraftPort
			}
			updates["ip_address"] = info.ServerIP
			updates["port"] = port
		}
		if info.MinecraftVersion != "" {
			updates["minecraft_version"] = info.MinecraftVersion
		}
		if info.PluginVersion != "" {
			updates["plugin_version"] = info.PluginVersion
		}
		if len(updates) > 0 {
			if err := tx.Model(&server).Updates(updates).Error; err != nil {
				return err
			}
			if err := tx.First(&server, server.ID).Error; err != nil {
				return err
			}
		}
		result = &PairResult{Token: secret, Server: server}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Authenticate resolves a bearer token to its paired token row and server,
// and records the usage.
func (s *Service) Authenticate(ctx context.Context, bearer, ip string, now time.Time) (*model.ServerToken, *model.Server, error) {
	if bearer == "" {
		return nil, nil, ErrUnauthorized
	}
	db := s.db.WithContext(ctx)

	var tok model.ServerToken
	err := db.Where("token_hash = ? AND is_active = ? AND is_paired = ?", HashToken(bearer), true, true).First(&tok).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrUnauthorized
	}
	if err != nil {
		return nil, nil, err
	}

	var server model.Server
	if err := db.First(&server, tok.ServerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrServerNotApproved
		}
		return nil, nil, err
	}
	if !server.IsApproved() {
		return nil, nil, ErrServerNotApproved
	}

	now = now.UTC()
	if err := db.Model(&model.ServerToken{}).Where("id = ?", tok.ID).Updates(map[string]interface{}{
		"last_used_at":  now,
		"last_used_ip":  ip,
		"request_count": gorm.Expr("request_count + 1"),
	}).Error; err != nil {
		return nil, nil, err
	}
	tok.LastUsedAt = &now
	tok.LastUsedIP = ip
	tok.RequestCount++
	return &tok, &server, nil
}

// Revoke deactivates one of the server's tokens.
func (s *Service) Revoke(ctx context.Context, serverID, tokenID uint, now time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.ServerToken{}).
		Where("id = ? AND server_id = ?", tokenID, serverID).
		Updates(map[string]interface{}{
			"is_active":          false,
			"revoked_at":         now.UTC(),
			"pairing_code":       nil,
			"pairing_expires_at": nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func (s *Service) List(ctx context.Context, serverID uint) ([]model.ServerToken, error) {
	var tokens []model.ServerToken
	err := s.db.WithContext(ctx).Where("server_id = ?", serverID).Order("id desc").Find(&tokens).Error
	return tokens, err
}

// HashToken is the stored form of a bearer secret.
func HashToken(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func ensureServer(tx *gorm.DB, serverID uint) error {
	var server model.Server
	if err := tx.Select("id").First(&server, serverID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrServerNotFound
		}
		return err
	}
	return nil
}

// uniqueCode draws codes until one is not held by another active pending token.
func uniqueCode(tx *gorm.DB) (string, error) {
	for attempt := 0; attempt < 20; attempt++ {
		code, err := randomCode()
		if err != nil {
			return "", err
		}
		var count int64
		if err := tx.Model(&model.ServerToken{}).
			Where("pairing_code = ? AND is_active = ? AND is_paired = ?", code, true, false).
			Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", errors.New("could not generate unique pairing code")
}

func randomCode() (string, error) {
	b := make([]byte, codeLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, v := range b {
		sb.WriteByte(codeAlphabet[int(v)%len(codeAlphabet)])
	}
	return sb.String(), nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
