package model

import "time"

// TokenState is derived from stored fields and the current time, never stored.
type TokenState string

const (
	TokenStatePending  TokenState = "pending"
	TokenStateExpired  TokenState = "expired"
	TokenStatePaired   TokenState = "paired"
	TokenStateInactive TokenState = "inactive"
)

// ServerToken binds one plugin installation to a server.
//
// While pending, PairingCode and PairingExpiresAt are set and TokenHash is nil.
// Pairing clears the code, stores the digest of the minted bearer secret and
// the row never returns to pending.
type ServerToken struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ServerID uint   `gorm:"not null;index" json:"server_id"`
	Name     string `gorm:"default:'Default'" json:"name"`

	TokenHash   *string `gorm:"size:64;uniqueIndex" json:"-"`
	TokenPrefix string  `gorm:"size:8" json:"token_prefix"`

	PairingCode      *string    `gorm:"size:8;index" json:"pairing_code,omitempty"`
	PairingExpiresAt *time.Time `json:"pairing_expires_at,omitempty"`
	IsPaired         bool       `gorm:"not null" json:"is_paired"`
	PairedAt         *time.Time `json:"paired_at"`

	LastUsedAt   *time.Time `json:"last_used_at"`
	LastUsedIP   string     `gorm:"size:45" json:"last_used_ip"`
	RequestCount int64      `json:"request_count"`

	IsActive  bool       `gorm:"not null" json:"is_active"`
	RevokedAt *time.Time `json:"revoked_at"`
}

func (t *ServerToken) State(now time.Time) TokenState {
	switch {
	case !t.IsActive:
		return TokenStateInactive
	case t.IsPaired:
		return TokenStatePaired
	case t.PairingCode != nil && t.PairingExpiresAt != nil && t.PairingExpiresAt.After(now):
		return TokenStatePending
	default:
		return TokenStateExpired
	}
}

// RedactedToken is what owners see after pairing.
func (t *ServerToken) RedactedToken() string {
	if t.TokenPrefix == "" {
		return ""
	}
	return t.TokenPrefix + "…"
}
