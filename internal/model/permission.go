package model

import (
	"time"

	"gorm.io/gorm"
)

const (
	AccessLevelRead   = "read"
	AccessLevelManage = "manage"
	AccessLevelFull   = "full"
)

// ServerPermission grants a user owner-side access to a listed server.
type ServerPermission struct {
	ID        uint `gorm:"primarykey" json:"id"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`

	UserID      uint       `gorm:"not null;index" json:"user_id"`
	ServerID    uint       `gorm:"not null;index" json:"server_id"`
	AccessLevel string     `gorm:"not null" json:"access_level"` // e.g., "read", "manage", "full"
	ExpireAt    *time.Time `json:"expire_at"`
}

// CanManage reports whether the grant allows changing rewards and tokens.
func (p *ServerPermission) CanManage(now time.Time) bool {
	if p.ExpireAt != nil && !p.ExpireAt.After(now) {
		return false
	}
	return p.AccessLevel == AccessLevelManage || p.AccessLevel == AccessLevelFull
}
