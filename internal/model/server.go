package model

import (
	"time"

	"gorm.io/gorm"
)

// ServerStatus is the listing state of a server
type ServerStatus string

const (
	ServerStatusPending   ServerStatus = "pending"
	ServerStatusApproved  ServerStatus = "approved"
	ServerStatusRejected  ServerStatus = "rejected"
	ServerStatusSuspended ServerStatus = "suspended"
)

const DefaultMinecraftPort = 25565

// Server represents the server table (servers)
type Server struct {
	gorm.Model
	Name      string       `json:"name" gorm:"not null"`
	Slug      string       `json:"slug" gorm:"uniqueIndex;not null"`
	OwnerID   uint         `json:"owner_id" gorm:"index"`
	Status    ServerStatus `json:"status" gorm:"type:varchar(16);default:'pending';index"`
	IPAddress string       `json:"ip_address"`
	Port      int          `json:"port" gorm:"default:25565"`

	// Live state reported by the plugin
	IsOnline         bool       `json:"is_online"`
	CurrentPlayers   int        `json:"current_players"`
	MaxPlayers       int        `json:"max_players"`
	TPS              float64    `json:"tps"`
	MinecraftVersion string     `json:"minecraft_version"`
	PluginVersion    string     `json:"plugin_version"`
	LastPingAt       *time.Time `json:"last_ping_at"`

	// Cached aggregates, recomputed from the votes table by the collector
	MonthlyVotes int64 `json:"monthly_votes"`
	TotalVotes   int64 `json:"total_votes"`

	TelegramChatID int64 `json:"-"`

	// Relationships
	ServerPermissions []ServerPermission `json:"-" gorm:"foreignKey:ServerID"`
}

func (s *Server) IsApproved() bool {
	return s.Status == ServerStatusApproved
}
