package model

import "time"

// StatsHistory is one sample reported by a paired plugin.
type StatsHistory struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ServerID   uint      `gorm:"index" json:"server_id"`
	Players    int       `json:"players"`
	MaxPlayers int       `json:"max_players"`
	TPS        float64   `json:"tps"`
	Timestamp  time.Time `gorm:"index" json:"timestamp"`
}
