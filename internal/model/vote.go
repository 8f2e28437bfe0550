package model

import (
	"time"

	"gorm.io/datatypes"
)

// Vote is one settled vote. The identity fields, Streak and EarnedRewards are
// create-only: gorm never writes them on update, so a settled reward list
// cannot be recomputed through the ORM.
type Vote struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"<-:create;index;index:idx_votes_server_user,priority:3" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ServerID          uint   `gorm:"<-:create;not null;index:idx_votes_server_user,priority:1;index:idx_votes_server_claimed,priority:1" json:"server_id"`
	UserID            uint   `gorm:"<-:create;not null;index:idx_votes_server_user,priority:2" json:"user_id"`
	MinecraftUsername string `gorm:"<-:create;size:16;not null" json:"minecraft_username"`
	MinecraftUUID     string `gorm:"<-:create;size:36;index" json:"minecraft_uuid"`
	IPAddress         string `gorm:"<-:create;size:45" json:"-"`
	UserAgent         string `gorm:"<-:create" json:"-"`

	Streak        int                       `gorm:"<-:create;not null;default:1" json:"streak"`
	EarnedRewards datatypes.JSONSlice[uint] `gorm:"<-:create" json:"earned_rewards"`

	Claimed        bool                      `gorm:"not null;index:idx_votes_server_claimed,priority:2" json:"claimed"`
	ClaimedAt      *time.Time                `json:"claimed_at"`
	ClaimedRewards datatypes.JSONSlice[uint] `json:"claimed_rewards"`
}

// VoteTally is the per (server, user) guard row. Its Votes column is bumped
// with a compare-and-set on every admission, so two racing admissions for the
// same pair cannot both commit.
type VoteTally struct {
	ID         uint      `gorm:"primaryKey"`
	ServerID   uint      `gorm:"not null;uniqueIndex:idx_tally_server_user"`
	UserID     uint      `gorm:"not null;uniqueIndex:idx_tally_server_user"`
	Votes      int64     `gorm:"not null"`
	LastVoteAt time.Time `gorm:"not null"`
}
