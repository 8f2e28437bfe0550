package model

import (
	"time"

	"gorm.io/datatypes"
)

type RewardType string

const (
	RewardTypeCommand    RewardType = "command"
	RewardTypeItem       RewardType = "item"
	RewardTypeCurrency   RewardType = "currency"
	RewardTypePermission RewardType = "permission"
	RewardTypeRank       RewardType = "rank"
)

func (t RewardType) Valid() bool {
	switch t {
	case RewardTypeCommand, RewardTypeItem, RewardTypeCurrency, RewardTypePermission, RewardTypeRank:
		return true
	}
	return false
}

type Reward struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ServerID    uint                        `gorm:"not null;index" json:"server_id"`
	Name        string                      `gorm:"not null" json:"name"`
	Description string                      `json:"description"`
	RewardType  RewardType                  `gorm:"type:varchar(16);not null" json:"reward_type"`
	Commands    datatypes.JSONSlice[string] `json:"commands"`
	Chance      int                         `gorm:"not null" json:"chance"` // 1-100
	IsActive    bool                        `gorm:"not null" json:"is_active"`
	MinVotes    *int                        `json:"min_votes"`
	DailyLimit  *int                        `json:"daily_limit"`
	SortOrder   int                         `gorm:"not null;default:0" json:"sort_order"`
}

// RewardAward counts how many times a reward was granted on one calendar day.
type RewardAward struct {
	ID       uint   `gorm:"primaryKey"`
	RewardID uint   `gorm:"not null;uniqueIndex:idx_award_reward_day"`
	Day      string `gorm:"size:10;not null;uniqueIndex:idx_award_reward_day"` // 2006-01-02
	Awarded  int    `gorm:"not null;default:0"`
}
