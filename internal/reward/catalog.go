// Package reward holds the per-server reward catalog and the daily award
// counters that cap how often a reward can be granted.
package reward

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kaizen-votes/internal/model"

	"gorm.io/gorm"
)

var (
	ErrNotFound      = errors.New("reward not found")
	ErrInvalidReward = errors.New("invalid reward")
)

// Active returns the server's active rewards in settlement order.
func Active(ctx context.Context, db *gorm.DB, serverID uint) ([]model.Reward, error) {
	var rewards []model.Reward
	err := db.WithContext(ctx).
		Where("server_id = ? AND is_active = ?", serverID, true).
		Order("sort_order asc, id asc").
		Find(&rewards).Error
	return rewards, err
}

// ByIDs loads the given rewards of a server regardless of their current
// active flag, in sort order. Ids that no longer exist are skipped.
func ByIDs(ctx context.Context, db *gorm.DB, serverID uint, ids []uint) ([]model.Reward, error) {
	if len(ids) == 0 {
		return []model.Reward{}, nil
	}
	var rewards []model.Reward
	err := db.WithContext(ctx).
		Where("server_id = ? AND id IN ?", serverID, ids).
		Order("sort_order asc, id asc").
		Find(&rewards).Error
	return rewards, err
}

func List(ctx context.Context, db *gorm.DB, serverID uint) ([]model.Reward, error) {
	var rewards []model.Reward
	err := db.WithContext(ctx).Where("server_id = ?", serverID).Order("sort_order asc, id asc").Find(&rewards).Error
	return rewards, err
}

func Get(ctx context.Context, db *gorm.DB, serverID, rewardID uint) (*model.Reward, error) {
	var r model.Reward
	if err := db.WithContext(ctx).Where("server_id = ?", serverID).First(&r, rewardID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

// Validate checks the owner-supplied fields of a reward.
func Validate(r *model.Reward) error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidReward)
	}
	if !r.RewardType.Valid() {
		return fmt.Errorf("%w: unknown reward type %q", ErrInvalidReward, r.RewardType)
	}
	if r.Chance < 1 || r.Chance > 100 {
		return fmt.Errorf("%w: chance must be between 1 and 100", ErrInvalidReward)
	}
	if len(r.Commands) == 0 {
		return fmt.Errorf("%w: at least one command is required", ErrInvalidReward)
	}
	for i, c := range r.Commands {
		r.Commands[i] = strings.TrimSpace(c)
		if r.Commands[i] == "" {
			return fmt.Errorf("%w: command %d is empty", ErrInvalidReward, i+1)
		}
	}
	if r.MinVotes != nil && *r.MinVotes < 0 {
		return fmt.Errorf("%w: min_votes must not be negative", ErrInvalidReward)
	}
	if r.DailyLimit != nil && *r.DailyLimit < 0 {
		return fmt.Errorf("%w: daily_limit must not be negative", ErrInvalidReward)
	}
	return nil
}
