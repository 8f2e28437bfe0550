package vote

import (
	"context"
	"errors"
	"time"

	"kaizen-votes/internal/model"
	"kaizen-votes/internal/reward"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ClaimedReward struct {
	ID   uint             `json:"id"`
	Name string           `json:"name"`
	Type model.RewardType `json:"type"`
}

type ClaimResult struct {
	VoteID            uint            `json:"vote_id"`
	MinecraftUsername string          `json:"minecraft_username"`
	Rewards           []ClaimedReward `json:"rewards"`
	Commands          []string        `json:"commands"`
}

// Claim turns the vote's settled rewards into console commands and marks the
// vote claimed. Only the first of any number of concurrent calls succeeds;
// the others get ErrAlreadyClaimed.
func (s *Service) Claim(ctx context.Context, callerServerID, voteID uint, now time.Time) (*ClaimResult, error) {
	now = now.UTC()
	var result *ClaimResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var v model.Vote
		if err := tx.First(&v, voteID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrVoteNotFound
			}
			return err
		}
		if v.ServerID != callerServerID {
			return ErrUnauthorized
		}
		if v.Claimed {
			return ErrAlreadyClaimed
		}

		rewards, err := reward.ByIDs(ctx, tx, v.ServerID, v.EarnedRewards)
		if err != nil {
			return err
		}

		res := &ClaimResult{
			VoteID:            v.ID,
			MinecraftUsername: v.MinecraftUsername,
			Rewards:           make([]ClaimedReward, 0, len(rewards)),
			Commands:          []string{},
		}
		delivered := make([]uint, 0, len(rewards))
		for i := range rewards {
			r := &rewards[i]
			res.Rewards = append(res.Rewards, ClaimedReward{ID: r.ID, Name: r.Name, Type: r.RewardType})
			res.Commands = append(res.Commands, reward.RenderCommands(r, v.MinecraftUsername)...)
			delivered = append(delivered, r.ID)
		}

		upd := tx.Model(&model.Vote{}).
			Where("id = ? AND claimed = ?", v.ID, false).
			Updates(map[string]interface{}{
				"claimed":         true,
				"claimed_at":      now,
				"claimed_rewards": datatypes.JSONSlice[uint](delivered),
			})
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return ErrAlreadyClaimed
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
