package vote

import (
	"context"
	"errors"
	"time"

	"kaizen-votes/internal/model"

	"gorm.io/gorm"
)

type CooldownStatus struct {
	CanVote           bool       `json:"can_vote"`
	CooldownRemaining int64      `json:"cooldown_remaining"`
	LastVoteAt        *time.Time `json:"last_vote_at"`
	CurrentStreak     int        `json:"current_streak"`
}

// CooldownStatus tells the web front end whether the user may vote now and
// how many seconds remain otherwise.
func (s *Service) CooldownStatus(ctx context.Context, userID, serverID uint, now time.Time) (*CooldownStatus, error) {
	now = now.UTC()
	db := s.db.WithContext(ctx)

	var server model.Server
	if err := db.First(&server, serverID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrServerNotFound
		}
		return nil, err
	}

	last, _, err := lastVote(db, serverID, userID)
	if err != nil {
		return nil, err
	}

	st := &CooldownStatus{}
	if last != nil {
		created := last.CreatedAt.UTC()
		st.LastVoteAt = &created
		st.CooldownRemaining = cooldownRemaining(last.CreatedAt, now)
		if now.Sub(last.CreatedAt) <= StreakWindow {
			st.CurrentStreak = last.Streak
		}
	}
	st.CanVote = server.IsApproved() && st.CooldownRemaining == 0
	return st, nil
}
