package vote

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"regexp"
	"strings"
	"time"

	"kaizen-votes/internal/model"
	"kaizen-votes/internal/reward"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,16}$`)

// Ballot is a vote request as received from the web front end.
type Ballot struct {
	UserID            uint
	ServerID          uint
	MinecraftUsername string
	MinecraftUUID     string // optional, from the external profile lookup
	IPAddress         string
	UserAgent         string
}

func ValidateUsername(name string) (string, error) {
	name = strings.TrimSpace(name)
	if !usernamePattern.MatchString(name) {
		return "", ErrInvalidUsername
	}
	return name, nil
}

func normalizeUUID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return "", ErrInvalidUUID
	}
	return id.String(), nil
}

// cooldownRemaining returns the whole seconds left before another vote is
// allowed, 0 when the cooldown is over.
func cooldownRemaining(last, now time.Time) int64 {
	left := Cooldown - now.Sub(last)
	if left <= 0 {
		return 0
	}
	return int64(math.Ceil(left.Seconds()))
}

// nextStreak extends the previous streak when the gap is at most StreakWindow.
func nextStreak(last *model.Vote, now time.Time) int {
	if last == nil || now.Sub(last.CreatedAt) > StreakWindow {
		return 1
	}
	return last.Streak + 1
}

// CastVote admits a vote, settles its rewards and persists it in one
// transaction. The returned vote carries the frozen reward list.
func (s *Service) CastVote(ctx context.Context, b Ballot, now time.Time) (*model.Vote, error) {
	now = now.UTC()
	name, err := ValidateUsername(b.MinecraftUsername)
	if err != nil {
		return nil, err
	}
	playerUUID, err := normalizeUUID(b.MinecraftUUID)
	if err != nil {
		return nil, err
	}

	day := reward.Day(now, s.loc)
	var (
		v       model.Vote
		server  model.Server
		awarded []uint
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&server, b.ServerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrServerNotFound
			}
			return err
		}
		if !server.IsApproved() {
			return ErrServerNotApproved
		}

		last, prior, err := lastVote(tx, b.ServerID, b.UserID)
		if err != nil {
			return err
		}
		if last != nil {
			if left := cooldownRemaining(last.CreatedAt, now); left > 0 {
				return &CooldownError{Remaining: left}
			}
		}
		if err := takeSlot(tx, b.ServerID, b.UserID, now); err != nil {
			return err
		}

		earned, err := s.settle(ctx, tx, b.ServerID, prior, day, &awarded)
		if err != nil {
			return fmt.Errorf("settle rewards: %w", err)
		}

		v = model.Vote{
			CreatedAt:         now,
			ServerID:          b.ServerID,
			UserID:            b.UserID,
			MinecraftUsername: name,
			MinecraftUUID:     playerUUID,
			IPAddress:         b.IPAddress,
			UserAgent:         b.UserAgent,
			Streak:            nextStreak(last, now),
			EarnedRewards:     datatypes.JSONSlice[uint](earned),
			ClaimedRewards:    datatypes.JSONSlice[uint]{},
		}
		if err := tx.Create(&v).Error; err != nil {
			return fmt.Errorf("insert vote: %w", err)
		}

		if err := tx.Model(&model.Server{}).Where("id = ?", b.ServerID).Updates(map[string]interface{}{
			"total_votes":   gorm.Expr("total_votes + 1"),
			"monthly_votes": gorm.Expr("monthly_votes + 1"),
		}).Error; err != nil {
			return err
		}
		return tx.Model(&model.User{}).Where("id = ?", b.UserID).Update("minecraft_username", name).Error
	})
	if err != nil {
		s.release(ctx, awarded, day)
		return nil, err
	}

	for _, n := range s.notifiers {
		n.VoteSettled(ctx, v, server)
	}
	return &v, nil
}

// lastVote returns the latest vote of the user on the server and how many
// votes the user cast there so far.
func lastVote(tx *gorm.DB, serverID, userID uint) (*model.Vote, int64, error) {
	var count int64
	if err := tx.Model(&model.Vote{}).Where("server_id = ? AND user_id = ?", serverID, userID).Count(&count).Error; err != nil {
		return nil, 0, err
	}
	if count == 0 {
		return nil, 0, nil
	}
	var last model.Vote
	if err := tx.Where("server_id = ? AND user_id = ?", serverID, userID).
		Order("created_at desc, id desc").First(&last).Error; err != nil {
		return nil, 0, err
	}
	return &last, count, nil
}

// takeSlot advances the (server, user) tally with a compare-and-set. A
// concurrent admission that got there first makes it fail with a cooldown.
func takeSlot(tx *gorm.DB, serverID, userID uint, now time.Time) error {
	var tally model.VoteTally
	err := tx.Where("server_id = ? AND user_id = ?", serverID, userID).First(&tally).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.VoteTally{
			ServerID:   serverID,
			UserID:     userID,
			Votes:      1,
			LastVoteAt: now,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &CooldownError{Remaining: int64(Cooldown.Seconds())}
		}
		return nil
	}
	if err != nil {
		return err
	}

	if left := cooldownRemaining(tally.LastVoteAt, now); left > 0 {
		return &CooldownError{Remaining: left}
	}
	res := tx.Model(&model.VoteTally{}).
		Where("id = ? AND votes = ?", tally.ID, tally.Votes).
		Updates(map[string]interface{}{"votes": tally.Votes + 1, "last_vote_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &CooldownError{Remaining: int64(Cooldown.Seconds())}
	}
	return nil
}

// settle runs one trial per eligible reward. Every successful award is also
// appended to awarded so a non-transactional counter can be compensated.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, serverID uint, prior int64, day string, awarded *[]uint) ([]uint, error) {
	rewards, err := reward.Active(ctx, tx, serverID)
	if err != nil {
		return nil, err
	}

	earned := make([]uint, 0, len(rewards))
	for i := range rewards {
		r := &rewards[i]
		if r.MinVotes != nil && prior < int64(*r.MinVotes) {
			continue
		}
		if r.DailyLimit != nil {
			given, err := s.counter.Count(ctx, tx, r.ID, day)
			if err != nil {
				return nil, err
			}
			if given >= *r.DailyLimit {
				continue
			}
		}
		if !s.roll(r.Chance) {
			continue
		}
		ok, err := s.counter.TryAward(ctx, tx, r.ID, day, r.DailyLimit)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		*awarded = append(*awarded, r.ID)
		earned = append(earned, r.ID)
	}
	return earned, nil
}

func (s *Service) release(ctx context.Context, awarded []uint, day string) {
	if s.counter.Transactional() {
		return
	}
	for _, id := range awarded {
		if err := s.counter.Release(context.WithoutCancel(ctx), id, day); err != nil {
			log.Printf("[vote] failed to release award of reward %d on %s: %v", id, day, err)
		}
	}
}
