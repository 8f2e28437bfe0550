// Package vote admits votes, settles their rewards once, and hands the
// settled rewards to the game-server plugin exactly once.
package vote

import (
	"context"
	"math/rand"
	"time"

	"kaizen-votes/internal/model"
	"kaizen-votes/internal/reward"

	"gorm.io/gorm"
)

const (
	// Cooldown is the minimum gap between two votes of a user on a server.
	Cooldown = 24 * time.Hour
	// StreakWindow is the largest gap that still extends a streak.
	StreakWindow = 48 * time.Hour
	// PendingPageSize caps the single-player pending query.
	PendingPageSize = 100
)

// Notifier is told about every vote after it has been committed.
type Notifier interface {
	VoteSettled(ctx context.Context, v model.Vote, s model.Server)
}

type Service struct {
	db        *gorm.DB
	counter   reward.Counter
	loc       *time.Location
	roll      func(chance int) bool
	notifiers []Notifier
}

type Option func(*Service)

// WithLocation sets the timezone that defines a calendar day for daily
// reward limits and leaderboard periods.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithRoll replaces the Bernoulli trial used for reward chances.
func WithRoll(roll func(chance int) bool) Option {
	return func(s *Service) { s.roll = roll }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifiers = append(s.notifiers, n) }
}

func NewService(db *gorm.DB, counter reward.Counter, opts ...Option) *Service {
	if counter == nil {
		counter = reward.NewGormCounter()
	}
	s := &Service{
		db:      db,
		counter: counter,
		loc:     time.UTC,
		roll:    roll,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddNotifier registers n for votes settled from now on. It must not be
// called concurrently with CastVote.
func (s *Service) AddNotifier(n Notifier) {
	s.notifiers = append(s.notifiers, n)
}

func roll(chance int) bool {
	if chance >= 100 {
		return true
	}
	if chance <= 0 {
		return false
	}
	return rand.Intn(100) < chance
}
