package vote

import (
	"context"
	"time"

	"kaizen-votes/internal/model"
)

const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
	PeriodYearly  = "yearly"
	PeriodAll     = "all"

	MaxLeaderboardSize = 100
)

type LeaderboardEntry struct {
	Position   int       `json:"position"`
	PlayerUUID string    `json:"player_uuid"`
	PlayerName string    `json:"player_name"`
	Votes      int64     `json:"votes"`
	LastVoteAt time.Time `json:"-"`
}

type Summary struct {
	Today         int64 `json:"today"`
	ThisWeek      int64 `json:"this_week"`
	ThisMonth     int64 `json:"this_month"`
	Total         int64 `json:"total"`
	PendingClaims int64 `json:"pending_claims"`
}

// PeriodStart returns the first instant of the period containing now, in
// loc. The zero time is returned for PeriodAll and unknown periods.
func PeriodStart(period string, now time.Time, loc *time.Location) time.Time {
	t := now.In(loc)
	y, m, d := t.Date()
	switch period {
	case PeriodDaily:
		return time.Date(y, m, d, 0, 0, 0, 0, loc).UTC()
	case PeriodWeekly:
		offset := (int(t.Weekday()) + 6) % 7 // weeks start on Monday
		return time.Date(y, m, d-offset, 0, 0, 0, 0, loc).UTC()
	case PeriodMonthly:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc).UTC()
	case PeriodYearly:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, loc).UTC()
	}
	return time.Time{}
}

// Leaderboard ranks the server's voters by vote count within the period.
// Votes are grouped by player name, whether or not they carried a uuid.
func (s *Service) Leaderboard(ctx context.Context, serverID uint, period string, limit int, now time.Time) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > MaxLeaderboardSize {
		limit = MaxLeaderboardSize
	}

	q := s.db.WithContext(ctx).Model(&model.Vote{}).Where("server_id = ?", serverID)
	if start := PeriodStart(period, now, s.loc); !start.IsZero() {
		q = q.Where("created_at >= ?", start)
	}

	var rows []struct {
		MinecraftUsername string
		MinecraftUUID     string
		VoteCount         int64
		LastID            uint
	}
	err := q.Select("minecraft_username, MAX(minecraft_uuid) AS minecraft_uuid, COUNT(*) AS vote_count, MAX(id) AS last_id").
		Group("minecraft_username").
		Order("vote_count desc, last_id asc").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.LastID)
	}
	lastAt := make(map[uint]time.Time, len(ids))
	if len(ids) > 0 {
		var votes []model.Vote
		if err := s.db.WithContext(ctx).Select("id, created_at").Where("id IN ?", ids).Find(&votes).Error; err != nil {
			return nil, err
		}
		for _, v := range votes {
			lastAt[v.ID] = v.CreatedAt
		}
	}

	entries := make([]LeaderboardEntry, 0, len(rows))
	for i, r := range rows {
		entries = append(entries, LeaderboardEntry{
			Position:   i + 1,
			PlayerUUID: r.MinecraftUUID,
			PlayerName: r.MinecraftUsername,
			Votes:      r.VoteCount,
			LastVoteAt: lastAt[r.LastID],
		})
	}
	return entries, nil
}

// Summary counts the server's votes over the usual periods.
func (s *Service) Summary(ctx context.Context, serverID uint, now time.Time) (*Summary, error) {
	db := s.db.WithContext(ctx)
	count := func(where string, args ...interface{}) (int64, error) {
		var n int64
		err := db.Model(&model.Vote{}).Where("server_id = ?", serverID).Where(where, args...).Count(&n).Error
		return n, err
	}

	var sum Summary
	var err error
	if sum.Today, err = count("created_at >= ?", PeriodStart(PeriodDaily, now, s.loc)); err != nil {
		return nil, err
	}
	if sum.ThisWeek, err = count("created_at >= ?", PeriodStart(PeriodWeekly, now, s.loc)); err != nil {
		return nil, err
	}
	if sum.ThisMonth, err = count("created_at >= ?", PeriodStart(PeriodMonthly, now, s.loc)); err != nil {
		return nil, err
	}
	if sum.Total, err = count("1 = 1"); err != nil {
		return nil, err
	}
	if sum.PendingClaims, err = count("claimed = ?", false); err != nil {
		return nil, err
	}
	return &sum, nil
}
