package stats

import (
	"context"
	"log"
	"time"

	"kaizen-votes/internal/model"
	"kaizen-votes/internal/vote"

	"gorm.io/gorm"
)

type Options struct {
	Interval     time.Duration
	OfflineAfter time.Duration
	Retention    time.Duration
	Location     *time.Location
}

// StartCollector runs the aggregation job every opts.Interval until ctx is done.
func StartCollector(ctx context.Context, db *gorm.DB, opts Options) {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	ticker := time.NewTicker(opts.Interval)
	go func() {
		defer ticker.Stop()
		// Run once at start
		Collect(ctx, db, opts, time.Now())
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				Collect(ctx, db, opts, now)
			}
		}
	}()
}

// Collect performs one pass of the job. Each step logs and continues on error.
func Collect(ctx context.Context, db *gorm.DB, opts Options, now time.Time) {
	now = now.UTC()
	if err := MarkOffline(ctx, db, opts.OfflineAfter, now); err != nil {
		log.Printf("Collector: offline sweep failed: %v", err)
	}
	if err := Recalculate(ctx, db, opts.Location, now); err != nil {
		log.Printf("Collector: vote aggregation failed: %v", err)
	}
	if opts.Retention > 0 {
		if err := db.WithContext(ctx).Where("timestamp < ?", now.Add(-opts.Retention)).
			Delete(&model.StatsHistory{}).Error; err != nil {
			log.Printf("Collector: stats cleanup failed: %v", err)
		}
	}
}

// MarkOffline flags servers whose plugin has not reported within after.
func MarkOffline(ctx context.Context, db *gorm.DB, after time.Duration, now time.Time) error {
	if after <= 0 {
		return nil
	}
	return db.WithContext(ctx).Model(&model.Server{}).
		Where("is_online = ? AND (last_ping_at IS NULL OR last_ping_at < ?)", true, now.UTC().Add(-after)).
		Updates(map[string]interface{}{"is_online": false, "current_players": 0}).Error
}

// Recalculate rebuilds the cached total and monthly vote counts of every
// server from the vote ledger.
func Recalculate(ctx context.Context, db *gorm.DB, loc *time.Location, now time.Time) error {
	if loc == nil {
		loc = time.UTC
	}
	monthStart := vote.PeriodStart(vote.PeriodMonthly, now, loc)

	type row struct {
		ServerID uint
		Total    int64
		Monthly  int64
	}
	var rows []row
	err := db.WithContext(ctx).Model(&model.Vote{}).
		Select("server_id, COUNT(*) AS total, SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END) AS monthly", monthStart).
		Group("server_id").
		Scan(&rows).Error
	if err != nil {
		return err
	}

	counts := make(map[uint]row, len(rows))
	for _, r := range rows {
		counts[r.ServerID] = r
	}

	var servers []model.Server
	if err := db.WithContext(ctx).Select("id", "total_votes", "monthly_votes").Find(&servers).Error; err != nil {
		return err
	}
	for _, s := range servers {
		c := counts[s.ID]
		if c.Total == s.TotalVotes && c.Monthly == s.MonthlyVotes {
			continue
		}
		if err := db.WithContext(ctx).Model(&model.Server{}).Where("id = ?", s.ID).
			Updates(map[string]interface{}{"total_votes": c.Total, "monthly_votes": c.Monthly}).Error; err != nil {
			return err
		}
	}
	return nil
}

// Report stores a sample sent by a server's plugin and marks it online.
func Report(ctx context.Context, db *gorm.DB, sample model.StatsHistory, now time.Time) error {
	now = now.UTC()
	sample.ID = 0
	sample.Timestamp = now
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Server{}).Where("id = ?", sample.ServerID).Updates(map[string]interface{}{
			"is_online":       true,
			"current_players": sample.Players,
			"max_players":     sample.MaxPlayers,
			"tps":             sample.TPS,
			"last_ping_at":    now,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Create(&sample).Error
	})
}
