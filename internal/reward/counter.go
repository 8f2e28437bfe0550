package reward

import (
	"context"
	"errors"
	"time"

	"kaizen-votes/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const dayLayout = "2006-01-02"

// Day returns the counter key of the calendar day containing t in loc.
func Day(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(dayLayout)
}

// Counter tracks per reward, per day awards with a bounded increment.
//
// tx is the settlement transaction. Counters stored in the same database
// join it and are undone by its rollback; counters stored elsewhere ignore
// it and are compensated through Release.
type Counter interface {
	Count(ctx context.Context, tx *gorm.DB, rewardID uint, day string) (int, error)
	// TryAward increments the counter unless limit is set and already reached.
	TryAward(ctx context.Context, tx *gorm.DB, rewardID uint, day string, limit *int) (bool, error)
	Release(ctx context.Context, rewardID uint, day string) error
	Transactional() bool
}

// GormCounter keeps the counters in the reward_awards table.
type GormCounter struct{}

func NewGormCounter() *GormCounter { return &GormCounter{} }

func (GormCounter) Transactional() bool { return true }

func (GormCounter) Count(ctx context.Context, tx *gorm.DB, rewardID uint, day string) (int, error) {
	var award model.RewardAward
	err := tx.WithContext(ctx).Where("reward_id = ? AND day = ?", rewardID, day).First(&award).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	return award.Awarded, err
}

func (GormCounter) TryAward(ctx context.Context, tx *gorm.DB, rewardID uint, day string, limit *int) (bool, error) {
	if limit != nil && *limit <= 0 {
		return false, nil
	}
	tx = tx.WithContext(ctx)
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.RewardAward{RewardID: rewardID, Day: day}).Error; err != nil {
		return false, err
	}

	q := tx.Model(&model.RewardAward{}).Where("reward_id = ? AND day = ?", rewardID, day)
	if limit != nil {
		q = q.Where("awarded < ?", *limit)
	}
	res := q.Update("awarded", gorm.Expr("awarded + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Release is a no-op: the settlement rollback already reverts the row.
func (GormCounter) Release(context.Context, uint, string) error { return nil }
