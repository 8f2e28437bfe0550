package reward

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// awardScript increments KEYS[1] only while it is below ARGV[1] (negative
// means unlimited) and keeps the key for ARGV[2] seconds.
var awardScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if limit >= 0 and current >= limit then
	return 0
end
redis.call('INCR', KEYS[1])
redis.call('EXPIRE', KEYS[1], ARGV[2])
return 1
`)

var releaseScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current > 0 then
	redis.call('DECR', KEYS[1])
end
return 1
`)

// counterTTL keeps a day's key around long enough for every timezone to have
// left that day.
const counterTTL = 48 * time.Hour

// RedisCounter shares award counters between several API processes.
type RedisCounter struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisCounter(rdb redis.UniversalClient) *RedisCounter {
	return &RedisCounter{rdb: rdb, prefix: "reward_award"}
}

func (c *RedisCounter) key(rewardID uint, day string) string {
	return fmt.Sprintf("%s:%d:%s", c.prefix, rewardID, day)
}

func (c *RedisCounter) Transactional() bool { return false }

func (c *RedisCounter) Count(ctx context.Context, _ *gorm.DB, rewardID uint, day string) (int, error) {
	n, err := c.rdb.Get(ctx, c.key(rewardID, day)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (c *RedisCounter) TryAward(ctx context.Context, _ *gorm.DB, rewardID uint, day string, limit *int) (bool, error) {
	l := -1
	if limit != nil {
		l = *limit
	}
	res, err := awardScript.Run(ctx, c.rdb, []string{c.key(rewardID, day)}, l, int(counterTTL.Seconds())).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (c *RedisCounter) Release(ctx context.Context, rewardID uint, day string) error {
	return releaseScript.Run(ctx, c.rdb, []string{c.key(rewardID, day)}).Err()
}
