package reward

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisCounter(t *testing.T) (*RedisCounter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisCounter(rdb), mr
}

func TestRedisCounterLimitUnderConcurrency(t *testing.T) {
	c, _ := newRedisCounter(t)
	ctx := context.Background()
	limit := 1

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := c.TryAward(ctx, nil, 7, "2026-05-01", &limit)
			if err != nil {
				t.Errorf("try award: %v", err)
				return
			}
			if ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if granted != 1 {
		t.Fatalf("%d awards granted, want 1", granted)
	}
	if n, _ := c.Count(ctx, nil, 7, "2026-05-01"); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}

	for i := 0; i < 2; i++ {
		if err := c.Release(ctx, 7, "2026-05-01"); err != nil {
			t.Fatal(err)
		}
		if n, _ := c.Count(ctx, nil, 7, "2026-05-01"); n != 0 {
			t.Errorf("count after release %d = %d, want 0", i+1, n)
		}
	}

	if ok, _ := c.TryAward(ctx, nil, 7, "2026-05-01", &limit); !ok {
		t.Error("released slot was not reusable")
	}
}

func TestRedisCounterLimits(t *testing.T) {
	c, mr := newRedisCounter(t)
	ctx := context.Background()
	zero := 0

	if ok, err := c.TryAward(ctx, nil, 1, "2026-05-01", &zero); err != nil || ok {
		t.Errorf("limit 0: got %v, %v", ok, err)
	}
	if n, _ := c.Count(ctx, nil, 1, "2026-05-01"); n != 0 {
		t.Errorf("limit 0 left count %d", n)
	}

	for i := 0; i < 5; i++ {
		if ok, err := c.TryAward(ctx, nil, 2, "2026-05-01", nil); err != nil || !ok {
			t.Fatalf("unlimited award %d: got %v, %v", i, ok, err)
		}
	}
	if n, _ := c.Count(ctx, nil, 2, "2026-05-01"); n != 5 {
		t.Errorf("unlimited count = %d, want 5", n)
	}
	if n, _ := c.Count(ctx, nil, 2, "2026-05-02"); n != 0 {
		t.Errorf("next day count = %d, want 0", n)
	}
	if ttl := mr.TTL(c.key(2, "2026-05-01")); ttl != counterTTL {
		t.Errorf("ttl = %v, want %v", ttl, counterTTL)
	}
	if c.Transactional() {
		t.Error("redis counter reports itself transactional")
	}
}
