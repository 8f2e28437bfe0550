package vote

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"kaizen-votes/internal/database"
	"kaizen-votes/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// base is a Wednesday.
var base = time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC)

func always(int) bool { return true }
func never(int) bool  { return false }

func intPtr(v int) *int { return &v }

type fixture struct {
	db     *gorm.DB
	svc    *Service
	server model.Server
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	db, err := database.OpenMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	server := model.Server{Name: "Kaizen", Slug: "kaizen", Status: model.ServerStatusApproved}
	if err := db.Create(&server).Error; err != nil {
		t.Fatalf("create server: %v", err)
	}
	opts = append([]Option{WithRoll(always)}, opts...)
	return &fixture{db: db, svc: NewService(db, nil, opts...), server: server}
}

func (f *fixture) addServer(t *testing.T, slug string, status model.ServerStatus) model.Server {
	t.Helper()
	s := model.Server{Name: slug, Slug: slug, Status: status}
	if err := f.db.Create(&s).Error; err != nil {
		t.Fatal(err)
	}
	return s
}

func (f *fixture) addReward(t *testing.T, r model.Reward) model.Reward {
	t.Helper()
	if r.ServerID == 0 {
		r.ServerID = f.server.ID
	}
	if r.RewardType == "" {
		r.RewardType = model.RewardTypeCommand
	}
	if r.Chance == 0 {
		r.Chance = 100
	}
	r.IsActive = true
	if err := f.db.Create(&r).Error; err != nil {
		t.Fatal(err)
	}
	return r
}

func (f *fixture) vote(t *testing.T, userID uint, name string, at time.Time) *model.Vote {
	t.Helper()
	v, err := f.svc.CastVote(context.Background(), Ballot{UserID: userID, ServerID: f.server.ID, MinecraftUsername: name}, at)
	if err != nil {
		t.Fatalf("vote by %d at %v: %v", userID, at, err)
	}
	return v
}

func TestCastVoteCooldown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.vote(t, 1, "Steve", base)

	_, err := f.svc.CastVote(ctx, Ballot{UserID: 1, ServerID: f.server.ID, MinecraftUsername: "Steve"}, base.Add(23*time.Hour))
	var cd *CooldownError
	if !errors.As(err, &cd) || !errors.Is(err, ErrCooldownActive) {
		t.Fatalf("got %v, want a cooldown error", err)
	}
	if cd.Remaining != 3600 {
		t.Errorf("remaining = %d, want 3600", cd.Remaining)
	}

	// Other users and other servers are independent.
	f.vote(t, 2, "Alex", base.Add(time.Minute))
	other := f.addServer(t, "other", model.ServerStatusApproved)
	if _, err := f.svc.CastVote(ctx, Ballot{UserID: 1, ServerID: other.ID, MinecraftUsername: "Steve"}, base.Add(time.Minute)); err != nil {
		t.Errorf("vote on another server: %v", err)
	}

	f.vote(t, 1, "Steve", base.Add(24*time.Hour))

	var count int64
	f.db.Model(&model.Vote{}).Where("server_id = ? AND user_id = ?", f.server.ID, 1).Count(&count)
	if count != 2 {
		t.Errorf("%d votes stored, want 2", count)
	}
}

func TestCastVoteSameUserConcurrently(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, cooldown int
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CastVote(ctx, Ballot{UserID: 1, ServerID: f.server.ID, MinecraftUsername: "Steve"}, base)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrCooldownActive):
				cooldown++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok != 1 || cooldown != 19 {
		t.Fatalf("ok=%d cooldown=%d, want 1 and 19", ok, cooldown)
	}
}

func TestStreak(t *testing.T) {
	f := newFixture(t)
	steps := []struct {
		at   time.Duration
		want int
	}{
		{0, 1},
		{25 * time.Hour, 2},
		{80 * time.Hour, 1},
		{104 * time.Hour, 2},
		{152 * time.Hour, 3},
	}
	for _, s := range steps {
		v := f.vote(t, 1, "Steve", base.Add(s.at))
		if v.Streak != s.want {
			t.Errorf("vote at +%v: streak %d, want %d", s.at, v.Streak, s.want)
		}
	}
}

func TestCastVoteRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending := f.addServer(t, "pending", model.ServerStatusPending)
	suspended := f.addServer(t, "suspended", model.ServerStatusSuspended)

	tests := []struct {
		name string
		b    Ballot
		want error
	}{
		{"too short", Ballot{ServerID: f.server.ID, MinecraftUsername: "ab"}, ErrInvalidUsername},
		{"too long", Ballot{ServerID: f.server.ID, MinecraftUsername: "abcdefghijklmnopq"}, ErrInvalidUsername},
		{"bad chars", Ballot{ServerID: f.server.ID, MinecraftUsername: "bad-name"}, ErrInvalidUsername},
		{"bad uuid", Ballot{ServerID: f.server.ID, MinecraftUsername: "Steve", MinecraftUUID: "nope"}, ErrInvalidUUID},
		{"pending server", Ballot{ServerID: pending.ID, MinecraftUsername: "Steve"}, ErrServerNotApproved},
		{"suspended server", Ballot{ServerID: suspended.ID, MinecraftUsername: "Steve"}, ErrServerNotApproved},
		{"unknown server", Ballot{ServerID: 999, MinecraftUsername: "Steve"}, ErrServerNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.b.UserID = 1
			if _, err := f.svc.CastVote(ctx, tt.b, base); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	var count int64
	f.db.Model(&model.Vote{}).Count(&count)
	if count != 0 {
		t.Errorf("%d votes stored by rejected ballots", count)
	}
}

func TestCastVoteStoresMetadata(t *testing.T) {
	f := newFixture(t)
	v, err := f.svc.CastVote(context.Background(), Ballot{
		UserID:            1,
		ServerID:          f.server.ID,
		MinecraftUsername: "  Steve_01 ",
		MinecraftUUID:     "069A79F444E94726A5BEFCA90E38AAF5",
		IPAddress:         "203.0.113.9",
		UserAgent:         "test",
	}, base)
	if err != nil {
		t.Fatal(err)
	}
	var got model.Vote
	if err := f.db.First(&got, v.ID).Error; err != nil {
		t.Fatal(err)
	}
	if got.MinecraftUsername != "Steve_01" || got.MinecraftUUID != "069a79f4-44e9-4726-a5be-fca90e38aaf5" {
		t.Errorf("stored %q / %q", got.MinecraftUsername, got.MinecraftUUID)
	}
	if got.IPAddress != "203.0.113.9" || got.Claimed {
		t.Errorf("unexpected vote %+v", got)
	}

	var server model.Server
	if err := f.db.First(&server, f.server.ID).Error; err != nil {
		t.Fatal(err)
	}
	if server.TotalVotes != 1 || server.MonthlyVotes != 1 {
		t.Errorf("aggregates total=%d monthly=%d", server.TotalVotes, server.MonthlyVotes)
	}
}

func TestEarnedRewardsFrozen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.addReward(t, model.Reward{Name: "Diamonds", Commands: datatypes.JSONSlice[string]{"give {player} diamond"}})

	v := f.vote(t, 1, "Steve", base)
	if !reflect.DeepEqual([]uint(v.EarnedRewards), []uint{r.ID}) {
		t.Fatalf("earned = %v", v.EarnedRewards)
	}

	// Edit the reward so it would no longer be earned.
	r.IsActive = false
	r.Chance = 1
	r.MinVotes = intPtr(50)
	r.Commands = datatypes.JSONSlice[string]{"give {player} emerald"}
	if err := f.db.Save(&r).Error; err != nil {
		t.Fatal(err)
	}
	// Saving the vote struct must not rewrite its reward list.
	v.EarnedRewards = datatypes.JSONSlice[uint]{}
	if err := f.db.Save(v).Error; err != nil {
		t.Fatal(err)
	}

	var stored model.Vote
	if err := f.db.First(&stored, v.ID).Error; err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual([]uint(stored.EarnedRewards), []uint{r.ID}) {
		t.Fatalf("earned rewards changed to %v", stored.EarnedRewards)
	}

	res, err := f.svc.Claim(ctx, f.server.ID, v.ID, base.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res.Commands, []string{"give Steve emerald"}) {
		t.Errorf("commands = %q", res.Commands)
	}
}

func TestMinVotesGating(t *testing.T) {
	f := newFixture(t)
	loyal := f.addReward(t, model.Reward{Name: "Loyal", MinVotes: intPtr(2), Commands: datatypes.JSONSlice[string]{"say {player}"}})

	for i, want := range []int{0, 0, 1, 1} {
		v := f.vote(t, 1, "Steve", base.Add(time.Duration(i)*24*time.Hour))
		if len(v.EarnedRewards) != want {
			t.Errorf("vote %d: earned %v, want %d reward(s)", i+1, v.EarnedRewards, want)
		}
		if want == 1 && v.EarnedRewards[0] != loyal.ID {
			t.Errorf("vote %d earned %v", i+1, v.EarnedRewards)
		}
	}
}

func TestChanceMisses(t *testing.T) {
	f := newFixture(t, WithRoll(never))
	f.addReward(t, model.Reward{Name: "Rare", Chance: 5, DailyLimit: intPtr(3), Commands: datatypes.JSONSlice[string]{"say {player}"}})

	v := f.vote(t, 1, "Steve", base)
	if len(v.EarnedRewards) != 0 {
		t.Errorf("earned %v on a miss", v.EarnedRewards)
	}
	var awards int64
	f.db.Model(&model.RewardAward{}).Where("awarded > 0").Count(&awards)
	if awards != 0 {
		t.Errorf("counter advanced on a miss")
	}
}

func TestDailyLimitUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	limited := f.addReward(t, model.Reward{Name: "Daily", DailyLimit: intPtr(1), SortOrder: 1, Commands: datatypes.JSONSlice[string]{"say {player}"}})
	open := f.addReward(t, model.Reward{Name: "Always", SortOrder: 2, Commands: datatypes.JSONSlice[string]{"say {player}"}})

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(user uint) {
			defer wg.Done()
			_, err := f.svc.CastVote(ctx, Ballot{UserID: user, ServerID: f.server.ID, MinecraftUsername: "Player"}, base)
			errs <- err
		}(uint(i + 1))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("vote failed: %v", err)
		}
	}

	var votes []model.Vote
	f.db.Find(&votes)
	if len(votes) != 100 {
		t.Fatalf("%d votes, want 100", len(votes))
	}
	limitedAwards, openAwards := 0, 0
	for _, v := range votes {
		for _, id := range v.EarnedRewards {
			switch id {
			case limited.ID:
				limitedAwards++
			case open.ID:
				openAwards++
			}
		}
	}
	if limitedAwards != 1 {
		t.Errorf("daily-limited reward granted %d times, want 1", limitedAwards)
	}
	if openAwards != 100 {
		t.Errorf("unlimited reward granted %d times, want 100", openAwards)
	}

	// The next calendar day has a fresh allowance.
	v := f.vote(t, 1, "Player", base.Add(24*time.Hour))
	if len(v.EarnedRewards) != 2 {
		t.Errorf("next day earned %v", v.EarnedRewards)
	}
}

func TestCooldownStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st, err := f.svc.CooldownStatus(ctx, 1, f.server.ID, base)
	if err != nil {
		t.Fatal(err)
	}
	if !st.CanVote || st.CooldownRemaining != 0 || st.LastVoteAt != nil || st.CurrentStreak != 0 {
		t.Errorf("before voting: %+v", st)
	}

	f.vote(t, 1, "Steve", base)
	st, err = f.svc.CooldownStatus(ctx, 1, f.server.ID, base)
	if err != nil {
		t.Fatal(err)
	}
	if st.CanVote || st.CooldownRemaining != 86400 || st.CurrentStreak != 1 {
		t.Errorf("right after voting: %+v", st)
	}

	st, _ = f.svc.CooldownStatus(ctx, 1, f.server.ID, base.Add(10*time.Second+500*time.Millisecond))
	if st.CooldownRemaining != 86390 {
		t.Errorf("remaining = %d, want 86390", st.CooldownRemaining)
	}

	st, _ = f.svc.CooldownStatus(ctx, 1, f.server.ID, base.Add(50*time.Hour))
	if !st.CanVote || st.CurrentStreak != 0 {
		t.Errorf("after the streak window: %+v", st)
	}

	f.db.Model(&model.Server{}).Where("id = ?", f.server.ID).Update("status", model.ServerStatusSuspended)
	st, _ = f.svc.CooldownStatus(ctx, 1, f.server.ID, base.Add(50*time.Hour))
	if st.CanVote {
		t.Error("suspended server accepts votes")
	}

	if _, err := f.svc.CooldownStatus(ctx, 1, 999, base); !errors.Is(err, ErrServerNotFound) {
		t.Errorf("unknown server: got %v", err)
	}
}

type recorder struct {
	mu    sync.Mutex
	votes []model.Vote
}

func (r *recorder) VoteSettled(_ context.Context, v model.Vote, _ model.Server) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.votes = append(r.votes, v)
}

func TestNotifiers(t *testing.T) {
	rec := &recorder{}
	f := newFixture(t, WithNotifier(rec))
	late := &recorder{}
	f.svc.AddNotifier(late)

	v := f.vote(t, 1, "Steve", base)
	if _, err := f.svc.CastVote(context.Background(), Ballot{UserID: 1, ServerID: f.server.ID, MinecraftUsername: "Steve"}, base); err == nil {
		t.Fatal("second vote admitted")
	}

	if len(rec.votes) != 1 || rec.votes[0].ID != v.ID {
		t.Errorf("notifier saw %+v", rec.votes)
	}
	if len(late.votes) != 1 {
		t.Errorf("late notifier saw %d votes", len(late.votes))
	}
}
