package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"kaizen-votes/internal/api/middleware"
	"kaizen-votes/internal/vote"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

var leaderboardCache = cache.New(time.Minute, 5*time.Minute)

// CastVote admits a vote from the logged-in user.
func CastVote(svc *vote.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		serverID, ok := paramID(c, "id")
		if !ok {
			return
		}
		var input struct {
			MinecraftUsername string `json:"minecraft_username" binding:"required"`
			MinecraftUUID     string `json:"minecraft_uuid"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		v, err := svc.CastVote(c.Request.Context(), vote.Ballot{
			UserID:            middleware.UserID(c),
			ServerID:          serverID,
			MinecraftUsername: input.MinecraftUsername,
			MinecraftUUID:     input.MinecraftUUID,
			IPAddress:         c.ClientIP(),
			UserAgent:         c.Request.UserAgent(),
		}, time.Now())
		if err != nil {
			respondError(c, err)
			return
		}

		leaderboardCache.Flush()
		c.JSON(http.StatusCreated, gin.H{
			"id":             v.ID,
			"streak":         v.Streak,
			"earned_rewards": v.EarnedRewards,
			"created_at":     v.CreatedAt,
		})
	}
}

func GetCooldownStatus(svc *vote.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		serverID, ok := paramID(c, "id")
		if !ok {
			return
		}
		st, err := svc.CooldownStatus(c.Request.Context(), middleware.UserID(c), serverID, time.Now())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

// ListPendingVotes is polled by the plugin; ?player= narrows it to one uuid.
func ListPendingVotes(svc *vote.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		serverID, ok := paramID(c, "id")
		if !ok {
			return
		}
		votes, err := svc.ListPending(c.Request.Context(), middleware.PluginServer(c).ID, serverID, c.Query("player"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, vote.NewEvents(votes))
	}
}

func ListAllPendingVotes(svc *vote.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		serverID, ok := paramID(c, "id")
		if !ok {
			return
		}
		votes, err := svc.ListAllPending(c.Request.Context(), middleware.PluginServer(c).ID, serverID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, vote.NewEvents(votes))
	}
}

// ClaimVote hands the vote's commands to the plugin, once.
func ClaimVote(svc *vote.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		voteID, ok := paramID(c, "id")
		if !ok {
			return
		}
		res, err := svc.Claim(c.Request.Context(), middleware.PluginServer(c).ID, voteID, time.Now())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "vote claimed",
			"data":    res,
		})
	}
}

func GetLeaderboard(svc *vote.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		serverID, ok := paramID(c, "id")
		if !ok {
			return
		}
		if !pluginOwns(c, serverID) {
			return
		}
		period := c.DefaultQuery("period", vote.PeriodMonthly)
		switch period {
		case vote.PeriodDaily, vote.PeriodWeekly, vote.PeriodMonthly, vote.PeriodYearly, vote.PeriodAll:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid period"})
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", c.DefaultQuery("per_page", "10")))

		cacheKey := fmt.Sprintf("leaderboard_%d_%s_%d", serverID, period, limit)
		if cached, found := leaderboardCache.Get(cacheKey); found {
			c.JSON(http.StatusOK, cached)
			return
		}

		entries, err := svc.Leaderboard(c.Request.Context(), serverID, period, limit, time.Now())
		if err != nil {
			respondError(c, err)
			return
		}

		type entry struct {
			vote.LeaderboardEntry
			LastVote int64 `json:"last_vote"`
		}
		out := make([]entry, 0, len(entries))
		for _, e := range entries {
			out = append(out, entry{LeaderboardEntry: e, LastVote: e.LastVoteAt.UnixMilli()})
		}
		leaderboardCache.Set(cacheKey, out, cache.DefaultExpiration)
		c.JSON(http.StatusOK, out)
	}
}

func GetVoteSummary(svc *vote.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		serverID, ok := paramID(c, "id")
		if !ok {
			return
		}
		if !pluginOwns(c, serverID) {
			return
		}
		sum, err := svc.Summary(c.Request.Context(), serverID, time.Now())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, sum)
	}
}

// pluginOwns rejects plugin calls naming a server other than the token's.
func pluginOwns(c *gin.Context, serverID uint) bool {
	if s := middleware.PluginServer(c); s == nil || s.ID != serverID {
		respondError(c, vote.ErrUnauthorized)
		return false
	}
	return true
}
