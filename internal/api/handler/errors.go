package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"kaizen-votes/internal/pairing"
	"kaizen-votes/internal/reward"
	"kaizen-votes/internal/vote"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// respondError maps service errors to HTTP statuses. Unknown errors are
// logged and reported as a generic 500.
func respondError(c *gin.Context, err error) {
	var cooldown *vote.CooldownError
	switch {
	case errors.As(err, &cooldown):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": vote.ErrCooldownActive.Error(), "cooldown_remaining": cooldown.Remaining})
	case errors.Is(err, vote.ErrInvalidUsername),
		errors.Is(err, vote.ErrInvalidUUID),
		errors.Is(err, reward.ErrInvalidReward):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, vote.ErrServerNotApproved),
		errors.Is(err, pairing.ErrServerNotApproved),
		errors.Is(err, vote.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, pairing.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, vote.ErrAlreadyClaimed),
		errors.Is(err, pairing.ErrAlreadyPaired):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, pairing.ErrInvalidOrExpiredCode),
		errors.Is(err, vote.ErrVoteNotFound),
		errors.Is(err, vote.ErrServerNotFound),
		errors.Is(err, pairing.ErrServerNotFound),
		errors.Is(err, pairing.ErrTokenNotFound),
		errors.Is(err, reward.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		log.Printf("[api] %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// paramID parses a numeric path parameter, answering 400 when it is not one.
func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}
