package handler

import (
	"net/http"

	"kaizen-votes/internal/model"
	"kaizen-votes/internal/reward"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type rewardInput struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	RewardType  model.RewardType `json:"reward_type"`
	Commands    []string         `json:"commands"`
	Chance      *int             `json:"chance"`
	IsActive    *bool            `json:"is_active"`
	MinVotes    *int             `json:"min_votes"`
	DailyLimit  *int             `json:"daily_limit"`
	SortOrder   *int             `json:"sort_order"`
}

func (in *rewardInput) apply(r *model.Reward) {
	if in.Name != "" {
		r.Name = in.Name
	}
	if in.Description != "" {
		r.Description = in.Description
	}
	if in.RewardType != "" {
		r.RewardType = in.RewardType
	}
	if in.Commands != nil {
		r.Commands = datatypes.JSONSlice[string](in.Commands)
	}
	if in.Chance != nil {
		r.Chance = *in.Chance
	}
	if in.IsActive != nil {
		r.IsActive = *in.IsActive
	}
	if in.SortOrder != nil {
		r.SortOrder = *in.SortOrder
	}
	// nil clears the limit, so these are copied as given
	r.MinVotes = in.MinVotes
	r.DailyLimit = in.DailyLimit
}

// ListRewards shows the active rewards of a server to visitors.
func ListRewards(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		serverID, ok := paramID(c, "id")
		if !ok {
			return
		}
		rewards, err := reward.Active(c.Request.Context(), db, serverID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rewards)
	}
}

// ListAllRewards includes inactive rewards, for owners.
func ListAllRewards(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		server, ok := manageableServer(c, db)
		if !ok {
			return
		}
		rewards, err := reward.List(c.Request.Context(), db, server.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rewards)
	}
}

func CreateReward(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		server, ok := manageableServer(c, db)
		if !ok {
			return
		}
		var input rewardInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		r := model.Reward{ServerID: server.ID, RewardType: model.RewardTypeCommand, Chance: 100, IsActive: true}
		input.apply(&r)
		if err := reward.Validate(&r); err != nil {
			respondError(c, err)
			return
		}
		if err := db.Create(&r).Error; err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, r)
	}
}

// UpdateReward edits a reward. Votes already settled keep the reward list
// they were given.
func UpdateReward(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		server, ok := manageableServer(c, db)
		if !ok {
			return
		}
		rewardID, ok := paramID(c, "rewardID")
		if !ok {
			return
		}
		r, err := reward.Get(c.Request.Context(), db, server.ID, rewardID)
		if err != nil {
			respondError(c, err)
			return
		}

		var input rewardInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		input.apply(r)
		if err := reward.Validate(r); err != nil {
			respondError(c, err)
			return
		}
		if err := db.Save(r).Error; err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, r)
	}
}

func DeleteReward(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		server, ok := manageableServer(c, db)
		if !ok {
			return
		}
		rewardID, ok := paramID(c, "rewardID")
		if !ok {
			return
		}
		res := db.Where("server_id = ?", server.ID).Delete(&model.Reward{}, rewardID)
		if res.Error != nil {
			respondError(c, res.Error)
			return
		}
		if res.RowsAffected == 0 {
			respondError(c, reward.ErrNotFound)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "reward deleted"})
	}
}
