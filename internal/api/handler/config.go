package handler

import (
	"errors"
	"net/http"

	"kaizen-votes/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ConfigValue reads a runtime setting, "" when it was never set.
func ConfigValue(db *gorm.DB, key string) (string, error) {
	var cfg model.Config
	// struct condition, so the reserved column name gets quoted on mysql
	if err := db.Where(&model.Config{Key: key}).First(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return cfg.Value, nil
}

func setConfigValue(db *gorm.DB, key, value string) error {
	return db.Where(&model.Config{Key: key}).
		Assign(model.Config{Value: value}).
		FirstOrCreate(&model.Config{}).Error
}

// GetSiteConfig retrieves the Telegram Bot Token and public site URL.
func GetSiteConfig(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		botToken, err := ConfigValue(db, model.ConfigKeyTelegramBotToken)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve Telegram Bot Token"})
			return
		}
		siteURL, err := ConfigValue(db, model.ConfigKeySiteURL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve site URL"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"bot_token": botToken,
			"site_url":  siteURL,
		})
	}
}

// UpdateSiteConfig stores the Telegram Bot Token and public site URL. The bot
// picks up a new token on the next restart.
func UpdateSiteConfig(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			BotToken string `json:"bot_token"`
			SiteURL  string `json:"site_url"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := setConfigValue(db, model.ConfigKeyTelegramBotToken, input.BotToken); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update Telegram Bot Token"})
			return
		}
		if err := setConfigValue(db, model.ConfigKeySiteURL, input.SiteURL); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update site URL"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Configuration updated successfully"})
	}
}
