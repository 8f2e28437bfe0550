package handler

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"kaizen-votes/internal/api/middleware"
	"kaizen-votes/internal/model"
	"kaizen-votes/internal/stats"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"
)

const (
	serverCacheKeyPrefix = "servers_user_"
	serverCacheTTL       = time.Minute
	serverCacheCleanup   = 10 * time.Minute
)

// Cache for server lists and individual servers
var serverCache = cache.New(serverCacheTTL, serverCacheCleanup)

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(name string) string {
	s := strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if s == "" {
		s = "server"
	}
	return s
}

// ListServers returns the approved servers, most voted this month first
func ListServers(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		const cacheKey = "servers_public"
		if cached, found := serverCache.Get(cacheKey); found {
			c.JSON(http.StatusOK, cached)
			return
		}

		var servers []model.Server
		if err := db.Where("status = ?", model.ServerStatusApproved).
			Order("monthly_votes desc, total_votes desc, id asc").
			Find(&servers).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch servers"})
			return
		}

		serverCache.Set(cacheKey, servers, serverCacheTTL)
		c.JSON(http.StatusOK, servers)
	}
}

// GetServer returns one approved server
func GetServer(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		serverID, ok := paramID(c, "id")
		if !ok {
			return
		}

		cacheKey := fmt.Sprintf("server_%d", serverID)
		if cached, found := serverCache.Get(cacheKey); found {
			c.JSON(http.StatusOK, cached)
			return
		}

		var server model.Server
		if err := db.Where("status = ?", model.ServerStatusApproved).First(&server, serverID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "server not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch server"})
			return
		}

		serverCache.Set(cacheKey, server, serverCacheTTL)
		c.JSON(http.StatusOK, server)
	}
}

// ListMyServers handles listing servers based on user permissions
func ListMyServers(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.UserID(c)

		var servers []model.Server
		cacheKey := fmt.Sprintf("%s%d", serverCacheKeyPrefix, userID)
		if cachedServers, found := serverCache.Get(cacheKey); found {
			c.JSON(http.StatusOK, cachedServers)
			return
		}

		if middleware.IsAdmin(c) {
			// Admins get all servers
			if err := db.Order("id asc").Find(&servers).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch servers for admin"})
				return
			}
		} else {
			// Regular users get only permitted servers
			var permissions []model.ServerPermission
			if err := db.Where("user_id = ?", userID).Find(&permissions).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch user permissions"})
				return
			}

			if len(permissions) == 0 {
				c.JSON(http.StatusOK, []model.Server{})
				return
			}

			serverIDs := make([]uint, len(permissions))
			for i, p := range permissions {
				serverIDs[i] = p.ServerID
			}

			if err := db.Where("id IN ?", serverIDs).Order("id asc").Find(&servers).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch permitted servers"})
				return
			}
		}

		serverCache.Set(cacheKey, servers, serverCacheTTL)
		c.JSON(http.StatusOK, servers)
	}
}

// CreateServer lists a new server, pending approval, and gives its creator
// full access
func CreateServer(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Name      string `json:"name" binding:"required"`
			Slug      string `json:"slug"`
			IPAddress string `json:"ip_address"`
			Port      int    `json:"port"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		currentUserID := middleware.UserID(c)
		slug := input.Slug
		if slug == "" {
			slug = input.Name
		}
		slug = slugify(slug)

		port := input.Port
		if port == 0 {
			port = model.DefaultMinecraftPort
		}
		server := model.Server{
			Name:      strings.TrimSpace(input.Name),
			Slug:      slug,
			OwnerID:   currentUserID,
			Status:    model.ServerStatusPending,
			IPAddress: input.IPAddress,
			Port:      port,
		}

		err := db.Transaction(func(tx *gorm.DB) error {
			var taken int64
			if err := tx.Unscoped().Model(&model.Server{}).Where("slug = ?", server.Slug).Count(&taken).Error; err != nil {
				return err
			}
			if taken > 0 {
				server.Slug = fmt.Sprintf("%s-%s", server.Slug, uuid.NewString()[:6])
			}

			if err := tx.Create(&server).Error; err != nil {
				return err
			}

			permission := model.ServerPermission{
				UserID:      currentUserID,
				ServerID:    server.ID,
				AccessLevel: model.AccessLevelFull,
			}
			return tx.Create(&permission).Error
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create server and assign permissions"})
			return
		}

		serverCache.Flush()
		c.JSON(http.StatusCreated, server)
	}
}

// UpdateServer handles updating an existing server entry
func UpdateServer(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		server, ok := manageableServer(c, db)
		if !ok {
			return
		}

		var input struct {
			Name           string `json:"name"`
			IPAddress      string `json:"ip_address"`
			Port           int    `json:"port"`
			TelegramChatID *int64 `json:"telegram_chat_id"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// Update fields if provided
		updates := map[string]interface{}{}
		if input.Name != "" {
			updates["name"] = strings.TrimSpace(input.Name)
		}
		if input.IPAddress != "" {
			updates["ip_address"] = input.IPAddress
		}
		if input.Port != 0 {
			updates["port"] = input.Port
		}
		if input.TelegramChatID != nil {
			updates["telegram_chat_id"] = *input.TelegramChatID
		}
		if len(updates) > 0 {
			if err := db.Model(server).Updates(updates).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update server"})
				return
			}
		}

		serverCache.Flush()
		c.JSON(http.StatusOK, server)
	}
}

// UpdateServerStatus approves, rejects or suspends a listing (admin only)
func UpdateServerStatus(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		serverID, ok := paramID(c, "id")
		if !ok {
			return
		}
		var input struct {
			Status model.ServerStatus `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		switch input.Status {
		case model.ServerStatusPending, model.ServerStatusApproved, model.ServerStatusRejected, model.ServerStatusSuspended:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}

		res := db.Model(&model.Server{}).Where("id = ?", serverID).Update("status", input.Status)
		if res.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update status"})
			return
		}
		if res.RowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "server not found"})
			return
		}

		serverCache.Flush()
		c.JSON(http.StatusOK, gin.H{"message": "status updated", "status": input.Status})
	}
}

// DeleteServer removes a listing and shuts out its plugins
func DeleteServer(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		server, ok := manageableServer(c, db)
		if !ok {
			return
		}

		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&model.ServerToken{}).Where("server_id = ?", server.ID).
				Updates(map[string]interface{}{"is_active": false, "pairing_code": nil, "pairing_expires_at": nil}).Error; err != nil {
				return err
			}
			if err := tx.Where("server_id = ?", server.ID).Delete(&model.ServerPermission{}).Error; err != nil {
				return err
			}
			return tx.Delete(server).Error
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete server"})
			return
		}

		serverCache.Flush()
		c.JSON(http.StatusOK, gin.H{"message": "server deleted successfully"})
	}
}

// ReportServerStats receives the periodic heartbeat of a paired plugin
func ReportServerStats(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		serverID, ok := paramID(c, "id")
		if !ok || !pluginOwns(c, serverID) {
			return
		}

		var input struct {
			PlayersOnline int     `json:"players_online"`
			MaxPlayers    int     `json:"max_players"`
			TPS           float64 `json:"tps"`
			Version       string  `json:"version"`
			PluginVersion string  `json:"plugin_version"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		err := stats.Report(c.Request.Context(), db, model.StatsHistory{
			ServerID:   serverID,
			Players:    input.PlayersOnline,
			MaxPlayers: input.MaxPlayers,
			TPS:        input.TPS,
		}, time.Now())
		if err != nil {
			respondError(c, err)
			return
		}

		versions := map[string]interface{}{}
		if input.Version != "" {
			versions["minecraft_version"] = input.Version
		}
		if input.PluginVersion != "" {
			versions["plugin_version"] = input.PluginVersion
		}
		if len(versions) > 0 {
			if err := db.Model(&model.Server{}).Where("id = ?", serverID).Updates(versions).Error; err != nil {
				respondError(c, err)
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// GetStatsHistory returns the player/TPS samples of a server for the owner
// dashboard
func GetStatsHistory(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		server, ok := manageableServer(c, db)
		if !ok {
			return
		}

		now := time.Now().UTC()
		var startTime time.Time
		switch c.Query("range") {
		case "1H":
			startTime = now.Add(-1 * time.Hour)
		case "7D":
			startTime = now.AddDate(0, 0, -7)
		case "1M":
			startTime = now.AddDate(0, -1, 0)
		default:
			startTime = now.Add(-24 * time.Hour)
		}

		var history []model.StatsHistory
		if err := db.Where("server_id = ? AND timestamp >= ?", server.ID, startTime).
			Order("timestamp asc").Find(&history).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch history"})
			return
		}
		c.JSON(http.StatusOK, history)
	}
}
