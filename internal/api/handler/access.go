package handler

import (
	"errors"
	"net/http"
	"time"

	"kaizen-votes/internal/api/middleware"
	"kaizen-votes/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// manageableServer loads the server named by :id and checks that the caller
// is an admin or holds a manage/full permission on it. On failure the
// response has already been written.
func manageableServer(c *gin.Context, db *gorm.DB) (*model.Server, bool) {
	serverID, ok := paramID(c, "id")
	if !ok {
		return nil, false
	}

	var server model.Server
	if err := db.First(&server, serverID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "server not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch server"})
		return nil, false
	}

	if middleware.IsAdmin(c) {
		return &server, true
	}

	var permission model.ServerPermission
	err := db.Where("user_id = ? AND server_id = ?", middleware.UserID(c), serverID).First(&permission).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusForbidden, gin.H{"error": "access to this server is denied"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check permissions"})
		return nil, false
	}
	if !permission.CanManage(time.Now()) {
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions: 'manage' access required"})
		return nil, false
	}
	return &server, true
}
