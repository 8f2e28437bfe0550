package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kaizen-votes/internal/api/middleware"
	"kaizen-votes/internal/model"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLength = 8

// Register creates a regular user account and logs it in.
func Register(db *gorm.DB, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		input.Username = strings.TrimSpace(input.Username)
		if len(input.Password) < minPasswordLength {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Password must be at least 8 characters"})
			return
		}

		var existing int64
		if err := db.Model(&model.User{}).Where("username = ?", input.Username).Count(&existing).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not create user"})
			return
		}
		if existing > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "Username already taken"})
			return
		}

		user := model.User{
			Username: input.Username,
			Password: input.Password, // BeforeCreate hook will hash this
			Role:     model.RoleUser,
		}
		if err := db.Create(&user).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not create user"})
			return
		}

		tokenString, err := middleware.IssueToken(user, secret, time.Now())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not generate token"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"token": tokenString, "role": user.Role, "user": user})
	}
}

func Login(db *gorm.DB, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var user model.User
		if err := db.Where("username = ?", input.Username).First(&user).Error; err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}

		now := time.Now()
		tokenString, err := middleware.IssueToken(user, secret, now)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not generate token"})
			return
		}

		// Update LastLogin field
		db.Model(&user).Update("last_login", now.UTC())

		c.JSON(http.StatusOK, gin.H{"token": tokenString, "role": user.Role})
	}
}

func ChangePassword(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			CurrentPassword string `json:"current_password"`
			NewPassword     string `json:"new_password"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// Extract user from context (set by AuthMiddleware)
		userID, exists := c.Get("userID")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		var user model.User
		if err := db.First(&user, userID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.CurrentPassword)); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Current password incorrect"})
			return
		}
		if len(input.NewPassword) < minPasswordLength {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Password must be at least 8 characters"})
			return
		}

		// Update password and increment token version to invalidate all existing tokens
		hashedPassword, err := model.HashPassword(input.NewPassword)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
			return
		}

		user.Password = hashedPassword
		user.TokenVersion++
		db.Save(&user)

		c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully"})
	}
}

func ListUsers(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var users []model.User
		db.Find(&users)
		c.JSON(http.StatusOK, users)
	}
}

func CreateUser(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
			Role     string `json:"role"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if input.Role == "" {
			input.Role = model.RoleUser
		}
		if input.Role != model.RoleUser && input.Role != model.RoleAdmin {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role"})
			return
		}

		user := model.User{
			Username: input.Username,
			Password: input.Password, // BeforeCreate hook will hash this
			Role:     input.Role,
		}

		if err := db.Create(&user).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not create user"})
			return
		}
		c.JSON(http.StatusCreated, user)
	}
}

func UpdateUser(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		var user model.User
		if err := db.First(&user, id).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		var input struct {
			Username          string `json:"username"`
			Role              string `json:"role"`
			MinecraftUsername string `json:"minecraft_username"`
		}

		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// Update only non-password fields
		if input.Username != "" {
			user.Username = input.Username
		}
		switch input.Role {
		case "":
		case model.RoleUser, model.RoleAdmin:
			user.Role = input.Role
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role"})
			return
		}
		if input.MinecraftUsername != "" {
			user.MinecraftUsername = input.MinecraftUsername
		}

		if err := db.Save(&user).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not update user"})
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

func DeleteUser(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		// Use a transaction to ensure atomicity
		err := db.Transaction(func(tx *gorm.DB) error {
			// Delete associated server permissions first
			if err := tx.Where("user_id = ?", id).Delete(&model.ServerPermission{}).Error; err != nil {
				return err
			}

			// Then delete the user record permanently
			if err := tx.Unscoped().Delete(&model.User{}, id).Error; err != nil {
				return err
			}

			return nil
		})

		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user and associated permissions"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "User deleted permanently"})
	}
}

func ResetUserPassword(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check if the requesting user is an admin
		if !middleware.IsAdmin(c) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden: Only administrators can reset passwords"})
			return
		}

		id := c.Param("id")
		var input struct {
			NewPassword string `json:"new_password"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var user model.User
		if err := db.First(&user, id).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		// Update password and increment token version to invalidate all existing tokens
		hashedPassword, err := model.HashPassword(input.NewPassword)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
			return
		}

		user.Password = hashedPassword
		user.TokenVersion++
		db.Save(&user)

		c.JSON(http.StatusOK, gin.H{"message": "User password reset successfully"})
	}
}

func GetUserPermissions(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")
		var permissions []model.ServerPermission
		if err := db.Where("user_id = ?", userID).Find(&permissions).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch permissions"})
			return
		}
		c.JSON(http.StatusOK, permissions)
	}
}

func UpdateUserPermissions(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userIDStr := c.Param("id")
		userID, err := strconv.ParseUint(userIDStr, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
			return
		}

		var input struct {
			Permissions []struct {
				ServerID    uint       `json:"server_id"`
				AccessLevel string     `json:"access_level"`
				ExpireAt    *time.Time `json:"expire_at"`
			} `json:"permissions"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		err = db.Transaction(func(tx *gorm.DB) error {
			// Remove existing permissions
			if err := tx.Unscoped().Where("user_id = ?", userID).Delete(&model.ServerPermission{}).Error; err != nil {
				return err
			}

			// Add new permissions
			for _, p := range input.Permissions {
				accessLevel := p.AccessLevel
				switch accessLevel {
				case "":
					accessLevel = model.AccessLevelRead // Default to read-only if not specified
				case model.AccessLevelRead, model.AccessLevelManage, model.AccessLevelFull:
				default:
					return errors.New("invalid access level " + accessLevel)
				}

				permission := model.ServerPermission{
					UserID:      uint(userID),
					ServerID:    p.ServerID,
					AccessLevel: accessLevel,
					ExpireAt:    p.ExpireAt,
				}
				if err := tx.Create(&permission).Error; err != nil {
					return err
				}
			}
			return nil
		})

		if err != nil {
			log.Printf("Transaction failed for user %d permissions update: %v", userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update permissions", "details": err.Error()})
			return
		}

		// Clear server list cache for this specific user
		serverCache.Delete(serverCacheKeyPrefix + strconv.FormatUint(userID, 10))

		c.JSON(http.StatusOK, gin.H{"message": "Permissions updated successfully"})
	}
}
