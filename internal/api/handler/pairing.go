package handler

import (
	"net/http"
	"time"

	"kaizen-votes/internal/model"
	"kaizen-votes/internal/pairing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// tokenView is what owners see of a token; the bearer secret never leaves
// the pairing response.
type tokenView struct {
	ID               uint             `json:"id"`
	Name             string           `json:"name"`
	State            model.TokenState `json:"state"`
	Token            string           `json:"token,omitempty"`
	PairingCode      *string          `json:"pairing_code,omitempty"`
	PairingExpiresAt *time.Time       `json:"pairing_expires_at,omitempty"`
	PairedAt         *time.Time       `json:"paired_at,omitempty"`
	LastUsedAt       *time.Time       `json:"last_used_at,omitempty"`
	LastUsedIP       string           `json:"last_used_ip,omitempty"`
	RequestCount     int64            `json:"request_count"`
	CreatedAt        time.Time        `json:"created_at"`
}

func newTokenView(t *model.ServerToken, now time.Time) tokenView {
	return tokenView{
		ID:               t.ID,
		Name:             t.Name,
		State:            t.State(now),
		Token:            t.RedactedToken(),
		PairingCode:      t.PairingCode,
		PairingExpiresAt: t.PairingExpiresAt,
		PairedAt:         t.PairedAt,
		LastUsedAt:       t.LastUsedAt,
		LastUsedIP:       t.LastUsedIP,
		RequestCount:     t.RequestCount,
		CreatedAt:        t.CreatedAt,
	}
}

// GeneratePairingCode issues a fresh code for the server's plugin.
func GeneratePairingCode(db *gorm.DB, svc *pairing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		server, ok := manageableServer(c, db)
		if !ok {
			return
		}
		now := time.Now()
		tok, err := svc.Generate(c.Request.Context(), server.ID, now)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, newTokenView(tok, now))
	}
}

func RefreshPairingCode(db *gorm.DB, svc *pairing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		server, ok := manageableServer(c, db)
		if !ok {
			return
		}
		now := time.Now()
		tok, err := svc.Refresh(c.Request.Context(), server.ID, now)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, newTokenView(tok, now))
	}
}

func ListTokens(db *gorm.DB, svc *pairing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		server, ok := manageableServer(c, db)
		if !ok {
			return
		}
		tokens, err := svc.List(c.Request.Context(), server.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		now := time.Now()
		out := make([]tokenView, 0, len(tokens))
		for i := range tokens {
			out = append(out, newTokenView(&tokens[i], now))
		}
		c.JSON(http.StatusOK, out)
	}
}

func RevokeToken(db *gorm.DB, svc *pairing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		server, ok := manageableServer(c, db)
		if !ok {
			return
		}
		tokenID, ok := paramID(c, "tokenID")
		if !ok {
			return
		}
		if err := svc.Revoke(c.Request.Context(), server.ID, tokenID, time.Now()); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "token revoked"})
	}
}

// PairServer is called by the plugin with the code shown to the owner. The
// response carries the bearer token, the only time it is revealed.
func PairServer(svc *pairing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			PairingCode      string `json:"pairing_code" binding:"required"`
			ServerIP         string `json:"server_ip"`
			ServerPort       int    `json:"server_port" binding:"omitempty,min=1,max=65535"`
			MinecraftVersion string `json:"minecraft_version"`
			PluginVersion    string `json:"plugin_version"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		res, err := svc.Consume(c.Request.Context(), input.PairingCode, pairing.PairInfo{
			ServerIP:         input.ServerIP,
			ServerPort:       input.ServerPort,
			MinecraftVersion: input.MinecraftVersion,
			PluginVersion:    input.PluginVersion,
		}, time.Now())
		if err != nil {
			respondError(c, err)
			return
		}

		serverCache.Flush()
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "server paired",
			"data": gin.H{
				"token": res.Token,
				"server": gin.H{
					"id":   res.Server.ID,
					"name": res.Server.Name,
					"slug": res.Server.Slug,
				},
			},
		})
	}
}
