package middleware

import (
	"errors"
	"log"
	"net/http"
	"time"

	"kaizen-votes/internal/model"
	"kaizen-votes/internal/pairing"

	"github.com/gin-gonic/gin"
)

// PluginAuth authenticates a paired game-server plugin by its bearer token
// and attaches the server it belongs to.
func PluginAuth(svc *pairing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		bearer, err := getToken(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		tok, server, err := svc.Authenticate(c.Request.Context(), bearer, c.ClientIP(), time.Now())
		switch {
		case errors.Is(err, pairing.ErrUnauthorized):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or revoked token"})
			return
		case errors.Is(err, pairing.ErrServerNotApproved):
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "server not found or not approved"})
			return
		case err != nil:
			log.Printf("[plugin] authenticate: %v", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.Set("server", server)
		c.Set("serverToken", tok)
		c.Next()
	}
}

// PluginServer returns the server authenticated by PluginAuth.
func PluginServer(c *gin.Context) *model.Server {
	v, _ := c.Get("server")
	s, _ := v.(*model.Server)
	return s
}
