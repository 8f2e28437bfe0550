// Package api wires the HTTP surface: web users, server owners, admins and
// paired game-server plugins.
package api

import (
	"kaizen-votes/internal/api/handler"
	"kaizen-votes/internal/api/middleware"
	"kaizen-votes/internal/api/websocket"
	"kaizen-votes/internal/model"
	"kaizen-votes/internal/pairing"
	"kaizen-votes/internal/vote"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Deps struct {
	DB        *gorm.DB
	JWTSecret string
	Votes     *vote.Service
	Pairing   *pairing.Service
	Hub       *websocket.Hub
}

func NewRouter(d Deps) *gin.Engine {
	db := d.DB
	r := gin.Default()
	r.Use(middleware.CORSMiddleware())

	public := r.Group("/api/v1")
	{
		public.POST("/register", handler.Register(db, d.JWTSecret))
		public.POST("/login", handler.Login(db, d.JWTSecret))
		public.GET("/servers", handler.ListServers(db))
		public.GET("/servers/:id", handler.GetServer(db))
		public.GET("/servers/:id/rewards", handler.ListRewards(db))
		public.POST("/servers/pair", handler.PairServer(d.Pairing))
	}

	auth := r.Group("/api/v1")
	auth.Use(middleware.AuthMiddleware(db, d.JWTSecret))
	{
		// Voting
		auth.POST("/servers/:id/votes", handler.CastVote(d.Votes))
		auth.GET("/servers/:id/cooldown", handler.GetCooldownStatus(d.Votes))

		// Server Management
		auth.GET("/me/servers", handler.ListMyServers(db))
		auth.POST("/servers", handler.CreateServer(db))
		auth.PUT("/servers/:id", handler.UpdateServer(db))
		auth.DELETE("/servers/:id", handler.DeleteServer(db))
		auth.PUT("/servers/:id/status", middleware.RoleCheck(model.RoleAdmin), handler.UpdateServerStatus(db))
		auth.GET("/servers/:id/stats/history", handler.GetStatsHistory(db))

		// Rewards
		auth.GET("/servers/:id/rewards/all", handler.ListAllRewards(db))
		auth.POST("/servers/:id/rewards", handler.CreateReward(db))
		auth.PUT("/servers/:id/rewards/:rewardID", handler.UpdateReward(db))
		auth.DELETE("/servers/:id/rewards/:rewardID", handler.DeleteReward(db))

		// Plugin pairing
		auth.GET("/servers/:id/tokens", handler.ListTokens(db, d.Pairing))
		auth.POST("/servers/:id/tokens", handler.GeneratePairingCode(db, d.Pairing))
		auth.POST("/servers/:id/tokens/refresh", handler.RefreshPairingCode(db, d.Pairing))
		auth.DELETE("/servers/:id/tokens/:tokenID", handler.RevokeToken(db, d.Pairing))

		// User Management
		auth.GET("/users", middleware.RoleCheck(model.RoleAdmin), handler.ListUsers(db))
		auth.POST("/users", middleware.RoleCheck(model.RoleAdmin), handler.CreateUser(db))
		auth.PUT("/users/:id", middleware.RoleCheck(model.RoleAdmin), handler.UpdateUser(db))
		auth.DELETE("/users/:id", middleware.RoleCheck(model.RoleAdmin), handler.DeleteUser(db))
		auth.PUT("/users/:id/reset-password", middleware.RoleCheck(model.RoleAdmin), handler.ResetUserPassword(db))
		auth.GET("/users/:id/permissions", middleware.RoleCheck(model.RoleAdmin), handler.GetUserPermissions(db))
		auth.PUT("/users/:id/permissions", middleware.RoleCheck(model.RoleAdmin), handler.UpdateUserPermissions(db))

		// Self-service routes
		auth.PUT("/users/change-password", handler.ChangePassword(db))

		// Config Management
		auth.GET("/config/site", middleware.RoleCheck(model.RoleAdmin), handler.GetSiteConfig(db))
		auth.PUT("/config/site", middleware.RoleCheck(model.RoleAdmin), handler.UpdateSiteConfig(db))
	}

	plugin := r.Group("/api/v1")
	plugin.Use(middleware.PluginAuth(d.Pairing))
	{
		plugin.GET("/servers/:id/votes/pending", handler.ListPendingVotes(d.Votes))
		plugin.GET("/servers/:id/votes/bulk", handler.ListAllPendingVotes(d.Votes))
		plugin.POST("/votes/:id/claim", handler.ClaimVote(d.Votes))
		plugin.POST("/servers/:id/stats", handler.ReportServerStats(db))
		plugin.GET("/servers/:id/leaderboard", handler.GetLeaderboard(d.Votes))
		plugin.GET("/servers/:id/summary", handler.GetVoteSummary(d.Votes))
	}

	ws := r.Group("/ws")
	ws.Use(middleware.PluginAuth(d.Pairing))
	{
		ws.GET("/server", d.Hub.Handler())
	}

	return r
}
