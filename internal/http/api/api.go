// Package api wires the thin HTTP adapters over the trust core. Handlers
// never hold business logic; each request maps to one core call and one
// transaction inside it.
package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/teealloy/accountd/internal/account"
	"github.com/teealloy/accountd/internal/config"
	"github.com/teealloy/accountd/internal/credential"
	"github.com/teealloy/accountd/internal/http/api/handlers"
	"github.com/teealloy/accountd/internal/identity"
	"github.com/teealloy/accountd/internal/models"
	"github.com/teealloy/accountd/internal/reputation"
	"github.com/teealloy/accountd/internal/security"
)

// Deps bundles the services the API exposes.
type Deps struct {
	DB          *gorm.DB
	Accounts    *account.Service
	Credentials *credential.Service
	Identities  *identity.Service
	Ledger      *reputation.Ledger
	JWT         config.JWTConfig
}

// RegisterRoutes mounts all API routes on the engine.
func RegisterRoutes(engine *gin.Engine, deps Deps) {
	authHandler := handlers.NewAuthHandler(deps.Accounts, deps.Credentials, deps.JWT)
	identityHandler := handlers.NewIdentityHandler(deps.Identities)
	reputationHandler := handlers.NewReputationHandler(deps.Ledger)

	v1 := engine.Group("/v1")

	// Public: registration, password login, and token authentication
	// (the token itself is the credential).
	v1.POST("/auth/register", authHandler.Register)
	v1.POST("/auth/login", authHandler.Login)
	v1.POST("/auth/game-token/verify", authHandler.AuthenticateGameToken)

	// Session-authenticated user surface.
	authed := v1.Group("", sessionAuth(deps.JWT.Secret))
	authed.POST("/auth/2fa/totp", authHandler.VerifyTOTP)
	authed.POST("/auth/2fa/backup-code", authHandler.VerifyBackupCode)
	authed.POST("/mfa/totp/enroll", authHandler.EnrollTOTP)
	authed.POST("/mfa/totp/disable", authHandler.DisableTOTP)
	authed.POST("/game-token", authHandler.IssueGameToken)
	authed.DELETE("/game-token", authHandler.RevokeGameToken)
	authed.POST("/endorsements", reputationHandler.Endorse)
	authed.GET("/users/:id/reputation", reputationHandler.Get)
	authed.POST("/identity/login", identityHandler.OnLogin)

	// Administrative surface.
	admin := authed.Group("", requireAdmin(deps.DB))
	admin.POST("/admin/users/:id/ban", reputationHandler.Ban)
	admin.POST("/admin/users/:id/unban", reputationHandler.Unban)
}

// sessionAuth validates the bearer session token and stores the subject in
// the request context.
func sessionAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token == "" || token == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		userID, err := security.ParseSessionToken(secret, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
			return
		}
		c.Set(handlers.SessionUserKey, userID)
		c.Next()
	}
}

// requireAdmin rejects non-admin sessions.
func requireAdmin(conn *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(handlers.SessionUserKey)
		var count int64
		errCount := conn.WithContext(c.Request.Context()).Model(&models.User{}).
			Where("id = ? AND is_admin = ?", userID, true).
			Count(&count).Error
		if errCount != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if count == 0 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin required"})
			return
		}
		c.Next()
	}
}
