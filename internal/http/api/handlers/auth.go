package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/teealloy/accountd/internal/account"
	"github.com/teealloy/accountd/internal/config"
	"github.com/teealloy/accountd/internal/credential"
	"github.com/teealloy/accountd/internal/security"
)

// AuthHandler exposes login and credential verification endpoints. Each
// handler is a thin adapter: it binds the request, calls into the core, and
// maps the outcome; all transactional work happens inside the services.
type AuthHandler struct {
	accounts    *account.Service
	credentials *credential.Service
	jwt         config.JWTConfig
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(accounts *account.Service, credentials *credential.Service, jwt config.JWTConfig) *AuthHandler {
	return &AuthHandler{accounts: accounts, credentials: credentials, jwt: jwt}
}

// loginRequest defines the request body for password login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login verifies a username/password pair and returns a session token.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	user, errAuth := h.accounts.Authenticate(c.Request.Context(), strings.TrimSpace(body.Username), body.Password)
	if errAuth != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, errSign := security.SignSessionToken(h.jwt.Secret, user.ID, h.jwt.Expiry)
	if errSign != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign token failed"})
		return
	}

	if errTouch := h.accounts.TouchLastLogin(c.Request.Context(), user.ID); errTouch != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":          token,
		"user_id":        user.ID,
		"is_2fa_enabled": user.Is2FAEnabled,
		"is_admin":       user.IsAdmin,
	})
}

// registerRequest defines the request body for account creation.
type registerRequest struct {
	Username string `json:"username"`
	Nickname string `json:"nickname"`
	Password string `json:"password"`
}

// Register creates a new account.
func (h *AuthHandler) Register(c *gin.Context) {
	var body registerRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	userID, errCreate := h.accounts.Create(c.Request.Context(),
		strings.TrimSpace(body.Username), strings.TrimSpace(body.Nickname), body.Password)
	switch {
	case errCreate == nil:
		c.JSON(http.StatusCreated, gin.H{"id": userID})
	case errors.Is(errCreate, account.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": errCreate.Error()})
	case errors.Is(errCreate, account.ErrInvalidUsername),
		errors.Is(errCreate, account.ErrInvalidNickname),
		errors.Is(errCreate, account.ErrPasswordTooShort):
		c.JSON(http.StatusBadRequest, gin.H{"error": errCreate.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create account failed"})
	}
}

// codeRequest defines the request body for second-factor verification.
type codeRequest struct {
	Code string `json:"code"`
}

// VerifyTOTP checks a time-step code for the authenticated user.
func (h *AuthHandler) VerifyTOTP(c *gin.Context) {
	var body codeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	ok, errVerify := h.credentials.VerifyTOTP(c.Request.Context(), sessionUserID(c), body.Code)
	if errVerify != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
		return
	}
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid code"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": true})
}

// VerifyBackupCode checks and consumes a backup code for the authenticated
// user.
func (h *AuthHandler) VerifyBackupCode(c *gin.Context) {
	var body codeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	ok, errVerify := h.credentials.VerifyBackupCode(c.Request.Context(), sessionUserID(c), body.Code)
	if errVerify != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
		return
	}
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid code"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": true})
}

// EnrollTOTP creates a TOTP credential for the authenticated user and
// returns the provisioning material once.
func (h *AuthHandler) EnrollTOTP(c *gin.Context) {
	userID := sessionUserID(c)
	user, errGet := h.accounts.Get(c.Request.Context(), userID)
	if errGet != nil || user == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enroll failed"})
		return
	}

	enrollment, errEnroll := h.credentials.EnrollTOTP(c.Request.Context(), userID, user.Username)
	if errEnroll != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enroll failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"secret":       enrollment.Secret,
		"url":          enrollment.URL,
		"backup_codes": enrollment.BackupCodes,
	})
}

// DisableTOTP removes the authenticated user's TOTP enrollment.
func (h *AuthHandler) DisableTOTP(c *gin.Context) {
	if errDisable := h.credentials.DisableTOTP(c.Request.Context(), sessionUserID(c)); errDisable != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "disable failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"disabled": true})
}

// IssueGameToken mints a fresh game-session bearer token for the
// authenticated user.
func (h *AuthHandler) IssueGameToken(c *gin.Context) {
	token, errIssue := h.credentials.IssueGameToken(c.Request.Context(), sessionUserID(c))
	if errIssue != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// RevokeGameToken deletes the authenticated user's game token.
func (h *AuthHandler) RevokeGameToken(c *gin.Context) {
	if errRevoke := h.credentials.RevokeGameToken(c.Request.Context(), sessionUserID(c)); errRevoke != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "revoke token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": true})
}

// gameTokenRequest defines the request body for token authentication.
type gameTokenRequest struct {
	Token string `json:"token"`
}

// AuthenticateGameToken resolves a presented bearer token to its owner.
// Unauthenticated endpoint: the token itself is the credential.
func (h *AuthHandler) AuthenticateGameToken(c *gin.Context) {
	var body gameTokenRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	user, errAuth := h.credentials.AuthenticateGameToken(c.Request.Context(), body.Token)
	if errAuth != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "authentication failed"})
		return
	}
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":  user.ID,
		"username": user.Username,
		"nickname": user.Nickname,
	})
}
