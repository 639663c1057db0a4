package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/teealloy/accountd/internal/identity"
)

// IdentityHandler receives identity-provider login notifications. The
// OAuth exchange happens in a collaborator service; this endpoint is called
// with the already-verified provider profile.
type IdentityHandler struct {
	identities *identity.Service
}

// NewIdentityHandler constructs an IdentityHandler.
func NewIdentityHandler(identities *identity.Service) *IdentityHandler {
	return &IdentityHandler{identities: identities}
}

// identityLoginRequest defines the request body for login notifications.
type identityLoginRequest struct {
	Profile identity.Profile `json:"profile"`
}

// OnLogin records an identity-provider login for the authenticated user.
func (h *IdentityHandler) OnLogin(c *gin.Context) {
	var body identityLoginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.Profile.Login == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing provider login"})
		return
	}

	if errLogin := h.identities.OnLogin(c.Request.Context(), sessionUserID(c), body.Profile); errLogin != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "identity login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"recorded": true})
}
