package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/teealloy/accountd/internal/reputation"
)

// ReputationHandler exposes the reputation and endorsement contracts.
type ReputationHandler struct {
	ledger *reputation.Ledger
}

// NewReputationHandler constructs a ReputationHandler.
func NewReputationHandler(ledger *reputation.Ledger) *ReputationHandler {
	return &ReputationHandler{ledger: ledger}
}

// Get returns a user's reputation record, banned status, and change log.
func (h *ReputationHandler) Get(c *gin.Context) {
	userID := c.Param("id")

	record, found, errGet := h.ledger.Get(c.Request.Context(), userID)
	if errGet != nil {
		respondLedgerError(c, errGet)
		return
	}

	banned, errBanned := h.ledger.IsBanned(c.Request.Context(), userID)
	if errBanned != nil {
		respondLedgerError(c, errBanned)
		return
	}

	entries, errLog := h.ledger.Log(c.Request.Context(), userID)
	if errLog != nil {
		respondLedgerError(c, errLog)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":            userID,
		"score":              record.Score,
		"is_contributor":     record.IsContributor,
		"has_identity_login": record.HasIdentityLogin,
		"tracked":            found,
		"is_banned":          banned,
		"log":                entries,
	})
}

// endorseRequest defines the request body for endorsements.
type endorseRequest struct {
	EndorseeID string `json:"endorsee_id"`
}

// Endorse lets the authenticated user vouch for another user.
func (h *ReputationHandler) Endorse(c *gin.Context) {
	var body endorseRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if errEndorse := h.ledger.Endorse(c.Request.Context(), sessionUserID(c), body.EndorseeID); errEndorse != nil {
		respondLedgerError(c, errEndorse)
		return
	}
	c.JSON(http.StatusOK, gin.H{"endorsed": true})
}

// Ban applies an administrative ban to the target user.
func (h *ReputationHandler) Ban(c *gin.Context) {
	if errBan := h.ledger.ApplyBan(c.Request.Context(), sessionUserID(c), c.Param("id")); errBan != nil {
		respondLedgerError(c, errBan)
		return
	}
	c.JSON(http.StatusOK, gin.H{"banned": true})
}

// Unban resets a banned user to the baseline score.
func (h *ReputationHandler) Unban(c *gin.Context) {
	if errUnban := h.ledger.Unban(c.Request.Context(), sessionUserID(c), c.Param("id")); errUnban != nil {
		respondLedgerError(c, errUnban)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unbanned": true})
}

// respondLedgerError maps the ledger error taxonomy to HTTP statuses:
// validation errors 400, missing users 404, insufficient standing 403,
// state conflicts 409, everything else 500.
func respondLedgerError(c *gin.Context, err error) {
	switch {
	case reputation.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, reputation.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, reputation.ErrScoreTooLow), errors.Is(err, reputation.ErrEndorseeOutranks):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case reputation.IsPrecondition(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
