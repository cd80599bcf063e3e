package handlers

import (
	"net/http"

	"github.com/farazbot/backend/internal/approval"
	"github.com/farazbot/backend/internal/auth"
	"github.com/gin-gonic/gin"
)

type ApprovalHandler struct {
	store *approval.Store
}

func NewApprovalHandler(store *approval.Store) *ApprovalHandler {
	return &ApprovalHandler{store: store}
}

// ListPending returns approval requests still awaiting the owner
func (h *ApprovalHandler) ListPending(c *gin.Context) {
	pending := h.store.List()
	c.JSON(http.StatusOK, gin.H{"pending": pending, "count": len(pending)})
}

type TokenHandler struct {
	jwtService *auth.JWTService
}

func NewTokenHandler(jwtService *auth.JWTService) *TokenHandler {
	return &TokenHandler{jwtService: jwtService}
}

type tokenRequest struct {
	Operator string `json:"operator" binding:"required,max=64"`
}

// IssueToken returns a token for the live moderation feed
func (h *TokenHandler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	token, err := h.jwtService.GenerateToken(req.Operator)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, "Failed to issue token")
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}
