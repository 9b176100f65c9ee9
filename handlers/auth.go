package handlers

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/escrow-demo/config"
	"github.com/yourusername/escrow-demo/middleware"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour
)

type AuthHandler struct {
	Cfg *config.Config
}

func NewAuthHandler(cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		Cfg: cfg,
	}
}

// TokenRequest exchanges the operator API key for tokens
type TokenRequest struct {
	APIKey string `json:"api_key" binding:"required"`
}

// RefreshToken request body
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Token issues an access/refresh pair for the operator
func (h *AuthHandler) Token(c *gin.Context) {
	if !h.Cfg.AuthEnabled() || h.Cfg.OperatorAPIKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Token auth is not configured"})
		return
	}

	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.APIKey), []byte(h.Cfg.OperatorAPIKey)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key", "code": "InvalidCredentials"})
		return
	}

	h.issue(c, middleware.RoleOperator)
}

// Refresh handles token refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	if !h.Cfg.AuthEnabled() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Token auth is not configured"})
		return
	}

	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Validate refresh token using the refresh secret
	claims, err := middleware.ParseToken(req.RefreshToken, h.refreshSecret())
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired refresh token", "code": "InvalidToken"})
		return
	}

	if claims.Role != middleware.RoleOperator {
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden: insufficient permissions"})
		return
	}

	h.issue(c, claims.Role)
}

func (h *AuthHandler) issue(c *gin.Context, role string) {
	accessToken, err := middleware.GenerateToken(role, role, h.Cfg.JWTSecret, accessTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate access token"})
		return
	}

	refreshToken, err := middleware.GenerateToken(role, role, h.refreshSecret(), refreshTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate refresh token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
	})
}

// refreshSecret falls back to the access secret when no separate refresh
// secret is configured.
func (h *AuthHandler) refreshSecret() string {
	if h.Cfg.JWTRefreshSecret != "" {
		return h.Cfg.JWTRefreshSecret
	}
	return h.Cfg.JWTSecret
}
