package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/escrow-demo/config"
	"github.com/yourusername/escrow-demo/middleware"
)

func setupAuthRouter(cfg *config.Config) *gin.Engine {
	handler := NewAuthHandler(cfg)
	router := gin.New()
	router.POST("/auth/token", handler.Token)
	router.POST("/auth/refresh", handler.Refresh)
	return router
}

func TestTokenExchange(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{JWTSecret: "access", JWTRefreshSecret: "refresh", OperatorAPIKey: "key-123"}
	router := setupAuthRouter(cfg)

	t.Run("Valid Key", func(t *testing.T) {
		w := serve(router, http.MethodPost, "/auth/token", `{"api_key":"key-123"}`)
		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)

		claims, err := middleware.ParseToken(body["access_token"].(string), "access")
		require.NoError(t, err)
		assert.Equal(t, middleware.RoleOperator, claims.Role)

		_, err = middleware.ParseToken(body["refresh_token"].(string), "refresh")
		assert.NoError(t, err)
	})

	t.Run("Wrong Key", func(t *testing.T) {
		w := serve(router, http.MethodPost, "/auth/token", `{"api_key":"nope"}`)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Missing Key", func(t *testing.T) {
		w := serve(router, http.MethodPost, "/auth/token", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Auth Disabled", func(t *testing.T) {
		w := serve(setupAuthRouter(&config.Config{}), http.MethodPost, "/auth/token", `{"api_key":"key-123"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRefresh(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{JWTSecret: "access", JWTRefreshSecret: "refresh"}
	router := setupAuthRouter(cfg)

	refresh, err := middleware.GenerateToken(middleware.RoleOperator, middleware.RoleOperator, "refresh", time.Hour)
	require.NoError(t, err)
	expired, err := middleware.GenerateToken(middleware.RoleOperator, middleware.RoleOperator, "refresh", -time.Hour)
	require.NoError(t, err)
	viewer, err := middleware.GenerateToken("someone", "viewer", "refresh", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"Valid Token", refresh, http.StatusOK},
		{"Expired Token", expired, http.StatusUnauthorized},
		{"Access Secret Rejected", mustToken(t, "access"), http.StatusUnauthorized},
		{"Wrong Role", viewer, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, http.MethodPost, "/auth/refresh", `{"refresh_token":"`+tt.token+`"}`)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func mustToken(t *testing.T, secret string) string {
	t.Helper()
	token, err := middleware.GenerateToken(middleware.RoleOperator, middleware.RoleOperator, secret, time.Hour)
	require.NoError(t, err)
	return token
}
