package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/escrow-demo/disputes"
	"github.com/zoobzio/clockz"
)

const disputeHash = "0x00000000000000000000000000000000000000000000000000000000000000aa"

func setupDisputeRouter() (*gin.Engine, *MockDashboard) {
	dash := &MockDashboard{}
	handler := NewDisputeHandler(disputes.NewMemoryStore(clockz.NewFakeClockAt(time.Unix(1_700_000_000, 0))), dash)
	router := gin.New()
	router.GET("/dashboard/disputes", handler.ListDisputes)
	router.POST("/dashboard/disputes", handler.CreateDispute)
	router.PATCH("/dashboard/disputes", handler.UpdateDispute)
	return router, dash
}

func TestDisputeLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router, dash := setupDisputeRouter()

	w := serve(router, http.MethodPost, "/dashboard/disputes",
		`{"paymentInfoHash":"`+disputeHash+`","reason":"item not received","attachments":[{"name":"receipt","url":"https://example.com/r.png"}]}`)
	require.Equal(t, http.StatusCreated, w.Code)
	item := decodeBody(t, w)["item"].(map[string]any)
	id := item["id"].(string)
	assert.Equal(t, "open", item["status"])
	assert.Len(t, item["attachments"].([]any), 1)
	assert.Equal(t, 1, dash.invalidated)

	w = serve(router, http.MethodPatch, "/dashboard/disputes",
		`{"id":"`+id+`","action":"addEvidence","name":"chat","url":"https://example.com/chat.txt"}`)
	require.Equal(t, http.StatusOK, w.Code)
	item = decodeBody(t, w)["item"].(map[string]any)
	assert.Len(t, item["attachments"].([]any), 2)

	w = serve(router, http.MethodPatch, "/dashboard/disputes", `{"id":"`+id+`","action":"setStatus","status":"resolved"}`)
	require.Equal(t, http.StatusOK, w.Code)
	item = decodeBody(t, w)["item"].(map[string]any)
	assert.Equal(t, "resolved", item["status"])
	history := item["history"].([]any)
	require.Len(t, history, 3)
	last := history[2].(map[string]any)
	assert.Equal(t, "setStatus", last["action"])
	assert.Equal(t, "merchant", last["by"])
	assert.Equal(t, 3, dash.invalidated)

	w = serve(router, http.MethodGet, "/dashboard/disputes", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["items"].([]any), 1)
}

func TestDisputeValidation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router, _ := setupDisputeRouter()

	tests := []struct {
		name   string
		method string
		body   string
		status int
	}{
		{"Missing Reason", http.MethodPost, `{"paymentInfoHash":"` + disputeHash + `"}`, http.StatusBadRequest},
		{"Short Hash", http.MethodPost, `{"paymentInfoHash":"0x1234","reason":"x"}`, http.StatusBadRequest},
		{"Unknown Id", http.MethodPatch, `{"id":"nope","action":"setStatus","status":"open"}`, http.StatusNotFound},
		{"Invalid Action", http.MethodPatch, `{"id":"nope","action":"delete"}`, http.StatusBadRequest},
		{"Missing Action", http.MethodPatch, `{"id":"nope"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, tt.method, "/dashboard/disputes", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.NotEmpty(t, decodeBody(t, w)["error"])
		})
	}

	t.Run("Bad Status And Evidence", func(t *testing.T) {
		w := serve(router, http.MethodPost, "/dashboard/disputes", `{"paymentInfoHash":"`+disputeHash+`","reason":"late"}`)
		require.Equal(t, http.StatusCreated, w.Code)
		id := decodeBody(t, w)["item"].(map[string]any)["id"].(string)

		w = serve(router, http.MethodPatch, "/dashboard/disputes", `{"id":"`+id+`","action":"setStatus","status":"closed"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		w = serve(router, http.MethodPatch, "/dashboard/disputes", `{"id":"`+id+`","action":"addEvidence","name":"x"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
