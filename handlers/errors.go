package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/escrow-demo/disputes"
	"github.com/yourusername/escrow-demo/services"
)

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case services.IsClientError(err), errors.Is(err, disputes.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound), errors.Is(err, disputes.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrChain):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	respondErrorWith(c, err, gin.H{})
}

// respondErrorWith adds extra fields next to "error".
func respondErrorWith(c *gin.Context, err error, body gin.H) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "route", c.FullPath(), "status", status, "error", err)
	}
	body["error"] = err.Error()
	c.JSON(status, body)
}
