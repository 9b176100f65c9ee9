package handlers

import (
	"context"
	"math/big"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/escrow-demo/models"
	"github.com/yourusername/escrow-demo/services"
)

// DashboardService is the read side used by DashboardHandler.
type DashboardService interface {
	Payments(ctx context.Context) (*services.PaymentsView, error)
	KPIs(ctx context.Context, q services.KPIQuery) (*services.KPIView, error)
	Refunds(ctx context.Context) (*services.RefundsView, error)
	PaymentDetail(ctx context.Context, id string) (*services.PaymentDetailView, error)
	ResetSession() *big.Int
	Invalidate()
}

type DashboardHandler struct {
	dashboard DashboardService
}

func NewDashboardHandler(dashboard DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard}
}

// GetKPIs accepts ?minSalt=<integer> and ?session=1.
func (h *DashboardHandler) GetKPIs(c *gin.Context) {
	var q services.KPIQuery
	if raw := c.Query("minSalt"); raw != "" {
		minSalt, err := models.ParseInteger(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid minSalt: " + err.Error()})
			return
		}
		q.MinSalt = minSalt
	}
	if raw := c.Query("session"); raw != "" {
		session, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session flag"})
			return
		}
		q.Session = session
	}

	view, err := h.dashboard.KPIs(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *DashboardHandler) ListPayments(c *gin.Context) {
	view, err := h.dashboard.Payments(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetPayment looks a payment up by paymentInfoHash or salt.
func (h *DashboardHandler) GetPayment(c *gin.Context) {
	view, err := h.dashboard.PaymentDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *DashboardHandler) ListRefunds(c *gin.Context) {
	view, err := h.dashboard.Refunds(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ResetSession moves the session anchor to now.
func (h *DashboardHandler) ResetSession(c *gin.Context) {
	minSalt := h.dashboard.ResetSession()
	c.JSON(http.StatusOK, gin.H{"minSalt": models.BigString(minSalt)})
}
