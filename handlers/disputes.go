package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/escrow-demo/disputes"
	"github.com/yourusername/escrow-demo/models"
)

type DisputeHandler struct {
	store     disputes.Ledger
	dashboard DashboardService
}

// NewDisputeHandler wires the dispute store. dashboard may be nil; when set
// its cached KPIs are dropped after every write.
func NewDisputeHandler(store disputes.Ledger, dashboard DashboardService) *DisputeHandler {
	return &DisputeHandler{store: store, dashboard: dashboard}
}

type CreateDisputeRequest struct {
	PaymentInfoHash string              `json:"paymentInfoHash" binding:"required"`
	Reason          string              `json:"reason" binding:"required"`
	Notes           string              `json:"notes"`
	Attachments     []models.Attachment `json:"attachments"`
}

// UpdateDisputeRequest carries name/url for addEvidence and status for
// setStatus.
type UpdateDisputeRequest struct {
	ID     string `json:"id" binding:"required"`
	Action string `json:"action" binding:"required"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	Status string `json:"status"`
}

func (h *DisputeHandler) ListDisputes(c *gin.Context) {
	items, err := h.store.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *DisputeHandler) CreateDispute(c *gin.Context) {
	var req CreateDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := h.store.Create(c.Request.Context(), disputes.CreateRequest{
		PaymentInfoHash: req.PaymentInfoHash,
		Reason:          req.Reason,
		Notes:           req.Notes,
		Attachments:     req.Attachments,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	h.invalidate()
	c.JSON(http.StatusCreated, gin.H{"item": item})
}

func (h *DisputeHandler) UpdateDispute(c *gin.Context) {
	var req UpdateDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var (
		item *models.Dispute
		err  error
	)
	switch req.Action {
	case disputes.ActionAddEvidence:
		item, err = h.store.AddEvidence(c.Request.Context(), req.ID, models.Attachment{Name: req.Name, URL: req.URL})
	case disputes.ActionSetStatus:
		item, err = h.store.SetStatus(c.Request.Context(), req.ID, models.DisputeStatus(req.Status))
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid action"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	h.invalidate()
	c.JSON(http.StatusOK, gin.H{"item": item})
}

func (h *DisputeHandler) invalidate() {
	if h.dashboard != nil {
		h.dashboard.Invalidate()
	}
}
