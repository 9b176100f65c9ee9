package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/yourusername/escrow-demo/models"
	"github.com/yourusername/escrow-demo/services"
	"github.com/yourusername/escrow-demo/utils"
)

// FlowService runs the on-chain flows.
type FlowService interface {
	ResolveAmount(ctx context.Context, units, decimal string) (*big.Int, error)
	Build(ctx context.Context, amount *big.Int) (*services.FlowResult, error)
	Charge(ctx context.Context, amount *big.Int) (*services.FlowResult, error)
	AuthorizeCapture(ctx context.Context, amount *big.Int) (*services.FlowResult, error)
	Capture(ctx context.Context, info *models.PaymentInfo, amount *big.Int) (*services.FlowResult, error)
	Refund(ctx context.Context, info *models.PaymentInfo, amount *big.Int, collector common.Address) (*services.FlowResult, error)
	Void(ctx context.Context, info *models.PaymentInfo) (*services.FlowResult, error)
	Reclaim(ctx context.Context, info *models.PaymentInfo) (*services.FlowResult, error)
	RunDemo(ctx context.Context, amount *big.Int) (*services.FlowResult, error)
}

type FlowHandler struct {
	flows     FlowService
	dashboard DashboardService
}

// NewFlowHandler wires the flows. dashboard may be nil; when set its cached
// views are dropped after every flow that sent transactions.
func NewFlowHandler(flows FlowService, dashboard DashboardService) *FlowHandler {
	return &FlowHandler{flows: flows, dashboard: dashboard}
}

// AmountRequest takes either amount in smallest units or amountDec in whole
// tokens. Both empty selects the default amount.
type AmountRequest struct {
	Amount    json.Number `json:"amount"`
	AmountDec string      `json:"amountDec"`
}

type PaymentInfoRequest struct {
	PaymentInfo *models.PaymentInfo `json:"paymentInfo"`
}

type CaptureRequest struct {
	PaymentInfo *models.PaymentInfo `json:"paymentInfo"`
	AmountRequest
}

type RefundRequest struct {
	PaymentInfo    *models.PaymentInfo `json:"paymentInfo"`
	TokenCollector string              `json:"tokenCollector"`
	AmountRequest
}

// bindOptional decodes the JSON body if there is one.
func bindOptional(c *gin.Context, obj any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (h *FlowHandler) amount(c *gin.Context, req AmountRequest) (*big.Int, bool) {
	amount, err := h.flows.ResolveAmount(c.Request.Context(), req.Amount.String(), req.AmountDec)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return amount, true
}

// finish writes the flow result. A failed flow that already sent
// transactions reports them next to the error.
func (h *FlowHandler) finish(c *gin.Context, res *services.FlowResult, err error) {
	sent := res != nil && len(res.Steps) > 0
	if sent && h.dashboard != nil {
		h.dashboard.Invalidate()
	}
	if err != nil {
		if sent {
			respondErrorWith(c, err, gin.H{"flow": res.Flow, "steps": res.Steps, "txs": res.Txs})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// BuildPayment returns fresh PaymentInfo terms without sending anything.
func (h *FlowHandler) BuildPayment(c *gin.Context) {
	var req AmountRequest
	if err := bindOptional(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, ok := h.amount(c, req)
	if !ok {
		return
	}
	res, err := h.flows.Build(c.Request.Context(), amount)
	h.finish(c, res, err)
}

func (h *FlowHandler) Charge(c *gin.Context) {
	var req AmountRequest
	if err := bindOptional(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, ok := h.amount(c, req)
	if !ok {
		return
	}
	res, err := h.flows.Charge(c.Request.Context(), amount)
	h.finish(c, res, err)
}

func (h *FlowHandler) AuthorizeCapture(c *gin.Context) {
	var req AmountRequest
	if err := bindOptional(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, ok := h.amount(c, req)
	if !ok {
		return
	}
	res, err := h.flows.AuthorizeCapture(c.Request.Context(), amount)
	h.finish(c, res, err)
}

func (h *FlowHandler) Capture(c *gin.Context) {
	var req CaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, ok := h.amount(c, req.AmountRequest)
	if !ok {
		return
	}
	res, err := h.flows.Capture(c.Request.Context(), req.PaymentInfo, amount)
	h.finish(c, res, err)
}

// Refund returns funds to the payer. tokenCollector defaults to the
// configured operator refund collector.
func (h *FlowHandler) Refund(c *gin.Context) {
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var collector common.Address
	if req.TokenCollector != "" {
		addr, err := utils.ParseAddress(req.TokenCollector)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		collector = addr
	}
	amount, ok := h.amount(c, req.AmountRequest)
	if !ok {
		return
	}
	res, err := h.flows.Refund(c.Request.Context(), req.PaymentInfo, amount, collector)
	h.finish(c, res, err)
}

func (h *FlowHandler) Void(c *gin.Context) {
	var req PaymentInfoRequest
	if err := bindOptional(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.flows.Void(c.Request.Context(), req.PaymentInfo)
	h.finish(c, res, err)
}

func (h *FlowHandler) Reclaim(c *gin.Context) {
	var req PaymentInfoRequest
	if err := bindOptional(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.flows.Reclaim(c.Request.Context(), req.PaymentInfo)
	h.finish(c, res, err)
}

// RunDemo runs the single-account approve, preApprove, authorize and capture
// sequence.
func (h *FlowHandler) RunDemo(c *gin.Context) {
	var req AmountRequest
	if err := bindOptional(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, ok := h.amount(c, req)
	if !ok {
		return
	}
	res, err := h.flows.RunDemo(c.Request.Context(), amount)
	h.finish(c, res, err)
}
