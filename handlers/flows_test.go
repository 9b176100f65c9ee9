package handlers

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/escrow-demo/models"
	"github.com/yourusername/escrow-demo/services"
)

type MockFlows struct {
	ResolveAmountFunc    func(ctx context.Context, units, decimal string) (*big.Int, error)
	BuildFunc            func(ctx context.Context, amount *big.Int) (*services.FlowResult, error)
	ChargeFunc           func(ctx context.Context, amount *big.Int) (*services.FlowResult, error)
	AuthorizeCaptureFunc func(ctx context.Context, amount *big.Int) (*services.FlowResult, error)
	CaptureFunc          func(ctx context.Context, info *models.PaymentInfo, amount *big.Int) (*services.FlowResult, error)
	RefundFunc           func(ctx context.Context, info *models.PaymentInfo, amount *big.Int, collector common.Address) (*services.FlowResult, error)
	VoidFunc             func(ctx context.Context, info *models.PaymentInfo) (*services.FlowResult, error)
	ReclaimFunc          func(ctx context.Context, info *models.PaymentInfo) (*services.FlowResult, error)
	RunDemoFunc          func(ctx context.Context, amount *big.Int) (*services.FlowResult, error)
}

func (m *MockFlows) ResolveAmount(ctx context.Context, units, decimal string) (*big.Int, error) {
	if m.ResolveAmountFunc == nil {
		if units == "" {
			return nil, nil
		}
		return models.ParseInteger(units)
	}
	return m.ResolveAmountFunc(ctx, units, decimal)
}

func (m *MockFlows) Build(ctx context.Context, amount *big.Int) (*services.FlowResult, error) {
	return m.BuildFunc(ctx, amount)
}

func (m *MockFlows) Charge(ctx context.Context, amount *big.Int) (*services.FlowResult, error) {
	return m.ChargeFunc(ctx, amount)
}

func (m *MockFlows) AuthorizeCapture(ctx context.Context, amount *big.Int) (*services.FlowResult, error) {
	return m.AuthorizeCaptureFunc(ctx, amount)
}

func (m *MockFlows) Capture(ctx context.Context, info *models.PaymentInfo, amount *big.Int) (*services.FlowResult, error) {
	return m.CaptureFunc(ctx, info, amount)
}

func (m *MockFlows) Refund(ctx context.Context, info *models.PaymentInfo, amount *big.Int, collector common.Address) (*services.FlowResult, error) {
	return m.RefundFunc(ctx, info, amount, collector)
}

func (m *MockFlows) Void(ctx context.Context, info *models.PaymentInfo) (*services.FlowResult, error) {
	return m.VoidFunc(ctx, info)
}

func (m *MockFlows) Reclaim(ctx context.Context, info *models.PaymentInfo) (*services.FlowResult, error) {
	return m.ReclaimFunc(ctx, info)
}

func (m *MockFlows) RunDemo(ctx context.Context, amount *big.Int) (*services.FlowResult, error) {
	return m.RunDemoFunc(ctx, amount)
}

func sentResult(flow string, steps ...string) *services.FlowResult {
	res := &services.FlowResult{Flow: flow, Txs: map[string]string{}}
	for i, step := range steps {
		hash := common.BigToHash(big.NewInt(int64(i + 1)))
		res.Steps = append(res.Steps, services.FlowStep{Name: step, Nonce: uint64(i), TxHash: hash})
		res.Txs[step+"Hash"] = hash.Hex()
	}
	return res
}

const paymentInfoJSON = `{"operator":"0x00000000000000000000000000000000000000b2","payer":"0x00000000000000000000000000000000000000e5","receiver":"0x00000000000000000000000000000000000000e4","token":"0x00000000000000000000000000000000000000a1","maxAmount":"10000","preApprovalExpiry":1700003600,"authorizationExpiry":1700007200,"refundExpiry":1700010800,"minFeeBps":0,"maxFeeBps":0,"feeReceiver":"0x0000000000000000000000000000000000000000","salt":"1700000000"}`

func setupFlowRouter(flows *MockFlows) (*gin.Engine, *MockDashboard) {
	dash := &MockDashboard{}
	handler := NewFlowHandler(flows, dash)
	router := gin.New()
	router.POST("/payment/build", handler.BuildPayment)
	router.POST("/charge", handler.Charge)
	router.POST("/authorize-capture", handler.AuthorizeCapture)
	router.POST("/capture", handler.Capture)
	router.POST("/void", handler.Void)
	router.POST("/reclaim", handler.Reclaim)
	router.POST("/run-demo", handler.RunDemo)
	router.POST("/dashboard/refunds", handler.Refund)
	return router, dash
}

func TestChargeHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var got *big.Int
	flows := &MockFlows{
		ChargeFunc: func(ctx context.Context, amount *big.Int) (*services.FlowResult, error) {
			got = amount
			return sentResult(services.FlowCharge, "approve", "preApprove", "charge"), nil
		},
	}
	router, dash := setupFlowRouter(flows)

	t.Run("Amount In Smallest Units", func(t *testing.T) {
		w := serve(router, http.MethodPost, "/charge", `{"amount":"2500"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2500", got.String())
		txs := decodeBody(t, w)["txs"].(map[string]any)
		assert.Contains(t, txs, "approveHash")
		assert.Contains(t, txs, "preApproveHash")
		assert.Contains(t, txs, "chargeHash")
		assert.Equal(t, 1, dash.invalidated)
	})

	t.Run("Numeric Amount", func(t *testing.T) {
		w := serve(router, http.MethodPost, "/charge", `{"amount":42}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "42", got.String())
	})

	t.Run("Leading Zero Amount Is Decimal", func(t *testing.T) {
		w := serve(router, http.MethodPost, "/charge", `{"amount":"0100"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "100", got.String())
	})

	t.Run("Empty Body Uses Default", func(t *testing.T) {
		w := serve(router, http.MethodPost, "/charge", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Nil(t, got)
	})

	t.Run("Decimal Amount", func(t *testing.T) {
		flows.ResolveAmountFunc = func(ctx context.Context, units, decimal string) (*big.Int, error) {
			assert.Equal(t, "0.25", decimal)
			return big.NewInt(250000), nil
		}
		defer func() { flows.ResolveAmountFunc = nil }()
		w := serve(router, http.MethodPost, "/charge", `{"amountDec":"0.25"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "250000", got.String())
	})

	t.Run("Bad Amount", func(t *testing.T) {
		flows.ResolveAmountFunc = func(ctx context.Context, units, decimal string) (*big.Int, error) {
			return nil, fmt.Errorf("%w: amount: invalid integer", services.ErrValidation)
		}
		defer func() { flows.ResolveAmountFunc = nil }()
		w := serve(router, http.MethodPost, "/charge", `{"amount":"x"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Missing Configuration", func(t *testing.T) {
		flows.ChargeFunc = func(ctx context.Context, amount *big.Int) (*services.FlowResult, error) {
			return nil, fmt.Errorf("%w: missing PAYER_PRIVATE_KEY", services.ErrNotConfigured)
		}
		w := serve(router, http.MethodPost, "/charge", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeBody(t, w)["error"], "PAYER_PRIVATE_KEY")
	})
}

func TestCaptureHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	flows := &MockFlows{
		CaptureFunc: func(ctx context.Context, info *models.PaymentInfo, amount *big.Int) (*services.FlowResult, error) {
			require.NotNil(t, info)
			assert.Equal(t, "10000", info.MaxAmount.String())
			assert.Equal(t, uint64(1700007200), info.AuthorizationExpiry)
			assert.Nil(t, amount)
			res := sentResult(services.FlowCapture, "capture")
			res.PaymentInfo = info
			return res, nil
		},
	}
	router, _ := setupFlowRouter(flows)

	w := serve(router, http.MethodPost, "/capture", `{"paymentInfo":`+paymentInfoJSON+`}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "1700000000", body["paymentInfo"].(map[string]any)["salt"])

	w = serve(router, http.MethodPost, "/capture", `{"paymentInfo":{"maxAmount":"-1"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefundHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var collector common.Address
	flows := &MockFlows{
		RefundFunc: func(ctx context.Context, info *models.PaymentInfo, amount *big.Int, c common.Address) (*services.FlowResult, error) {
			collector = c
			if amount.Cmp(big.NewInt(500)) > 0 {
				return nil, fmt.Errorf("%w: operator balance 500 is less than refund amount %s", services.ErrValidation, amount)
			}
			return sentResult(services.FlowRefund, "refund"), nil
		},
	}
	router, _ := setupFlowRouter(flows)

	t.Run("Default Collector", func(t *testing.T) {
		w := serve(router, http.MethodPost, "/dashboard/refunds", `{"paymentInfo":`+paymentInfoJSON+`,"amount":"100"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, common.Address{}, collector)
		assert.Contains(t, decodeBody(t, w)["txs"], "refundHash")
	})

	t.Run("Explicit Collector", func(t *testing.T) {
		w := serve(router, http.MethodPost, "/dashboard/refunds",
			`{"paymentInfo":`+paymentInfoJSON+`,"amount":"100","tokenCollector":"0x00000000000000000000000000000000000000f9"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, common.HexToAddress("0xf9"), collector)
	})

	t.Run("Bad Collector", func(t *testing.T) {
		w := serve(router, http.MethodPost, "/dashboard/refunds", `{"paymentInfo":`+paymentInfoJSON+`,"amount":"100","tokenCollector":"0x12"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Insufficient Balance", func(t *testing.T) {
		w := serve(router, http.MethodPost, "/dashboard/refunds", `{"paymentInfo":`+paymentInfoJSON+`,"amount":"900"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeBody(t, w)["error"], "operator balance 500 is less than refund amount 900")
	})
}

func TestOptionalBodyFlows(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var voided, reclaimed *models.PaymentInfo
	flows := &MockFlows{
		BuildFunc: func(ctx context.Context, amount *big.Int) (*services.FlowResult, error) {
			return &services.FlowResult{Flow: services.FlowBuild, Txs: map[string]string{}}, nil
		},
		AuthorizeCaptureFunc: func(ctx context.Context, amount *big.Int) (*services.FlowResult, error) {
			return nil, fmt.Errorf("authorize: %w: %w", services.ErrChain, fmt.Errorf("transaction reverted"))
		},
		VoidFunc: func(ctx context.Context, info *models.PaymentInfo) (*services.FlowResult, error) {
			voided = info
			return sentResult(services.FlowVoid, "void"), nil
		},
		ReclaimFunc: func(ctx context.Context, info *models.PaymentInfo) (*services.FlowResult, error) {
			reclaimed = info
			return sentResult(services.FlowReclaim, "reclaim"), nil
		},
	}
	router, dash := setupFlowRouter(flows)

	w := serve(router, http.MethodPost, "/payment/build", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, dash.invalidated)

	w = serve(router, http.MethodPost, "/authorize-capture", `{}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = serve(router, http.MethodPost, "/void", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, voided)

	w = serve(router, http.MethodPost, "/reclaim", `{"paymentInfo":`+paymentInfoJSON+`}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, reclaimed)
	assert.Equal(t, "1700000000", reclaimed.Salt.String())
	assert.Equal(t, 2, dash.invalidated)

	w = serve(router, http.MethodPost, "/void", `{"paymentInfo":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunDemoHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var got *big.Int
	flows := &MockFlows{
		RunDemoFunc: func(ctx context.Context, amount *big.Int) (*services.FlowResult, error) {
			got = amount
			res := sentResult(services.FlowRunDemo, "approve", "preApprove", "authorize", "capture")
			res.ChainID = "80002"
			res.Token = &models.TokenMeta{Symbol: "USDC", Decimals: 6}
			return res, nil
		},
	}
	router, dash := setupFlowRouter(flows)

	w := serve(router, http.MethodPost, "/run-demo", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, got)
	body := decodeBody(t, w)
	assert.Equal(t, "80002", body["chainId"])
	assert.Equal(t, "USDC", body["token"].(map[string]any)["symbol"])
	txs := body["txs"].(map[string]any)
	for _, step := range []string{"approveHash", "preApproveHash", "authorizeHash", "captureHash"} {
		assert.Contains(t, txs, step)
	}
	assert.Equal(t, 1, dash.invalidated)

	w = serve(router, http.MethodPost, "/run-demo", `{"amount":"250"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "250", got.String())
}

func TestFailedFlowReportsSentSteps(t *testing.T) {
	gin.SetMode(gin.TestMode)
	flows := &MockFlows{
		ChargeFunc: func(ctx context.Context, amount *big.Int) (*services.FlowResult, error) {
			res := sentResult(services.FlowCharge, "approve", "preApprove", "charge")
			delete(res.Txs, "chargeHash")
			res.Steps = res.Steps[:2]
			return res, fmt.Errorf("charge: %w: %w", services.ErrChain, errors.New("transaction reverted"))
		},
		AuthorizeCaptureFunc: func(ctx context.Context, amount *big.Int) (*services.FlowResult, error) {
			return &services.FlowResult{Flow: services.FlowAuthorizeCapture, Steps: []services.FlowStep{}, Txs: map[string]string{}},
				fmt.Errorf("balances: %w: %w", services.ErrChain, errors.New("timeout"))
		},
	}
	router, dash := setupFlowRouter(flows)

	w := serve(router, http.MethodPost, "/charge", "")
	require.Equal(t, http.StatusBadGateway, w.Code)
	body := decodeBody(t, w)
	assert.Contains(t, body["error"], "transaction reverted")
	assert.Equal(t, "charge", body["flow"])
	assert.Len(t, body["steps"].([]any), 2)
	txs := body["txs"].(map[string]any)
	assert.Contains(t, txs, "approveHash")
	assert.Contains(t, txs, "preApproveHash")
	assert.NotContains(t, txs, "chargeHash")
	assert.Equal(t, 1, dash.invalidated)

	w = serve(router, http.MethodPost, "/authorize-capture", "")
	require.Equal(t, http.StatusBadGateway, w.Code)
	body = decodeBody(t, w)
	assert.NotContains(t, body, "steps")
	assert.Equal(t, 1, dash.invalidated)
}
