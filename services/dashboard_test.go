package services

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/escrow-demo/disputes"
	"github.com/yourusername/escrow-demo/ledger"
	"github.com/yourusername/escrow-demo/models"
	"github.com/yourusername/escrow-demo/utils"
	"github.com/zoobzio/clockz"
)

var (
	testToken    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testOperator = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	testStore    = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	hashA        = common.HexToHash("0xaa")
	hashB        = common.HexToHash("0xbb")
)

func fixtureInfo(salt int64, refundExpiry uint64) *models.PaymentInfo {
	return &models.PaymentInfo{
		Operator:     testOperator,
		Token:        testToken,
		MaxAmount:    big.NewInt(1000),
		RefundExpiry: refundExpiry,
		Salt:         big.NewInt(salt),
	}
}

// fixtureEvents: A authorized 100 then captured 100 then refunded 30 (salt 10),
// B charged 50 (salt 20).
func fixtureEvents(refundExpiry uint64) map[models.EventKind][]models.PaymentEvent {
	return map[models.EventKind][]models.PaymentEvent{
		models.EventAuthorized: {{Kind: models.EventAuthorized, PaymentInfoHash: hashA, Info: fixtureInfo(10, refundExpiry), Amount: big.NewInt(100), BlockNumber: 10}},
		models.EventCharged:    {{Kind: models.EventCharged, PaymentInfoHash: hashB, Info: fixtureInfo(20, refundExpiry), Amount: big.NewInt(50), BlockNumber: 12}},
		models.EventCaptured:   {{Kind: models.EventCaptured, PaymentInfoHash: hashA, Amount: big.NewInt(100), BlockNumber: 11}},
		models.EventRefunded:   {{Kind: models.EventRefunded, PaymentInfoHash: hashA, Amount: big.NewInt(30), BlockNumber: 13}},
	}
}

func eventClient(events map[models.EventKind][]models.PaymentEvent, heads *atomic.Int32) *utils.MockEscrowClient {
	return &utils.MockEscrowClient{
		BlockNumberFunc: func(ctx context.Context) (uint64, error) {
			if heads != nil {
				heads.Add(1)
			}
			return 100, nil
		},
		FetchEventsFunc: func(ctx context.Context, kind models.EventKind, from, to uint64) ([]models.PaymentEvent, error) {
			return events[kind], nil
		},
	}
}

func TestDashboardKPIs(t *testing.T) {
	clock := clockz.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	client := eventClient(fixtureEvents(2_000_000_000), nil)
	store := disputes.NewMemoryStore(clock)
	_, err := store.Create(context.Background(), disputes.CreateRequest{
		PaymentInfoHash: hashA.Hex(),
		Reason:          "item not received",
	})
	require.NoError(t, err)

	d := NewDashboard(client, store, nil, DashboardConfig{Lookback: 50}, clock, nil, nil)
	view, err := d.KPIs(context.Background(), KPIQuery{})
	require.NoError(t, err)

	assert.Equal(t, ledger.Window{FromBlock: 50, ToBlock: 100}, view.Window)
	assert.Equal(t, "150", view.Live.Volume)
	assert.Equal(t, 2, view.Live.Count)
	assert.Equal(t, "120", view.RefundableNow)
	assert.Equal(t, 1, view.ActiveDisputes)
	assert.Nil(t, view.OperatorBalance)
	assert.Empty(t, view.MinSalt)
}

func TestDashboardKPICache(t *testing.T) {
	clock := clockz.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	var heads atomic.Int32
	client := eventClient(fixtureEvents(2_000_000_000), &heads)
	d := NewDashboard(client, nil, ledger.NewSession(clock.Now()), DashboardConfig{}, clock, nil, nil)
	ctx := context.Background()

	first, err := d.KPIs(ctx, KPIQuery{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), heads.Load())

	t.Run("Served From Cache Regardless Of Query", func(t *testing.T) {
		second, err := d.KPIs(ctx, KPIQuery{MinSalt: big.NewInt(15)})
		require.NoError(t, err)
		assert.Same(t, first, second)
		assert.Equal(t, int32(1), heads.Load())
	})

	t.Run("Refreshed After TTL", func(t *testing.T) {
		clock.Advance(DefaultViewTTL)
		view, err := d.KPIs(ctx, KPIQuery{MinSalt: big.NewInt(15)})
		require.NoError(t, err)
		assert.Equal(t, int32(2), heads.Load())
		assert.Equal(t, "50", view.Live.Volume)
		assert.Equal(t, "15", view.MinSalt)
	})

	t.Run("Session Reset Drops Cache", func(t *testing.T) {
		minSalt := d.ResetSession()
		require.NotNil(t, minSalt)
		assert.Equal(t, clock.Now().Unix(), minSalt.Int64())

		view, err := d.KPIs(ctx, KPIQuery{Session: true})
		require.NoError(t, err)
		assert.Equal(t, int32(3), heads.Load())
		assert.Equal(t, "0", view.Live.Volume)
		assert.Equal(t, 0, view.Live.Count)
		assert.Equal(t, minSalt.String(), view.MinSalt)
	})
}

func TestDashboardOperatorBalance(t *testing.T) {
	clock := clockz.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	client := eventClient(nil, nil)
	client.TokenMetaFunc = func(ctx context.Context, token common.Address) (models.TokenMeta, error) {
		return models.TokenMeta{Address: token, Symbol: "USDC", Decimals: 6}, nil
	}
	client.TokenStoreFunc = func(ctx context.Context, operator common.Address) (common.Address, error) {
		return testStore, nil
	}
	client.NativeBalanceFunc = func(ctx context.Context, account common.Address) (*big.Int, error) {
		return big.NewInt(5), nil
	}

	t.Run("Available", func(t *testing.T) {
		client.TokenBalanceFunc = func(ctx context.Context, token, owner common.Address) (*big.Int, error) {
			assert.Equal(t, testStore, owner)
			return big.NewInt(4200), nil
		}
		d := NewDashboard(client, nil, nil, DashboardConfig{Operator: testOperator, Token: testToken}, clock, nil, nil)
		view, err := d.KPIs(context.Background(), KPIQuery{})
		require.NoError(t, err)
		require.NotNil(t, view.OperatorBalance)
		assert.Equal(t, "4200", view.OperatorBalance.Balance)
		assert.Equal(t, "5", view.OperatorBalance.Native)
		assert.Equal(t, "USDC", view.OperatorBalance.Symbol)
		require.NotNil(t, view.TokenMeta)
		assert.Equal(t, uint8(6), view.TokenMeta.Decimals)
	})

	t.Run("Lookup Failure Is Not Fatal", func(t *testing.T) {
		client.TokenBalanceFunc = func(ctx context.Context, token, owner common.Address) (*big.Int, error) {
			return nil, errors.New("rpc down")
		}
		d := NewDashboard(client, nil, nil, DashboardConfig{Operator: testOperator, Token: testToken}, clock, nil, nil)
		view, err := d.KPIs(context.Background(), KPIQuery{})
		require.NoError(t, err)
		assert.Nil(t, view.OperatorBalance)
		assert.NotNil(t, view.TokenMeta)
	})
}

func TestDashboardPayments(t *testing.T) {
	clock := clockz.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	var heads atomic.Int32
	d := NewDashboard(eventClient(fixtureEvents(2_000_000_000), &heads), nil, nil, DashboardConfig{}, clock, nil, nil)

	view, err := d.Payments(context.Background())
	require.NoError(t, err)
	require.Len(t, view.Payments, 2)
	assert.Equal(t, hashB, view.Payments[0].PaymentInfoHash)
	assert.Equal(t, models.StatusCharged, view.Payments[0].Status)
	assert.Equal(t, hashA, view.Payments[1].PaymentInfoHash)
	assert.Equal(t, models.StatusRefunded, view.Payments[1].Status)

	_, err = d.Payments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), heads.Load())

	d.Invalidate()
	_, err = d.Payments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), heads.Load())
}

func TestDashboardRefunds(t *testing.T) {
	expiry := uint64(1_700_000_100)
	clock := clockz.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	d := NewDashboard(eventClient(fixtureEvents(expiry), nil), nil, nil, DashboardConfig{}, clock, nil, nil)

	view, err := d.Refunds(context.Background())
	require.NoError(t, err)
	require.Len(t, view.Candidates, 2)
	assert.Equal(t, hashB, view.Candidates[0].PaymentInfoHash)
	assert.Equal(t, "70", view.Candidates[1].Remaining.String())

	clock.Advance(100 * time.Second)
	view, err = d.Refunds(context.Background())
	require.NoError(t, err)
	assert.Empty(t, view.Candidates)
}

func TestDashboardPaymentDetail(t *testing.T) {
	clock := clockz.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	client := eventClient(fixtureEvents(2_000_000_000), nil)
	client.PaymentStateFunc = func(ctx context.Context, hash common.Hash) (models.PaymentState, error) {
		return models.PaymentState{HasCollectedPayment: hash == hashA, CapturableAmount: big.NewInt(0), RefundableAmount: big.NewInt(70)}, nil
	}
	d := NewDashboard(client, nil, nil, DashboardConfig{}, clock, nil, nil)

	t.Run("By Salt", func(t *testing.T) {
		view, err := d.PaymentDetail(context.Background(), "10")
		require.NoError(t, err)
		assert.Equal(t, hashA, view.PaymentInfoHash)
		require.NotNil(t, view.PaymentInfo)
		assert.Equal(t, int64(10), view.PaymentInfo.Salt.Int64())
		assert.True(t, view.State.HasCollectedPayment)
		require.Len(t, view.Timeline, 3)
		assert.Equal(t, models.EventAuthorized, view.Timeline[0].Event.Kind)
		assert.Equal(t, models.EventRefunded, view.Timeline[2].Event.Kind)
	})

	t.Run("By Hash", func(t *testing.T) {
		view, err := d.PaymentDetail(context.Background(), hashB.Hex())
		require.NoError(t, err)
		assert.Equal(t, hashB, view.PaymentInfoHash)
		assert.False(t, view.State.HasCollectedPayment)
	})

	t.Run("Unknown Salt", func(t *testing.T) {
		_, err := d.PaymentDetail(context.Background(), "999")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDashboardChainError(t *testing.T) {
	client := &utils.MockEscrowClient{
		BlockNumberFunc: func(ctx context.Context) (uint64, error) { return 0, errors.New("connection refused") },
	}
	d := NewDashboard(client, nil, nil, DashboardConfig{}, nil, nil, nil)

	_, err := d.Payments(context.Background())
	assert.ErrorIs(t, err, ErrChain)
	_, err = d.KPIs(context.Background(), KPIQuery{})
	assert.ErrorIs(t, err, ErrChain)
	_, err = d.Refunds(context.Background())
	assert.ErrorIs(t, err, ErrChain)
}
