package services

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yourusername/escrow-demo/disputes"
	"github.com/yourusername/escrow-demo/ledger"
	"github.com/yourusername/escrow-demo/metrics"
	"github.com/yourusername/escrow-demo/models"
	"github.com/yourusername/escrow-demo/utils"
	"github.com/zoobzio/clockz"
	"golang.org/x/sync/errgroup"
)

type DashboardConfig struct {
	Lookback uint64
	CacheTTL time.Duration
	// Operator and Token enable the operator balance and token metadata on
	// the KPI view. Either may be zero.
	Operator common.Address
	Token    common.Address
}

// Dashboard computes the read-only views from a freshly fetched window of
// escrow events.
type Dashboard struct {
	client   utils.EscrowClientInterface
	disputes disputes.Ledger
	session  *ledger.Session
	clock    clockz.Clock
	cfg      DashboardConfig
	logger   *slog.Logger

	payments *viewCache[*PaymentsView]
	kpis     *viewCache[*KPIView]
}

func NewDashboard(client utils.EscrowClientInterface, store disputes.Ledger, session *ledger.Session, cfg DashboardConfig, clock clockz.Clock, logger *slog.Logger, m *metrics.EscrowMetrics) *Dashboard {
	if clock == nil {
		clock = clockz.RealClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Lookback == 0 {
		cfg.Lookback = ledger.DefaultLookback
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultViewTTL
	}
	return &Dashboard{
		client:   client,
		disputes: store,
		session:  session,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
		payments: newViewCache[*PaymentsView]("payments", clock, cfg.CacheTTL, m),
		kpis:     newViewCache[*KPIView]("kpis", clock, cfg.CacheTTL, m),
	}
}

type PaymentsView struct {
	Window   ledger.Window          `json:"window"`
	Payments []models.PaymentRecord `json:"items"`
}

type LiveTotals struct {
	Volume string `json:"volume"`
	Count  int    `json:"count"`
}

type OperatorBalance struct {
	Operator   common.Address `json:"operator"`
	TokenStore common.Address `json:"tokenStore"`
	Token      common.Address `json:"token"`
	Balance    string         `json:"balance"`
	Symbol     string         `json:"symbol,omitempty"`
	Decimals   uint8          `json:"decimals"`
	Native     string         `json:"native,omitempty"`
}

type KPIView struct {
	Window          ledger.Window     `json:"window"`
	Live            LiveTotals        `json:"live"`
	RefundableNow   string            `json:"refundableNow"`
	ActiveDisputes  int               `json:"activeDisputes"`
	MinSalt         string            `json:"minSalt,omitempty"`
	OperatorBalance *OperatorBalance  `json:"operatorBalance"`
	TokenMeta       *models.TokenMeta `json:"tokenMeta"`
}

type RefundsView struct {
	Window     ledger.Window            `json:"window"`
	Candidates []models.RefundCandidate `json:"items"`
}

type PaymentDetailView struct {
	PaymentInfoHash common.Hash            `json:"paymentInfoHash"`
	PaymentInfo     *models.PaymentInfo    `json:"paymentInfo"`
	State           models.PaymentState    `json:"state"`
	Timeline        []models.TimelineEntry `json:"timeline"`
	Window          ledger.Window          `json:"window"`
}

// KPIQuery narrows the KPI view to payments with salt >= MinSalt. With
// Session set and no MinSalt, the session anchor is used.
type KPIQuery struct {
	MinSalt *big.Int
	Session bool
}

// loadEvents pins one window and fetches the given kinds concurrently.
func (d *Dashboard) loadEvents(ctx context.Context, kinds ...models.EventKind) (ledger.Window, []models.PaymentEvent, error) {
	head, err := d.client.BlockNumber(ctx)
	if err != nil {
		return ledger.Window{}, nil, chainErr("load window", err)
	}
	window := ledger.WindowAt(head, d.cfg.Lookback)

	results := make([][]models.PaymentEvent, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			events, err := d.client.FetchEvents(gctx, kind, window.FromBlock, window.ToBlock)
			if err != nil {
				return err
			}
			results[i] = events
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return window, nil, chainErr("fetch events", err)
	}

	var events []models.PaymentEvent
	for _, batch := range results {
		events = append(events, batch...)
	}
	d.logger.Debug("events loaded", "window", window.String(), "events", len(events))
	return window, events, nil
}

// Payments returns every payment touched in the window, newest first.
func (d *Dashboard) Payments(ctx context.Context) (*PaymentsView, error) {
	if view, ok := d.payments.get(); ok {
		return view, nil
	}
	window, events, err := d.loadEvents(ctx, models.EventKinds...)
	if err != nil {
		return nil, err
	}
	view := &PaymentsView{Window: window, Payments: ledger.Reconstruct(events)}
	d.payments.put(view)
	return view, nil
}

// KPIs returns the summary figures. The cached value is returned for any
// query made within the TTL.
func (d *Dashboard) KPIs(ctx context.Context, q KPIQuery) (*KPIView, error) {
	if view, ok := d.kpis.get(); ok {
		return view, nil
	}
	minSalt := q.MinSalt
	if minSalt == nil && q.Session && d.session != nil {
		minSalt = d.session.MinSalt()
	}

	window, events, err := d.loadEvents(ctx, models.EventAuthorized, models.EventCharged, models.EventCaptured, models.EventRefunded)
	if err != nil {
		return nil, err
	}
	var list []*models.Dispute
	if d.disputes != nil {
		if list, err = d.disputes.List(ctx); err != nil {
			return nil, err
		}
	}
	totals := ledger.Aggregate(events, minSalt, list)

	view := &KPIView{
		Window:         window,
		Live:           LiveTotals{Volume: totals.LiveVolume.String(), Count: totals.LiveCount},
		RefundableNow:  totals.RefundableNow.String(),
		ActiveDisputes: totals.ActiveDisputes,
	}
	if minSalt != nil {
		view.MinSalt = minSalt.String()
	}
	view.OperatorBalance, view.TokenMeta = d.operatorBalance(ctx)
	d.kpis.put(view)
	return view, nil
}

// operatorBalance is best effort: a failed lookup is logged and left out.
func (d *Dashboard) operatorBalance(ctx context.Context) (*OperatorBalance, *models.TokenMeta) {
	var zero common.Address
	if d.cfg.Token == zero {
		return nil, nil
	}
	meta, err := d.client.TokenMeta(ctx, d.cfg.Token)
	if err != nil {
		d.logger.Warn("token metadata lookup failed", "token", d.cfg.Token.Hex(), "error", err)
		return nil, nil
	}
	if d.cfg.Operator == zero {
		return nil, &meta
	}

	store, err := d.client.TokenStore(ctx, d.cfg.Operator)
	if err != nil {
		d.logger.Warn("token store lookup failed", "operator", d.cfg.Operator.Hex(), "error", err)
		return nil, &meta
	}
	out := &OperatorBalance{
		Operator:   d.cfg.Operator,
		TokenStore: store,
		Token:      d.cfg.Token,
		Symbol:     meta.Symbol,
		Decimals:   meta.Decimals,
	}

	var (
		wg        sync.WaitGroup
		balance   *big.Int
		native    *big.Int
		balErr    error
		nativeErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		balance, balErr = d.client.TokenBalance(ctx, d.cfg.Token, store)
	}()
	go func() {
		defer wg.Done()
		native, nativeErr = d.client.NativeBalance(ctx, d.cfg.Operator)
	}()
	wg.Wait()

	if balErr != nil {
		d.logger.Warn("token store balance lookup failed", "tokenStore", store.Hex(), "error", balErr)
		return nil, &meta
	}
	out.Balance = balance.String()
	if nativeErr != nil {
		d.logger.Warn("operator native balance lookup failed", "operator", d.cfg.Operator.Hex(), "error", nativeErr)
	} else {
		out.Native = native.String()
	}
	return out, &meta
}

// Refunds lists payments that can still be refunded, as of now.
func (d *Dashboard) Refunds(ctx context.Context) (*RefundsView, error) {
	window, events, err := d.loadEvents(ctx, models.EventAuthorized, models.EventCharged, models.EventCaptured, models.EventRefunded)
	if err != nil {
		return nil, err
	}
	return &RefundsView{Window: window, Candidates: ledger.RefundCandidates(events, d.clock.Now())}, nil
}

// PaymentDetail resolves id as a paymentInfoHash or a salt seen in the window.
func (d *Dashboard) PaymentDetail(ctx context.Context, id string) (*PaymentDetailView, error) {
	window, events, err := d.loadEvents(ctx, models.EventKinds...)
	if err != nil {
		return nil, err
	}
	hash, ok := ledger.ResolveHash(events, id)
	if !ok {
		return nil, fmt.Errorf("%w: payment %q", ErrNotFound, id)
	}
	state, err := d.client.PaymentState(ctx, hash)
	if err != nil {
		return nil, chainErr("payment state", err)
	}
	return &PaymentDetailView{
		PaymentInfoHash: hash,
		PaymentInfo:     ledger.LatestInfo(events, hash),
		State:           state,
		Timeline:        ledger.Timeline(events, hash),
		Window:          window,
	}, nil
}

// ResetSession moves the session anchor to now and drops the cached KPIs.
func (d *Dashboard) ResetSession() *big.Int {
	if d.session == nil {
		return nil
	}
	d.session.Reset(d.clock.Now())
	d.kpis.invalidate()
	return d.session.MinSalt()
}

// Invalidate drops cached views, used after a flow changes chain state.
func (d *Dashboard) Invalidate() {
	d.payments.invalidate()
	d.kpis.invalidate()
}
