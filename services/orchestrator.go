package services

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yourusername/escrow-demo/metrics"
	"github.com/yourusername/escrow-demo/models"
	"github.com/yourusername/escrow-demo/utils"
	"github.com/zoobzio/clockz"
	"golang.org/x/sync/errgroup"
)

// Expiry offsets applied to a freshly built PaymentInfo.
const (
	PreApprovalWindow   = time.Hour
	AuthorizationWindow = 2 * time.Hour
	RefundWindow        = 3 * time.Hour
)

const (
	FlowBuild            = "build"
	FlowCharge           = "charge"
	FlowAuthorizeCapture = "authorize-capture"
	FlowCapture          = "capture"
	FlowRefund           = "refund"
	FlowVoid             = "void"
	FlowReclaim          = "reclaim"
	FlowRunDemo          = "run-demo"
)

// OrchestratorConfig carries the addresses and keys the flows need. Keys are
// parsed when a flow starts so a bad key fails that request only.
type OrchestratorConfig struct {
	Escrow               common.Address
	PreApprovalCollector common.Address
	RefundCollector      common.Address
	Token                common.Address
	Merchant             common.Address
	Payer                common.Address
	Operator             common.Address
	OperatorKey          string
	PayerKey             string
	// DemoSalt pins the salt of the run-demo payment. Empty uses the clock.
	DemoSalt       string
	ReceiptTimeout time.Duration
}

type FlowStep struct {
	Name        string         `json:"name"`
	Signer      common.Address `json:"signer"`
	Nonce       uint64         `json:"nonce"`
	TxHash      common.Hash    `json:"txHash"`
	BlockNumber uint64         `json:"blockNumber,omitempty"`
}

type Addresses struct {
	Escrow               common.Address `json:"escrow"`
	PreApprovalCollector common.Address `json:"preApprovalCollector"`
	Token                common.Address `json:"token"`
	Operator             common.Address `json:"operator"`
	Payer                common.Address `json:"payer"`
	Merchant             common.Address `json:"merchant"`
	TokenStore           common.Address `json:"tokenStore"`
}

type Balances struct {
	Payer      string `json:"payer"`
	Merchant   string `json:"merchant"`
	TokenStore string `json:"tokenStore"`
}

type FlowResult struct {
	Flow            string              `json:"flow"`
	Steps           []FlowStep          `json:"steps"`
	Txs             map[string]string   `json:"txs"`
	PaymentInfo     *models.PaymentInfo `json:"paymentInfo,omitempty"`
	PaymentInfoHash *common.Hash        `json:"paymentInfoHash,omitempty"`
	ChainID         string              `json:"chainId,omitempty"`
	Token           *models.TokenMeta   `json:"token,omitempty"`
	Addresses       *Addresses          `json:"addresses,omitempty"`
	BalancesBefore  *Balances           `json:"balancesBefore,omitempty"`
	BalancesAfter   *Balances           `json:"balancesAfter,omitempty"`
}

// Orchestrator runs the multi-transaction escrow flows. Within a flow every
// signer's nonce is fetched once and incremented locally, and each
// transaction waits for its receipt before the next one is sent.
type Orchestrator struct {
	client  utils.EscrowClientInterface
	cfg     OrchestratorConfig
	clock   clockz.Clock
	logger  *slog.Logger
	metrics *metrics.EscrowMetrics

	locksMu sync.Mutex
	locks   map[common.Address]*sync.Mutex
}

func NewOrchestrator(client utils.EscrowClientInterface, cfg OrchestratorConfig, clock clockz.Clock, logger *slog.Logger, m *metrics.EscrowMetrics) *Orchestrator {
	if clock == nil {
		clock = clockz.RealClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = 2 * time.Minute
	}
	return &Orchestrator{
		client:  client,
		cfg:     cfg,
		clock:   clock,
		logger:  logger,
		metrics: m,
		locks:   make(map[common.Address]*sync.Mutex),
	}
}

// lockSigner serializes flows of one account inside this process.
func (o *Orchestrator) lockSigner(addr common.Address) func() {
	o.locksMu.Lock()
	l, ok := o.locks[addr]
	if !ok {
		l = &sync.Mutex{}
		o.locks[addr] = l
	}
	o.locksMu.Unlock()
	l.Lock()
	return l.Unlock
}

func (o *Orchestrator) operatorSigner() (*utils.Signer, error) {
	return parseSigner("OPERATOR_PRIVATE_KEY", o.cfg.OperatorKey)
}

func (o *Orchestrator) payerSigner() (*utils.Signer, error) {
	return parseSigner("PAYER_PRIVATE_KEY", o.cfg.PayerKey)
}

func parseSigner(name, raw string) (*utils.Signer, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, notConfigured(name)
	}
	signer, err := utils.ParsePrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrValidation, name, err)
	}
	return signer, nil
}

func requireAddresses(named map[string]common.Address) error {
	var zero common.Address
	var missing []string
	for name, addr := range named {
		if addr == zero {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return notConfigured(strings.Join(missing, ", "))
}

// ResolveAmount reads an amount given either in smallest units or as a
// decimal token amount. It returns nil when both are empty.
func (o *Orchestrator) ResolveAmount(ctx context.Context, units, decimal string) (*big.Int, error) {
	units, decimal = strings.TrimSpace(units), strings.TrimSpace(decimal)
	switch {
	case units != "":
		v, err := models.ParseInteger(units)
		if err != nil {
			return nil, validation("amount: %v", err)
		}
		if v.Sign() == 0 {
			return nil, validation("amount must be positive")
		}
		return v, nil
	case decimal != "":
		if err := requireAddresses(map[string]common.Address{"DEMO_TOKEN": o.cfg.Token}); err != nil {
			return nil, err
		}
		meta, err := o.client.TokenMeta(ctx, o.cfg.Token)
		if err != nil {
			return nil, chainErr("token decimals", err)
		}
		v, err := utils.ParseUnits(decimal, meta.Decimals)
		if err != nil {
			return nil, validation("amountDec: %v", err)
		}
		return v, nil
	}
	return nil, nil
}

// defaultAmount is one hundredth of a token.
func (o *Orchestrator) defaultAmount(ctx context.Context, amount *big.Int) (*big.Int, error) {
	if amount != nil {
		if amount.Sign() <= 0 {
			return nil, validation("amount must be positive")
		}
		return amount, nil
	}
	meta, err := o.client.TokenMeta(ctx, o.cfg.Token)
	if err != nil {
		return nil, chainErr("token decimals", err)
	}
	unit := utils.CentUnit(meta.Decimals)
	if unit.Sign() == 0 {
		unit.SetInt64(1)
	}
	return unit, nil
}

// newPaymentInfo builds fresh terms with salt set to the current unix time.
func (o *Orchestrator) newPaymentInfo(operator, payer common.Address, amount *big.Int) models.PaymentInfo {
	now := o.clock.Now()
	return models.PaymentInfo{
		Operator:            operator,
		Payer:               payer,
		Receiver:            o.cfg.Merchant,
		Token:               o.cfg.Token,
		MaxAmount:           new(big.Int).Set(amount),
		PreApprovalExpiry:   uint64(now.Add(PreApprovalWindow).Unix()),
		AuthorizationExpiry: uint64(now.Add(AuthorizationWindow).Unix()),
		RefundExpiry:        uint64(now.Add(RefundWindow).Unix()),
		Salt:                big.NewInt(now.Unix()),
	}
}

func (o *Orchestrator) addresses(ctx context.Context, operator, payer common.Address) (*Addresses, error) {
	store, err := o.client.TokenStore(ctx, operator)
	if err != nil {
		return nil, chainErr("token store", err)
	}
	return &Addresses{
		Escrow:               o.cfg.Escrow,
		PreApprovalCollector: o.cfg.PreApprovalCollector,
		Token:                o.cfg.Token,
		Operator:             operator,
		Payer:                payer,
		Merchant:             o.cfg.Merchant,
		TokenStore:           store,
	}, nil
}

func (o *Orchestrator) balances(ctx context.Context, a *Addresses) (*Balances, error) {
	owners := []common.Address{a.Payer, a.Merchant, a.TokenStore}
	values := make([]*big.Int, len(owners))
	g, gctx := errgroup.WithContext(ctx)
	for i, owner := range owners {
		g.Go(func() error {
			v, err := o.client.TokenBalance(gctx, a.Token, owner)
			values[i] = v
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, chainErr("balances", err)
	}
	return &Balances{
		Payer:      values[0].String(),
		Merchant:   values[1].String(),
		TokenStore: values[2].String(),
	}, nil
}

// sequence sends one signer's transactions with locally incremented nonces.
type sequence struct {
	o      *Orchestrator
	flow   string
	signer *utils.Signer
	nonce  uint64
	result *FlowResult
}

// withSigner holds the signer's lock, fetches its pending nonce once and runs fn.
func (o *Orchestrator) withSigner(ctx context.Context, flow string, signer *utils.Signer, result *FlowResult, fn func(*sequence) error) error {
	unlock := o.lockSigner(signer.Address)
	defer unlock()
	nonce, err := o.client.PendingNonce(ctx, signer.Address)
	if err != nil {
		return chainErr("pending nonce", err)
	}
	return fn(&sequence{o: o, flow: flow, signer: signer, nonce: nonce, result: result})
}

func (s *sequence) send(ctx context.Context, step string, call utils.ContractCall, buildErr error) error {
	if buildErr != nil {
		return validation("%s: %v", step, buildErr)
	}
	log := s.o.logger.With("flow", s.flow, "step", step, "signer", s.signer.Address.Hex(), "nonce", s.nonce)
	hash, err := s.o.client.Send(ctx, s.signer, call, s.nonce)
	if err != nil {
		log.Error("transaction submission failed", "error", err)
		return chainErr(step, err)
	}
	log.Info("transaction submitted", "tx", hash.Hex())
	entry := FlowStep{Name: step, Signer: s.signer.Address, Nonce: s.nonce, TxHash: hash}
	s.nonce++
	if s.result.Txs == nil {
		s.result.Txs = make(map[string]string)
	}
	s.result.Txs[step+"Hash"] = hash.Hex()

	waitCtx, cancel := s.o.clock.WithTimeout(ctx, s.o.cfg.ReceiptTimeout)
	defer cancel()
	receipt, err := s.o.client.WaitForReceipt(waitCtx, hash)
	if err != nil {
		s.result.Steps = append(s.result.Steps, entry)
		log.Error("transaction not confirmed", "tx", hash.Hex(), "error", err)
		return chainErr(step, err)
	}
	entry.BlockNumber = receipt.BlockNumber
	s.result.Steps = append(s.result.Steps, entry)
	return nil
}

func (o *Orchestrator) observe(flow string, err *error) {
	o.metrics.ObserveFlow(flow, *err)
	if *err != nil {
		o.logger.Warn("flow failed", "flow", flow, "error", *err)
	}
}

func validateInfo(info *models.PaymentInfo) error {
	if info == nil {
		return validation("paymentInfo is required")
	}
	if err := info.Validate(); err != nil {
		return validation("paymentInfo: %v", err)
	}
	return nil
}

// Build returns fresh payment terms without sending anything.
func (o *Orchestrator) Build(ctx context.Context, amount *big.Int) (res *FlowResult, err error) {
	defer o.observe(FlowBuild, &err)
	if err := requireAddresses(map[string]common.Address{
		"AUTH_CAPTURE_ESCROW": o.cfg.Escrow, "DEMO_TOKEN": o.cfg.Token, "MERCHANT": o.cfg.Merchant,
	}); err != nil {
		return nil, err
	}
	operator, payer := o.cfg.Operator, o.cfg.Payer
	if s, perr := o.operatorSigner(); perr == nil && operator == (common.Address{}) {
		operator = s.Address
	}
	if s, perr := o.payerSigner(); perr == nil && payer == (common.Address{}) {
		payer = s.Address
	}
	if err := requireAddresses(map[string]common.Address{"OPERATOR": operator, "PAYER": payer}); err != nil {
		return nil, err
	}
	amount, err = o.defaultAmount(ctx, amount)
	if err != nil {
		return nil, err
	}

	info := o.newPaymentInfo(operator, payer, amount)
	addrs, err := o.addresses(ctx, operator, payer)
	if err != nil {
		return nil, err
	}
	res = &FlowResult{Flow: FlowBuild, Steps: []FlowStep{}, Txs: map[string]string{}, PaymentInfo: &info, Addresses: addrs}
	if hash, herr := o.client.PaymentHash(ctx, info); herr == nil {
		res.PaymentInfoHash = &hash
	} else {
		o.logger.Warn("payment hash lookup failed", "error", herr)
	}
	return res, nil
}

// Charge approves and pre-approves as the payer, then charges as the operator.
func (o *Orchestrator) Charge(ctx context.Context, amount *big.Int) (res *FlowResult, err error) {
	defer o.observe(FlowCharge, &err)
	if err := requireAddresses(map[string]common.Address{
		"AUTH_CAPTURE_ESCROW": o.cfg.Escrow, "PREAPPROVAL_COLLECTOR": o.cfg.PreApprovalCollector,
		"DEMO_TOKEN": o.cfg.Token, "MERCHANT": o.cfg.Merchant,
	}); err != nil {
		return nil, err
	}
	operator, err := o.operatorSigner()
	if err != nil {
		return nil, err
	}
	payer, err := o.payerSigner()
	if err != nil {
		return nil, err
	}
	amount, err = o.defaultAmount(ctx, amount)
	if err != nil {
		return nil, err
	}

	info := o.newPaymentInfo(operator.Address, payer.Address, amount)
	res = &FlowResult{Flow: FlowCharge, Steps: []FlowStep{}, Txs: map[string]string{}, PaymentInfo: &info}
	collector := o.cfg.PreApprovalCollector

	err = o.withSigner(ctx, FlowCharge, payer, res, func(seq *sequence) error {
		call, cerr := utils.ApproveCall(o.cfg.Token, collector, amount)
		if err := seq.send(ctx, "approve", call, cerr); err != nil {
			return err
		}
		call, cerr = utils.PreApproveCall(collector, info)
		return seq.send(ctx, "preApprove", call, cerr)
	})
	if err != nil {
		return res, err
	}
	err = o.withSigner(ctx, FlowCharge, operator, res, func(seq *sequence) error {
		call, cerr := utils.ChargeCall(o.cfg.Escrow, info, amount, collector, 0, common.Address{})
		return seq.send(ctx, "charge", call, cerr)
	})
	if err != nil {
		return res, err
	}
	return res, nil
}

// AuthorizeCapture authorizes then captures the same amount as the operator.
func (o *Orchestrator) AuthorizeCapture(ctx context.Context, amount *big.Int) (res *FlowResult, err error) {
	defer o.observe(FlowAuthorizeCapture, &err)
	if err := requireAddresses(map[string]common.Address{
		"AUTH_CAPTURE_ESCROW": o.cfg.Escrow, "PREAPPROVAL_COLLECTOR": o.cfg.PreApprovalCollector,
		"DEMO_TOKEN": o.cfg.Token, "MERCHANT": o.cfg.Merchant, "PAYER": o.cfg.Payer,
	}); err != nil {
		return nil, err
	}
	operator, err := o.operatorSigner()
	if err != nil {
		return nil, err
	}
	amount, err = o.defaultAmount(ctx, amount)
	if err != nil {
		return nil, err
	}

	info := o.newPaymentInfo(operator.Address, o.cfg.Payer, amount)
	res = &FlowResult{Flow: FlowAuthorizeCapture, Steps: []FlowStep{}, Txs: map[string]string{}, PaymentInfo: &info}
	if res.Addresses, err = o.addresses(ctx, operator.Address, o.cfg.Payer); err != nil {
		return res, err
	}
	if res.BalancesBefore, err = o.balances(ctx, res.Addresses); err != nil {
		return res, err
	}

	err = o.withSigner(ctx, FlowAuthorizeCapture, operator, res, func(seq *sequence) error {
		call, cerr := utils.AuthorizeCall(o.cfg.Escrow, info, amount, o.cfg.PreApprovalCollector)
		if err := seq.send(ctx, "authorize", call, cerr); err != nil {
			return err
		}
		call, cerr = utils.CaptureCall(o.cfg.Escrow, info, amount, 0, common.Address{})
		return seq.send(ctx, "capture", call, cerr)
	})
	if err != nil {
		return res, err
	}
	res.BalancesAfter, err = o.balances(ctx, res.Addresses)
	return res, err
}

// Capture captures an existing authorization. A nil amount captures maxAmount.
func (o *Orchestrator) Capture(ctx context.Context, info *models.PaymentInfo, amount *big.Int) (res *FlowResult, err error) {
	defer o.observe(FlowCapture, &err)
	if err := requireAddresses(map[string]common.Address{"AUTH_CAPTURE_ESCROW": o.cfg.Escrow}); err != nil {
		return nil, err
	}
	if err := validateInfo(info); err != nil {
		return nil, err
	}
	operator, err := o.operatorSigner()
	if err != nil {
		return nil, err
	}
	if amount == nil {
		amount = info.MaxAmount
	}
	if amount.Sign() <= 0 {
		return nil, validation("amount must be positive")
	}

	res = &FlowResult{Flow: FlowCapture, Steps: []FlowStep{}, Txs: map[string]string{}, PaymentInfo: info}
	err = o.withSigner(ctx, FlowCapture, operator, res, func(seq *sequence) error {
		call, cerr := utils.CaptureCall(o.cfg.Escrow, *info, amount, 0, common.Address{})
		return seq.send(ctx, "capture", call, cerr)
	})
	return res, err
}

// Refund returns captured funds to the payer through a refund collector that
// pulls from the operator. The collector is approved first when the
// operator's allowance is short.
func (o *Orchestrator) Refund(ctx context.Context, info *models.PaymentInfo, amount *big.Int, collector common.Address) (res *FlowResult, err error) {
	defer o.observe(FlowRefund, &err)
	if collector == (common.Address{}) {
		collector = o.cfg.RefundCollector
	}
	if err := requireAddresses(map[string]common.Address{
		"AUTH_CAPTURE_ESCROW": o.cfg.Escrow, "OPERATOR_REFUND_COLLECTOR": collector,
	}); err != nil {
		return nil, err
	}
	if err := validateInfo(info); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, validation("amount must be positive")
	}
	operator, err := o.operatorSigner()
	if err != nil {
		return nil, err
	}

	balance, err := o.client.TokenBalance(ctx, info.Token, operator.Address)
	if err != nil {
		return nil, chainErr("operator balance", err)
	}
	if balance.Cmp(amount) < 0 {
		return nil, validation("operator balance %s is less than refund amount %s", balance, amount)
	}
	allowance, err := o.client.Allowance(ctx, info.Token, operator.Address, collector)
	if err != nil {
		return nil, chainErr("allowance", err)
	}

	res = &FlowResult{Flow: FlowRefund, Steps: []FlowStep{}, Txs: map[string]string{}, PaymentInfo: info}
	err = o.withSigner(ctx, FlowRefund, operator, res, func(seq *sequence) error {
		if allowance.Cmp(amount) < 0 {
			call, cerr := utils.ApproveCall(info.Token, collector, amount)
			if err := seq.send(ctx, "approve", call, cerr); err != nil {
				return err
			}
		}
		call, cerr := utils.RefundCall(o.cfg.Escrow, *info, amount, collector)
		return seq.send(ctx, "refund", call, cerr)
	})
	return res, err
}

// Void releases the uncaptured part of an authorization. Without info a
// fresh PaymentInfo is voided.
func (o *Orchestrator) Void(ctx context.Context, info *models.PaymentInfo) (res *FlowResult, err error) {
	defer o.observe(FlowVoid, &err)
	if err := requireAddresses(map[string]common.Address{
		"AUTH_CAPTURE_ESCROW": o.cfg.Escrow, "DEMO_TOKEN": o.cfg.Token, "MERCHANT": o.cfg.Merchant, "PAYER": o.cfg.Payer,
	}); err != nil {
		return nil, err
	}
	operator, err := o.operatorSigner()
	if err != nil {
		return nil, err
	}
	if info == nil {
		amount, err := o.defaultAmount(ctx, nil)
		if err != nil {
			return nil, err
		}
		fresh := o.newPaymentInfo(operator.Address, o.cfg.Payer, amount)
		info = &fresh
	} else if err := validateInfo(info); err != nil {
		return nil, err
	}

	res = &FlowResult{Flow: FlowVoid, Steps: []FlowStep{}, Txs: map[string]string{}, PaymentInfo: info}
	return res, o.withBalances(ctx, res, operator.Address, o.cfg.Payer, func() error {
		return o.withSigner(ctx, FlowVoid, operator, res, func(seq *sequence) error {
			call, cerr := utils.VoidCall(o.cfg.Escrow, *info)
			return seq.send(ctx, "void", call, cerr)
		})
	})
}

// Reclaim lets the payer recover an authorization the operator never
// captured. Without info a PaymentInfo whose authorization already expired
// is used.
func (o *Orchestrator) Reclaim(ctx context.Context, info *models.PaymentInfo) (res *FlowResult, err error) {
	defer o.observe(FlowReclaim, &err)
	if err := requireAddresses(map[string]common.Address{
		"AUTH_CAPTURE_ESCROW": o.cfg.Escrow, "DEMO_TOKEN": o.cfg.Token, "MERCHANT": o.cfg.Merchant, "OPERATOR": o.cfg.Operator,
	}); err != nil {
		return nil, err
	}
	payer, err := o.payerSigner()
	if err != nil {
		return nil, err
	}
	if info == nil {
		amount, err := o.defaultAmount(ctx, nil)
		if err != nil {
			return nil, err
		}
		now := o.clock.Now()
		expired := o.newPaymentInfo(o.cfg.Operator, payer.Address, amount)
		expired.PreApprovalExpiry = uint64(now.Unix() + 1)
		expired.AuthorizationExpiry = uint64(now.Unix() - 1)
		expired.Salt = big.NewInt(now.Unix() - 1000)
		info = &expired
	} else if err := validateInfo(info); err != nil {
		return nil, err
	}

	res = &FlowResult{Flow: FlowReclaim, Steps: []FlowStep{}, Txs: map[string]string{}, PaymentInfo: info}
	return res, o.withBalances(ctx, res, info.Operator, payer.Address, func() error {
		return o.withSigner(ctx, FlowReclaim, payer, res, func(seq *sequence) error {
			call, cerr := utils.ReclaimCall(o.cfg.Escrow, *info)
			return seq.send(ctx, "reclaim", call, cerr)
		})
	})
}

// RunDemo pushes one payment through approve, preApprove, authorize and
// capture from a single account acting as both payer and operator.
func (o *Orchestrator) RunDemo(ctx context.Context, amount *big.Int) (res *FlowResult, err error) {
	defer o.observe(FlowRunDemo, &err)
	if err := requireAddresses(map[string]common.Address{
		"AUTH_CAPTURE_ESCROW": o.cfg.Escrow, "PREAPPROVAL_COLLECTOR": o.cfg.PreApprovalCollector,
		"DEMO_TOKEN": o.cfg.Token, "MERCHANT": o.cfg.Merchant,
	}); err != nil {
		return nil, err
	}
	signer, err := o.operatorSigner()
	if err != nil {
		return nil, err
	}
	if o.cfg.Payer != (common.Address{}) && o.cfg.Payer != signer.Address {
		return nil, validation("PAYER %s must equal the signing account %s", o.cfg.Payer.Hex(), signer.Address.Hex())
	}
	var salt *big.Int
	if raw := strings.TrimSpace(o.cfg.DemoSalt); raw != "" {
		if salt, err = models.ParseInteger(raw); err != nil {
			return nil, validation("PAYMENT_SALT: %v", err)
		}
	}

	var meta models.TokenMeta
	var chainID *big.Int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		meta, err = o.client.TokenMeta(gctx, o.cfg.Token)
		return err
	})
	g.Go(func() (err error) {
		chainID, err = o.client.ChainID(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, chainErr("chain metadata", err)
	}
	amount, err = o.defaultAmount(ctx, amount)
	if err != nil {
		return nil, err
	}

	info := o.newPaymentInfo(signer.Address, signer.Address, amount)
	if salt != nil {
		info.Salt = salt
	}
	res = &FlowResult{
		Flow:        FlowRunDemo,
		Steps:       []FlowStep{},
		Txs:         map[string]string{},
		PaymentInfo: &info,
		ChainID:     chainID.String(),
		Token:       &meta,
	}
	collector := o.cfg.PreApprovalCollector
	return res, o.withBalances(ctx, res, signer.Address, signer.Address, func() error {
		return o.withSigner(ctx, FlowRunDemo, signer, res, func(seq *sequence) error {
			call, cerr := utils.ApproveCall(o.cfg.Token, collector, amount)
			if err := seq.send(ctx, "approve", call, cerr); err != nil {
				return err
			}
			call, cerr = utils.PreApproveCall(collector, info)
			if err := seq.send(ctx, "preApprove", call, cerr); err != nil {
				return err
			}
			call, cerr = utils.AuthorizeCall(o.cfg.Escrow, info, amount, collector)
			if err := seq.send(ctx, "authorize", call, cerr); err != nil {
				return err
			}
			call, cerr = utils.CaptureCall(o.cfg.Escrow, info, amount, 0, common.Address{})
			return seq.send(ctx, "capture", call, cerr)
		})
	})
}

// withBalances records token balances around fn.
func (o *Orchestrator) withBalances(ctx context.Context, res *FlowResult, operator, payer common.Address, fn func() error) error {
	var err error
	if res.Addresses, err = o.addresses(ctx, operator, payer); err != nil {
		return err
	}
	if res.BalancesBefore, err = o.balances(ctx, res.Addresses); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	res.BalancesAfter, err = o.balances(ctx, res.Addresses)
	return err
}
