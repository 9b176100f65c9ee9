package utils

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/yourusername/escrow-demo/metrics"
	"github.com/yourusername/escrow-demo/models"
)

// ErrReverted marks a mined transaction whose receipt status is failure.
var ErrReverted = errors.New("transaction reverted")

// Receipt is the confirmation of a mined transaction.
type Receipt struct {
	TxHash      common.Hash `json:"txHash"`
	BlockNumber uint64      `json:"blockNumber"`
	GasUsed     uint64      `json:"gasUsed"`
}

// EscrowClientInterface is everything the dashboard and the orchestrator need
// from the chain.
type EscrowClientInterface interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FetchEvents(ctx context.Context, kind models.EventKind, fromBlock, toBlock uint64) ([]models.PaymentEvent, error)
	TokenStore(ctx context.Context, operator common.Address) (common.Address, error)
	PaymentState(ctx context.Context, paymentInfoHash common.Hash) (models.PaymentState, error)
	PaymentHash(ctx context.Context, info models.PaymentInfo) (common.Hash, error)
	TokenMeta(ctx context.Context, token common.Address) (models.TokenMeta, error)
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	NativeBalance(ctx context.Context, account common.Address) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonce(ctx context.Context, account common.Address) (uint64, error)
	Send(ctx context.Context, signer *Signer, call ContractCall, nonce uint64) (common.Hash, error)
	WaitForReceipt(ctx context.Context, txHash common.Hash) (*Receipt, error)
}

// EthBackend is the subset of the Ethereum JSON-RPC used by EscrowClient.
// *ethclient.Client satisfies it.
type EthBackend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]gethtypes.Log, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// DialEthClient opens a JSON-RPC connection to the node at endpoint.
func DialEthClient(ctx context.Context, endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("rpc endpoint required")
	}
	return ethclient.DialContext(ctx, trimmed)
}

type EscrowClient struct {
	backend      EthBackend
	escrow       common.Address
	chainID      *big.Int
	chainIDMu    sync.Mutex
	pollInterval time.Duration
	logger       *slog.Logger
	metrics      *metrics.EscrowMetrics
}

type EscrowClientOption func(*EscrowClient)

// WithChainID pins the chain id instead of asking the node.
func WithChainID(id *big.Int) EscrowClientOption {
	return func(c *EscrowClient) { c.chainID = id }
}

// WithPollInterval sets how often receipts are polled.
func WithPollInterval(d time.Duration) EscrowClientOption {
	return func(c *EscrowClient) { c.pollInterval = d }
}

func WithLogger(logger *slog.Logger) EscrowClientOption {
	return func(c *EscrowClient) { c.logger = logger }
}

func WithMetrics(m *metrics.EscrowMetrics) EscrowClientOption {
	return func(c *EscrowClient) { c.metrics = m }
}

func NewEscrowClient(backend EthBackend, escrow common.Address, opts ...EscrowClientOption) *EscrowClient {
	c := &EscrowClient{
		backend:      backend,
		escrow:       escrow,
		pollInterval: time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *EscrowClient) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("get block number: %w", err)
	}
	return n, nil
}

// FetchEvents queries one event kind over [fromBlock, toBlock]. Logs that fail
// to decode are skipped.
func (c *EscrowClient) FetchEvents(ctx context.Context, kind models.EventKind, fromBlock, toBlock uint64) ([]models.PaymentEvent, error) {
	topic, err := EventTopic(kind)
	if err != nil {
		return nil, err
	}
	logs, err := c.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{c.escrow},
		Topics:    [][]common.Hash{{topic}},
	})
	if err != nil {
		return nil, fmt.Errorf("get %s logs: %w", kind, err)
	}
	events := make([]models.PaymentEvent, 0, len(logs))
	for _, lg := range logs {
		ev, err := DecodeLog(kind, lg)
		if err != nil {
			c.metrics.EventSkipped(string(kind))
			c.logger.Warn("skipping escrow log", "kind", kind, "tx", lg.TxHash.Hex(), "index", lg.Index, "error", err)
			continue
		}
		events = append(events, ev)
	}
	c.metrics.EventsFetched(string(kind), len(events))
	return events, nil
}

func (c *EscrowClient) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

func (c *EscrowClient) TokenStore(ctx context.Context, operator common.Address) (common.Address, error) {
	data, err := EscrowABI.Pack("getTokenStore", operator)
	if err != nil {
		return common.Address{}, err
	}
	out, err := c.call(ctx, c.escrow, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("getTokenStore: %w", err)
	}
	values, err := EscrowABI.Unpack("getTokenStore", out)
	if err != nil || len(values) != 1 {
		return common.Address{}, fmt.Errorf("getTokenStore: decode: %v", err)
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("getTokenStore: unexpected result")
	}
	return addr, nil
}

func (c *EscrowClient) PaymentState(ctx context.Context, paymentInfoHash common.Hash) (models.PaymentState, error) {
	data, err := EscrowABI.Pack("paymentState", paymentInfoHash)
	if err != nil {
		return models.PaymentState{}, err
	}
	out, err := c.call(ctx, c.escrow, data)
	if err != nil {
		return models.PaymentState{}, fmt.Errorf("paymentState: %w", err)
	}
	values, err := EscrowABI.Unpack("paymentState", out)
	if err != nil || len(values) != 3 {
		return models.PaymentState{}, fmt.Errorf("paymentState: decode: %v", err)
	}
	collected, ok1 := values[0].(bool)
	capturable, ok2 := values[1].(*big.Int)
	refundable, ok3 := values[2].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return models.PaymentState{}, fmt.Errorf("paymentState: unexpected result")
	}
	return models.PaymentState{
		HasCollectedPayment: collected,
		CapturableAmount:    capturable,
		RefundableAmount:    refundable,
	}, nil
}

func (c *EscrowClient) PaymentHash(ctx context.Context, info models.PaymentInfo) (common.Hash, error) {
	data, err := EscrowABI.Pack("getHash", toABIPaymentInfo(info))
	if err != nil {
		return common.Hash{}, err
	}
	out, err := c.call(ctx, c.escrow, data)
	if err != nil {
		return common.Hash{}, fmt.Errorf("getHash: %w", err)
	}
	values, err := EscrowABI.Unpack("getHash", out)
	if err != nil || len(values) != 1 {
		return common.Hash{}, fmt.Errorf("getHash: decode: %v", err)
	}
	raw, ok := values[0].([32]byte)
	if !ok {
		return common.Hash{}, fmt.Errorf("getHash: unexpected result")
	}
	return common.Hash(raw), nil
}

func (c *EscrowClient) TokenMeta(ctx context.Context, token common.Address) (models.TokenMeta, error) {
	meta := models.TokenMeta{Address: token}
	data, _ := ERC20ABI.Pack("symbol")
	out, err := c.call(ctx, token, data)
	if err != nil {
		return meta, fmt.Errorf("symbol: %w", err)
	}
	values, err := ERC20ABI.Unpack("symbol", out)
	if err != nil || len(values) != 1 {
		return meta, fmt.Errorf("symbol: decode: %v", err)
	}
	meta.Symbol, _ = values[0].(string)

	data, _ = ERC20ABI.Pack("decimals")
	out, err = c.call(ctx, token, data)
	if err != nil {
		return meta, fmt.Errorf("decimals: %w", err)
	}
	values, err = ERC20ABI.Unpack("decimals", out)
	if err != nil || len(values) != 1 {
		return meta, fmt.Errorf("decimals: decode: %v", err)
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return meta, fmt.Errorf("decimals: unexpected result")
	}
	meta.Decimals = decimals
	return meta, nil
}

func (c *EscrowClient) uint256View(ctx context.Context, token common.Address, method string, args ...interface{}) (*big.Int, error) {
	data, err := ERC20ABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	out, err := c.call(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	values, err := ERC20ABI.Unpack(method, out)
	if err != nil || len(values) != 1 {
		return nil, fmt.Errorf("%s: decode: %v", method, err)
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected result", method)
	}
	return v, nil
}

func (c *EscrowClient) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return c.uint256View(ctx, token, "balanceOf", owner)
}

func (c *EscrowClient) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return c.uint256View(ctx, token, "allowance", owner, spender)
}

func (c *EscrowClient) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	v, err := c.backend.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return v, nil
}

func (c *EscrowClient) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	n, err := c.backend.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("get pending nonce: %w", err)
	}
	return n, nil
}

// ChainID returns the configured chain id, asking the node once when unset.
func (c *EscrowClient) ChainID(ctx context.Context) (*big.Int, error) {
	c.chainIDMu.Lock()
	defer c.chainIDMu.Unlock()
	if c.chainID != nil {
		return c.chainID, nil
	}
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	c.chainID = id
	return id, nil
}

// Send signs call with the explicit nonce and submits it. It does not wait
// for the receipt.
func (c *EscrowClient) Send(ctx context.Context, signer *Signer, call ContractCall, nonce uint64) (common.Hash, error) {
	if signer == nil || signer.key == nil {
		return common.Hash{}, fmt.Errorf("%s: signer required", call.Method)
	}
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	to := call.To
	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{From: signer.Address, To: &to, Data: call.Data})
	if err != nil {
		return common.Hash{}, fmt.Errorf("%s: estimate gas: %w", call.Method, err)
	}
	gas += gas / 5

	var tx *gethtypes.Transaction
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%s: get head: %w", call.Method, err)
	}
	if head != nil && head.BaseFee != nil {
		tip, err := c.backend.SuggestGasTipCap(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("%s: suggest tip: %w", call.Method, err)
		}
		feeCap := new(big.Int).Mul(head.BaseFee, big.NewInt(2))
		feeCap.Add(feeCap, tip)
		tx = gethtypes.NewTx(&gethtypes.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gas,
			To:        &to,
			Data:      call.Data,
		})
	} else {
		price, err := c.backend.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("%s: suggest gas price: %w", call.Method, err)
		}
		tx = gethtypes.NewTx(&gethtypes.LegacyTx{
			Nonce:    nonce,
			GasPrice: price,
			Gas:      gas,
			To:       &to,
			Data:     call.Data,
		})
	}

	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(chainID), signer.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%s: sign: %w", call.Method, err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("%s: send: %w", call.Method, err)
	}
	c.metrics.TxSubmitted(call.Method)
	return signed.Hash(), nil
}

// WaitForReceipt polls until txHash is mined or ctx ends. A mined but failed
// transaction returns ErrReverted.
func (c *EscrowClient) WaitForReceipt(ctx context.Context, txHash common.Hash) (*Receipt, error) {
	started := time.Now()
	defer func() { c.metrics.ReceiptWait(time.Since(started)) }()

	interval := c.pollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		receipt, err := c.backend.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status != gethtypes.ReceiptStatusSuccessful {
				return nil, fmt.Errorf("%w: %s", ErrReverted, txHash.Hex())
			}
			out := &Receipt{TxHash: txHash, GasUsed: receipt.GasUsed}
			if receipt.BlockNumber != nil {
				out.BlockNumber = receipt.BlockNumber.Uint64()
			}
			return out, nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			return nil, fmt.Errorf("fetch receipt %s: %w", txHash.Hex(), err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for receipt %s: %w", txHash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
