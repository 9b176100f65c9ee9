package utils

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yourusername/escrow-demo/models"
)

// MockEscrowClient implements EscrowClientInterface with overridable
// functions. Calls with no function set fail with an error naming the method.
type MockEscrowClient struct {
	BlockNumberFunc    func(ctx context.Context) (uint64, error)
	FetchEventsFunc    func(ctx context.Context, kind models.EventKind, fromBlock, toBlock uint64) ([]models.PaymentEvent, error)
	TokenStoreFunc     func(ctx context.Context, operator common.Address) (common.Address, error)
	PaymentStateFunc   func(ctx context.Context, paymentInfoHash common.Hash) (models.PaymentState, error)
	PaymentHashFunc    func(ctx context.Context, info models.PaymentInfo) (common.Hash, error)
	TokenMetaFunc      func(ctx context.Context, token common.Address) (models.TokenMeta, error)
	TokenBalanceFunc   func(ctx context.Context, token, owner common.Address) (*big.Int, error)
	AllowanceFunc      func(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	NativeBalanceFunc  func(ctx context.Context, account common.Address) (*big.Int, error)
	ChainIDFunc        func(ctx context.Context) (*big.Int, error)
	PendingNonceFunc   func(ctx context.Context, account common.Address) (uint64, error)
	SendFunc           func(ctx context.Context, signer *Signer, call ContractCall, nonce uint64) (common.Hash, error)
	WaitForReceiptFunc func(ctx context.Context, txHash common.Hash) (*Receipt, error)
}

var _ EscrowClientInterface = (*MockEscrowClient)(nil)

func notMocked(method string) error {
	return fmt.Errorf("mock escrow client: %s not set", method)
}

func (m *MockEscrowClient) BlockNumber(ctx context.Context) (uint64, error) {
	if m.BlockNumberFunc == nil {
		return 0, notMocked("BlockNumber")
	}
	return m.BlockNumberFunc(ctx)
}

func (m *MockEscrowClient) FetchEvents(ctx context.Context, kind models.EventKind, fromBlock, toBlock uint64) ([]models.PaymentEvent, error) {
	if m.FetchEventsFunc == nil {
		return nil, notMocked("FetchEvents")
	}
	return m.FetchEventsFunc(ctx, kind, fromBlock, toBlock)
}

func (m *MockEscrowClient) TokenStore(ctx context.Context, operator common.Address) (common.Address, error) {
	if m.TokenStoreFunc == nil {
		return common.Address{}, notMocked("TokenStore")
	}
	return m.TokenStoreFunc(ctx, operator)
}

func (m *MockEscrowClient) PaymentState(ctx context.Context, paymentInfoHash common.Hash) (models.PaymentState, error) {
	if m.PaymentStateFunc == nil {
		return models.PaymentState{}, notMocked("PaymentState")
	}
	return m.PaymentStateFunc(ctx, paymentInfoHash)
}

func (m *MockEscrowClient) PaymentHash(ctx context.Context, info models.PaymentInfo) (common.Hash, error) {
	if m.PaymentHashFunc == nil {
		return common.Hash{}, notMocked("PaymentHash")
	}
	return m.PaymentHashFunc(ctx, info)
}

func (m *MockEscrowClient) TokenMeta(ctx context.Context, token common.Address) (models.TokenMeta, error) {
	if m.TokenMetaFunc == nil {
		return models.TokenMeta{}, notMocked("TokenMeta")
	}
	return m.TokenMetaFunc(ctx, token)
}

func (m *MockEscrowClient) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	if m.TokenBalanceFunc == nil {
		return nil, notMocked("TokenBalance")
	}
	return m.TokenBalanceFunc(ctx, token, owner)
}

func (m *MockEscrowClient) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	if m.AllowanceFunc == nil {
		return nil, notMocked("Allowance")
	}
	return m.AllowanceFunc(ctx, token, owner, spender)
}

func (m *MockEscrowClient) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	if m.NativeBalanceFunc == nil {
		return nil, notMocked("NativeBalance")
	}
	return m.NativeBalanceFunc(ctx, account)
}

func (m *MockEscrowClient) ChainID(ctx context.Context) (*big.Int, error) {
	if m.ChainIDFunc == nil {
		return nil, notMocked("ChainID")
	}
	return m.ChainIDFunc(ctx)
}

func (m *MockEscrowClient) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	if m.PendingNonceFunc == nil {
		return 0, notMocked("PendingNonce")
	}
	return m.PendingNonceFunc(ctx, account)
}

func (m *MockEscrowClient) Send(ctx context.Context, signer *Signer, call ContractCall, nonce uint64) (common.Hash, error) {
	if m.SendFunc == nil {
		return common.Hash{}, notMocked("Send")
	}
	return m.SendFunc(ctx, signer, call, nonce)
}

func (m *MockEscrowClient) WaitForReceipt(ctx context.Context, txHash common.Hash) (*Receipt, error) {
	if m.WaitForReceiptFunc == nil {
		return nil, notMocked("WaitForReceipt")
	}
	return m.WaitForReceiptFunc(ctx, txHash)
}
