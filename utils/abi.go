package utils

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/yourusername/escrow-demo/models"
)

const paymentInfoTuple = `{"name":"paymentInfo","type":"tuple","components":[
	{"name":"operator","type":"address"},
	{"name":"payer","type":"address"},
	{"name":"receiver","type":"address"},
	{"name":"token","type":"address"},
	{"name":"maxAmount","type":"uint120"},
	{"name":"preApprovalExpiry","type":"uint48"},
	{"name":"authorizationExpiry","type":"uint48"},
	{"name":"refundExpiry","type":"uint48"},
	{"name":"minFeeBps","type":"uint16"},
	{"name":"maxFeeBps","type":"uint16"},
	{"name":"feeReceiver","type":"address"},
	{"name":"salt","type":"uint256"}]}`

const erc20ABIJSON = `[
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}
]`

const preApprovalABIJSON = `[
	{"type":"function","name":"preApprove","stateMutability":"nonpayable","inputs":[` + paymentInfoTuple + `],"outputs":[]}
]`

const escrowABIJSON = `[
	{"type":"function","name":"getTokenStore","stateMutability":"view","inputs":[{"name":"operator","type":"address"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"authorize","stateMutability":"nonpayable","inputs":[` + paymentInfoTuple + `,{"name":"amount","type":"uint256"},{"name":"tokenCollector","type":"address"},{"name":"collectorData","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"capture","stateMutability":"nonpayable","inputs":[` + paymentInfoTuple + `,{"name":"amount","type":"uint256"},{"name":"feeBps","type":"uint16"},{"name":"feeReceiver","type":"address"}],"outputs":[]},
	{"type":"function","name":"charge","stateMutability":"nonpayable","inputs":[` + paymentInfoTuple + `,{"name":"amount","type":"uint256"},{"name":"tokenCollector","type":"address"},{"name":"collectorData","type":"bytes"},{"name":"feeBps","type":"uint16"},{"name":"feeReceiver","type":"address"}],"outputs":[]},
	{"type":"function","name":"void","stateMutability":"nonpayable","inputs":[` + paymentInfoTuple + `],"outputs":[]},
	{"type":"function","name":"reclaim","stateMutability":"nonpayable","inputs":[` + paymentInfoTuple + `],"outputs":[]},
	{"type":"function","name":"refund","stateMutability":"nonpayable","inputs":[` + paymentInfoTuple + `,{"name":"amount","type":"uint256"},{"name":"tokenCollector","type":"address"},{"name":"collectorData","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"paymentState","stateMutability":"view","inputs":[{"name":"paymentInfoHash","type":"bytes32"}],"outputs":[{"name":"hasCollectedPayment","type":"bool"},{"name":"capturableAmount","type":"uint120"},{"name":"refundableAmount","type":"uint120"}]},
	{"type":"function","name":"getHash","stateMutability":"view","inputs":[` + paymentInfoTuple + `],"outputs":[{"name":"","type":"bytes32"}]},
	{"type":"event","name":"PaymentAuthorized","anonymous":false,"inputs":[{"name":"paymentInfoHash","type":"bytes32","indexed":true},` + paymentInfoTuple + `,{"name":"amount","type":"uint256","indexed":false},{"name":"tokenCollector","type":"address","indexed":false}]},
	{"type":"event","name":"PaymentCaptured","anonymous":false,"inputs":[{"name":"paymentInfoHash","type":"bytes32","indexed":true},{"name":"amount","type":"uint256","indexed":false},{"name":"feeBps","type":"uint16","indexed":false},{"name":"feeReceiver","type":"address","indexed":false}]},
	{"type":"event","name":"PaymentCharged","anonymous":false,"inputs":[{"name":"paymentInfoHash","type":"bytes32","indexed":true},` + paymentInfoTuple + `,{"name":"amount","type":"uint256","indexed":false},{"name":"tokenCollector","type":"address","indexed":false},{"name":"feeBps","type":"uint16","indexed":false},{"name":"feeReceiver","type":"address","indexed":false}]},
	{"type":"event","name":"PaymentRefunded","anonymous":false,"inputs":[{"name":"paymentInfoHash","type":"bytes32","indexed":true},{"name":"amount","type":"uint256","indexed":false},{"name":"tokenCollector","type":"address","indexed":false}]},
	{"type":"event","name":"PaymentVoided","anonymous":false,"inputs":[{"name":"paymentInfoHash","type":"bytes32","indexed":true},{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"PaymentReclaimed","anonymous":false,"inputs":[{"name":"paymentInfoHash","type":"bytes32","indexed":true},{"name":"amount","type":"uint256","indexed":false}]}
]`

var (
	ERC20ABI       = mustParseABI("erc20", erc20ABIJSON)
	PreApprovalABI = mustParseABI("preApproval", preApprovalABIJSON)
	EscrowABI      = mustParseABI("escrow", escrowABIJSON)
)

func mustParseABI(name, def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse %s abi: %v", name, err))
	}
	return parsed
}

// EventTopic returns topic0 of the escrow event for kind.
func EventTopic(kind models.EventKind) (common.Hash, error) {
	ev, ok := EscrowABI.Events[kind.EventName()]
	if !ok {
		return common.Hash{}, fmt.Errorf("unknown event kind %q", kind)
	}
	return ev.ID, nil
}

// abiPaymentInfo has the exact Go shape go-ethereum uses for the tuple, so
// decoded values convert into it and it packs back unchanged.
type abiPaymentInfo struct {
	Operator            common.Address
	Payer               common.Address
	Receiver            common.Address
	Token               common.Address
	MaxAmount           *big.Int
	PreApprovalExpiry   *big.Int
	AuthorizationExpiry *big.Int
	RefundExpiry        *big.Int
	MinFeeBps           uint16
	MaxFeeBps           uint16
	FeeReceiver         common.Address
	Salt                *big.Int
}

func toABIPaymentInfo(p models.PaymentInfo) abiPaymentInfo {
	return abiPaymentInfo{
		Operator:            p.Operator,
		Payer:               p.Payer,
		Receiver:            p.Receiver,
		Token:               p.Token,
		MaxAmount:           orZero(p.MaxAmount),
		PreApprovalExpiry:   new(big.Int).SetUint64(p.PreApprovalExpiry),
		AuthorizationExpiry: new(big.Int).SetUint64(p.AuthorizationExpiry),
		RefundExpiry:        new(big.Int).SetUint64(p.RefundExpiry),
		MinFeeBps:           p.MinFeeBps,
		MaxFeeBps:           p.MaxFeeBps,
		FeeReceiver:         p.FeeReceiver,
		Salt:                orZero(p.Salt),
	}
}

func (a abiPaymentInfo) model() (*models.PaymentInfo, error) {
	expiries := []*big.Int{a.PreApprovalExpiry, a.AuthorizationExpiry, a.RefundExpiry}
	for _, v := range expiries {
		if v == nil || !v.IsUint64() {
			return nil, fmt.Errorf("expiry out of range")
		}
	}
	if a.MaxAmount == nil || a.Salt == nil {
		return nil, fmt.Errorf("paymentInfo missing maxAmount or salt")
	}
	return &models.PaymentInfo{
		Operator:            a.Operator,
		Payer:               a.Payer,
		Receiver:            a.Receiver,
		Token:               a.Token,
		MaxAmount:           new(big.Int).Set(a.MaxAmount),
		PreApprovalExpiry:   a.PreApprovalExpiry.Uint64(),
		AuthorizationExpiry: a.AuthorizationExpiry.Uint64(),
		RefundExpiry:        a.RefundExpiry.Uint64(),
		MinFeeBps:           a.MinFeeBps,
		MaxFeeBps:           a.MaxFeeBps,
		FeeReceiver:         a.FeeReceiver,
		Salt:                new(big.Int).Set(a.Salt),
	}, nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
