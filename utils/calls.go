package utils

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yourusername/escrow-demo/models"
)

// ContractCall is an ABI-encoded state-changing call, ready to be signed.
type ContractCall struct {
	To     common.Address
	Method string
	Data   []byte
}

func packCall(to common.Address, method string, data []byte, err error) (ContractCall, error) {
	if err != nil {
		return ContractCall{}, fmt.Errorf("pack %s: %w", method, err)
	}
	return ContractCall{To: to, Method: method, Data: data}, nil
}

// ApproveCall encodes ERC20 approve(spender, amount).
func ApproveCall(token, spender common.Address, amount *big.Int) (ContractCall, error) {
	data, err := ERC20ABI.Pack("approve", spender, orZero(amount))
	return packCall(token, "approve", data, err)
}

// PreApproveCall encodes preApprove(paymentInfo) on the pre-approval collector.
func PreApproveCall(collector common.Address, info models.PaymentInfo) (ContractCall, error) {
	data, err := PreApprovalABI.Pack("preApprove", toABIPaymentInfo(info))
	return packCall(collector, "preApprove", data, err)
}

func AuthorizeCall(escrow common.Address, info models.PaymentInfo, amount *big.Int, collector common.Address) (ContractCall, error) {
	data, err := EscrowABI.Pack("authorize", toABIPaymentInfo(info), orZero(amount), collector, []byte{})
	return packCall(escrow, "authorize", data, err)
}

func CaptureCall(escrow common.Address, info models.PaymentInfo, amount *big.Int, feeBps uint16, feeReceiver common.Address) (ContractCall, error) {
	data, err := EscrowABI.Pack("capture", toABIPaymentInfo(info), orZero(amount), feeBps, feeReceiver)
	return packCall(escrow, "capture", data, err)
}

func ChargeCall(escrow common.Address, info models.PaymentInfo, amount *big.Int, collector common.Address, feeBps uint16, feeReceiver common.Address) (ContractCall, error) {
	data, err := EscrowABI.Pack("charge", toABIPaymentInfo(info), orZero(amount), collector, []byte{}, feeBps, feeReceiver)
	return packCall(escrow, "charge", data, err)
}

func RefundCall(escrow common.Address, info models.PaymentInfo, amount *big.Int, collector common.Address) (ContractCall, error) {
	data, err := EscrowABI.Pack("refund", toABIPaymentInfo(info), orZero(amount), collector, []byte{})
	return packCall(escrow, "refund", data, err)
}

func VoidCall(escrow common.Address, info models.PaymentInfo) (ContractCall, error) {
	data, err := EscrowABI.Pack("void", toABIPaymentInfo(info))
	return packCall(escrow, "void", data, err)
}

func ReclaimCall(escrow common.Address, info models.PaymentInfo) (ContractCall, error) {
	data, err := EscrowABI.Pack("reclaim", toABIPaymentInfo(info))
	return packCall(escrow, "reclaim", data, err)
}
