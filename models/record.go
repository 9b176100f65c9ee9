package models

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PaymentStatus is the lifecycle status derived from events. Its values match
// the EventKind that produced it.
type PaymentStatus string

const (
	StatusAuthorized PaymentStatus = "authorized"
	StatusCaptured   PaymentStatus = "captured"
	StatusCharged    PaymentStatus = "charged"
	StatusRefunded   PaymentStatus = "refunded"
	StatusVoided     PaymentStatus = "voided"
	StatusReclaimed  PaymentStatus = "reclaimed"
)

// Rank orders statuses by finality. Unknown statuses rank 0.
func (s PaymentStatus) Rank() int {
	switch s {
	case StatusAuthorized:
		return 1
	case StatusCaptured:
		return 2
	case StatusCharged:
		return 3
	case StatusRefunded, StatusVoided, StatusReclaimed:
		return 4
	}
	return 0
}

// Color is a display hint: yellow pending, green success, blue refunded, gray closed.
func (s PaymentStatus) Color() string {
	switch s {
	case StatusAuthorized:
		return "yellow"
	case StatusCaptured, StatusCharged:
		return "green"
	case StatusRefunded:
		return "blue"
	}
	return "gray"
}

// PaymentRecord is the per-hash aggregate rebuilt from a window of events.
// Info is nil when no authorized/charged event for the hash fell in the window.
type PaymentRecord struct {
	PaymentInfoHash common.Hash
	Status          PaymentStatus
	StatusColor     string
	Info            *PaymentInfo
	Authorized      *big.Int
	Captured        *big.Int
	Refunded        *big.Int
	LastBlock       uint64
}

func (r PaymentRecord) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"paymentInfoHash": r.PaymentInfoHash,
		"status":          r.Status,
		"statusColor":     r.StatusColor,
		"authorized":      BigString(r.Authorized),
		"captured":        BigString(r.Captured),
		"refunded":        BigString(r.Refunded),
		"lastBlock":       r.LastBlock,
	}
	if r.Info != nil {
		out["salt"] = BigString(r.Info.Salt)
		out["payer"] = r.Info.Payer
		out["receiver"] = r.Info.Receiver
		out["token"] = r.Info.Token
		out["preApprovalExpiry"] = r.Info.PreApprovalExpiry
		out["authorizationExpiry"] = r.Info.AuthorizationExpiry
		out["refundExpiry"] = r.Info.RefundExpiry
		out["paymentInfo"] = r.Info
	}
	return json.Marshal(out)
}

// RefundCandidate is a payment with captured funds still refundable.
type RefundCandidate struct {
	PaymentInfoHash common.Hash
	Remaining       *big.Int
	Info            *PaymentInfo
}

func (c RefundCandidate) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"paymentInfoHash": c.PaymentInfoHash,
		"remaining":       BigString(c.Remaining),
	}
	if c.Info != nil {
		out["refundExpiry"] = c.Info.RefundExpiry
		out["payer"] = c.Info.Payer
		out["token"] = c.Info.Token
		out["salt"] = BigString(c.Info.Salt)
		out["paymentInfo"] = c.Info
	}
	return json.Marshal(out)
}
