package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// MaxFeeBps is 100% expressed in basis points.
const MaxFeeBps = 10000

// PaymentInfo is the immutable set of payment terms the escrow contract hashes
// into a paymentInfoHash.
type PaymentInfo struct {
	Operator            common.Address
	Payer               common.Address
	Receiver            common.Address
	Token               common.Address
	MaxAmount           *big.Int
	PreApprovalExpiry   uint64
	AuthorizationExpiry uint64
	RefundExpiry        uint64
	MinFeeBps           uint16
	MaxFeeBps           uint16
	FeeReceiver         common.Address
	Salt                *big.Int
}

// Validate checks the terms the contract would otherwise revert on.
func (p *PaymentInfo) Validate() error {
	if p == nil {
		return errors.New("paymentInfo is required")
	}
	if p.MaxAmount == nil || p.MaxAmount.Sign() < 0 {
		return errors.New("maxAmount must be a non-negative integer")
	}
	if p.Salt == nil || p.Salt.Sign() < 0 {
		return errors.New("salt must be a non-negative integer")
	}
	if p.MinFeeBps > MaxFeeBps || p.MaxFeeBps > MaxFeeBps {
		return fmt.Errorf("fee bps must be within 0-%d", MaxFeeBps)
	}
	if p.MinFeeBps > p.MaxFeeBps {
		return errors.New("minFeeBps exceeds maxFeeBps")
	}
	return nil
}

type paymentInfoJSON struct {
	Operator            common.Address  `json:"operator"`
	Payer               common.Address  `json:"payer"`
	Receiver            common.Address  `json:"receiver"`
	Token               common.Address  `json:"token"`
	MaxAmount           json.RawMessage `json:"maxAmount"`
	PreApprovalExpiry   json.RawMessage `json:"preApprovalExpiry"`
	AuthorizationExpiry json.RawMessage `json:"authorizationExpiry"`
	RefundExpiry        json.RawMessage `json:"refundExpiry"`
	MinFeeBps           uint16          `json:"minFeeBps"`
	MaxFeeBps           uint16          `json:"maxFeeBps"`
	FeeReceiver         common.Address  `json:"feeReceiver"`
	Salt                json.RawMessage `json:"salt"`
}

// MarshalJSON renders integer amounts and the salt as decimal strings and
// expiries as plain numbers.
func (p PaymentInfo) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Operator            common.Address `json:"operator"`
		Payer               common.Address `json:"payer"`
		Receiver            common.Address `json:"receiver"`
		Token               common.Address `json:"token"`
		MaxAmount           string         `json:"maxAmount"`
		PreApprovalExpiry   uint64         `json:"preApprovalExpiry"`
		AuthorizationExpiry uint64         `json:"authorizationExpiry"`
		RefundExpiry        uint64         `json:"refundExpiry"`
		MinFeeBps           uint16         `json:"minFeeBps"`
		MaxFeeBps           uint16         `json:"maxFeeBps"`
		FeeReceiver         common.Address `json:"feeReceiver"`
		Salt                string         `json:"salt"`
	}{
		Operator:            p.Operator,
		Payer:               p.Payer,
		Receiver:            p.Receiver,
		Token:               p.Token,
		MaxAmount:           BigString(p.MaxAmount),
		PreApprovalExpiry:   p.PreApprovalExpiry,
		AuthorizationExpiry: p.AuthorizationExpiry,
		RefundExpiry:        p.RefundExpiry,
		MinFeeBps:           p.MinFeeBps,
		MaxFeeBps:           p.MaxFeeBps,
		FeeReceiver:         p.FeeReceiver,
		Salt:                BigString(p.Salt),
	})
}

// UnmarshalJSON accepts integers either as JSON numbers or decimal/hex strings.
func (p *PaymentInfo) UnmarshalJSON(data []byte) error {
	var wire paymentInfoJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	maxAmount, err := decodeInteger("maxAmount", wire.MaxAmount)
	if err != nil {
		return err
	}
	salt, err := decodeInteger("salt", wire.Salt)
	if err != nil {
		return err
	}
	expiries := make([]uint64, 3)
	for i, raw := range []json.RawMessage{wire.PreApprovalExpiry, wire.AuthorizationExpiry, wire.RefundExpiry} {
		v, err := decodeInteger("expiry", raw)
		if err != nil {
			return err
		}
		if v != nil {
			if !v.IsUint64() {
				return fmt.Errorf("expiry %s out of range", v)
			}
			expiries[i] = v.Uint64()
		}
	}
	*p = PaymentInfo{
		Operator:            wire.Operator,
		Payer:               wire.Payer,
		Receiver:            wire.Receiver,
		Token:               wire.Token,
		MaxAmount:           maxAmount,
		PreApprovalExpiry:   expiries[0],
		AuthorizationExpiry: expiries[1],
		RefundExpiry:        expiries[2],
		MinFeeBps:           wire.MinFeeBps,
		MaxFeeBps:           wire.MaxFeeBps,
		FeeReceiver:         wire.FeeReceiver,
		Salt:                salt,
	}
	return nil
}

func decodeInteger(field string, raw json.RawMessage) (*big.Int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
	}
	v, err := ParseInteger(text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}

// ParseInteger parses a non-negative base-10 or 0x-prefixed integer. Leading
// zeros are decimal; other base prefixes and digit separators are rejected.
func ParseInteger(text string) (*big.Int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("empty integer")
	}
	digits, base := text, 10
	if len(text) > 2 && text[0] == '0' && (text[1] == 'x' || text[1] == 'X') {
		digits, base = text[2:], 16
	}
	v, ok := new(big.Int).SetString(digits, base)
	if !ok || strings.ContainsAny(digits, "_+-") {
		return nil, fmt.Errorf("invalid integer %q", text)
	}
	return v, nil
}

// BigString renders nil as "0".
func BigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// PaymentState mirrors the escrow's paymentState(bytes32) view.
type PaymentState struct {
	HasCollectedPayment bool
	CapturableAmount    *big.Int
	RefundableAmount    *big.Int
}

func (s PaymentState) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		HasCollectedPayment bool   `json:"hasCollectedPayment"`
		CapturableAmount    string `json:"capturableAmount"`
		RefundableAmount    string `json:"refundableAmount"`
	}{s.HasCollectedPayment, BigString(s.CapturableAmount), BigString(s.RefundableAmount)})
}

// TokenMeta is the display metadata of an ERC20 token.
type TokenMeta struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}
