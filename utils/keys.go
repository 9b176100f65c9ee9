package utils

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidKeyLength is returned for keys that are not 32 bytes of hex.
var ErrInvalidKeyLength = errors.New("invalid private key length")

// Signer is an account that can sign transactions.
type Signer struct {
	Address common.Address
	key     *ecdsa.PrivateKey
}

// ParsePrivateKey accepts a hex key with or without the 0x prefix.
func ParsePrivateKey(raw string) (*Signer, error) {
	hexKey := strings.TrimSpace(raw)
	if !strings.HasPrefix(hexKey, "0x") && !strings.HasPrefix(hexKey, "0X") {
		hexKey = "0x" + hexKey
	}
	if len(hexKey) != 66 {
		return nil, ErrInvalidKeyLength
	}
	key, err := crypto.HexToECDSA(hexKey[2:])
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &Signer{Address: crypto.PubkeyToAddress(key.PublicKey), key: key}, nil
}

// NewSigner wraps an existing key.
func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{Address: crypto.PubkeyToAddress(key.PublicKey), key: key}
}

// ParseAddress validates a hex address.
func ParseAddress(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(raw), nil
}
