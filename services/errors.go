package services

import (
	"errors"
	"fmt"
)

var (
	ErrNotConfigured = errors.New("not configured")
	ErrValidation    = errors.New("invalid request")
	ErrNotFound      = errors.New("not found")
	ErrChain         = errors.New("chain error")
)

// IsClientError reports whether err was caused by the request or the
// server's configuration rather than the chain.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrNotConfigured)
}

func notConfigured(what string) error {
	return fmt.Errorf("%w: missing %s", ErrNotConfigured, what)
}

func validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// chainErr tags err as an RPC or contract failure unless it already carries
// one of the sentinels above.
func chainErr(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrNotConfigured, ErrValidation, ErrNotFound, ErrChain} {
		if errors.Is(err, known) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, ErrChain, err)
}
