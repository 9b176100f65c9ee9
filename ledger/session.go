package ledger

import (
	"math/big"
	"sync"
	"time"
)

// Session anchors the "current session" salt threshold. Salts are unix
// seconds at build time, so payments built after the anchor have salt >= it.
type Session struct {
	mu      sync.RWMutex
	minSalt *big.Int
}

// NewSession anchors the session at start, normally process boot.
func NewSession(start time.Time) *Session {
	s := &Session{}
	s.Reset(start)
	return s
}

// MinSalt returns a copy of the current threshold.
func (s *Session) MinSalt() *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(big.Int).Set(s.minSalt)
}

// Reset moves the anchor to at, clamped at zero.
func (s *Session) Reset(at time.Time) {
	secs := at.Unix()
	if secs < 0 {
		secs = 0
	}
	s.mu.Lock()
	s.minSalt = big.NewInt(secs)
	s.mu.Unlock()
}
