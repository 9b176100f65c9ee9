package ledger

import (
	"math/big"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yourusername/escrow-demo/models"
)

// ledgerSums holds the per-hash amounts every view derives from.
type ledgerSums struct {
	info     map[common.Hash]*models.PaymentInfo
	infoFrom map[common.Hash]models.PaymentEvent
	captured map[common.Hash]*big.Int
	refunded map[common.Hash]*big.Int
}

func sumEvents(events []models.PaymentEvent) ledgerSums {
	s := ledgerSums{
		info:     make(map[common.Hash]*models.PaymentInfo),
		infoFrom: make(map[common.Hash]models.PaymentEvent),
		captured: make(map[common.Hash]*big.Int),
		refunded: make(map[common.Hash]*big.Int),
	}
	for _, ev := range canonical(events) {
		if ev.Kind.CarriesPaymentInfo() && ev.Info != nil {
			prev, ok := s.infoFrom[ev.PaymentInfoHash]
			if !ok || prev.Before(ev) {
				info := *ev.Info
				s.info[ev.PaymentInfoHash] = &info
				s.infoFrom[ev.PaymentInfoHash] = ev
			}
		}
		if ev.Amount == nil {
			continue
		}
		switch ev.Kind {
		case models.EventCaptured, models.EventCharged:
			addTo(s.captured, ev.PaymentInfoHash, ev.Amount)
		case models.EventRefunded:
			addTo(s.refunded, ev.PaymentInfoHash, ev.Amount)
		}
	}
	return s
}

func addTo(m map[common.Hash]*big.Int, key common.Hash, amount *big.Int) {
	sum, ok := m[key]
	if !ok {
		sum = new(big.Int)
		m[key] = sum
	}
	sum.Add(sum, amount)
}

// remaining returns max(0, captured - refunded) for hash.
func (s ledgerSums) remaining(hash common.Hash) *big.Int {
	out := new(big.Int)
	captured, ok := s.captured[hash]
	if !ok {
		return out
	}
	out.Set(captured)
	if refunded, ok := s.refunded[hash]; ok {
		out.Sub(out, refunded)
	}
	if out.Sign() < 0 {
		out.SetInt64(0)
	}
	return out
}

// RefundCandidates returns the payments with a positive refundable remainder
// whose refund expiry is still ahead of now. Payments whose base info is not
// in the window have no known expiry and are left out.
func RefundCandidates(events []models.PaymentEvent, now time.Time) []models.RefundCandidate {
	sums := sumEvents(events)
	cutoff := now.Unix()

	out := make([]models.RefundCandidate, 0)
	for hash := range sums.captured {
		remaining := sums.remaining(hash)
		if remaining.Sign() <= 0 {
			continue
		}
		info := sums.info[hash]
		if info == nil || cutoff < 0 || info.RefundExpiry <= uint64(cutoff) {
			continue
		}
		out = append(out, models.RefundCandidate{
			PaymentInfoHash: hash,
			Remaining:       remaining,
			Info:            info,
		})
	}
	slices.SortFunc(out, func(a, b models.RefundCandidate) int {
		return compareNewestFirst(a.PaymentInfoHash, a.Info, b.PaymentInfoHash, b.Info)
	})
	return out
}
