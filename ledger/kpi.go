package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yourusername/escrow-demo/models"
)

// Totals are the event-derived dashboard figures.
type Totals struct {
	LiveVolume     *big.Int
	LiveCount      int
	RefundableNow  *big.Int
	ActiveDisputes int
}

// Aggregate computes Totals over a window of events.
//
// LiveVolume adds the amount of every authorized and charged event, so a hash
// that emitted both is counted twice in volume while LiveCount counts it once.
//
// With minSalt set, payments whose salt is below it (or unknown) are left out
// of LiveVolume, LiveCount and the captured side of RefundableNow. Refunds are
// always subtracted, whatever the salt.
func Aggregate(events []models.PaymentEvent, minSalt *big.Int, disputes []*models.Dispute) Totals {
	sums := sumEvents(events)
	inSession := func(info *models.PaymentInfo) bool {
		if minSalt == nil {
			return true
		}
		return info != nil && info.Salt != nil && info.Salt.Cmp(minSalt) >= 0
	}

	totals := Totals{LiveVolume: new(big.Int), RefundableNow: new(big.Int)}
	live := make(map[common.Hash]struct{})
	for _, ev := range canonical(events) {
		if !ev.Kind.CarriesPaymentInfo() || !inSession(ev.Info) {
			continue
		}
		if ev.Amount != nil {
			totals.LiveVolume.Add(totals.LiveVolume, ev.Amount)
		}
		live[ev.PaymentInfoHash] = struct{}{}
	}
	totals.LiveCount = len(live)

	for hash := range sums.captured {
		if !inSession(sums.info[hash]) {
			continue
		}
		totals.RefundableNow.Add(totals.RefundableNow, sums.remaining(hash))
	}

	for _, d := range disputes {
		if d != nil && d.Status.Active() {
			totals.ActiveDisputes++
		}
	}
	return totals
}
