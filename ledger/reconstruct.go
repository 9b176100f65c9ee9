package ledger

import (
	"bytes"
	"cmp"
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yourusername/escrow-demo/models"
)

type eventKey struct {
	kind     models.EventKind
	txHash   common.Hash
	logIndex uint
}

// canonical drops duplicate logs and orders the rest by merge order of their
// kind, then block number, then log index. Merging in this order makes the
// result independent of the order logs arrived in, and resolves equal-rank
// terminal statuses by kind order (refunded, then voided, then reclaimed).
func canonical(events []models.PaymentEvent) []models.PaymentEvent {
	seen := make(map[eventKey]struct{}, len(events))
	out := make([]models.PaymentEvent, 0, len(events))
	for _, ev := range events {
		if ev.Kind.MergeOrder() < 0 {
			continue
		}
		key := eventKey{ev.Kind, ev.TxHash, ev.LogIndex}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ev)
	}
	slices.SortStableFunc(out, func(a, b models.PaymentEvent) int {
		if c := cmp.Compare(a.Kind.MergeOrder(), b.Kind.MergeOrder()); c != 0 {
			return c
		}
		if c := cmp.Compare(a.BlockNumber, b.BlockNumber); c != 0 {
			return c
		}
		if c := cmp.Compare(a.LogIndex, b.LogIndex); c != 0 {
			return c
		}
		if c := bytes.Compare(a.TxHash[:], b.TxHash[:]); c != 0 {
			return c
		}
		return bytes.Compare(a.PaymentInfoHash[:], b.PaymentInfoHash[:])
	})
	return out
}

type recordBuilder struct {
	record   models.PaymentRecord
	infoFrom *models.PaymentEvent
}

// Reconstruct merges events into one record per paymentInfoHash, sorted by
// salt descending and then hash descending. Status only ever moves to an
// equal or higher rank.
func Reconstruct(events []models.PaymentEvent) []models.PaymentRecord {
	builders := make(map[common.Hash]*recordBuilder)
	for _, ev := range canonical(events) {
		b, ok := builders[ev.PaymentInfoHash]
		if !ok {
			b = &recordBuilder{record: models.PaymentRecord{
				PaymentInfoHash: ev.PaymentInfoHash,
				Authorized:      new(big.Int),
				Captured:        new(big.Int),
				Refunded:        new(big.Int),
			}}
			builders[ev.PaymentInfoHash] = b
		}
		b.apply(ev)
	}

	records := make([]models.PaymentRecord, 0, len(builders))
	for _, b := range builders {
		b.record.StatusColor = b.record.Status.Color()
		records = append(records, b.record)
	}
	slices.SortFunc(records, func(a, b models.PaymentRecord) int {
		return compareNewestFirst(a.PaymentInfoHash, a.Info, b.PaymentInfoHash, b.Info)
	})
	return records
}

func (b *recordBuilder) apply(ev models.PaymentEvent) {
	rec := &b.record
	if ev.Kind.CarriesPaymentInfo() && ev.Info != nil {
		if b.infoFrom == nil || b.infoFrom.Before(ev) {
			info := *ev.Info
			rec.Info = &info
			evCopy := ev
			b.infoFrom = &evCopy
		}
	}
	if ev.Amount != nil {
		switch ev.Kind {
		case models.EventAuthorized:
			rec.Authorized.Add(rec.Authorized, ev.Amount)
		case models.EventCaptured, models.EventCharged:
			rec.Captured.Add(rec.Captured, ev.Amount)
		case models.EventRefunded:
			rec.Refunded.Add(rec.Refunded, ev.Amount)
		}
	}
	status := models.PaymentStatus(ev.Kind)
	if status.Rank() >= rec.Status.Rank() {
		rec.Status = status
	}
	if ev.BlockNumber > rec.LastBlock {
		rec.LastBlock = ev.BlockNumber
	}
}

// compareNewestFirst sorts by numeric salt descending (missing salt counts as
// zero), then by hash descending.
func compareNewestFirst(hashA common.Hash, infoA *models.PaymentInfo, hashB common.Hash, infoB *models.PaymentInfo) int {
	if c := saltOf(infoB).Cmp(saltOf(infoA)); c != 0 {
		return c
	}
	return bytes.Compare(hashB[:], hashA[:])
}

var zero = new(big.Int)

func saltOf(info *models.PaymentInfo) *big.Int {
	if info == nil || info.Salt == nil {
		return zero
	}
	return info.Salt
}
