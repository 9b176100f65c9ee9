package ledger

import (
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yourusername/escrow-demo/models"
)

// ResolveHash interprets id as a 0x-prefixed 32-byte paymentInfoHash, or else
// as a decimal salt looked up among the authorized and charged events.
func ResolveHash(events []models.PaymentEvent, id string) (common.Hash, bool) {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, "0x") && len(id) == 66 {
		if _, err := models.ParseInteger(id); err != nil {
			return common.Hash{}, false
		}
		return common.HexToHash(id), true
	}
	salt, err := models.ParseInteger(id)
	if err != nil {
		return common.Hash{}, false
	}
	for _, ev := range canonical(events) {
		if ev.Kind.CarriesPaymentInfo() && ev.Info != nil && ev.Info.Salt != nil && ev.Info.Salt.Cmp(salt) == 0 {
			return ev.PaymentInfoHash, true
		}
	}
	return common.Hash{}, false
}

// LatestInfo returns the PaymentInfo of the most recent authorized or charged
// event for hash, or nil.
func LatestInfo(events []models.PaymentEvent, hash common.Hash) *models.PaymentInfo {
	return sumEvents(filterHash(events, hash)).info[hash]
}

// Timeline returns the events of one payment in block and log order.
func Timeline(events []models.PaymentEvent, hash common.Hash) []models.TimelineEntry {
	own := canonical(filterHash(events, hash))
	slices.SortStableFunc(own, func(a, b models.PaymentEvent) int {
		switch {
		case a.Before(b):
			return -1
		case b.Before(a):
			return 1
		}
		return 0
	})
	out := make([]models.TimelineEntry, len(own))
	for i, ev := range own {
		out[i] = models.TimelineEntry{Event: ev}
	}
	return out
}

func filterHash(events []models.PaymentEvent, hash common.Hash) []models.PaymentEvent {
	var out []models.PaymentEvent
	for _, ev := range events {
		if ev.PaymentInfoHash == hash {
			out = append(out, ev)
		}
	}
	return out
}
