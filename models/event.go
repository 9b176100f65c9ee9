package models

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind names one of the six escrow lifecycle events.
type EventKind string

const (
	EventAuthorized EventKind = "authorized"
	EventCharged    EventKind = "charged"
	EventCaptured   EventKind = "captured"
	EventRefunded   EventKind = "refunded"
	EventVoided     EventKind = "voided"
	EventReclaimed  EventKind = "reclaimed"
)

// EventKinds lists every kind in merge order.
var EventKinds = []EventKind{
	EventAuthorized,
	EventCharged,
	EventCaptured,
	EventRefunded,
	EventVoided,
	EventReclaimed,
}

// EventName returns the Solidity event name.
func (k EventKind) EventName() string {
	switch k {
	case EventAuthorized:
		return "PaymentAuthorized"
	case EventCharged:
		return "PaymentCharged"
	case EventCaptured:
		return "PaymentCaptured"
	case EventRefunded:
		return "PaymentRefunded"
	case EventVoided:
		return "PaymentVoided"
	case EventReclaimed:
		return "PaymentReclaimed"
	}
	return ""
}

// CarriesPaymentInfo reports whether the event embeds the full PaymentInfo.
func (k EventKind) CarriesPaymentInfo() bool {
	return k == EventAuthorized || k == EventCharged
}

// MergeOrder is the position of the kind in EventKinds, or -1.
func (k EventKind) MergeOrder() int {
	for i, kind := range EventKinds {
		if kind == k {
			return i
		}
	}
	return -1
}

// PaymentEvent is one decoded escrow log.
type PaymentEvent struct {
	Kind            EventKind
	PaymentInfoHash common.Hash
	// Info is set for authorized and charged events only.
	Info           *PaymentInfo
	Amount         *big.Int
	TokenCollector common.Address
	FeeBps         uint16
	FeeReceiver    common.Address
	BlockNumber    uint64
	LogIndex       uint
	TxHash         common.Hash
}

// Before orders events by block number, then log index.
func (e PaymentEvent) Before(other PaymentEvent) bool {
	if e.BlockNumber != other.BlockNumber {
		return e.BlockNumber < other.BlockNumber
	}
	return e.LogIndex < other.LogIndex
}

// TimelineEntry is a PaymentEvent as shown on the payment detail view.
type TimelineEntry struct {
	Event PaymentEvent
}

func (t TimelineEntry) MarshalJSON() ([]byte, error) {
	data := map[string]any{"amount": BigString(t.Event.Amount)}
	if t.Event.Kind == EventCaptured || t.Event.Kind == EventCharged {
		data["feeBps"] = t.Event.FeeBps
		data["feeReceiver"] = t.Event.FeeReceiver
	}
	return json.Marshal(struct {
		Type        EventKind      `json:"type"`
		BlockNumber uint64         `json:"blockNumber"`
		LogIndex    uint           `json:"logIndex"`
		TxHash      common.Hash    `json:"txHash"`
		Data        map[string]any `json:"data"`
	}{t.Event.Kind, t.Event.BlockNumber, t.Event.LogIndex, t.Event.TxHash, data})
}
