package utils

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/yourusername/escrow-demo/models"
)

var errRemovedLog = errors.New("log removed by reorg")

// DecodeLog turns a raw escrow log into a typed PaymentEvent. Logs that do not
// match the event layout of kind are rejected.
func DecodeLog(kind models.EventKind, lg gethtypes.Log) (models.PaymentEvent, error) {
	event, ok := EscrowABI.Events[kind.EventName()]
	if !ok {
		return models.PaymentEvent{}, fmt.Errorf("unknown event kind %q", kind)
	}
	if lg.Removed {
		return models.PaymentEvent{}, errRemovedLog
	}
	if len(lg.Topics) < 2 || lg.Topics[0] != event.ID {
		return models.PaymentEvent{}, fmt.Errorf("%s: unexpected topics", event.Name)
	}
	values, err := event.Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		return models.PaymentEvent{}, fmt.Errorf("%s: unpack: %w", event.Name, err)
	}

	out := models.PaymentEvent{
		Kind:            kind,
		PaymentInfoHash: lg.Topics[1],
		BlockNumber:     lg.BlockNumber,
		LogIndex:        lg.Index,
		TxHash:          lg.TxHash,
	}
	d := decoder{name: event.Name, values: values}
	switch kind {
	case models.EventAuthorized:
		out.Info = d.paymentInfo(0)
		out.Amount = d.bigInt(1)
		out.TokenCollector = d.address(2)
	case models.EventCharged:
		out.Info = d.paymentInfo(0)
		out.Amount = d.bigInt(1)
		out.TokenCollector = d.address(2)
		out.FeeBps = d.uint16(3)
		out.FeeReceiver = d.address(4)
	case models.EventCaptured:
		out.Amount = d.bigInt(0)
		out.FeeBps = d.uint16(1)
		out.FeeReceiver = d.address(2)
	case models.EventRefunded:
		out.Amount = d.bigInt(0)
		out.TokenCollector = d.address(1)
	case models.EventVoided, models.EventReclaimed:
		out.Amount = d.bigInt(0)
	}
	if d.err != nil {
		return models.PaymentEvent{}, d.err
	}
	return out, nil
}

// decoder pulls typed values out of an unpacked argument list, keeping the
// first error.
type decoder struct {
	name   string
	values []interface{}
	err    error
}

func (d *decoder) at(i int) interface{} {
	if d.err != nil {
		return nil
	}
	if i >= len(d.values) {
		d.err = fmt.Errorf("%s: missing argument %d", d.name, i)
		return nil
	}
	return d.values[i]
}

func (d *decoder) bigInt(i int) *big.Int {
	v, ok := d.at(i).(*big.Int)
	if !ok && d.err == nil {
		d.err = fmt.Errorf("%s: argument %d is not an integer", d.name, i)
	}
	return v
}

func (d *decoder) uint16(i int) uint16 {
	v, ok := d.at(i).(uint16)
	if !ok && d.err == nil {
		d.err = fmt.Errorf("%s: argument %d is not uint16", d.name, i)
	}
	return v
}

func (d *decoder) address(i int) common.Address {
	v, ok := d.at(i).(common.Address)
	if !ok && d.err == nil {
		d.err = fmt.Errorf("%s: argument %d is not an address", d.name, i)
	}
	return v
}

func (d *decoder) paymentInfo(i int) *models.PaymentInfo {
	raw := d.at(i)
	if d.err != nil {
		return nil
	}
	converted, ok := abi.ConvertType(raw, new(abiPaymentInfo)).(*abiPaymentInfo)
	if !ok {
		d.err = fmt.Errorf("%s: argument %d is not a paymentInfo tuple", d.name, i)
		return nil
	}
	info, err := converted.model()
	if err != nil {
		d.err = fmt.Errorf("%s: %w", d.name, err)
		return nil
	}
	return info
}
