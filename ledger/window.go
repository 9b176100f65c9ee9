// Package ledger rebuilds payment state from escrow event logs. Every function
// here is a pure computation over a window of events; nothing is persisted
// between queries.
package ledger

import "fmt"

// DefaultLookback is how many blocks behind the head every view looks.
const DefaultLookback uint64 = 5000

// Window is an inclusive block range pinned once per logical query.
type Window struct {
	FromBlock uint64 `json:"fromBlock,string"`
	ToBlock   uint64 `json:"toBlock,string"`
}

// WindowAt returns [max(0, head-lookback), head].
func WindowAt(head, lookback uint64) Window {
	var from uint64
	if head > lookback {
		from = head - lookback
	}
	return Window{FromBlock: from, ToBlock: head}
}

func (w Window) String() string {
	return fmt.Sprintf("[%d, %d]", w.FromBlock, w.ToBlock)
}
