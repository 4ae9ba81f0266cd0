package inventory

import (
	"fmt"
	"math"
)

// Replay sums ledger deltas from zero. Entries must already be in (at, id)
// order, which is how the repository returns them.
func Replay(entries []LedgerEntry) float64 {
	var qty float64
	for _, entry := range entries {
		qty += entry.Delta
	}
	return qty
}

// CheckLedger verifies the replay invariant for one record: the delta chain
// must be internally consistent and reproduce the record's quantity. A
// failure here is a programming error, not an expected runtime condition.
func CheckLedger(record Record, entries []LedgerEntry) error {
	var running float64
	for i, entry := range entries {
		if math.Abs(entry.QtyAfter-entry.QtyBefore-entry.Delta) > qtyEpsilon {
			return fmt.Errorf("inventory: entry %d (%s) snapshot mismatch: before %.3f + delta %.3f != after %.3f",
				entry.ID, entry.Ref, entry.QtyBefore, entry.Delta, entry.QtyAfter)
		}
		if math.Abs(entry.QtyBefore-running) > qtyEpsilon {
			return fmt.Errorf("inventory: entry %d (%s) breaks the chain at position %d: expected before %.3f, got %.3f",
				entry.ID, entry.Ref, i, running, entry.QtyBefore)
		}
		running = entry.QtyAfter
	}
	if math.Abs(running-record.Quantity) > qtyEpsilon {
		return fmt.Errorf("inventory: record %d replay mismatch: ledger %.3f, record %.3f",
			record.ID, running, record.Quantity)
	}
	return nil
}
