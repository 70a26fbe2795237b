package models

// Status is the lifecycle state of a position, always derived from its trade
// history and never set directly.
type Status string

const (
	// StatusPlanned means no executions have been recorded yet.
	StatusPlanned Status = "planned"
	// StatusOpen means the position carries nonzero net quantity.
	StatusOpen Status = "open"
	// StatusClosed means entries and exits net to zero.
	StatusClosed Status = "closed"
)

// ComputeStatus maps a trade log to a lifecycle state. It is deterministic
// and order-insensitive: only the multiset of signed quantities matters.
// A nil or empty trade list degrades to StatusPlanned rather than failing,
// so a corrupted record self-heals on the next read.
//
// Negative net quantity also reports StatusOpen. The append boundary rejects
// oversells before they reach the log; this function does not re-check.
func ComputeStatus(trades []Trade) Status {
	if len(trades) == 0 {
		return StatusPlanned
	}
	if NetQuantity(trades) == 0 {
		return StatusClosed
	}
	return StatusOpen
}

// NetQuantity returns the signed sum of trade quantities: buys add,
// sells subtract.
func NetQuantity(trades []Trade) int {
	net := 0
	for i := range trades {
		net += trades[i].SignedQuantity()
	}
	return net
}
