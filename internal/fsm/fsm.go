package fsm

// Persisted order statuses.
const (
	OrderStatePending  = "pending"
	OrderStatePacking  = "packing"
	OrderStateFinished = "finished"
)

const (
	OrderEventPack   = "pack"
	OrderEventFinish = "finish"
)

// Coordinator-side phases of a tracked order. These live only in memory.
const (
	FulfillmentStateAwaitingCounts = "awaiting_counts"
	FulfillmentStatePacking        = "packing"
	FulfillmentStateFinished       = "finished"
)

const (
	FulfillmentEventCountsDepleted = "counts_depleted"
	FulfillmentEventPackingDone    = "packing_done"
)

// IsOrderState reports whether s is a known persisted order status.
func IsOrderState(s string) bool {
	switch s {
	case OrderStatePending, OrderStatePacking, OrderStateFinished:
		return true
	default:
		return false
	}
}
