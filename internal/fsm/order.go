package fsm

import (
	"sort"
	"sync"

	"github.com/looplab/fsm"
)

// OrderStateMachine validates persisted status changes. Statuses only move
// forward: pending -> packing -> finished, and pending -> finished when the
// robot reports completion before both counters ran dry.
type OrderStateMachine struct {
	fsm *fsm.FSM
	mu  sync.Mutex
}

func NewOrderStateMachine() *OrderStateMachine {
	osm := &OrderStateMachine{}
	osm.fsm = fsm.NewFSM(
		OrderStatePending,
		fsm.Events{
			{Name: OrderEventPack, Src: []string{OrderStatePending}, Dst: OrderStatePacking},
			{Name: OrderEventFinish, Src: []string{OrderStatePending, OrderStatePacking}, Dst: OrderStateFinished},
		},
		fsm.Callbacks{},
	)
	return osm
}

// CanTransition reports whether event is allowed from currentState.
func (osm *OrderStateMachine) CanTransition(currentState, event string) bool {
	osm.mu.Lock()
	defer osm.mu.Unlock()
	osm.fsm.SetState(currentState)
	return osm.fsm.Can(event)
}

// AvailableEvents lists the events allowed from currentState, sorted.
func (osm *OrderStateMachine) AvailableEvents(currentState string) []string {
	osm.mu.Lock()
	defer osm.mu.Unlock()
	osm.fsm.SetState(currentState)
	events := osm.fsm.AvailableTransitions()
	sort.Strings(events)
	return events
}

// EventFor returns the event that moves an order from one status to another,
// or "" when no single event does.
func EventFor(from, to string) string {
	switch to {
	case OrderStatePacking:
		if from == OrderStatePending {
			return OrderEventPack
		}
	case OrderStateFinished:
		if from == OrderStatePending || from == OrderStatePacking {
			return OrderEventFinish
		}
	}
	return ""
}
