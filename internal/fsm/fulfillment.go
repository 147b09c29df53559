package fsm

import (
	"context"
	"sync"

	"github.com/looplab/fsm"
)

// FulfillmentFSM tracks where a single in-flight order is between ingestion
// and the robot reporting completion.
type FulfillmentFSM struct {
	fsm     *fsm.FSM
	mu      sync.Mutex
	onEnter map[string]func()
}

func NewFulfillmentFSM() *FulfillmentFSM {
	ff := &FulfillmentFSM{
		onEnter: make(map[string]func()),
	}
	ff.fsm = fsm.NewFSM(
		FulfillmentStateAwaitingCounts,
		fsm.Events{
			{Name: FulfillmentEventCountsDepleted, Src: []string{FulfillmentStateAwaitingCounts}, Dst: FulfillmentStatePacking},
			{Name: FulfillmentEventPackingDone, Src: []string{FulfillmentStateAwaitingCounts, FulfillmentStatePacking}, Dst: FulfillmentStateFinished},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				if fn, ok := ff.onEnter[e.Dst]; ok {
					fn()
				}
			},
		},
	)
	return ff
}

func (ff *FulfillmentFSM) Current() string {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.fsm.Current()
}

func (ff *FulfillmentFSM) Event(ctx context.Context, event string) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.fsm.Event(ctx, event)
}

func (ff *FulfillmentFSM) Can(event string) bool {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.fsm.Can(event)
}

// OnEnter registers fn to run whenever the machine enters state.
// fn must not call back into the machine.
func (ff *FulfillmentFSM) OnEnter(state string, fn func()) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	ff.onEnter[state] = fn
}
