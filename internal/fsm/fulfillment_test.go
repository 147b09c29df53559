package fsm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/looplab/fsm"
)

func TestFulfillmentFSM_FullFlow(t *testing.T) {
	ff := NewFulfillmentFSM()
	ctx := context.Background()

	if ff.Current() != FulfillmentStateAwaitingCounts {
		t.Errorf("initial state should be awaiting_counts, got %s", ff.Current())
	}

	if err := ff.Event(ctx, FulfillmentEventCountsDepleted); err != nil {
		t.Errorf("counts_depleted error: %v", err)
	}
	if ff.Current() != FulfillmentStatePacking {
		t.Errorf("should be packing, got %s", ff.Current())
	}

	if err := ff.Event(ctx, FulfillmentEventPackingDone); err != nil {
		t.Errorf("packing_done error: %v", err)
	}
	if ff.Current() != FulfillmentStateFinished {
		t.Errorf("should be finished, got %s", ff.Current())
	}
}

func TestFulfillmentFSM_SkipPacking(t *testing.T) {
	ff := NewFulfillmentFSM()

	if err := ff.Event(context.Background(), FulfillmentEventPackingDone); err != nil {
		t.Fatalf("packing_done from awaiting_counts: %v", err)
	}
	if ff.Current() != FulfillmentStateFinished {
		t.Errorf("should be finished, got %s", ff.Current())
	}
}

func TestFulfillmentFSM_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*FulfillmentFSM, context.Context)
		event string
	}{
		{
			name:  "counts_depleted twice",
			setup: func(ff *FulfillmentFSM, ctx context.Context) { _ = ff.Event(ctx, FulfillmentEventCountsDepleted) },
			event: FulfillmentEventCountsDepleted,
		},
		{
			name:  "counts_depleted after finished",
			setup: func(ff *FulfillmentFSM, ctx context.Context) { _ = ff.Event(ctx, FulfillmentEventPackingDone) },
			event: FulfillmentEventCountsDepleted,
		},
		{
			name:  "packing_done after finished",
			setup: func(ff *FulfillmentFSM, ctx context.Context) { _ = ff.Event(ctx, FulfillmentEventPackingDone) },
			event: FulfillmentEventPackingDone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ff := NewFulfillmentFSM()
			ctx := context.Background()

			tt.setup(ff, ctx)

			err := ff.Event(ctx, tt.event)
			if err == nil {
				t.Errorf("expected error for invalid transition")
			}

			var invalidErr fsm.InvalidEventError
			if !errors.As(err, &invalidErr) {
				t.Errorf("expected InvalidEventError, got %T: %v", err, err)
			}
		})
	}
}

func TestFulfillmentFSM_Can(t *testing.T) {
	ff := NewFulfillmentFSM()
	ctx := context.Background()

	if !ff.Can(FulfillmentEventCountsDepleted) {
		t.Error("should be able to deplete counts while awaiting")
	}
	if !ff.Can(FulfillmentEventPackingDone) {
		t.Error("should be able to finish while awaiting")
	}

	_ = ff.Event(ctx, FulfillmentEventCountsDepleted)

	if ff.Can(FulfillmentEventCountsDepleted) {
		t.Error("should not deplete counts twice")
	}

	_ = ff.Event(ctx, FulfillmentEventPackingDone)

	if ff.Can(FulfillmentEventPackingDone) {
		t.Error("finished is terminal")
	}
}

func TestFulfillmentFSM_OnEnter(t *testing.T) {
	ff := NewFulfillmentFSM()
	ctx := context.Background()

	var packing, finished int32
	ff.OnEnter(FulfillmentStatePacking, func() { atomic.AddInt32(&packing, 1) })
	ff.OnEnter(FulfillmentStateFinished, func() { atomic.AddInt32(&finished, 1) })

	_ = ff.Event(ctx, FulfillmentEventCountsDepleted)
	_ = ff.Event(ctx, FulfillmentEventCountsDepleted)
	_ = ff.Event(ctx, FulfillmentEventPackingDone)

	if atomic.LoadInt32(&packing) != 1 {
		t.Errorf("packing callback called %d times, want 1", packing)
	}
	if atomic.LoadInt32(&finished) != 1 {
		t.Errorf("finished callback called %d times, want 1", finished)
	}
}
