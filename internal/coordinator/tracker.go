package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/buildtall-systems/vinopack/internal/catalog"
	"github.com/buildtall-systems/vinopack/internal/fsm"
	"github.com/buildtall-systems/vinopack/internal/messages"
)

// Remaining is a counter's last reported value for one category.
type Remaining struct {
	Value int
	Known bool
}

// IsZero reports whether the counter has reported nothing left.
func (r Remaining) IsZero() bool {
	return r.Known && r.Value == 0
}

// State is the coordinator's working memory for one in-flight order.
type State struct {
	OrderID       int64
	Premium       Remaining
	Standard      Remaining
	PackingIssued bool
	Phase         string
	TrackedAt     time.Time
	LastActivity  time.Time
}

type entry struct {
	state   State
	seq     uint64
	machine *fsm.FulfillmentFSM
}

// CountOutcome describes what a count report did to the tracker.
type CountOutcome struct {
	OrderID int64
	Matched bool
	// Pack is true exactly once per order: when both counts first read zero.
	Pack bool
}

// Tracker maps in-flight order ids to their fulfillment state. All methods
// are safe for concurrent use; none of them perform I/O.
type Tracker struct {
	mu      sync.Mutex
	entries map[int64]*entry
	// serving is the order each counter last reported on.
	serving     map[catalog.Category]int64
	seq         uint64
	maxTracked  int
	idleTimeout time.Duration
	now         func() time.Time
}

// NewTracker creates a tracker holding at most maxTracked orders and
// forgetting orders idle for longer than idleTimeout. Non-positive values
// disable the respective limit.
func NewTracker(maxTracked int, idleTimeout time.Duration) *Tracker {
	return &Tracker{
		entries:     make(map[int64]*entry),
		serving:     make(map[catalog.Category]int64),
		maxTracked:  maxTracked,
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

// Track starts tracking orderID with both counts unknown and the packing
// latch cleared. Tracking an id again resets it. When the tracker is full
// the oldest order is evicted and returned.
func (t *Tracker) Track(orderID int64) (evicted []int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.entries, orderID)

	for t.maxTracked > 0 && len(t.entries) >= t.maxTracked {
		oldest := t.oldestLocked(func(*entry) bool { return true })
		if oldest == nil {
			break
		}
		delete(t.entries, oldest.state.OrderID)
		evicted = append(evicted, oldest.state.OrderID)
	}

	now := t.now()
	t.seq++
	e := &entry{
		state: State{
			OrderID:      orderID,
			TrackedAt:    now,
			LastActivity: now,
		},
		seq:     t.seq,
		machine: fsm.NewFulfillmentFSM(),
	}
	e.state.Phase = e.machine.Current()
	e.machine.OnEnter(fsm.FulfillmentStatePacking, func() {
		e.state.Phase = fsm.FulfillmentStatePacking
		e.state.PackingIssued = true
	})
	e.machine.OnEnter(fsm.FulfillmentStateFinished, func() {
		e.state.Phase = fsm.FulfillmentStateFinished
	})
	t.entries[orderID] = e
	return evicted
}

// ApplyCount records a counter report. Reports naming an order apply to it.
// Anonymous reports apply to the order the counter last reported on: a
// counter only moves on to the next order once it has reported zero for the
// current one and then reports a nonzero count. Repeated zeros therefore
// stay with the order they belong to.
func (t *Tracker) ApplyCount(ctx context.Context, report messages.CountReport) CountOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	var e *entry
	if report.HasOrderID {
		e = t.entries[report.OrderID]
	} else {
		e = t.routeLocked(report.Category, report.Remaining)
	}
	if e == nil {
		return CountOutcome{}
	}
	t.serving[report.Category] = e.state.OrderID

	// Last write wins: counters send snapshots, not deltas.
	*e.remainingPtr(report.Category) = Remaining{Value: report.Remaining, Known: true}
	e.state.LastActivity = t.now()

	outcome := CountOutcome{OrderID: e.state.OrderID, Matched: true}
	if e.state.Premium.IsZero() && e.state.Standard.IsZero() && e.machine.Can(fsm.FulfillmentEventCountsDepleted) {
		// The packing enter callback sets the latch.
		outcome.Pack = e.machine.Event(ctx, fsm.FulfillmentEventCountsDepleted) == nil
	}
	return outcome
}

// routeLocked picks the order an anonymous report for category belongs to.
func (t *Tracker) routeLocked(category catalog.Category, remaining int) *entry {
	cur, ok := t.entries[t.serving[category]]
	if ok && (remaining == 0 || !cur.remaining(category).IsZero()) {
		return cur
	}

	awaiting := func(e *entry) bool {
		return e.state.Phase == fsm.FulfillmentStateAwaitingCounts
	}
	if ok {
		// The counter finished cur and started on a later order.
		if next := t.oldestLocked(func(e *entry) bool {
			return awaiting(e) && e.seq > cur.seq && !e.remaining(category).IsZero()
		}); next != nil {
			return next
		}
	}
	if remaining == 0 {
		return t.oldestLocked(awaiting)
	}
	return t.oldestLocked(func(e *entry) bool {
		return awaiting(e) && !e.remaining(category).IsZero()
	})
}

// Complete finishes orderID and stops tracking it, returning its final
// state. It reports false when the order is not tracked.
func (t *Tracker) Complete(ctx context.Context, orderID int64) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[orderID]
	if !ok {
		return State{}, false
	}
	if err := e.machine.Event(ctx, fsm.FulfillmentEventPackingDone); err != nil {
		return State{}, false
	}
	delete(t.entries, orderID)
	return e.state, true
}

// Sweep forgets orders idle for longer than the idle timeout and returns
// their ids.
func (t *Tracker) Sweep() []int64 {
	if t.idleTimeout <= 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.idleTimeout)
	var evicted []int64
	for id, e := range t.entries {
		if e.state.LastActivity.Before(cutoff) {
			delete(t.entries, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// Get returns a copy of the state for orderID.
func (t *Tracker) Get(orderID int64) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[orderID]
	if !ok {
		return State{}, false
	}
	return e.state, true
}

// Len returns the number of tracked orders.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Tracker) oldestLocked(match func(*entry) bool) *entry {
	var oldest *entry
	for _, e := range t.entries {
		if !match(e) {
			continue
		}
		if oldest == nil || e.seq < oldest.seq {
			oldest = e
		}
	}
	return oldest
}

func (e *entry) remaining(c catalog.Category) Remaining {
	return *e.remainingPtr(c)
}

func (e *entry) remainingPtr(c catalog.Category) *Remaining {
	if c == catalog.Premium {
		return &e.state.Premium
	}
	return &e.state.Standard
}
