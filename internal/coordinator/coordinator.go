// Package coordinator correlates counter and robot feedback with in-flight
// orders and advances their persisted status.
//
// Counters report what remains to dispense per category; once both read
// zero the order moves to packing. The robot reports completion by order id;
// a match moves the order to finished, whether or not packing was reached.
// Feedback arrives at most once, in any order, possibly duplicated, so every
// transition is guarded and every store call is idempotent.
package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/buildtall-systems/vinopack/internal/catalog"
	"github.com/buildtall-systems/vinopack/internal/db"
	"github.com/buildtall-systems/vinopack/internal/fsm"
	"github.com/buildtall-systems/vinopack/internal/messages"
	"github.com/buildtall-systems/vinopack/internal/metrics"
	"github.com/buildtall-systems/vinopack/internal/pubsub"
)

// StatusUpdater persists order status changes.
type StatusUpdater interface {
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) error
}

// Channels names the pub/sub channels the coordinator works with.
type Channels struct {
	Premium      string
	Standard     string
	RobotCommand string
	RobotStatus  string
}

// Coordinator drives order status from device feedback.
type Coordinator struct {
	tracker  *Tracker
	store    StatusUpdater
	channels Channels
	metrics  *metrics.Metrics
}

// New creates a coordinator. m may be nil.
func New(tracker *Tracker, store StatusUpdater, channels Channels, m *metrics.Metrics) *Coordinator {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Coordinator{
		tracker:  tracker,
		store:    store,
		channels: channels,
		metrics:  m,
	}
}

// Inbound returns the channels carrying device feedback.
func (c *Coordinator) Inbound() []string {
	return []string{c.channels.Premium, c.channels.Standard, c.channels.RobotStatus}
}

// Track begins correlating feedback for a newly stored order.
func (c *Coordinator) Track(orderID int64) {
	for _, id := range c.tracker.Track(orderID) {
		log.Warn().Int64("order_id", id).Msg("tracker full, evicting oldest order")
		c.metrics.Evictions.WithLabelValues(metrics.EvictCapacity).Inc()
	}
	c.metrics.TrackedOrders.Set(float64(c.tracker.Len()))
	log.Debug().Int64("order_id", orderID).Msg("tracking order")
}

// Run handles messages until ctx is done or msgs is closed.
func (c *Coordinator) Run(ctx context.Context, msgs <-chan pubsub.Message) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				log.Info().Msg("feedback subscription closed")
				return nil
			}
			c.Handle(ctx, msg)
		}
	}
}

// RunSweeper forgets idle orders every interval until ctx is done.
func (c *Coordinator) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Sweep evicts idle orders once.
func (c *Coordinator) Sweep() {
	evicted := c.tracker.Sweep()
	for _, id := range evicted {
		log.Warn().Int64("order_id", id).Msg("no feedback within idle timeout, forgetting order")
		c.metrics.Evictions.WithLabelValues(metrics.EvictIdle).Inc()
	}
	if len(evicted) > 0 {
		c.metrics.TrackedOrders.Set(float64(c.tracker.Len()))
	}
}

// Handle processes one inbound message. It never fails: undecodable
// payloads are logged and dropped without touching any state.
func (c *Coordinator) Handle(ctx context.Context, msg pubsub.Message) {
	switch msg.Channel {
	case c.channels.Premium:
		c.handleCount(ctx, msg, catalog.Premium)
	case c.channels.Standard:
		c.handleCount(ctx, msg, catalog.Standard)
	case c.channels.RobotStatus:
		c.handleRobotStatus(ctx, msg)
	default:
		c.received(msg.Channel, metrics.ResultIgnored)
	}
}

func (c *Coordinator) handleCount(ctx context.Context, msg pubsub.Message, category catalog.Category) {
	report, err := messages.DecodeCountReport(msg.Channel, category, msg.Payload)
	if errors.Is(err, messages.ErrNotCountReport) {
		// Our own totals come back on the same channel.
		c.received(msg.Channel, metrics.ResultIgnored)
		return
	}
	if err != nil {
		c.malformed(err)
		return
	}

	outcome := c.tracker.ApplyCount(ctx, *report)
	if !outcome.Matched {
		log.Debug().Str("channel", msg.Channel).Int("remaining", report.Remaining).Msg("count report matches no tracked order")
		c.received(msg.Channel, metrics.ResultUnmatched)
		return
	}

	c.received(msg.Channel, metrics.ResultHandled)
	log.Debug().
		Int64("order_id", outcome.OrderID).
		Str("category", string(category)).
		Int("remaining", report.Remaining).
		Msg("remaining count updated")

	if outcome.Pack {
		log.Info().Int64("order_id", outcome.OrderID).Msg("both counts zero, marking packing")
		c.updateStatus(ctx, outcome.OrderID, fsm.OrderStatePacking)
	}
}

func (c *Coordinator) handleRobotStatus(ctx context.Context, msg pubsub.Message) {
	status, err := messages.DecodeRobotStatus(msg.Channel, msg.Payload)
	if err != nil {
		c.malformed(err)
		return
	}

	if status.Command != messages.CommandFinished {
		c.received(msg.Channel, metrics.ResultIgnored)
		return
	}

	final, ok := c.tracker.Complete(ctx, status.OrderID)
	if !ok {
		log.Debug().Int64("order_id", status.OrderID).Msg("completion for untracked order, discarding")
		c.received(msg.Channel, metrics.ResultUnmatched)
		return
	}
	c.metrics.TrackedOrders.Set(float64(c.tracker.Len()))
	c.received(msg.Channel, metrics.ResultHandled)

	log.Info().
		Int64("order_id", status.OrderID).
		Bool("counts_depleted", final.PackingIssued).
		Str("phase", final.Phase).
		Msg("robot finished packing")
	c.updateStatus(ctx, status.OrderID, fsm.OrderStateFinished)
}

// updateStatus runs outside the tracker lock. Failures are logged only;
// the order keeps its last persisted status.
func (c *Coordinator) updateStatus(ctx context.Context, orderID int64, status string) {
	err := c.store.UpdateOrderStatus(ctx, orderID, status)
	if err != nil {
		c.metrics.StatusUpdateFailures.WithLabelValues(status).Inc()
		evt := log.Error()
		if errors.Is(err, db.ErrOrderNotFound) {
			evt = log.Warn()
		}
		evt.Err(err).Int64("order_id", orderID).Str("status", status).Msg("updating order status")
		return
	}
	c.metrics.StatusUpdates.WithLabelValues(status).Inc()
	log.Info().Int64("order_id", orderID).Str("status", status).Msg("order status updated")
}

func (c *Coordinator) malformed(err error) {
	var mErr *messages.MalformedMessageError
	if errors.As(err, &mErr) {
		log.Warn().Err(mErr.Err).Str("channel", mErr.Channel).Str("payload", mErr.Payload).Msg("discarding malformed message")
		c.received(mErr.Channel, metrics.ResultMalformed)
		return
	}
	log.Warn().Err(err).Msg("discarding message")
}

func (c *Coordinator) received(channel, result string) {
	c.metrics.MessagesReceived.WithLabelValues(channel, result).Inc()
}
