// Package ingest accepts new orders: it stores them, announces the
// per-category totals to the counters and hands the order to the
// coordinator for tracking.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/buildtall-systems/vinopack/internal/catalog"
	"github.com/buildtall-systems/vinopack/internal/db"
	"github.com/buildtall-systems/vinopack/internal/messages"
	"github.com/buildtall-systems/vinopack/internal/metrics"
	"github.com/buildtall-systems/vinopack/internal/pubsub"
)

// ErrValidation indicates a request that cannot become an order.
var ErrValidation = errors.New("invalid order")

// PersistenceError wraps a store failure while saving an order.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("storing order: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Store persists orders.
type Store interface {
	CreateOrder(ctx context.Context, items []db.NewItem) (*db.Order, error)
}

// Tracker starts correlating feedback for a stored order.
type Tracker interface {
	Track(orderID int64)
}

// Channels names where totals are announced.
type Channels struct {
	Premium  string
	Standard string
}

// Result describes an accepted order.
type Result struct {
	OrderID int64
	Totals  catalog.Totals
}

// Service is the order ingestion handler.
type Service struct {
	store     Store
	tracker   Tracker
	publisher pubsub.Publisher
	channels  Channels
	metrics   *metrics.Metrics
}

// NewService creates an ingestion service. m may be nil.
func NewService(store Store, tracker Tracker, publisher pubsub.Publisher, channels Channels, m *metrics.Metrics) *Service {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Service{
		store:     store,
		tracker:   tracker,
		publisher: publisher,
		channels:  channels,
		metrics:   m,
	}
}

// Ingest stores lines as one order and announces its totals. Publish
// failures are logged and counted but do not fail the order: once stored,
// the order is accepted.
func (s *Service) Ingest(ctx context.Context, lines []catalog.Line) (*Result, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: order has no items", ErrValidation)
	}

	items := make([]db.NewItem, len(lines))
	for i, l := range lines {
		items[i] = db.NewItem{WineType: l.Label, Quantity: l.Quantity}
	}

	order, err := s.store.CreateOrder(ctx, items)
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}
	s.metrics.OrdersIngested.Inc()

	totals := catalog.Sum(lines)
	log.Info().
		Int64("order_id", order.ID).
		Int("items", len(lines)).
		Int("premium", totals.Premium).
		Int("standard", totals.Standard).
		Msg("order stored")

	// Track before publishing so an immediate device reply finds the order.
	s.tracker.Track(order.ID)

	s.publishTotals(ctx, order.ID, catalog.Premium, s.channels.Premium, totals.Premium)
	s.publishTotals(ctx, order.ID, catalog.Standard, s.channels.Standard, totals.Standard)

	return &Result{OrderID: order.ID, Totals: totals}, nil
}

func (s *Service) publishTotals(ctx context.Context, orderID int64, category catalog.Category, channel string, total int) {
	payload, err := messages.EncodeTotals(category, orderID, total)
	if err != nil {
		log.Error().Err(err).Int64("order_id", orderID).Msg("encoding totals")
		return
	}

	if err := s.publisher.Publish(ctx, channel, payload); err != nil {
		var tErr *pubsub.TransportError
		if !errors.As(err, &tErr) {
			err = &pubsub.TransportError{Op: "publish", Channel: channel, Err: err}
		}
		s.metrics.PublishFailures.WithLabelValues(channel).Inc()
		log.Error().Err(err).Int64("order_id", orderID).Str("channel", channel).Msg("publishing totals")
		return
	}
	log.Debug().Int64("order_id", orderID).Str("channel", channel).Int("total", total).Msg("totals published")
}
