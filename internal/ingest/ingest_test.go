package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/buildtall-systems/vinopack/internal/catalog"
	"github.com/buildtall-systems/vinopack/internal/db"
	"github.com/buildtall-systems/vinopack/internal/metrics"
)

var testChannels = Channels{Premium: "test/caro", Standard: "test/barato"}

type fakeStore struct {
	nextID int64
	items  [][]db.NewItem
	err    error
}

func (s *fakeStore) CreateOrder(_ context.Context, items []db.NewItem) (*db.Order, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.nextID++
	s.items = append(s.items, items)
	return &db.Order{ID: s.nextID, Status: "pending", CreatedAt: time.Now()}, nil
}

type published struct {
	channel string
	payload string
}

// recorder stands in for both the tracker and the publisher so the test can
// see the order of calls.
type recorder struct {
	mu     sync.Mutex
	events []string
	pubs   []published
	err    error
}

func (r *recorder) Track(orderID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "track")
}

func (r *recorder) Publish(_ context.Context, channel string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "publish")
	if r.err != nil {
		return r.err
	}
	r.pubs = append(r.pubs, published{channel, string(payload)})
	return nil
}

func TestIngest_PublishesTotals(t *testing.T) {
	store := &fakeStore{}
	rec := &recorder{}
	m := metrics.NewUnregistered()
	svc := NewService(store, rec, rec, testChannels, m)

	res, err := svc.Ingest(context.Background(), []catalog.Line{
		{Label: "VINO DE LA CASA", Quantity: 2},
		{Label: "LA TRUCHA", Quantity: 1},
		{Label: "GRAN CAPITANA", Quantity: 3},
		{Label: "UNKNOWN RED", Quantity: 7},
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if res.OrderID != 1 {
		t.Errorf("OrderID = %d, want 1", res.OrderID)
	}
	if res.Totals != (catalog.Totals{Premium: 5, Standard: 1}) {
		t.Errorf("Totals = %+v, want premium 5 standard 1", res.Totals)
	}

	want := []published{
		{testChannels.Premium, `{"id_pedido":1,"total_caro":5}`},
		{testChannels.Standard, `{"id_pedido":1,"total_barato":1}`},
	}
	if len(rec.pubs) != len(want) {
		t.Fatalf("published %v, want %v", rec.pubs, want)
	}
	for i := range want {
		if rec.pubs[i] != want[i] {
			t.Errorf("publish %d = %+v, want %+v", i, rec.pubs[i], want[i])
		}
	}

	if len(rec.events) != 3 || rec.events[0] != "track" {
		t.Errorf("events = %v, want track before publishing", rec.events)
	}

	// Labels are stored as given, unknown ones included.
	if len(store.items[0]) != 4 || store.items[0][3].WineType != "UNKNOWN RED" {
		t.Errorf("stored items = %+v", store.items[0])
	}
	if got := testutil.ToFloat64(m.OrdersIngested); got != 1 {
		t.Errorf("orders ingested = %v, want 1", got)
	}
}

func TestIngest_ZeroTotalsStillPublished(t *testing.T) {
	rec := &recorder{}
	svc := NewService(&fakeStore{}, rec, rec, testChannels, nil)

	if _, err := svc.Ingest(context.Background(), []catalog.Line{{Label: "LA TRUCHA", Quantity: 4}}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if len(rec.pubs) != 2 || rec.pubs[0].payload != `{"id_pedido":1,"total_caro":0}` {
		t.Errorf("published %v", rec.pubs)
	}
}

func TestIngest_Validation(t *testing.T) {
	for _, lines := range [][]catalog.Line{nil, {}} {
		store := &fakeStore{}
		rec := &recorder{}
		svc := NewService(store, rec, rec, testChannels, nil)

		_, err := svc.Ingest(context.Background(), lines)
		if !errors.Is(err, ErrValidation) {
			t.Errorf("Ingest(%v) error = %v, want ErrValidation", lines, err)
		}
		if len(store.items) != 0 || len(rec.events) != 0 {
			t.Error("invalid order must not be stored, tracked or published")
		}
	}
}

func TestIngest_PersistenceError(t *testing.T) {
	store := &fakeStore{err: db.ErrInvalidItem}
	rec := &recorder{}
	svc := NewService(store, rec, rec, testChannels, nil)

	_, err := svc.Ingest(context.Background(), []catalog.Line{{Label: "LA TRUCHA", Quantity: 0}})

	var pErr *PersistenceError
	if !errors.As(err, &pErr) {
		t.Fatalf("error = %v, want PersistenceError", err)
	}
	if !errors.Is(err, db.ErrInvalidItem) {
		t.Errorf("error should wrap db.ErrInvalidItem: %v", err)
	}
	if len(rec.events) != 0 {
		t.Errorf("failed order must not be tracked or published: %v", rec.events)
	}
}

func TestIngest_PublishFailureDoesNotFail(t *testing.T) {
	rec := &recorder{err: errors.New("broker down")}
	m := metrics.NewUnregistered()
	svc := NewService(&fakeStore{}, rec, rec, testChannels, m)

	res, err := svc.Ingest(context.Background(), []catalog.Line{{Label: "GRAN CAPITANA", Quantity: 1}})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.OrderID != 1 {
		t.Errorf("OrderID = %d, want 1", res.OrderID)
	}
	if got := testutil.ToFloat64(m.PublishFailures.WithLabelValues(testChannels.Premium)); got != 1 {
		t.Errorf("premium publish failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.PublishFailures.WithLabelValues(testChannels.Standard)); got != 1 {
		t.Errorf("standard publish failures = %v, want 1", got)
	}
}
