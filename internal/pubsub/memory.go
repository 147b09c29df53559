package pubsub

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrClosed is returned when using a closed transport.
var ErrClosed = errors.New("transport closed")

// ErrNoChannels is returned when subscribing to nothing.
var ErrNoChannels = errors.New("no channels to subscribe to")

// MemoryBroker is an in-process Transport. Every subscription receives its
// own copy of each message published on a channel it listens to.
type MemoryBroker struct {
	mu         sync.RWMutex
	subs       map[string]map[chan Message]struct{}
	bufferSize int
	closed     bool
}

// NewMemoryBroker creates a broker whose subscriptions buffer bufferSize
// messages. A non-positive size selects DefaultBufferSize.
func NewMemoryBroker(bufferSize int) *MemoryBroker {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &MemoryBroker{
		subs:       make(map[string]map[chan Message]struct{}),
		bufferSize: bufferSize,
	}
}

func (b *MemoryBroker) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return &TransportError{Op: "publish", Channel: channel, Err: ErrClosed}
	}

	for sub := range b.subs[channel] {
		msg := Message{Channel: channel, Payload: append([]byte(nil), payload...)}
		select {
		case sub <- msg:
		default:
			log.Warn().Str("channel", channel).Msg("subscriber buffer full, dropping message")
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, channels ...string) (<-chan Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, &TransportError{Op: "subscribe", Err: ErrClosed}
	}
	if len(channels) == 0 {
		return nil, &TransportError{Op: "subscribe", Err: ErrNoChannels}
	}

	out := make(chan Message, b.bufferSize)
	for _, ch := range channels {
		if b.subs[ch] == nil {
			b.subs[ch] = make(map[chan Message]struct{})
		}
		b.subs[ch][out] = struct{}{}
	}

	go func() {
		<-ctx.Done()
		b.unsubscribe(out)
	}()

	return out, nil
}

func (b *MemoryBroker) unsubscribe(out chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	found := false
	for ch, set := range b.subs {
		if _, ok := set[out]; ok {
			delete(set, out)
			found = true
		}
		if len(set) == 0 {
			delete(b.subs, ch)
		}
	}
	// Close already closed it otherwise.
	if found {
		close(out)
	}
}

// Connected reports true until the broker is closed.
func (b *MemoryBroker) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

// Close ends every subscription.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	seen := make(map[chan Message]struct{})
	for _, set := range b.subs {
		for sub := range set {
			if _, ok := seen[sub]; !ok {
				seen[sub] = struct{}{}
				close(sub)
			}
		}
	}
	b.subs = make(map[string]map[chan Message]struct{})
	return nil
}
