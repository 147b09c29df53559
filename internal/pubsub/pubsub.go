// Package pubsub carries messages between the service and the devices over
// named channels. Delivery is at most once, unordered and may duplicate;
// subscribers that fall behind lose messages rather than block publishers.
package pubsub

import (
	"context"
	"fmt"
)

// DefaultBufferSize is the per-subscription buffer used when none is given.
const DefaultBufferSize = 100

// Message is a payload received on a channel.
type Message struct {
	Channel string
	Payload []byte
}

// Publisher sends payloads to a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Transport is a publish/subscribe connection.
type Transport interface {
	Publisher
	// Subscribe delivers messages for channels until ctx is done or the
	// transport is closed, then closes the returned channel.
	Subscribe(ctx context.Context, channels ...string) (<-chan Message, error)
	// Connected reports whether the transport can currently reach its broker.
	Connected() bool
	Close() error
}

// TransportError wraps a publish or subscribe failure.
type TransportError struct {
	Op      string
	Channel string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Channel == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Channel, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
