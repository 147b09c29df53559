package pubsub

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const subscribeConfirmTimeout = 5 * time.Second

// RedisOptions configures a RedisTransport.
type RedisOptions struct {
	Addr        string
	Password    string
	DB          int
	BufferSize  int
	DialTimeout time.Duration // go-redis default when zero
}

// RedisTransport carries messages over Redis Pub/Sub, which matches the
// devices' fire-and-forget semantics: nothing is stored, late subscribers
// miss earlier messages.
type RedisTransport struct {
	client     *redis.Client
	bufferSize int
}

// NewRedisTransport creates a transport. The connection is established lazily.
func NewRedisTransport(opts RedisOptions) *RedisTransport {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	return &RedisTransport{
		client: redis.NewClient(&redis.Options{
			Addr:        opts.Addr,
			Password:    opts.Password,
			DB:          opts.DB,
			DialTimeout: opts.DialTimeout,
		}),
		bufferSize: opts.BufferSize,
	}
}

func (t *RedisTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := t.client.Publish(ctx, channel, payload).Err(); err != nil {
		return &TransportError{Op: "publish", Channel: channel, Err: err}
	}
	return nil
}

func (t *RedisTransport) Subscribe(ctx context.Context, channels ...string) (<-chan Message, error) {
	if len(channels) == 0 {
		return nil, &TransportError{Op: "subscribe", Err: ErrNoChannels}
	}

	// go-redis keeps the channel list and redials on its own, so an
	// unreachable server only delays delivery.
	ps := t.client.Subscribe(ctx, channels...)
	rctx, cancel := context.WithTimeout(ctx, subscribeConfirmTimeout)
	_, err := ps.Receive(rctx)
	cancel()
	if err != nil {
		log.Warn().
			Err(&TransportError{Op: "subscribe", Err: err}).
			Strs("channels", channels).
			Msg("redis unreachable, subscription will retry in the background")
	} else {
		log.Info().Strs("channels", channels).Msg("subscribed to redis channels")
	}

	out := make(chan Message, t.bufferSize)
	go func() {
		defer close(out)
		in := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = ps.Close()
				return
			case m, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- Message{Channel: m.Channel, Payload: []byte(m.Payload)}:
				default:
					log.Warn().Str("channel", m.Channel).Msg("subscriber buffer full, dropping message")
				}
			}
		}
	}()

	return out, nil
}

// Connected pings the server.
func (t *RedisTransport) Connected() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return t.client.Ping(ctx).Err() == nil
}

func (t *RedisTransport) Close() error {
	return t.client.Close()
}
