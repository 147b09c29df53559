package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/rs/zerolog/log"
)

// DefaultNostrKind is an ephemeral event kind: relays forward it to
// subscribers without storing it.
const DefaultNostrKind = 20078

// channelTag names the event tag carrying the channel.
const channelTag = "t"

// NostrOptions configures a NostrTransport.
type NostrOptions struct {
	Relays     []string
	SecretKey  string // hex; a throwaway key is generated when empty
	Kind       int
	BufferSize int
	DedupTTL   time.Duration
}

type nostrSubscription struct {
	channels map[string]struct{}
	out      chan Message
	ctx      context.Context
}

// NostrTransport carries messages as signed ephemeral Nostr events, one
// channel per "t" tag, across a set of relays.
type NostrTransport struct {
	relayURLs []string
	secretKey string
	pubkey    string
	kind      int
	buffer    int

	relays []*nostr.Relay
	subs   []*nostrSubscription
	dedup  *Deduplicator
	mu     sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNostrTransport creates a transport for the given relays. Call Connect
// before use.
func NewNostrTransport(opts NostrOptions) (*NostrTransport, error) {
	if len(opts.Relays) == 0 {
		return nil, errors.New("no relays configured")
	}
	if opts.Kind == 0 {
		opts.Kind = DefaultNostrKind
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.DedupTTL <= 0 {
		opts.DedupTTL = 10 * time.Minute
	}

	sk := opts.SecretKey
	if sk == "" {
		sk = nostr.GeneratePrivateKey()
		log.Warn().Msg("no nostr secret key configured, using a throwaway key")
	}
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return nil, fmt.Errorf("deriving public key: %w", err)
	}

	return &NostrTransport{
		relayURLs: opts.Relays,
		secretKey: sk,
		pubkey:    pk,
		kind:      opts.Kind,
		buffer:    opts.BufferSize,
		dedup:     NewDeduplicator(opts.DedupTTL),
	}, nil
}

// Connect establishes connections to all configured relays.
func (t *NostrTransport) Connect(ctx context.Context) error {
	t.ctx, t.cancel = context.WithCancel(ctx)

	var connected int
	for _, url := range t.relayURLs {
		relay, err := nostr.RelayConnect(t.ctx, url)
		if err != nil {
			log.Warn().Err(err).Str("relay", url).Msg("failed to connect to relay")
			continue
		}

		t.mu.Lock()
		t.relays = append(t.relays, relay)
		t.mu.Unlock()

		connected++
		log.Info().Str("relay", url).Msg("connected to relay")
	}

	if connected == 0 {
		return &TransportError{Op: "connect", Err: errors.New("failed to connect to any relays")}
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.dedup.StartCleanupLoop(t.ctx.Done(), time.Minute)
	}()

	log.Info().Int("connected", connected).Int("total", len(t.relayURLs)).Msg("nostr transport ready")
	return nil
}

func (t *NostrTransport) Subscribe(ctx context.Context, channels ...string) (<-chan Message, error) {
	if len(channels) == 0 {
		return nil, &TransportError{Op: "subscribe", Err: ErrNoChannels}
	}
	if t.ctx == nil {
		return nil, &TransportError{Op: "subscribe", Err: errors.New("not connected")}
	}

	sub := &nostrSubscription{
		channels: make(map[string]struct{}, len(channels)),
		out:      make(chan Message, t.buffer),
		ctx:      ctx,
	}
	for _, ch := range channels {
		sub.channels[ch] = struct{}{}
	}

	t.mu.Lock()
	t.subs = append(t.subs, sub)
	relays := make([]*nostr.Relay, len(t.relays))
	copy(relays, t.relays)
	t.mu.Unlock()

	filters := []nostr.Filter{
		{
			Kinds: []int{t.kind},
			Tags:  nostr.TagMap{channelTag: channels},
		},
	}

	var relayWG sync.WaitGroup
	for _, relay := range relays {
		relayWG.Add(1)
		t.wg.Add(1)
		go func(relay *nostr.Relay) {
			defer t.wg.Done()
			defer relayWG.Done()
			t.subscribeRelay(sub, relay, filters)
		}(relay)
	}

	// The output closes once every relay loop for this subscription is done.
	go func() {
		relayWG.Wait()
		t.mu.Lock()
		for i, s := range t.subs {
			if s == sub {
				t.subs = append(t.subs[:i], t.subs[i+1:]...)
				break
			}
		}
		t.mu.Unlock()
		close(sub.out)
	}()

	return sub.out, nil
}

// subscribeRelay manages one relay subscription with reconnection logic.
func (t *NostrTransport) subscribeRelay(sub *nostrSubscription, relay *nostr.Relay, filters []nostr.Filter) {
	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-sub.ctx.Done():
			return
		default:
		}

		rsub, err := relay.Subscribe(t.ctx, filters)
		if err != nil {
			log.Warn().Err(err).Str("relay", relay.URL).Msg("subscription failed")
			if t.reconnect(relay, &backoff, maxBackoff) {
				continue
			}
			return
		}

		backoff = time.Second
		log.Debug().Str("relay", relay.URL).Msg("subscribed to events")

	events:
		for {
			select {
			case <-t.ctx.Done():
				rsub.Unsub()
				return
			case <-sub.ctx.Done():
				rsub.Unsub()
				return
			case event, ok := <-rsub.Events:
				if !ok {
					log.Warn().Str("relay", relay.URL).Msg("subscription closed, reconnecting")
					if t.reconnect(relay, &backoff, maxBackoff) {
						break events
					}
					return
				}
				t.route(sub, event)
			}
		}
	}
}

// reconnect attempts to reconnect to a relay with exponential backoff.
// Returns true if reconnection should be attempted, false if context is done.
func (t *NostrTransport) reconnect(relay *nostr.Relay, backoff *time.Duration, maxBackoff time.Duration) bool {
	select {
	case <-t.ctx.Done():
		return false
	case <-time.After(*backoff):
	}

	if err := relay.Connect(t.ctx); err != nil {
		log.Warn().Err(err).Str("relay", relay.URL).Msg("reconnect failed")
		*backoff *= 2
		if *backoff > maxBackoff {
			*backoff = maxBackoff
		}
		return true
	}

	log.Info().Str("relay", relay.URL).Msg("reconnected")
	*backoff = time.Second
	return true
}

// route delivers an event to sub if it belongs to one of its channels.
func (t *NostrTransport) route(sub *nostrSubscription, event *nostr.Event) {
	channel := eventChannel(event)
	if _, ok := sub.channels[channel]; !ok {
		return
	}
	// The same event arrives once per relay; dedup per subscription.
	if t.dedup.IsDuplicate(fmt.Sprintf("%p/%s", sub, event.ID)) {
		return
	}

	select {
	case sub.out <- Message{Channel: channel, Payload: []byte(event.Content)}:
	default:
		log.Warn().Str("channel", channel).Str("event", event.ID).Msg("subscriber buffer full, dropping message")
	}
}

func eventChannel(event *nostr.Event) string {
	for _, tag := range event.Tags {
		if len(tag) >= 2 && tag[0] == channelTag {
			return tag[1]
		}
	}
	return ""
}

// Publish signs payload as an event on channel and sends it to every relay.
func (t *NostrTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	event := nostr.Event{
		PubKey:    t.pubkey,
		CreatedAt: nostr.Now(),
		Kind:      t.kind,
		Tags:      nostr.Tags{nostr.Tag{channelTag, channel}},
		Content:   string(payload),
	}
	if err := event.Sign(t.secretKey); err != nil {
		return &TransportError{Op: "publish", Channel: channel, Err: fmt.Errorf("signing event: %w", err)}
	}

	t.mu.RLock()
	relays := make([]*nostr.Relay, len(t.relays))
	copy(relays, t.relays)
	t.mu.RUnlock()

	var lastErr error
	var published int

	for _, relay := range relays {
		if err := relay.Publish(ctx, event); err != nil {
			lastErr = err
			log.Warn().Err(err).Str("relay", relay.URL).Msg("publish failed")
			continue
		}
		published++
	}

	if published == 0 {
		if lastErr == nil {
			lastErr = errors.New("no relays connected")
		}
		return &TransportError{Op: "publish", Channel: channel, Err: lastErr}
	}

	log.Debug().Str("event", event.ID).Str("channel", channel).Int("relays", published).Msg("published event")
	return nil
}

// Connected reports whether any relay connection is alive.
func (t *NostrTransport) Connected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, relay := range t.relays {
		if relay.IsConnected() {
			return true
		}
	}
	return false
}

// Close gracefully shuts down all relay connections.
func (t *NostrTransport) Close() error {
	if t.cancel != nil {
		t.cancel()
	}

	t.wg.Wait()

	t.mu.Lock()
	for _, relay := range t.relays {
		_ = relay.Close()
	}
	t.relays = nil
	t.mu.Unlock()

	log.Info().Msg("nostr transport closed")
	return nil
}
