package cli

import (
	"context"
	"fmt"

	"github.com/buildtall-systems/vinopack/internal/config"
	"github.com/buildtall-systems/vinopack/internal/pubsub"
)

// openTransport builds and connects the configured pub/sub backend.
func openTransport(ctx context.Context, cfg *config.Config) (pubsub.Transport, error) {
	switch cfg.Transport.Backend {
	case config.BackendRedis:
		return pubsub.NewRedisTransport(pubsub.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}), nil

	case config.BackendNostr:
		t, err := pubsub.NewNostrTransport(pubsub.NostrOptions{
			Relays:    cfg.Nostr.Relays,
			SecretKey: cfg.Nostr.SecretKey,
			Kind:      cfg.Nostr.Kind,
		})
		if err != nil {
			return nil, fmt.Errorf("creating nostr transport: %w", err)
		}
		if err := t.Connect(ctx); err != nil {
			return nil, fmt.Errorf("connecting to relays: %w", err)
		}
		return t, nil

	case config.BackendMemory:
		return pubsub.NewMemoryBroker(0), nil

	default:
		return nil, fmt.Errorf("unknown transport backend %q", cfg.Transport.Backend)
	}
}
