package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Transport backends.
const (
	BackendRedis  = "redis"
	BackendNostr  = "nostr"
	BackendMemory = "memory"
)

// Config holds all application configuration.
type Config struct {
	Verbose     bool
	Log         LogConfig
	HTTP        HTTPConfig
	Database    DatabaseConfig
	Transport   TransportConfig
	Redis       RedisConfig
	Nostr       NostrConfig
	Channels    ChannelsConfig
	Coordinator CoordinatorConfig
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string // "console" or "json"
}

// HTTPConfig holds API server settings.
type HTTPConfig struct {
	Addr string
}

// DatabaseConfig holds database settings.
type DatabaseConfig struct {
	Path string
}

// TransportConfig selects the pub/sub backend.
type TransportConfig struct {
	Backend string
}

// RedisConfig holds Redis Pub/Sub settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NostrConfig holds Nostr relay settings.
type NostrConfig struct {
	Relays    []string
	SecretKey string // hex
	Kind      int
}

// ChannelsConfig names the device channels.
type ChannelsConfig struct {
	Premium      string
	Standard     string
	RobotCommand string
	RobotStatus  string
}

// CoordinatorConfig bounds the in-flight order tracker.
type CoordinatorConfig struct {
	MaxTracked    int
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

// Load reads configuration from Viper and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{
		Verbose: viper.GetBool("verbose"),
		Log: LogConfig{
			Level:  viper.GetString("log.level"),
			Format: viper.GetString("log.format"),
		},
		HTTP: HTTPConfig{
			Addr: viper.GetString("http.addr"),
		},
		Database: DatabaseConfig{
			Path: viper.GetString("database.path"),
		},
		Transport: TransportConfig{
			Backend: viper.GetString("transport.backend"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Nostr: NostrConfig{
			Relays:    viper.GetStringSlice("nostr.relays"),
			SecretKey: viper.GetString("nostr.secret_key"),
			Kind:      viper.GetInt("nostr.kind"),
		},
		Channels: ChannelsConfig{
			Premium:      viper.GetString("channels.premium"),
			Standard:     viper.GetString("channels.standard"),
			RobotCommand: viper.GetString("channels.robot_command"),
			RobotStatus:  viper.GetString("channels.robot_status"),
		},
		Coordinator: CoordinatorConfig{
			MaxTracked:    viper.GetInt("coordinator.max_tracked"),
			IdleTimeout:   viper.GetDuration("coordinator.idle_timeout"),
			SweepInterval: viper.GetDuration("coordinator.sweep_interval"),
		},
	}

	// Apply defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":5000"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "vinopack.db"
	}
	if cfg.Transport.Backend == "" {
		cfg.Transport.Backend = BackendRedis
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if len(cfg.Nostr.Relays) == 0 {
		cfg.Nostr.Relays = []string{"wss://relay.damus.io"}
	}
	if cfg.Nostr.Kind == 0 {
		cfg.Nostr.Kind = 20078
	}
	if cfg.Channels.Premium == "" {
		cfg.Channels.Premium = "PR2/A7/cantidades/caro"
	}
	if cfg.Channels.Standard == "" {
		cfg.Channels.Standard = "PR2/A7/cantidades/barato"
	}
	if cfg.Channels.RobotCommand == "" {
		cfg.Channels.RobotCommand = "PR2/A7/db"
	}
	if cfg.Channels.RobotStatus == "" {
		cfg.Channels.RobotStatus = "PR2/A7/robodk"
	}
	if cfg.Coordinator.MaxTracked == 0 {
		cfg.Coordinator.MaxTracked = 1000
	}
	if cfg.Coordinator.IdleTimeout == 0 {
		cfg.Coordinator.IdleTimeout = 2 * time.Hour
	}
	if cfg.Coordinator.SweepInterval == 0 {
		cfg.Coordinator.SweepInterval = time.Minute
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Transport.Backend {
	case BackendRedis, BackendNostr, BackendMemory:
	default:
		return fmt.Errorf("unknown transport backend %q", c.Transport.Backend)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if c.Channels.Premium == c.Channels.Standard {
		return fmt.Errorf("premium and standard channels must differ, both are %q", c.Channels.Premium)
	}
	return nil
}
