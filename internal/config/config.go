// Package config loads Banyan's environment-driven configuration using
// viper, following the bootstrap/config.go pattern from the pack's
// cklxx-elephant.ai example (a viper-bound config struct populated via
// BindEnv calls rather than a raw os.Getenv scatter).
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable named in spec.md §6.
type Config struct {
	// RedisHost/RedisPort/RedisDB address the document store adapter. These
	// play the role spec.md assigns to MONGO_HOST/MONGO_PORT/MONGO_DBNAME —
	// the store technology changed (SPEC_FULL.md §2.1) but the shape (host,
	// port, logical database/namespace) did not.
	RedisHost string
	RedisPort int
	RedisDB   int

	// Port is the HTTP listen port (spec.md: banyan_port, default 5100).
	Port int

	// MaxContSize caps the size of a task's continuations list.
	MaxContSize int
	// MaxUpdates caps the number of outer entries in a bulk virtual-resource
	// update.
	MaxUpdates int
	// MaxTaskSetSize caps batched task id sets accepted by read endpoints.
	MaxTaskSetSize int
	// UsageUpdatePoll is the availability checker's tick interval.
	UsageUpdatePoll time.Duration
	// TokenLen is the length, in characters, of minted execution-attempt
	// tokens.
	TokenLen int

	// LogLevel controls the base zap level ("debug", "info", "warn", "error").
	LogLevel string

	// SessionSecret signs the optional dashboard JWT (SPEC_FULL.md §2.4).
	// Empty disables POST /api/internal/session at the handler level (Issue
	// returns an error), rather than refusing to start.
	SessionSecret string
	// SessionIssuer is the JWT "iss" claim.
	SessionIssuer string
	// SessionTTL is how long a dashboard session token remains valid.
	SessionTTL time.Duration
}

// Defaults mirror spec.md §6's literal constants.
const (
	DefaultPort            = 5100
	DefaultMaxContSize     = 1024
	DefaultMaxUpdates      = 128
	DefaultMaxTaskSetSize  = 128
	DefaultUsageUpdatePoll = 60 * time.Second
	DefaultTokenLen        = 16
)

// Load reads configuration from the environment (and process flags bound by
// the caller, e.g. cmd/banyand's cobra root command) with spec-mandated
// defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("") // env vars are read verbatim, matching spec.md's names
	v.AutomaticEnv()

	v.SetDefault("redis_host", "localhost")
	v.SetDefault("redis_port", 6379)
	v.SetDefault("redis_db", 0)
	v.SetDefault("banyan_port", DefaultPort)
	v.SetDefault("max_cont_size", DefaultMaxContSize)
	v.SetDefault("max_updates", DefaultMaxUpdates)
	v.SetDefault("max_task_set_size", DefaultMaxTaskSetSize)
	v.SetDefault("usage_update_poll_seconds", int(DefaultUsageUpdatePoll.Seconds()))
	v.SetDefault("token_len", DefaultTokenLen)
	v.SetDefault("log_level", "info")
	v.SetDefault("session_secret", "")
	v.SetDefault("session_issuer", "banyan")
	v.SetDefault("session_ttl_seconds", 900)

	for _, key := range []string{
		"redis_host", "redis_port", "redis_db", "banyan_port",
		"max_cont_size", "max_updates", "max_task_set_size",
		"usage_update_poll_seconds", "token_len", "log_level",
		"session_secret", "session_issuer", "session_ttl_seconds",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("config: bind env %s: %w", key, err)
		}
	}

	cfg := &Config{
		RedisHost:       v.GetString("redis_host"),
		RedisPort:       v.GetInt("redis_port"),
		RedisDB:         v.GetInt("redis_db"),
		Port:            v.GetInt("banyan_port"),
		MaxContSize:     v.GetInt("max_cont_size"),
		MaxUpdates:      v.GetInt("max_updates"),
		MaxTaskSetSize:  v.GetInt("max_task_set_size"),
		UsageUpdatePoll: time.Duration(v.GetInt("usage_update_poll_seconds")) * time.Second,
		TokenLen:        v.GetInt("token_len"),
		LogLevel:        v.GetString("log_level"),
		SessionSecret:   v.GetString("session_secret"),
		SessionIssuer:   v.GetString("session_issuer"),
		SessionTTL:      time.Duration(v.GetInt("session_ttl_seconds")) * time.Second,
	}

	if cfg.TokenLen <= 0 {
		return nil, fmt.Errorf("config: token_len must be positive, got %d", cfg.TokenLen)
	}
	return cfg, nil
}

// RedisAddr formats the host:port pair for go-redis.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}
