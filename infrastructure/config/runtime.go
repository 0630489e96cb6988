package config

import (
	"fmt"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// ServerConfig controls the HTTP/WS/SSE listener.
type ServerConfig struct {
	Host string `env:"SERVER_HOST"`
	Port int    `env:"SERVER_PORT"`
}

// DatabaseConfig controls event store persistence. An empty DSN selects the
// in-memory store (fine for a single node; nothing survives a restart).
type DatabaseConfig struct {
	DSN          string `env:"DATABASE_DSN"`
	MaxOpenConns int    `env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns int    `env:"DATABASE_MAX_IDLE_CONNS"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL"`
	Format string `env:"LOG_FORMAT"`
}

// AuthConfig controls bearer-token verification on inbound RPC calls. An
// empty JWTPublicKeyPath runs without signature verification (dev mode);
// set it to require RS256 tokens in production.
type AuthConfig struct {
	JWTPublicKeyPath string `env:"AUTH_JWT_PUBLIC_KEY_PATH"`
}

// ActorConfig tunes system/actor.Runtime.
type ActorConfig struct {
	Workers           int    `env:"ACTOR_WORKERS"`
	MailboxCapacity   int    `env:"ACTOR_MAILBOX_CAPACITY"`
	HotCacheSize      int    `env:"ACTOR_HOT_CACHE_SIZE"`
	AskTimeoutSeconds int    `env:"ACTOR_ASK_TIMEOUT_SECONDS"`
	NodeID            string `env:"ACTOR_NODE_ID"`

	// ConflictStrategy is one of conflict.LastWriteWins/CausalOrder/Merge,
	// consulted only when a caller supplies a vector clock (§4.7).
	ConflictStrategy string `env:"ACTOR_CONFLICT_STRATEGY"`
}

// TransportConfig tunes the WebSocket/SSE/broker fabric.
type TransportConfig struct {
	BrokerBufferSize            int `env:"BROKER_BUFFER_SIZE"`
	WSHeartbeatSeconds          int `env:"WS_HEARTBEAT_SECONDS"`
	WSConnectionTimeoutSeconds  int `env:"WS_CONNECTION_TIMEOUT_SECONDS"`
	WSMaxConnections            int `env:"WS_MAX_CONNECTIONS"`
	SSEConnectionTimeoutSeconds int `env:"SSE_CONNECTION_TIMEOUT_SECONDS"`
}

// RateLimitConfig controls the RPC policy layer in applications/transport.
// RedisAddr selects a RedisLimiter for multi-node deployments; empty uses
// the in-process keyedLimiter.
type RateLimitConfig struct {
	RedisAddr          string `env:"REDIS_ADDR"`
	RequireTenant      bool   `env:"RATE_LIMIT_REQUIRE_TENANT"`
	PerTenantPerMinute int    `env:"RATE_LIMIT_PER_TENANT_PER_MINUTE"`
	PerTokenPerMinute  int    `env:"RATE_LIMIT_PER_TOKEN_PER_MINUTE"`
}

// HTTPConfig controls the outer infrastructure/middleware chain, ahead of
// and independent from the RPC-level AccessPolicy in
// applications/transport. CORS and per-IP burst limiting wrap every route;
// body size and request timeout wrap only the /rpc endpoint.
type HTTPConfig struct {
	CORSAllowedOrigins  []string `env:"HTTP_CORS_ALLOWED_ORIGINS"`
	MaxBodyBytes        int64    `env:"HTTP_MAX_BODY_BYTES"`
	RequestTimeoutSecs  int      `env:"HTTP_REQUEST_TIMEOUT_SECONDS"`
	IPRequestsPerSecond int      `env:"HTTP_IP_REQUESTS_PER_SECOND"`
	IPBurst             int      `env:"HTTP_IP_BURST"`
}

// RuntimeConfig is the top-level configuration for cmd/flowrtd.
type RuntimeConfig struct {
	ServiceName string `env:"SERVICE_NAME"`
	Server      ServerConfig
	Database    DatabaseConfig
	Logging     LoggingConfig
	Auth        AuthConfig
	Actor       ActorConfig
	Transport   TransportConfig
	RateLimit   RateLimitConfig
	HTTP        HTTPConfig
}

// NewRuntimeConfig returns a RuntimeConfig populated with defaults.
func NewRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		ServiceName: "flowrtd",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Actor: ActorConfig{
			Workers:           8,
			MailboxCapacity:   256,
			HotCacheSize:      4096,
			AskTimeoutSeconds: 5,
			NodeID:            "node-1",
			ConflictStrategy:  "lastWriteWins",
		},
		Transport: TransportConfig{
			BrokerBufferSize:            256,
			WSHeartbeatSeconds:          30,
			WSConnectionTimeoutSeconds:  90,
			WSMaxConnections:            1000,
			SSEConnectionTimeoutSeconds: 90,
		},
		RateLimit: RateLimitConfig{
			PerTenantPerMinute: 600,
			PerTokenPerMinute:  600,
		},
		HTTP: HTTPConfig{
			MaxBodyBytes:        8 << 20,
			RequestTimeoutSecs:  30,
			IPRequestsPerSecond: 100,
			IPBurst:             200,
		},
	}
}

// LoadRuntimeConfig loads a .env file (if present) then applies environment
// variable overrides on top of the defaults.
func LoadRuntimeConfig() (*RuntimeConfig, error) {
	_ = godotenv.Load()

	cfg := NewRuntimeConfig()
	if err := envdecode.Decode(cfg); err != nil {
		// envdecode errors when none of the tagged fields were set in the
		// environment; that just means "run on defaults".
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}
	return cfg, nil
}

// Addr returns the host:port the server should listen on.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
