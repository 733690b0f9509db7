// Package config defines the configuration of the trade engine and provides
// validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from an
// optional TOML file and then overridden by environment variables.
type Config struct {
	Solana   SolanaConfig   `toml:"solana"`
	Jito     JitoConfig     `toml:"jito"`
	Trade    TradeConfig    `toml:"trade"`
	Raydium  RaydiumConfig  `toml:"raydium"`
	PoolAPI  PoolAPIConfig  `toml:"pool_api"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Telegram TelegramConfig `toml:"telegram"`
	Dispatch DispatchConfig `toml:"dispatch"`
	Server   ServerConfig   `toml:"server"`
	Security SecurityConfig `toml:"security"`

	// Storage selects the durable store: "postgres" or "memory".
	Storage   string `toml:"storage" env:"STORAGE_BACKEND"`
	LogLevel  string `toml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `toml:"log_format" env:"LOG_FORMAT"`
}

// SolanaConfig holds ledger RPC endpoints.
type SolanaConfig struct {
	RPCURL     string   `toml:"rpc_url" env:"SOLANA_RPC_URL"`
	WSURL      string   `toml:"ws_url" env:"SOLANA_WS_URL"`
	RPCTimeout duration `toml:"rpc_timeout" env:"SOLANA_RPC_TIMEOUT"`
	MaxRetries int      `toml:"max_retries" env:"SOLANA_RPC_MAX_RETRIES"`
}

// JitoConfig holds the private relay settings.
type JitoConfig struct {
	EngineURL    string   `toml:"engine_url" env:"JITO_ENGINE_URL"`
	TipAddress   string   `toml:"tip_address" env:"JITO_TIP_ADDRESS"`
	PollInterval duration `toml:"poll_interval" env:"JITO_POLL_INTERVAL"`
	MaxPolls     int      `toml:"max_polls" env:"JITO_MAX_POLLS"`
}

// TradeConfig holds execution parameters shared by all wallets.
type TradeConfig struct {
	FeeAddress      string   `toml:"fee_address" env:"FEE_ADDRESS"`
	FeeBps          int64    `toml:"fee_bps" env:"FEE_BPS"`
	RouterProgramID string   `toml:"router_program_id" env:"ROUTER_PROGRAM_ID"`
	ResendInterval  duration `toml:"resend_interval" env:"TRADE_RESEND_INTERVAL"`
	PollInterval    duration `toml:"poll_interval" env:"TRADE_POLL_INTERVAL"`
	MaxAttempts     int      `toml:"max_attempts" env:"TRADE_MAX_ATTEMPTS"`
	FetchAttempts   int      `toml:"fetch_attempts" env:"TRADE_FETCH_ATTEMPTS"`
	BlockTimeCache  int      `toml:"block_time_cache" env:"TRADE_BLOCK_TIME_CACHE"`
}

// RaydiumConfig holds the pool-key API endpoint.
type RaydiumConfig struct {
	APIURL string `toml:"api_url" env:"RAYDIUM_API_URL"`
}

// PoolAPIConfig holds the price/pool lookup collaborator endpoint.
type PoolAPIConfig struct {
	BaseURL string   `toml:"base_url" env:"POOL_API_URL"`
	APIKey  string   `toml:"api_key" env:"POOL_API_KEY"`
	Timeout duration `toml:"timeout" env:"POOL_API_TIMEOUT"`
}

// PostgresConfig holds durable store connection parameters.
type PostgresConfig struct {
	DSN              string   `toml:"dsn" env:"POSTGRES_DSN"`
	RunMigrations    bool     `toml:"run_migrations" env:"POSTGRES_RUN_MIGRATIONS"`
	MaxConns         int32    `toml:"max_conns" env:"POSTGRES_MAX_CONNS"`
	MinConns         int32    `toml:"min_conns" env:"POSTGRES_MIN_CONNS"`
	MaxConnLifetime  duration `toml:"max_conn_lifetime" env:"POSTGRES_MAX_CONN_LIFETIME"`
	ConnectTimeout   duration `toml:"connect_timeout" env:"POSTGRES_CONNECT_TIMEOUT"`
	StatementTimeout duration `toml:"statement_timeout" env:"POSTGRES_STATEMENT_TIMEOUT"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string `toml:"addr" env:"REDIS_ADDR"`
	Password string `toml:"password" env:"REDIS_PW"`
	DB       int    `toml:"db" env:"REDIS_DB"`
	PoolSize int    `toml:"pool_size" env:"REDIS_POOL_SIZE"`
}

// TelegramConfig holds the notification channel credentials.
type TelegramConfig struct {
	Token       string  `toml:"token" env:"TG_BOT_TOKEN"`
	RatePerSec  float64 `toml:"rate_per_sec" env:"TG_RATE_PER_SEC"`
	Burst       int     `toml:"burst" env:"TG_BURST"`
	DisableSend bool    `toml:"disable_send" env:"TG_DISABLE_SEND"`
}

// DispatchConfig holds queue and worker pool parameters.
type DispatchConfig struct {
	SwapWorkers         int      `toml:"swap_workers" env:"SWAP_WORKERS"`
	NotificationWorkers int      `toml:"notification_workers" env:"NOTIFICATION_WORKERS"`
	DedupTTL            duration `toml:"dedup_ttl" env:"DEDUP_TTL"`
	LockTTL             duration `toml:"lock_ttl" env:"LOCK_TTL"`
	QueuePrefix         string   `toml:"queue_prefix" env:"QUEUE_PREFIX"`
	// Backend selects queues, dedup and locks: "redis" or "memory".
	Backend             string   `toml:"backend" env:"DISPATCH_BACKEND"`
}

// ServerConfig holds the operator HTTP surface parameters.
type ServerConfig struct {
	Addr         string   `toml:"addr" env:"SERVER_ADDR"`
	APIToken     string   `toml:"api_token" env:"SERVER_API_TOKEN"`
	ReadTimeout  duration `toml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout duration `toml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
}

// SecurityConfig holds the password wallet keys are encrypted with.
type SecurityConfig struct {
	KeyPassword string `toml:"key_password" env:"PK_SALT"`
}

// duration wraps time.Duration so that TOML and environment values such as
// "2s" decode directly.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with production defaults.
func Defaults() Config {
	return Config{
		Solana: SolanaConfig{
			RPCURL:     "https://api.mainnet-beta.solana.com",
			WSURL:      "wss://api.mainnet-beta.solana.com",
			RPCTimeout: duration{30 * time.Second},
			MaxRetries: 3,
		},
		Jito: JitoConfig{
			EngineURL:    "https://mainnet.block-engine.jito.wtf",
			TipAddress:   "96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5",
			PollInterval: duration{2 * time.Second},
			MaxPolls:     15,
		},
		Trade: TradeConfig{
			FeeBps:         100,
			ResendInterval: duration{2 * time.Second},
			PollInterval:   duration{2 * time.Second},
			MaxAttempts:    3,
			FetchAttempts:  30,
			BlockTimeCache: 1024,
		},
		Raydium: RaydiumConfig{
			APIURL: "https://api-v3.raydium.io",
		},
		PoolAPI: PoolAPIConfig{
			Timeout: duration{10 * time.Second},
		},
		Postgres: PostgresConfig{
			RunMigrations:   true,
			MaxConns:        20,
			MaxConnLifetime: duration{30 * time.Minute},
			ConnectTimeout:  duration{5 * time.Second},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 20,
		},
		Telegram: TelegramConfig{
			RatePerSec: 25,
			Burst:      5,
		},
		Dispatch: DispatchConfig{
			SwapWorkers:         15,
			NotificationWorkers: 5,
			DedupTTL:            duration{10 * time.Minute},
			LockTTL:             duration{2 * time.Minute},
			QueuePrefix:         "trade-engine",
			Backend:             "redis",
		},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  duration{10 * time.Second},
			WriteTimeout: duration{30 * time.Second},
		},
		Storage:   "postgres",
		LogLevel:  "info",
		LogFormat: "json",
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Sprintf("unknown log_format %q (valid: json, text)", c.LogFormat))
	}

	if c.Solana.RPCURL == "" {
		errs = append(errs, "solana: rpc_url must not be empty")
	}
	if c.Trade.FeeAddress == "" {
		errs = append(errs, "trade: fee_address must be set")
	}
	if c.Trade.RouterProgramID == "" {
		errs = append(errs, "trade: router_program_id must be set")
	}
	if c.Trade.FeeBps < 0 || c.Trade.FeeBps >= 10000 {
		errs = append(errs, "trade: fee_bps must be in [0, 10000)")
	}
	if c.Trade.MaxAttempts <= 0 {
		errs = append(errs, "trade: max_attempts must be positive")
	}
	if c.Jito.MaxPolls <= 0 {
		errs = append(errs, "jito: max_polls must be positive")
	}
	if c.PoolAPI.BaseURL == "" {
		errs = append(errs, "pool_api: base_url must be set")
	}
	switch c.Storage {
	case "postgres":
		if c.Postgres.DSN == "" {
			errs = append(errs, "postgres: dsn must be set")
		}
		if c.Postgres.MaxConns <= 0 || c.Postgres.MinConns < 0 || c.Postgres.MinConns > c.Postgres.MaxConns {
			errs = append(errs, "postgres: need 0 <= min_conns <= max_conns and max_conns > 0")
		}
	case "memory":
	default:
		errs = append(errs, fmt.Sprintf("unknown storage %q (valid: postgres, memory)", c.Storage))
	}
	if c.Dispatch.Backend != "redis" && c.Dispatch.Backend != "memory" {
		errs = append(errs, fmt.Sprintf("dispatch: unknown backend %q (valid: redis, memory)", c.Dispatch.Backend))
	}
	if c.Security.KeyPassword == "" {
		errs = append(errs, "security: key_password must be set")
	}
	if c.Dispatch.SwapWorkers <= 0 || c.Dispatch.NotificationWorkers <= 0 {
		errs = append(errs, "dispatch: worker counts must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
