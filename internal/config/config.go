// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/fd1az/chainsync/internal/apperror"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Endpoints EndpointsConfig `mapstructure:"endpoints"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Health    HealthConfig    `mapstructure:"health"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	TUIMode     bool   `mapstructure:"-"` // set at runtime from flags
}

// EndpointsConfig lists candidate endpoints in rotation order.
type EndpointsConfig struct {
	// Query are the primary chain-query (LCD) endpoints.
	Query []string `mapstructure:"query"`
	// API are secondary REST endpoints tried after cache on API-origin errors.
	API          []string      `mapstructure:"api"`
	WebSocket    []string      `mapstructure:"websocket"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	HealthTTL    time.Duration `mapstructure:"health_ttl"`
}

// RetryConfig holds the retry and fallback policy.
type RetryConfig struct {
	MaxAttempts      int           `mapstructure:"max_attempts"`
	BaseDelay        time.Duration `mapstructure:"base_delay"`
	MaxDelay         time.Duration `mapstructure:"max_delay"`
	Multiplier       float64       `mapstructure:"multiplier"`
	FallbackAttempts int           `mapstructure:"fallback_attempts"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	RateLimitWait    time.Duration `mapstructure:"rate_limit_wait"`
}

// StreamConfig holds live connection settings.
type StreamConfig struct {
	MaxReconnects     int           `mapstructure:"max_reconnects"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	MaxMessageSize    int64         `mapstructure:"max_message_size"`
}

// SyncConfig holds orchestrator settings.
type SyncConfig struct {
	EnableRealtime    bool          `mapstructure:"enable_realtime"`
	BalanceInterval   time.Duration `mapstructure:"balance_interval"`
	ContractInterval  time.Duration `mapstructure:"contract_interval"`
	ItemDelay         time.Duration `mapstructure:"item_delay"` // negative disables pacing
	PriorityCount     int           `mapstructure:"priority_count"`
	PriorityAddresses []string      `mapstructure:"priority_addresses"`
	PriorityContracts []string      `mapstructure:"priority_contracts"`
	Denom             string        `mapstructure:"denom"`
	CacheMaxAge       time.Duration `mapstructure:"cache_max_age"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	Exporter       string `mapstructure:"exporter"` // zipkin, otlp-grpc, otlp-http, stdout
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// HealthConfig holds the health server settings.
type HealthConfig struct {
	Port int `mapstructure:"port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("CHAINSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, apperror.New(apperror.CodeConfigurationError,
				apperror.WithMessage("failed to read config"), apperror.WithCause(err))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithMessage("failed to unmarshal config"), apperror.WithCause(err))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	_ = v.BindEnv("app.name", "CHAINSYNC_APP_NAME", "SERVICE_NAME")
	_ = v.BindEnv("app.environment", "CHAINSYNC_ENVIRONMENT", "ENVIRONMENT")
	_ = v.BindEnv("app.log_level", "CHAINSYNC_LOG_LEVEL", "LOG_LEVEL")

	// Endpoints
	_ = v.BindEnv("endpoints.query", "CHAINSYNC_QUERY_ENDPOINTS")
	_ = v.BindEnv("endpoints.api", "CHAINSYNC_API_ENDPOINTS")
	_ = v.BindEnv("endpoints.websocket", "CHAINSYNC_WS_ENDPOINTS")

	// Sync
	_ = v.BindEnv("sync.priority_addresses", "CHAINSYNC_PRIORITY_ADDRESSES")
	_ = v.BindEnv("sync.priority_contracts", "CHAINSYNC_PRIORITY_CONTRACTS")
	_ = v.BindEnv("sync.enable_realtime", "CHAINSYNC_ENABLE_REALTIME")

	// Telemetry
	_ = v.BindEnv("telemetry.enabled", "CHAINSYNC_OTEL_ENABLED", "OTEL_ENABLED")
	_ = v.BindEnv("telemetry.service_name", "CHAINSYNC_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	_ = v.BindEnv("telemetry.otlp_endpoint", "CHAINSYNC_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "chainsync")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("endpoints.query", []string{"https://rest.sei-apis.com", "https://sei-rest.publicnode.com"})
	v.SetDefault("endpoints.api", []string{"https://sei-api.polkachu.com"})
	v.SetDefault("endpoints.websocket", []string{"wss://rpc.sei-apis.com/websocket", "wss://sei-rpc.publicnode.com/websocket"})
	v.SetDefault("endpoints.probe_timeout", "5s")
	v.SetDefault("endpoints.health_ttl", "5m")

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", "1s")
	v.SetDefault("retry.max_delay", "10s")
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.fallback_attempts", 2)
	v.SetDefault("retry.cache_ttl", "5m")
	v.SetDefault("retry.rate_limit_wait", "5s")

	v.SetDefault("stream.max_reconnects", 5)
	v.SetDefault("stream.heartbeat_interval", "30s")
	v.SetDefault("stream.connect_timeout", "10s")
	v.SetDefault("stream.max_message_size", 1<<20)

	v.SetDefault("sync.enable_realtime", true)
	v.SetDefault("sync.balance_interval", "30s")
	v.SetDefault("sync.contract_interval", "60s")
	v.SetDefault("sync.item_delay", "100ms")
	v.SetDefault("sync.priority_count", 3)
	v.SetDefault("sync.denom", "usei")
	v.SetDefault("sync.cache_max_age", "1h")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "chainsync")
	v.SetDefault("telemetry.exporter", "zipkin")
	v.SetDefault("telemetry.prometheus_port", 9090)

	v.SetDefault("health.port", 8081)
}

var bech32Address = regexp.MustCompile(`^[a-z]{1,83}1[02-9ac-hj-np-z]{38,58}$`)

// IsValidAddress accepts bech32 account or contract addresses and EVM hex
// addresses.
func IsValidAddress(addr string) bool {
	return bech32Address.MatchString(addr) || common.IsHexAddress(addr)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return apperror.New(apperror.CodeConfigurationError, apperror.WithMessage(fmt.Sprintf(format, args...)))
	}

	if len(c.Endpoints.Query) == 0 {
		return invalid("endpoints.query cannot be empty")
	}
	if c.Sync.EnableRealtime && len(c.Endpoints.WebSocket) == 0 {
		return invalid("endpoints.websocket cannot be empty when sync.enable_realtime is set")
	}
	for _, ep := range c.Endpoints.WebSocket {
		if !strings.HasPrefix(ep, "ws://") && !strings.HasPrefix(ep, "wss://") {
			return invalid("invalid websocket endpoint: %s", ep)
		}
	}
	if c.Retry.MaxAttempts < 1 {
		return invalid("retry.max_attempts must be at least 1")
	}
	if c.Retry.Multiplier < 1 {
		return invalid("retry.multiplier must be at least 1")
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		return invalid("retry delays must satisfy 0 < base_delay <= max_delay")
	}
	if c.Sync.BalanceInterval <= 0 || c.Sync.ContractInterval <= 0 {
		return invalid("sync intervals must be positive")
	}
	for _, a := range c.Sync.PriorityAddresses {
		if !IsValidAddress(a) {
			return invalid("invalid sync.priority_addresses entry: %s", a)
		}
	}
	for _, a := range c.Sync.PriorityContracts {
		if !IsValidAddress(a) {
			return invalid("invalid sync.priority_contracts entry: %s", a)
		}
	}
	return nil
}
