package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Payment       PaymentConfig       `mapstructure:"payment"`
	Stripe        StripeConfig        `mapstructure:"stripe"`
	PayPal        PayPalConfig        `mapstructure:"paypal"`
	Command       CommandConfig       `mapstructure:"command"`
	Idempotency   IdempotencyConfig   `mapstructure:"idempotency"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	CORS              CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// PaymentConfig tunes the guard around every provider call.
type PaymentConfig struct {
	ProviderTimeout        time.Duration `mapstructure:"provider_timeout"`
	RetryAttempts          uint          `mapstructure:"retry_attempts"`
	RetryDelay             time.Duration `mapstructure:"retry_delay"`
	RetryMaxDelay          time.Duration `mapstructure:"retry_max_delay"`
	CircuitBreakerRequests uint32        `mapstructure:"circuit_breaker_requests"`
	CircuitBreakerRatio    float64       `mapstructure:"circuit_breaker_ratio"`
	CircuitBreakerInterval time.Duration `mapstructure:"circuit_breaker_interval"`
	CircuitBreakerTimeout  time.Duration `mapstructure:"circuit_breaker_timeout"`
	CircuitBreakerHalfOpen uint32        `mapstructure:"circuit_breaker_half_open"`
	// UseMockProviders swaps Stripe and PayPal for simulated strategies.
	UseMockProviders bool `mapstructure:"use_mock_providers"`
}

type StripeConfig struct {
	SecretKey string `mapstructure:"secret_key"`
	// APIURL overrides the Stripe API base, e.g. for stripe-mock.
	APIURL string `mapstructure:"api_url"`
}

type PayPalConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	BaseURL      string `mapstructure:"base_url"`
	ReturnURL    string `mapstructure:"return_url"`
	CancelURL    string `mapstructure:"cancel_url"`
}

// Configured reports whether both PayPal credentials are present.
func (c PayPalConfig) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

type CommandConfig struct {
	MaxHistory  int    `mapstructure:"max_history"`
	AuditStream string `mapstructure:"audit_stream"`
}

type IdempotencyConfig struct {
	TTL     time.Duration `mapstructure:"ttl"`
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

type WorkerConfig struct {
	BatchSize     int64         `mapstructure:"batch_size"`
	BlockDuration time.Duration `mapstructure:"block_duration"`
	ConsumerGroup string        `mapstructure:"consumer_group"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("PAYMENTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Provider credentials are also read from their conventional variable names.
	_ = v.BindEnv("stripe.secret_key", "PAYMENTS_STRIPE_SECRET_KEY", "STRIPE_SECRET_KEY")
	_ = v.BindEnv("paypal.client_id", "PAYMENTS_PAYPAL_CLIENT_ID", "PAYPAL_CLIENT_ID")
	_ = v.BindEnv("paypal.client_secret", "PAYMENTS_PAYPAL_CLIENT_SECRET", "PAYPAL_CLIENT_SECRET")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/diaspomoney")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}
	if c.Payment.ProviderTimeout <= 0 {
		errs = append(errs, fmt.Errorf("payment.provider_timeout must be positive"))
	}
	if c.Payment.RetryAttempts == 0 {
		errs = append(errs, fmt.Errorf("payment.retry_attempts must be at least 1"))
	}
	if c.Payment.CircuitBreakerRatio < 0 || c.Payment.CircuitBreakerRatio > 1 {
		errs = append(errs, fmt.Errorf("payment.circuit_breaker_ratio must be between 0 and 1"))
	}
	if c.Command.MaxHistory <= 0 {
		errs = append(errs, fmt.Errorf("command.max_history must be positive"))
	}
	if (c.PayPal.ClientID == "") != (c.PayPal.ClientSecret == "") {
		errs = append(errs, fmt.Errorf("paypal.client_id and paypal.client_secret must be set together"))
	}

	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
		if c.Stripe.SecretKey == "" {
			errs = append(errs, fmt.Errorf("stripe.secret_key required in production"))
		}
		if c.Payment.UseMockProviders {
			errs = append(errs, fmt.Errorf("payment.use_mock_providers is not allowed in production"))
		}
		if strings.HasPrefix(c.Stripe.SecretKey, "sk_test_") {
			errs = append(errs, fmt.Errorf("stripe.secret_key must be a live key in production"))
		}
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.requests_per_minute", 120)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "diaspomoney")
	v.SetDefault("database.database", "diaspomoney")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Payment defaults
	v.SetDefault("payment.provider_timeout", "20s")
	v.SetDefault("payment.retry_attempts", 3)
	v.SetDefault("payment.retry_delay", "200ms")
	v.SetDefault("payment.retry_max_delay", "2s")
	v.SetDefault("payment.circuit_breaker_requests", 10)
	v.SetDefault("payment.circuit_breaker_ratio", 0.6)
	v.SetDefault("payment.circuit_breaker_interval", "60s")
	v.SetDefault("payment.circuit_breaker_timeout", "30s")
	v.SetDefault("payment.circuit_breaker_half_open", 10)
	v.SetDefault("payment.use_mock_providers", false)

	// Provider defaults
	v.SetDefault("paypal.base_url", "https://api-m.sandbox.paypal.com")
	v.SetDefault("paypal.return_url", "http://localhost:3000/payment/success")
	v.SetDefault("paypal.cancel_url", "http://localhost:3000/payment/cancel")

	// Command defaults
	v.SetDefault("command.max_history", 100)
	v.SetDefault("command.audit_stream", "commands:audit")

	// Idempotency defaults
	v.SetDefault("idempotency.ttl", "24h")
	v.SetDefault("idempotency.lock_ttl", "60s")

	// Worker defaults
	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.block_duration", "2s")
	v.SetDefault("worker.consumer_group", "command-auditors")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", false)

	v.SetDefault("instance_id", "payments-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// DatabaseURL renders the connection as a URL, the form golang-migrate expects.
func (c *DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
