package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Storage   StorageConfig
	Printing  PrintingConfig
	Rates     RatesConfig
	Events    EventsConfig
	Telemetry TelemetryConfig
	Billing   BillingConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres or sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	SQLitePath      string
	AutoMigrate     bool
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxUploadSize  int64
	TrustedProxies []string
	// RateLimit is the sustained per-client request rate; zero disables limiting
	RateLimit      float64
	RateLimitBurst int

	// SwaggerEnabled serves the API docs at /swagger; SwaggerAllowedIPs
	// restricts them to the listed IPs or CIDRs when set
	SwaggerEnabled    bool
	SwaggerAllowedIPs []string
}

// StorageConfig holds object storage settings for signed invoices
type StorageConfig struct {
	Driver          string // s3 or stub
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
	KeyPrefix       string
	UsePathStyle    bool
}

// PrintingConfig holds document rendering settings
type PrintingConfig struct {
	Renderer    string // chromedp or html
	ChromePath  string
	RemoteURL   string // ws:// URL of a shared headless Chrome
	NoSandbox   bool
	PaperSize   string
	Timeout     time.Duration
	FirmName    string
	FirmAddress string
}

// RatesConfig holds the exchange-rate suggestion provider settings
type RatesConfig struct {
	ProviderURL       string
	APIKey            string
	Timeout           time.Duration
	CacheTTL          time.Duration
	RequestsPerMinute int
}

// EventsConfig holds the in-process event bus settings
type EventsConfig struct {
	Workers        int
	QueueSize      int
	HandlerTimeout time.Duration
	IdempotencyTTL time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	DBTraceEnabled    bool    // Enable database query tracing (otelgorm)
	SlowQueryThresh   time.Duration
	MetricsEnabled    bool
	MetricsInterval   time.Duration
	LogsEnabled       bool // export zap logs over OTLP as well as to Log.Output

	// Continuous profiling (Pyroscope)
	ProfilingEnabled  bool
	ProfilerAddress   string
	ProfilerAuthUser  string
	ProfilerAuthToken string
}

// BillingConfig holds the firm's invoicing rules
type BillingConfig struct {
	Offices             map[string]string // billing location -> office code
	DefaultOfficeCode   string
	ReferenceTimezone   string
	DefaultCurrency     string
	ExpenseCurrency     string
	BaseCurrency        string
	SupportedCurrencies []string
	NumberRetryAttempts int
	PaymentTermsDays    int
}

// Location loads the reference timezone
func (b BillingConfig) Location() (*time.Location, error) {
	return time.LoadLocation(b.ReferenceTimezone)
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with LEX_ prefix (e.g., LEX_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("LEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return build(v)
}

func build(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			SQLitePath:      v.GetString("database.sqlite_path"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxUploadSize:     v.GetInt64("http.max_upload_size"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
			RateLimit:         v.GetFloat64("http.rate_limit"),
			RateLimitBurst:    v.GetInt("http.rate_limit_burst"),
			SwaggerEnabled:    v.GetBool("http.swagger_enabled"),
			SwaggerAllowedIPs: v.GetStringSlice("http.swagger_allowed_ips"),
		},
		Storage: StorageConfig{
			Driver:          v.GetString("storage.driver"),
			Endpoint:        v.GetString("storage.endpoint"),
			Region:          v.GetString("storage.region"),
			Bucket:          v.GetString("storage.bucket"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			PublicBaseURL:   v.GetString("storage.public_base_url"),
			KeyPrefix:       v.GetString("storage.key_prefix"),
			UsePathStyle:    v.GetBool("storage.use_path_style"),
		},
		Printing: PrintingConfig{
			Renderer:    v.GetString("printing.renderer"),
			ChromePath:  v.GetString("printing.chrome_path"),
			RemoteURL:   v.GetString("printing.remote_url"),
			NoSandbox:   v.GetBool("printing.no_sandbox"),
			PaperSize:   v.GetString("printing.paper_size"),
			Timeout:     v.GetDuration("printing.timeout"),
			FirmName:    v.GetString("printing.firm_name"),
			FirmAddress: v.GetString("printing.firm_address"),
		},
		Rates: RatesConfig{
			ProviderURL:       v.GetString("rates.provider_url"),
			APIKey:            v.GetString("rates.api_key"),
			Timeout:           v.GetDuration("rates.timeout"),
			CacheTTL:          v.GetDuration("rates.cache_ttl"),
			RequestsPerMinute: v.GetInt("rates.requests_per_minute"),
		},
		Events: EventsConfig{
			Workers:        v.GetInt("events.workers"),
			QueueSize:      v.GetInt("events.queue_size"),
			HandlerTimeout: v.GetDuration("events.handler_timeout"),
			IdempotencyTTL: v.GetDuration("events.idempotency_ttl"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			SlowQueryThresh:   v.GetDuration("telemetry.slow_query_threshold"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			ProfilerAddress:   v.GetString("telemetry.profiler_address"),
			ProfilerAuthUser:  v.GetString("telemetry.profiler_auth_user"),
			ProfilerAuthToken: v.GetString("telemetry.profiler_auth_token"),
		},
		Billing: BillingConfig{
			Offices:             v.GetStringMapString("billing.offices"),
			DefaultOfficeCode:   v.GetString("billing.default_office_code"),
			ReferenceTimezone:   v.GetString("billing.reference_timezone"),
			DefaultCurrency:     v.GetString("billing.default_currency"),
			ExpenseCurrency:     v.GetString("billing.expense_currency"),
			BaseCurrency:        v.GetString("billing.base_currency"),
			SupportedCurrencies: v.GetStringSlice("billing.supported_currencies"),
			NumberRetryAttempts: v.GetInt("billing.number_retry_attempts"),
			PaymentTermsDays:    v.GetInt("billing.payment_terms_days"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "lexdesk-billing"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "lexdesk"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "lexdesk.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxUploadSize == 0 {
		cfg.HTTP.MaxUploadSize = 20 << 20 // 20MB
	}
	if cfg.HTTP.RateLimit > 0 && cfg.HTTP.RateLimitBurst <= 0 {
		cfg.HTTP.RateLimitBurst = int(cfg.HTTP.RateLimit * 2)
		if cfg.HTTP.RateLimitBurst < 1 {
			cfg.HTTP.RateLimitBurst = 1
		}
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "stub"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "ap-south-1"
	}
	if cfg.Storage.KeyPrefix == "" {
		cfg.Storage.KeyPrefix = "signed"
	}
	if cfg.Printing.Renderer == "" {
		cfg.Printing.Renderer = "chromedp"
	}
	if cfg.Printing.PaperSize == "" {
		cfg.Printing.PaperSize = "A4"
	}
	if cfg.Printing.FirmName == "" {
		cfg.Printing.FirmName = "LexDesk"
	}
	if cfg.Printing.Timeout == 0 {
		cfg.Printing.Timeout = 30 * time.Second
	}
	if cfg.Rates.Timeout == 0 {
		cfg.Rates.Timeout = 5 * time.Second
	}
	if cfg.Rates.RequestsPerMinute == 0 {
		cfg.Rates.RequestsPerMinute = 60
	}
	if cfg.Events.Workers <= 0 {
		cfg.Events.Workers = 2
	}
	if cfg.Events.QueueSize <= 0 {
		cfg.Events.QueueSize = 256
	}
	if cfg.Events.HandlerTimeout <= 0 {
		cfg.Events.HandlerTimeout = 10 * time.Second
	}
	if cfg.Events.IdempotencyTTL <= 0 {
		cfg.Events.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.Rates.CacheTTL == 0 {
		cfg.Rates.CacheTTL = time.Hour
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.SlowQueryThresh <= 0 {
		cfg.Telemetry.SlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Telemetry.MetricsInterval <= 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if len(cfg.Billing.Offices) == 0 {
		cfg.Billing.Offices = map[string]string{
			"mumbai":    "M",
			"delhi":     "D",
			"bengaluru": "B",
			"chennai":   "C",
		}
	}
	if cfg.Billing.DefaultOfficeCode == "" {
		cfg.Billing.DefaultOfficeCode = "M"
	}
	if cfg.Billing.ReferenceTimezone == "" {
		cfg.Billing.ReferenceTimezone = "Asia/Kolkata"
	}
	if cfg.Billing.DefaultCurrency == "" {
		cfg.Billing.DefaultCurrency = "INR"
	}
	if cfg.Billing.ExpenseCurrency == "" {
		cfg.Billing.ExpenseCurrency = "INR"
	}
	if cfg.Billing.BaseCurrency == "" {
		cfg.Billing.BaseCurrency = "INR"
	}
	if len(cfg.Billing.SupportedCurrencies) == 0 {
		cfg.Billing.SupportedCurrencies = []string{"INR", "USD", "EUR", "GBP", "SGD", "AED"}
	}
	if cfg.Billing.NumberRetryAttempts == 0 {
		cfg.Billing.NumberRetryAttempts = 3
	}
	if cfg.Billing.PaymentTermsDays == 0 {
		cfg.Billing.PaymentTermsDays = 30
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.App.Env == "production" {
		if c.Database.Driver != "postgres" {
			return fmt.Errorf("database.driver must be postgres in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Storage.Driver != "s3" {
			return fmt.Errorf("storage.driver must be s3 in production")
		}
	}

	switch c.Storage.Driver {
	case "stub":
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("storage.driver must be s3 or stub, got %q", c.Storage.Driver)
	}

	switch c.Printing.Renderer {
	case "chromedp", "html":
	default:
		return fmt.Errorf("printing.renderer must be chromedp or html, got %q", c.Printing.Renderer)
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	if c.Telemetry.ProfilingEnabled && c.Telemetry.ProfilerAddress == "" {
		return fmt.Errorf("telemetry.profiler_address is required when profiling is enabled")
	}

	if _, err := c.Billing.Location(); err != nil {
		return fmt.Errorf("billing.reference_timezone: %w", err)
	}
	if c.Billing.NumberRetryAttempts < 1 {
		return fmt.Errorf("billing.number_retry_attempts must be at least 1")
	}
	if c.Billing.PaymentTermsDays < 0 {
		return fmt.Errorf("billing.payment_terms_days cannot be negative")
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
