// Package config provides configuration management for the research registry service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// Venue creation policies applied when an imported entry names a journal or
// conference that is not registered yet.
const (
	// VenuePolicyCreate registers the missing venue on the fly.
	VenuePolicyCreate = "create"
	// VenuePolicyFail fails the entry.
	VenuePolicyFail = "fail"
)

// envPrefix is the prefix of every environment variable read by Load.
const envPrefix = "RESREG"

// Config holds all configuration for the research registry service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Temporal contains Temporal workflow orchestration settings.
	Temporal TemporalConfig `mapstructure:"temporal"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Kafka contains Kafka publisher settings for the outbox pattern.
	Kafka KafkaConfig `mapstructure:"kafka"`
	// Outbox contains outbox relay settings.
	Outbox OutboxConfig `mapstructure:"outbox"`
	// Import contains bibliography import settings.
	Import ImportConfig `mapstructure:"import"`
	// Bibliometrics contains the indicator refresh settings.
	Bibliometrics BibliometricsConfig `mapstructure:"bibliometrics"`
	// Storage contains publication file storage settings.
	Storage StorageConfig `mapstructure:"storage"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
	// MaxImportBytes caps uploaded bibliography files.
	MaxImportBytes int64 `mapstructure:"max_import_bytes"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password (loaded from RESREG_DATABASE_PASSWORD).
	Password string `mapstructure:"-"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool (default: 20).
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open (default: 2).
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationAutoRun enables automatic migration on startup (default: false).
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// TemporalConfig holds Temporal workflow configuration.
type TemporalConfig struct {
	// Enabled controls whether asynchronous jobs are available.
	Enabled bool `mapstructure:"enabled"`
	// HostPort is the Temporal server address.
	HostPort string `mapstructure:"host_port"`
	// Namespace is the Temporal namespace.
	Namespace string `mapstructure:"namespace"`
	// TaskQueue is the task queue name for registry jobs.
	TaskQueue string `mapstructure:"task_queue"`
	// ImportChunkSize is the number of entries an import job stores per activity.
	ImportChunkSize int `mapstructure:"import_chunk_size"`
	// MaxConcurrentActivities bounds activity executions on one worker.
	MaxConcurrentActivities int `mapstructure:"max_concurrent_activities"`
	// MaxConcurrentWorkflowTasks bounds workflow task executions on one worker.
	MaxConcurrentWorkflowTasks int `mapstructure:"max_concurrent_workflow_tasks"`
	// TLS secures the connection to a remote Temporal cluster.
	TLS TemporalTLSConfig `mapstructure:"tls"`
}

// TemporalTLSConfig holds the client certificate settings for Temporal.
type TemporalTLSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	CertPath   string `mapstructure:"cert_path"`
	KeyPath    string `mapstructure:"key_path"`
	CACertPath string `mapstructure:"ca_cert_path"`
	// ServerName overrides the name checked against the server certificate.
	ServerName string `mapstructure:"server_name"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr, file path).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
}

// KafkaConfig holds Kafka publisher settings for the outbox pattern.
type KafkaConfig struct {
	// Enabled controls whether Kafka publishing is active.
	Enabled bool `mapstructure:"enabled"`
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// Topic is the Kafka topic to publish outbox events to.
	Topic string `mapstructure:"topic"`
	// BatchSize is the maximum number of messages to batch before sending.
	BatchSize int `mapstructure:"batch_size"`
	// BatchTimeout is the maximum time to wait for a batch to fill before sending.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// OutboxConfig holds outbox relay settings.
type OutboxConfig struct {
	// PollInterval is how often the relay polls for pending events.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// BatchSize is the number of events to claim per poll.
	BatchSize int `mapstructure:"batch_size"`
	// MaxRetries is the number of attempts after which an event is left alone.
	MaxRetries int `mapstructure:"max_retries"`
}

// ImportConfig holds bibliography import and name matching settings.
type ImportConfig struct {
	// JournalPolicy is applied to unknown journals (create, fail).
	JournalPolicy string `mapstructure:"journal_policy"`
	// ConferencePolicy is applied to unknown conferences (create, fail).
	ConferencePolicy string `mapstructure:"conference_policy"`
	// SimilarityMatching enables fuzzy author resolution after exact lookup.
	SimilarityMatching bool `mapstructure:"similarity_matching"`
	// NameThreshold is the minimum name similarity (0.0-1.0].
	NameThreshold float64 `mapstructure:"name_threshold"`
	// TitleThreshold is the minimum title similarity (0.0-1.0].
	TitleThreshold float64 `mapstructure:"title_threshold"`
	// RejectDuplicates fails entries that match an existing publication.
	RejectDuplicates bool `mapstructure:"reject_duplicates"`
}

// BibliometricsConfig holds the platform clients and refresh schedule.
type BibliometricsConfig struct {
	// Schedule is a standard cron expression; empty disables scheduled refresh.
	Schedule string `mapstructure:"schedule"`
	// Concurrency bounds the number of persons refreshed at once.
	Concurrency int `mapstructure:"concurrency"`
	// Scopus contains Elsevier Scopus API settings.
	Scopus PlatformConfig `mapstructure:"scopus"`
	// OpenAlex contains OpenAlex API settings.
	OpenAlex PlatformConfig `mapstructure:"openalex"`
}

// PlatformConfig holds configuration for a single bibliometric platform.
type PlatformConfig struct {
	// Enabled controls whether this platform is queried.
	Enabled bool `mapstructure:"enabled"`
	// APIKey is the API key (loaded from environment variable, e.g. RESREG_BIBLIOMETRICS_SCOPUS_API_KEY).
	APIKey string `mapstructure:"-"`
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the timeout for API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// Mailto is sent to polite-pool APIs that ask for a contact address.
	Mailto string `mapstructure:"mailto"`
}

// StorageConfig holds publication file storage settings.
type StorageConfig struct {
	// Root is the directory holding publication files.
	Root string `mapstructure:"root"`
	// MaxFileSize caps stored and downloaded files, in bytes.
	MaxFileSize int64 `mapstructure:"max_file_size"`
	// DownloadTimeout bounds remote file downloads.
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
	// AllowPrivateNetworks permits downloads from private addresses (tests only).
	AllowPrivateNetworks bool `mapstructure:"allow_private_networks"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// MetricsAddress returns the metrics server address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// CreateJournals reports whether unknown journals are created on import.
func (c *ImportConfig) CreateJournals() bool {
	return strings.EqualFold(c.JournalPolicy, VenuePolicyCreate)
}

// CreateConferences reports whether unknown conferences are created on import.
func (c *ImportConfig) CreateConferences() bool {
	return strings.EqualFold(c.ConferencePolicy, VenuePolicyCreate)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/research-registry-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
// These fields are tagged with mapstructure:"-" to prevent loading from config files.
func loadSecrets(cfg *Config) {
	cfg.Database.Password = os.Getenv(envPrefix + "_DATABASE_PASSWORD")
	cfg.Bibliometrics.Scopus.APIKey = os.Getenv(envPrefix + "_BIBLIOMETRICS_SCOPUS_API_KEY")
	cfg.Bibliometrics.OpenAlex.APIKey = os.Getenv(envPrefix + "_BIBLIOMETRICS_OPENALEX_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.max_import_bytes", 16<<20)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "resreg")
	v.SetDefault("database.name", "research_registry")
	// Use RESREG_DATABASE_SSL_MODE=disable for local development.
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_auto_run", false)

	// Temporal defaults
	v.SetDefault("temporal.enabled", false)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "research-registry")
	v.SetDefault("temporal.task_queue", "research-registry-jobs")
	v.SetDefault("temporal.import_chunk_size", 25)
	v.SetDefault("temporal.max_concurrent_activities", 20)
	v.SetDefault("temporal.max_concurrent_workflow_tasks", 10)
	v.SetDefault("temporal.tls.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "events.outbox.research_registry")
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", "10ms")

	// Outbox relay defaults
	v.SetDefault("outbox.poll_interval", "1s")
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.max_retries", 5)

	// Import defaults
	v.SetDefault("import.journal_policy", VenuePolicyFail)
	v.SetDefault("import.conference_policy", VenuePolicyFail)
	v.SetDefault("import.similarity_matching", true)
	v.SetDefault("import.name_threshold", 0.85)
	v.SetDefault("import.title_threshold", 0.9)
	v.SetDefault("import.reject_duplicates", true)

	// Bibliometrics defaults
	// API keys are loaded exclusively from environment variables (see loadSecrets).
	v.SetDefault("bibliometrics.schedule", "0 3 * * 0")
	v.SetDefault("bibliometrics.concurrency", 4)
	v.SetDefault("bibliometrics.scopus.enabled", false)
	v.SetDefault("bibliometrics.scopus.base_url", "https://api.elsevier.com/content")
	v.SetDefault("bibliometrics.scopus.timeout", "30s")
	v.SetDefault("bibliometrics.scopus.rate_limit", 5.0)
	v.SetDefault("bibliometrics.openalex.enabled", true)
	v.SetDefault("bibliometrics.openalex.base_url", "https://api.openalex.org")
	v.SetDefault("bibliometrics.openalex.timeout", "30s")
	v.SetDefault("bibliometrics.openalex.rate_limit", 10.0)

	// Storage defaults
	v.SetDefault("storage.root", "data/files")
	v.SetDefault("storage.max_file_size", 50<<20)
	v.SetDefault("storage.download_timeout", "60s")
	v.SetDefault("storage.allow_private_networks", false)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	if tls := c.Temporal.TLS; tls.Enabled && (tls.CertPath == "") != (tls.KeyPath == "") {
		return fmt.Errorf("temporal tls needs both cert_path and key_path")
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	for name, policy := range map[string]string{
		"journal_policy":    c.Import.JournalPolicy,
		"conference_policy": c.Import.ConferencePolicy,
	} {
		switch strings.ToLower(policy) {
		case VenuePolicyCreate, VenuePolicyFail:
		default:
			return fmt.Errorf("invalid import %s: %q", name, policy)
		}
	}
	if c.Import.NameThreshold <= 0 || c.Import.NameThreshold > 1 {
		return fmt.Errorf("import name_threshold must be in (0, 1]")
	}
	if c.Import.TitleThreshold <= 0 || c.Import.TitleThreshold > 1 {
		return fmt.Errorf("import title_threshold must be in (0, 1]")
	}

	if c.Bibliometrics.Schedule != "" {
		if _, err := cron.ParseStandard(c.Bibliometrics.Schedule); err != nil {
			return fmt.Errorf("invalid bibliometrics schedule %q: %w", c.Bibliometrics.Schedule, err)
		}
	}
	if c.Bibliometrics.Scopus.Enabled && c.Bibliometrics.Scopus.APIKey == "" {
		return fmt.Errorf("scopus requires %s_BIBLIOMETRICS_SCOPUS_API_KEY to be set", envPrefix)
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when kafka is enabled")
	}

	if c.Storage.Root == "" {
		return fmt.Errorf("storage root is required")
	}

	return nil
}
