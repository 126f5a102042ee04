package domain

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete riskscore configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" yaml:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier" yaml:"tier"`

	// Batch scoring settings
	Scoring ScoringConfig `json:"scoring" yaml:"scoring"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" yaml:"repository"`
	Cache      CacheConfig      `json:"cache" yaml:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" yaml:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
}

// ScoringConfig holds batch scoring and reporting settings.
type ScoringConfig struct {
	// Workers bounds parallel scoring of a batch
	Workers int `json:"workers" yaml:"workers"`

	// TopN is the number of highest-risk records reported
	TopN int `json:"topN" yaml:"topN"`

	// OutputPath is where the scored table is written
	OutputPath string `json:"outputPath" yaml:"outputPath"`

	// Tenants the async worker consumes ingested transactions for
	Tenants []string `json:"tenants" yaml:"tenants"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port"`
	ReadTimeout  int    `json:"readTimeout" yaml:"readTimeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" yaml:"writeTimeout"` // seconds

	// CORSOrigins lists browser origins allowed to call the API.
	// Empty allows any origin without credentials.
	CORSOrigins []string `json:"corsOrigins" yaml:"corsOrigins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings. Spans are exported over
// OTLP/gRPC when Enabled is set.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	ServiceName string `json:"serviceName" yaml:"serviceName"`

	// Endpoint is the collector host:port. Empty uses the OTLP default
	// or OTEL_EXPORTER_OTLP_ENDPOINT.
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	Insecure bool   `json:"insecure" yaml:"insecure"`

	// SampleRatio is the fraction of root traces kept, in (0, 1].
	SampleRatio float64 `json:"sampleRatio" yaml:"sampleRatio"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// Default values shared by the CLI and the server.
const (
	DefaultTopN       = 10
	DefaultWorkers    = 8
	DefaultOutputPath = "reports/tables/transaction_risk_scores.csv"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Scoring: ScoringConfig{
			Workers:    DefaultWorkers,
			TopN:       DefaultTopN,
			OutputPath: DefaultOutputPath,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./riskscore.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			SummaryTTL:   time.Hour,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "riskscore",
			SampleRatio: 1,
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "riskscore",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       5 * time.Minute,
		SummaryTTL:     time.Hour,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	cfg.Tracing.Endpoint = "localhost:4317"
	cfg.Tracing.Insecure = true
	return cfg
}

// LoadConfig builds the configuration in three layers: tier defaults
// (RISKSCORE_TIER), an optional YAML file, then RISKSCORE_* environment
// overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if os.Getenv("RISKSCORE_TIER") == string(TierPro) {
		cfg = ProConfig()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("RISKSCORE_DB_DRIVER"); v != "" {
		c.Repository.Driver = v
	}
	if v := os.Getenv("RISKSCORE_SQLITE_PATH"); v != "" {
		c.Repository.SQLitePath = v
	}
	if v := os.Getenv("RISKSCORE_POSTGRES_HOST"); v != "" {
		c.Repository.PostgresHost = v
	}
	if v := os.Getenv("RISKSCORE_POSTGRES_USER"); v != "" {
		c.Repository.PostgresUser = v
	}
	if v := os.Getenv("RISKSCORE_POSTGRES_PASSWORD"); v != "" {
		c.Repository.PostgresPassword = v
	}
	if v := os.Getenv("RISKSCORE_REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv("RISKSCORE_NATS_URL"); v != "" {
		c.EventBus.NATSUrl = v
	}
	if v := os.Getenv("RISKSCORE_OUTPUT"); v != "" {
		c.Scoring.OutputPath = v
	}
	if v := os.Getenv("RISKSCORE_TENANTS"); v != "" {
		c.Scoring.Tenants = strings.Split(v, ",")
	}
	if v := os.Getenv("RISKSCORE_CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("RISKSCORE_TRACING_ENABLED"); v != "" {
		c.Tracing.Enabled = v == "true"
	}
	if v := os.Getenv("RISKSCORE_OTLP_ENDPOINT"); v != "" {
		c.Tracing.Endpoint = v
	}
	if os.Getenv("RISKSCORE_DEBUG") == "true" {
		c.Logging.Level = "debug"
	}

	ints := []struct {
		env string
		dst *int
	}{
		{"RISKSCORE_PORT", &c.Server.Port},
		{"RISKSCORE_WORKERS", &c.Scoring.Workers},
		{"RISKSCORE_TOP_N", &c.Scoring.TopN},
	}
	for _, e := range ints {
		v := os.Getenv(e.env)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", e.env, v, err)
		}
		*e.dst = n
	}
	return nil
}
