// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.cardsage/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: provider, completion model, embedder model
//   - Storage: PostgreSQL connection (see storage.go)
//   - Catalog: table name, column mapping, distance metric, top-k
//   - History: token budget for the sliding conversation window
//   - Tracing: OTLP exporter endpoint (optional)
//
// Security: the database password is never logged; MarshalJSON masks it.
// Validation lives in validation.go with sentinel errors for errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	// DefaultEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 supports truncation to 768 dimensions, which is
	// what the pgvector schema uses (see db/migrations).
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultModelName is the default completion model.
	DefaultModelName = "gemini-2.5-flash"

	// DefaultTopK is the number of catalog documents retrieved per question.
	DefaultTopK = 10

	// DefaultHistoryTokenBudget caps the rendered conversation history.
	DefaultHistoryTokenBudget = 8000
)

// Distance metric identifiers used in Config.DistanceMetric.
const (
	MetricCosine       = "cosine"
	MetricL2           = "l2"
	MetricInnerProduct = "ip"
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON.
type Config struct {
	// AI model configuration
	ModelName     string `mapstructure:"model_name" json:"model_name"`
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// Catalog (vector store) configuration
	CatalogTable       string `mapstructure:"catalog_table" json:"catalog_table"`
	ColumnID           string `mapstructure:"column_id" json:"column_id"`
	ColumnContent      string `mapstructure:"column_content" json:"column_content"`
	ColumnEmbedding    string `mapstructure:"column_embedding" json:"column_embedding"`
	ColumnMetadata     string `mapstructure:"column_metadata" json:"column_metadata"`
	DistanceMetric     string `mapstructure:"distance_metric" json:"distance_metric"`
	TopK               int    `mapstructure:"top_k" json:"top_k"`
	HistoryTokenBudget int    `mapstructure:"history_token_budget" json:"history_token_budget"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Serve configuration
	RateBurst  int  `mapstructure:"rate_burst" json:"rate_burst"`
	TrustProxy bool `mapstructure:"trust_proxy" json:"trust_proxy"`

	// Ingest configuration
	PriceSourceURL string `mapstructure:"price_source_url" json:"price_source_url"`

	// Tracing configuration (see observability package)
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// TracingConfig configures the optional OTLP trace exporter.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	AgentHost   string `mapstructure:"agent_host" json:"agent_host"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".cardsage")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Missing config file is fine, defaults carry a local dev setup.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings when present.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("model_name", DefaultModelName)
	viper.SetDefault("embedder_model", DefaultEmbedderModel)

	// Catalog defaults (matching db/migrations)
	viper.SetDefault("catalog_table", "cards")
	viper.SetDefault("column_id", "id")
	viper.SetDefault("column_content", "content")
	viper.SetDefault("column_embedding", "embedding")
	viper.SetDefault("column_metadata", "metadata")
	viper.SetDefault("distance_metric", MetricCosine)
	viper.SetDefault("top_k", DefaultTopK)
	viper.SetDefault("history_token_budget", DefaultHistoryTokenBudget)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "cardsage")
	viper.SetDefault("postgres_password", "cardsage_dev_password")
	viper.SetDefault("postgres_db_name", "cardsage")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Serve defaults
	viper.SetDefault("rate_burst", 60)
	viper.SetDefault("trust_proxy", false)

	// Tracing defaults (disabled unless configured)
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.agent_host", "localhost:4318")
	viper.SetDefault("tracing.environment", "dev")
	viper.SetDefault("tracing.service_name", "cardsage")
}

// bindEnvVariables binds environment overrides explicitly.
//
// NOTE: GEMINI_API_KEY is read directly by Genkit, not via Viper. The
// per-request caller credential is forwarded by the API layer and never
// touches configuration.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("model_name", "CARDSAGE_MODEL_NAME")
	mustBind("embedder_model", "CARDSAGE_EMBEDDER_MODEL")
	mustBind("catalog_table", "CARDSAGE_CATALOG_TABLE")
	mustBind("distance_metric", "CARDSAGE_DISTANCE_METRIC")
	mustBind("top_k", "CARDSAGE_TOP_K")
	mustBind("rate_burst", "CARDSAGE_RATE_BURST")
	mustBind("trust_proxy", "CARDSAGE_TRUST_PROXY")
	mustBind("price_source_url", "CARDSAGE_PRICE_SOURCE_URL")
	mustBind("tracing.enabled", "CARDSAGE_TRACING_ENABLED")
	mustBind("tracing.agent_host", "CARDSAGE_TRACING_AGENT_HOST")
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Secrets of 8 characters or
// fewer are fully masked to prevent substring matching; longer secrets show
// the first and last two characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
// When adding new sensitive fields, update this method.
func (c *Config) MarshalJSON() ([]byte, error) {
	type alias Config // avoid recursion
	masked := alias(*c)
	masked.PostgresPassword = maskSecret(c.PostgresPassword)
	return json.Marshal(masked)
}
