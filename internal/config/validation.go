package config

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for configuration validation. Callers use errors.Is()
// to distinguish failures; all map to a 500 ConfigurationError at the
// HTTP boundary.
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidModelName indicates the completion model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidCatalogTable indicates the catalog table name is invalid.
	ErrInvalidCatalogTable = errors.New("invalid catalog table")

	// ErrInvalidColumnMapping indicates a catalog column name is empty.
	ErrInvalidColumnMapping = errors.New("invalid column mapping")

	// ErrInvalidDistanceMetric indicates an unsupported distance metric.
	ErrInvalidDistanceMetric = errors.New("invalid distance metric")

	// ErrInvalidTopK indicates the top-k value is out of range.
	ErrInvalidTopK = errors.New("invalid top-k")

	// ErrInvalidHistoryBudget indicates the history token budget is out of range.
	ErrInvalidHistoryBudget = errors.New("invalid history token budget")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

// Top-k bounds. Retrieval beyond 100 documents has no grounding value and
// only inflates the prompt.
const (
	MinTopK = 1
	MaxTopK = 100
)

// History budget bounds (token estimates, see history package).
const (
	MinHistoryTokenBudget = 100
	MaxHistoryTokenBudget = 100000
)

var validSSLModes = map[string]struct{}{
	"disable":     {},
	"allow":       {},
	"prefer":      {},
	"require":     {},
	"verify-ca":   {},
	"verify-full": {},
}

var validMetrics = map[string]struct{}{
	MetricCosine:       {},
	MetricL2:           {},
	MetricInnerProduct: {},
}

// Validate checks the whole configuration, fail-fast at load time.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name must not be empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model must not be empty", ErrInvalidEmbedderModel)
	}

	if err := c.validateCatalog(); err != nil {
		return err
	}
	return c.validateStorage()
}

// validateCatalog checks table, column mapping, metric and retrieval bounds.
func (c *Config) validateCatalog() error {
	if strings.TrimSpace(c.CatalogTable) == "" {
		return fmt.Errorf("%w: table name must not be empty", ErrInvalidCatalogTable)
	}

	columns := map[string]string{
		"column_id":        c.ColumnID,
		"column_content":   c.ColumnContent,
		"column_embedding": c.ColumnEmbedding,
		"column_metadata":  c.ColumnMetadata,
	}
	for name, value := range columns {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%w: %s must not be empty", ErrInvalidColumnMapping, name)
		}
	}

	if _, ok := validMetrics[c.DistanceMetric]; !ok {
		return fmt.Errorf("%w: %q, must be one of: cosine, l2, ip", ErrInvalidDistanceMetric, c.DistanceMetric)
	}

	if c.TopK < MinTopK || c.TopK > MaxTopK {
		return fmt.Errorf("%w: %d, must be between %d and %d", ErrInvalidTopK, c.TopK, MinTopK, MaxTopK)
	}

	if c.HistoryTokenBudget < MinHistoryTokenBudget || c.HistoryTokenBudget > MaxHistoryTokenBudget {
		return fmt.Errorf("%w: %d, must be between %d and %d",
			ErrInvalidHistoryBudget, c.HistoryTokenBudget, MinHistoryTokenBudget, MaxHistoryTokenBudget)
	}

	return nil
}

// validateStorage checks the PostgreSQL connection settings.
func (c *Config) validateStorage() error {
	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d, must be between 1 and 65535", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	if _, ok := validSSLModes[c.PostgresSSLMode]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}
	return nil
}
