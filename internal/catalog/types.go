package catalog

import "time"

// Document represents one catalog record: the text rendering of a card and
// its price data, plus structured metadata (set, number, grade, source).
type Document struct {
	ID       string            // Unique identifier
	Content  string            // Text content handed to the model
	Metadata map[string]string // Optional metadata (set, rarity, source, ...)
	CreateAt time.Time         // Creation timestamp
}

// Result represents a single search result with similarity score.
type Result struct {
	Document   Document
	Similarity float32 // Higher is more similar; see Store.Search for metric semantics
}

// SearchOption configures search behavior using the functional options
// pattern (same shape as context.WithTimeout, grpc.Dial).
type SearchOption func(*searchConfig)

// searchConfig holds internal search configuration.
type searchConfig struct {
	topK    int
	filter  map[string]string
	timeout time.Duration
}

// defaultSearchTimeout bounds embedding plus vector query per search.
const defaultSearchTimeout = 10 * time.Second

// WithTopK sets the maximum number of results to return. Default is 10.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		c.topK = k
	}
}

// WithFilter adds a metadata filter restricting search results. Multiple
// calls add additional filters (AND logic).
func WithFilter(key, value string) SearchOption {
	return func(c *searchConfig) {
		if c.filter == nil {
			c.filter = make(map[string]string)
		}
		c.filter[key] = value
	}
}

// WithTimeout overrides the per-search timeout.
func WithTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// buildSearchConfig applies search options and returns the final configuration.
func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:    10,
		filter:  nil,
		timeout: defaultSearchTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
