// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

const (
	// DefaultGlobalCap bounds the records retained for filtering and enrichment.
	DefaultGlobalCap = 500
	// DefaultDisplayCap bounds the records rendered at once.
	DefaultDisplayCap = 25
	// DefaultInitialPageSize is the per-source page size of a new search.
	DefaultInitialPageSize = 50
)

// HTTPConfig holds shared HTTP settings used by the providers.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// SessionConfig holds the caps of one interactive session. GlobalCap and
// DisplayCap are independent and both apply.
type SessionConfig struct {
	GlobalCap       int `json:"global_cap" yaml:"global_cap" mapstructure:"global_cap"`
	DisplayCap      int `json:"display_cap" yaml:"display_cap" mapstructure:"display_cap"`
	InitialPageSize int `json:"initial_page_size" yaml:"initial_page_size" mapstructure:"initial_page_size"`
}

// SourceConfig holds per-source fetch pacing.
type SourceConfig struct {
	// BatchSize is the number of records requested per fetch-more call.
	BatchSize int `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`

	// RequestsPerSecond paces batch requests; zero disables pacing.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// SearchConfig holds settings for the search providers.
type SearchConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	Primary   SourceConfig `json:"primary" yaml:"primary" mapstructure:"primary"`
	Secondary SourceConfig `json:"secondary" yaml:"secondary" mapstructure:"secondary"`

	// SecondaryBackend selects the citation index: openalex or semantic_scholar.
	SecondaryBackend string `json:"secondary_backend" yaml:"secondary_backend" mapstructure:"secondary_backend"`

	NCBIAPIKey            string `json:"ncbi_api_key,omitempty" yaml:"ncbi_api_key,omitempty" mapstructure:"ncbi_api_key"`
	OpenAlexEmail         string `json:"openalex_email,omitempty" yaml:"openalex_email,omitempty" mapstructure:"openalex_email"`
	SemanticScholarAPIKey string `json:"semantic_scholar_api_key,omitempty" yaml:"semantic_scholar_api_key,omitempty" mapstructure:"semantic_scholar_api_key"`
}

// For returns the settings of one source.
func (c SearchConfig) For(src Source) SourceConfig {
	if src == SourcePrimary {
		return c.Primary
	}
	return c.Secondary
}

// AIConfig holds settings for stages that call a Generative AI API.
type AIConfig struct {
	// Model is the AI model identifier.
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// MaxRetries is the number of retry attempts for failed API calls.
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// EnrichmentConfig holds settings for the enrichment and filter provider.
type EnrichmentConfig struct {
	AIConfig `yaml:",inline" mapstructure:",squash"`

	// Concurrency bounds in-flight per-row calls.
	Concurrency int `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`
}

// JournalConfig locates the lineage audit journal.
type JournalConfig struct {
	// DSN is a SQLite path; ":memory:" keeps the journal session-scoped.
	DSN string `json:"dsn" yaml:"dsn" mapstructure:"dsn"`
}

// EngineConfig groups every configuration section.
type EngineConfig struct {
	Session    SessionConfig    `json:"session" yaml:"session" mapstructure:"session"`
	Search     SearchConfig     `json:"search" yaml:"search" mapstructure:"search"`
	Enrichment EnrichmentConfig `json:"enrichment" yaml:"enrichment" mapstructure:"enrichment"`
	Journal    JournalConfig    `json:"journal" yaml:"journal" mapstructure:"journal"`
	LogLevel   string           `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
}

// DefaultEngineConfig returns the configuration used when nothing is set.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Session: SessionConfig{
			GlobalCap:       DefaultGlobalCap,
			DisplayCap:      DefaultDisplayCap,
			InitialPageSize: DefaultInitialPageSize,
		},
		Search: SearchConfig{
			HTTPConfig: HTTPConfig{
				Timeout:   60 * time.Second,
				UserAgent: "reconcile-engine/0.1",
			},
			Primary:          SourceConfig{BatchSize: 100, RequestsPerSecond: 3},
			Secondary:        SourceConfig{BatchSize: 50, RequestsPerSecond: 5},
			SecondaryBackend: "openalex",
		},
		Enrichment: EnrichmentConfig{
			AIConfig: AIConfig{
				Model:      "claude-sonnet-4-5-20250929",
				MaxRetries: 3,
			},
			Concurrency: 4,
		},
		Journal:  JournalConfig{DSN: ":memory:"},
		LogLevel: "warn",
	}
}

// WithDefaults fills zero caps with their defaults.
func (c SessionConfig) WithDefaults() SessionConfig {
	if c.GlobalCap <= 0 {
		c.GlobalCap = DefaultGlobalCap
	}
	if c.DisplayCap <= 0 {
		c.DisplayCap = DefaultDisplayCap
	}
	if c.InitialPageSize <= 0 {
		c.InitialPageSize = DefaultInitialPageSize
	}
	return c
}
