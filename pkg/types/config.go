// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make network requests.
type HTTPConfig struct {
	// Timeout bounds a single outbound call (one retry attempt).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests (e.g. "litflow/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// RetrievalConfig holds settings for the retrieval client and the shared
// outbound permit pool.
type RetrievalConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Source selects the record source: pubmed, embase, openalex,
	// semantic_scholar or arxiv (default pubmed).
	Source string `json:"source" yaml:"source" mapstructure:"source"`

	// MaxConcurrency is the process-wide cap on in-flight retrieval calls (default 3).
	MaxConcurrency int `json:"max_concurrency" yaml:"max_concurrency" mapstructure:"max_concurrency"`

	// RequestsPerSecond paces outbound calls; zero disables pacing.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`

	// MaxAttempts caps total attempts per call, first try included (default 5).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`

	// BackoffBase is the delay after the first failed attempt (default 1s).
	BackoffBase time.Duration `json:"backoff_base" yaml:"backoff_base" mapstructure:"backoff_base"`

	// BackoffMax caps the exponential backoff delay (default 30s).
	BackoffMax time.Duration `json:"backoff_max" yaml:"backoff_max" mapstructure:"backoff_max"`

	// PubMedEmail and PubMedAPIKey are sent to NCBI E-utilities when set.
	PubMedEmail  string `json:"pubmed_email,omitempty" yaml:"pubmed_email,omitempty" mapstructure:"pubmed_email"`
	PubMedAPIKey string `json:"pubmed_api_key,omitempty" yaml:"pubmed_api_key,omitempty" mapstructure:"pubmed_api_key"`

	// EmbaseAPIKey and EmbaseInstToken authenticate against the Elsevier API.
	EmbaseAPIKey    string `json:"embase_api_key,omitempty" yaml:"embase_api_key,omitempty" mapstructure:"embase_api_key"`
	EmbaseInstToken string `json:"embase_insttoken,omitempty" yaml:"embase_insttoken,omitempty" mapstructure:"embase_insttoken"`

	// SemanticScholarAPIKey is an optional API key for higher rate limits.
	SemanticScholarAPIKey string `json:"semantic_scholar_api_key,omitempty" yaml:"semantic_scholar_api_key,omitempty" mapstructure:"semantic_scholar_api_key"`

	// OpenAlexEmail is sent as mailto for polite pool access.
	OpenAlexEmail string `json:"openalex_email,omitempty" yaml:"openalex_email,omitempty" mapstructure:"openalex_email"`
}

// AIConfig holds settings for the language model backend shared by
// planning, query generation and summarization.
type AIConfig struct {
	// Provider selects the backend: openai, ollama, gemini, anthropic or none.
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider"`

	// Model is the model identifier (e.g. "gpt-4o-mini").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL overrides the API endpoint (OpenAI-compatible servers, Ollama).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// Temperature is the sampling temperature.
	Temperature float32 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`

	// MaxTokens bounds the completion length (default 512).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`
}

// SummarizationConfig holds settings for the summarization scheduler.
type SummarizationConfig struct {
	// Enabled turns per-record summarization on.
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// Concurrency caps parallel summarization calls; zero means one per record.
	Concurrency int `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`

	// Timeout bounds a single summarization call (default 60s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// WorkflowConfig holds settings for the workflow coordinator.
type WorkflowConfig struct {
	// DirectionCount is the desired number of directions; zero lets the planner decide.
	DirectionCount int `json:"direction_count" yaml:"direction_count" mapstructure:"direction_count"`

	// MaxResults is the per-direction record cap (default 3).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`

	// Years is the publication window in years (default 5).
	Years int `json:"years" yaml:"years" mapstructure:"years"`

	// MaxRewrites caps zero-result query rewrites per direction (default 3).
	MaxRewrites int `json:"max_rewrites" yaml:"max_rewrites" mapstructure:"max_rewrites"`
}

// ServerConfig holds settings for the HTTP stream surface.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`

	// RunRetention is how long finished runs stay available for replay.
	RunRetention time.Duration `json:"run_retention" yaml:"run_retention" mapstructure:"run_retention"`
}

// HistoryConfig holds settings for the run history ledger.
type HistoryConfig struct {
	// Path is the SQLite database path; empty disables the ledger.
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

// NATSConfig holds settings for the event mirror.
type NATSConfig struct {
	// URL is the NATS server URL; empty disables the mirror.
	URL string `json:"url" yaml:"url" mapstructure:"url"`

	// SubjectPrefix prefixes every mirrored subject (default "litflow").
	SubjectPrefix string `json:"subject_prefix" yaml:"subject_prefix" mapstructure:"subject_prefix"`
}

// LogConfig selects the log level and handler format.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// Config groups all component configurations.
type Config struct {
	Retrieval     RetrievalConfig     `json:"retrieval" yaml:"retrieval" mapstructure:"retrieval"`
	AI            AIConfig            `json:"ai" yaml:"ai" mapstructure:"ai"`
	Summarization SummarizationConfig `json:"summarization" yaml:"summarization" mapstructure:"summarization"`
	Workflow      WorkflowConfig      `json:"workflow" yaml:"workflow" mapstructure:"workflow"`
	Server        ServerConfig        `json:"server" yaml:"server" mapstructure:"server"`
	History       HistoryConfig       `json:"history" yaml:"history" mapstructure:"history"`
	NATS          NATSConfig          `json:"nats" yaml:"nats" mapstructure:"nats"`
	Log           LogConfig           `json:"log" yaml:"log" mapstructure:"log"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Retrieval: RetrievalConfig{
			HTTPConfig: HTTPConfig{
				Timeout:   20 * time.Second,
				UserAgent: "litflow/0.1",
			},
			Source:         "pubmed",
			MaxConcurrency: 3,
			MaxAttempts:    5,
			BackoffBase:    time.Second,
			BackoffMax:     30 * time.Second,
		},
		AI: AIConfig{
			Provider:    "none",
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			MaxTokens:   512,
		},
		Summarization: SummarizationConfig{
			Enabled: true,
			Timeout: 60 * time.Second,
		},
		Workflow: WorkflowConfig{
			MaxResults:  3,
			Years:       5,
			MaxRewrites: 3,
		},
		Server: ServerConfig{
			Addr:         ":8080",
			RunRetention: 30 * time.Minute,
		},
		NATS: NATSConfig{SubjectPrefix: "litflow"},
		Log:  LogConfig{Level: "info", Format: "text"},
	}
}

// Redacted returns a copy of c with credentials blanked, suitable for
// storing as a run's config snapshot.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "redacted"
	}
	c.Retrieval.PubMedAPIKey = mask(c.Retrieval.PubMedAPIKey)
	c.Retrieval.EmbaseAPIKey = mask(c.Retrieval.EmbaseAPIKey)
	c.Retrieval.EmbaseInstToken = mask(c.Retrieval.EmbaseInstToken)
	c.Retrieval.SemanticScholarAPIKey = mask(c.Retrieval.SemanticScholarAPIKey)
	c.AI.APIKey = mask(c.AI.APIKey)
	return c
}
