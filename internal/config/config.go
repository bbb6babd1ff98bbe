// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (./config.yaml or ~/.eloquent/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - OpenAI: Chat model, title model, embedding model, temperature, max tokens
//   - Retrieval: top-k, similarity threshold, prompt token budget
//   - Storage: PostgreSQL connection (see storage.go)
//   - Quota: anonymous message limit
//   - Server: listen address, CORS origins, HMAC secret, rate limiting
//   - Tracing: OTLP collector endpoint, deployment environment
//
// Security: Sensitive data (passwords, API keys) are never logged.
// Validation: Range checks in Validate() with sentinel errors for errors.Is().
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidTopK indicates the retrieval top-k value is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top-k")

	// ErrInvalidThreshold indicates the similarity threshold is out of range.
	ErrInvalidThreshold = errors.New("invalid similarity threshold")

	// ErrInvalidQuotaLimit indicates the anonymous quota limit is out of range.
	ErrInvalidQuotaLimit = errors.New("invalid anonymous quota limit")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrMissingHMACSecret indicates the HMAC secret is not set.
	ErrMissingHMACSecret = errors.New("missing HMAC secret")

	// ErrInvalidHMACSecret indicates the HMAC secret is too short.
	ErrInvalidHMACSecret = errors.New("invalid HMAC secret")

	// ErrInvalidRateLimit indicates the request rate limit is out of range.
	ErrInvalidRateLimit = errors.New("invalid rate limit")
)

// Defaults mirroring the knowledge-base retrieval contract.
const (
	// DefaultTopK is the default number of passages returned per retrieval.
	DefaultTopK = 3

	// DefaultSimilarityThreshold is the minimum cosine similarity for a
	// passage to be considered relevant grounding.
	DefaultSimilarityThreshold = 0.75

	// DefaultAnonymousQuota is the number of exchanges an unregistered
	// visitor may complete before being asked to create an account.
	DefaultAnonymousQuota = 3

	// DefaultPromptBudget is the token budget for an assembled prompt.
	DefaultPromptBudget = 3000

	// DefaultHistoryTurns is the number of recent messages carried into
	// the prompt as conversation history.
	DefaultHistoryTurns = 10
)

// Config stores application configuration.
type Config struct {
	// OpenAI configuration
	OpenAIAPIKey   string  `mapstructure:"openai_api_key"` // SENSITIVE: never logged
	ChatModel      string  `mapstructure:"chat_model"`
	TitleModel     string  `mapstructure:"title_model"`
	EmbeddingModel string  `mapstructure:"embedding_model"`
	Temperature    float32 `mapstructure:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens"`

	// Retrieval configuration
	TopK                int     `mapstructure:"top_k"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	PromptBudget        int     `mapstructure:"prompt_budget"`
	HistoryTurns        int     `mapstructure:"history_turns"`

	// Anonymous quota
	AnonymousQuota int `mapstructure:"anonymous_quota"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"` // SENSITIVE: never logged
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// Server configuration
	ListenAddr    string   `mapstructure:"listen_addr"`
	HMACSecret    string   `mapstructure:"hmac_secret"` // SENSITIVE: never logged
	CORSOrigins   []string `mapstructure:"cors_origins"`
	TrustProxy    bool     `mapstructure:"trust_proxy"`
	SecureCookies bool     `mapstructure:"secure_cookies"`
	RateRPS       float64  `mapstructure:"rate_rps"`
	RateBurst     int      `mapstructure:"rate_burst"`

	// Tracing configuration (see observability package)
	TracingEndpoint string `mapstructure:"tracing_endpoint"`
	Environment     string `mapstructure:"environment"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".eloquent")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings when set
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
	// OpenAI defaults
	viper.SetDefault("chat_model", "gpt-4o")
	viper.SetDefault("title_model", "gpt-4o-mini")
	viper.SetDefault("embedding_model", "text-embedding-3-small")
	viper.SetDefault("temperature", 0.7)
	viper.SetDefault("max_tokens", 1000)

	// Retrieval defaults
	viper.SetDefault("top_k", DefaultTopK)
	viper.SetDefault("similarity_threshold", DefaultSimilarityThreshold)
	viper.SetDefault("prompt_budget", DefaultPromptBudget)
	viper.SetDefault("history_turns", DefaultHistoryTurns)

	// Quota defaults
	viper.SetDefault("anonymous_quota", DefaultAnonymousQuota)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "eloquent")
	viper.SetDefault("postgres_password", "eloquent_dev_password")
	viper.SetDefault("postgres_db_name", "eloquent")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Server defaults
	viper.SetDefault("listen_addr", "127.0.0.1:8080")
	viper.SetDefault("cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("secure_cookies", false)
	viper.SetDefault("rate_rps", 10.0)
	viper.SetDefault("rate_burst", 60)

	// Tracing defaults (empty endpoint leaves tracing off)
	viper.SetDefault("tracing_endpoint", "")
	viper.SetDefault("environment", "development")
}

// bindEnvVariables binds environment variables explicitly.
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail).
	// If this panics, it's a BUG in our code, not a runtime error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("openai_api_key", "OPENAI_API_KEY")
	mustBind("chat_model", "ELOQUENT_CHAT_MODEL")
	mustBind("title_model", "ELOQUENT_TITLE_MODEL")
	mustBind("embedding_model", "ELOQUENT_EMBEDDING_MODEL")

	mustBind("hmac_secret", "HMAC_SECRET")
	mustBind("listen_addr", "ELOQUENT_LISTEN_ADDR")
	mustBind("cors_origins", "ELOQUENT_CORS_ORIGINS")
	mustBind("trust_proxy", "ELOQUENT_TRUST_PROXY")
	mustBind("secure_cookies", "ELOQUENT_SECURE_COOKIES")
	mustBind("rate_rps", "ELOQUENT_RATE_RPS")
	mustBind("rate_burst", "ELOQUENT_RATE_BURST")

	mustBind("tracing_endpoint", "ELOQUENT_TRACING_ENDPOINT")
	mustBind("environment", "ELOQUENT_ENVIRONMENT")

	mustBind("anonymous_quota", "ELOQUENT_ANONYMOUS_QUOTA")
}

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required", ErrMissingAPIKey)
	}

	if c.ChatModel == "" {
		return fmt.Errorf("%w: chat_model cannot be empty", ErrInvalidModelName)
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("%w: embedding_model cannot be empty", ErrInvalidModelName)
	}

	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	if c.MaxTokens < 1 || c.MaxTokens > 128000 {
		return fmt.Errorf("%w: must be between 1 and 128,000, got %d", ErrInvalidMaxTokens, c.MaxTokens)
	}

	if c.TopK < 1 || c.TopK > 10 {
		return fmt.Errorf("%w: must be between 1 and 10, got %d", ErrInvalidTopK, c.TopK)
	}

	if c.SimilarityThreshold < 0.0 || c.SimilarityThreshold > 1.0 {
		return fmt.Errorf("%w: must be between 0.0 and 1.0, got %.2f", ErrInvalidThreshold, c.SimilarityThreshold)
	}

	if c.AnonymousQuota < 1 || c.AnonymousQuota > 100 {
		return fmt.Errorf("%w: must be between 1 and 100, got %d", ErrInvalidQuotaLimit, c.AnonymousQuota)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set", ErrInvalidPostgresPassword)
	}
	if c.PostgresPassword == "eloquent_dev_password" {
		slog.Warn("using default development password for PostgreSQL",
			"warning", "change postgres_password for production deployments")
	}

	if c.RateRPS <= 0 {
		return fmt.Errorf("%w: rate_rps must be positive, got %.2f", ErrInvalidRateLimit, c.RateRPS)
	}
	if c.RateBurst < 1 {
		return fmt.Errorf("%w: rate_burst must be at least 1, got %d", ErrInvalidRateLimit, c.RateBurst)
	}

	if c.HMACSecret == "" {
		return fmt.Errorf("%w: HMAC_SECRET environment variable is required", ErrMissingHMACSecret)
	}
	if len(c.HMACSecret) < 32 {
		return fmt.Errorf("%w: must be at least 32 bytes, got %d", ErrInvalidHMACSecret, len(c.HMACSecret))
	}

	return nil
}
