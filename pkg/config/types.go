package config

import "time"

// TransportConfig defines MCP server transport configuration
type TransportConfig struct {
	Type TransportType `yaml:"type" validate:"required"`

	// For stdio transport
	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"` // Environment overrides for the subprocess

	// For http/sse transport
	URL         string `yaml:"url,omitempty"`
	BearerToken string `yaml:"bearer_token,omitempty"`
	VerifySSL   *bool  `yaml:"verify_ssl,omitempty"`
	Timeout     int    `yaml:"timeout,omitempty"` // In seconds
}

// MaskingConfig defines data masking configuration for MCP servers
type MaskingConfig struct {
	Enabled        bool             `yaml:"enabled"`
	PatternGroups  []string         `yaml:"pattern_groups,omitempty"`
	Patterns       []string         `yaml:"patterns,omitempty"`
	CustomPatterns []MaskingPattern `yaml:"custom_patterns,omitempty"`
}

// MaskingPattern defines a regex-based masking pattern
type MaskingPattern struct {
	Pattern     string `yaml:"pattern" validate:"required"`
	Replacement string `yaml:"replacement" validate:"required"`
	Description string `yaml:"description,omitempty"`
}

// AgentConfig tunes the conversational tool-use loop.
type AgentConfig struct {
	LLMProvider string `yaml:"llm_provider,omitempty"`

	// Cap on oracle round-trips per user message. When reached the loop asks
	// for a final answer without tools.
	MaxIterations int `yaml:"max_iterations,omitempty" validate:"omitempty,min=1"`

	// Upper bound on a single oracle request, stream included.
	LLMTimeout time.Duration `yaml:"llm_timeout,omitempty"`

	// Upper bound on a single tool call.
	ToolTimeout time.Duration `yaml:"tool_timeout,omitempty"`

	// Output token cap sent with every request.
	MaxTokens int `yaml:"max_tokens,omitempty" validate:"omitempty,min=1"`

	// Extra operator guidance appended to the system prompt.
	CustomInstructions string `yaml:"custom_instructions,omitempty"`
}

// StoreConfig selects and configures the incident record backend.
type StoreConfig struct {
	Backend StoreBackend `yaml:"backend,omitempty"`

	// file backend
	Dir string `yaml:"dir,omitempty"`

	// sqlite backend
	SQLitePath string `yaml:"sqlite_path,omitempty"`

	// postgres backend; an empty DSN falls back to the DB_* environment variables
	PostgresDSN string `yaml:"postgres_dsn,omitempty"`
}

// SlackYAMLConfig holds Slack notification settings from YAML.
type SlackYAMLConfig struct {
	Enabled  *bool  `yaml:"enabled,omitempty"`
	TokenEnv string `yaml:"token_env,omitempty"`
	Channel  string `yaml:"channel,omitempty"`
}

// SlackConfig holds resolved Slack notification configuration.
type SlackConfig struct {
	Enabled  bool
	TokenEnv string // Env var name for the bot token (default: "SLACK_BOT_TOKEN")
	Channel  string // Slack channel ID (e.g., "C12345678")
}

// LoggingConfig controls where and how sherlog writes its own logs.
// stdout belongs to the conversation, so logs default to a rotated file.
type LoggingConfig struct {
	Level      string    `yaml:"level,omitempty"`
	Format     LogFormat `yaml:"format,omitempty"`
	File       string    `yaml:"file,omitempty"` // "-" logs to stderr
	MaxSizeMB  int       `yaml:"max_size_mb,omitempty"`
	MaxBackups int       `yaml:"max_backups,omitempty"`
	MaxAgeDays int       `yaml:"max_age_days,omitempty"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"` // e.g. "127.0.0.1:9464"; empty disables
}

// BoolPtr returns a pointer to b. Convenience for *bool struct fields.
func BoolPtr(b bool) *bool { return &b }
