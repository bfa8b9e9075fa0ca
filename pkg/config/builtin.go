package config

import (
	"sync"
	"time"
)

// Defaults applied when sherlog.yaml leaves a value unset.
const (
	DefaultLLMProvider         = "anthropic-default"
	DefaultMaxIterations       = 25
	DefaultLLMTimeout          = 5 * time.Minute
	DefaultToolTimeout         = 90 * time.Second
	DefaultMaxTokens           = 8192
	DefaultStoreDir            = "incidents"
	DefaultSQLitePath          = "sherlog.db"
	DefaultLogLevel            = "info"
	DefaultLogMaxSizeMB        = 20
	DefaultLogMaxBackups       = 3
	DefaultLogMaxAgeDays       = 14
	DefaultSlackTokenEnv       = "SLACK_BOT_TOKEN"
	DefaultAnthropicAPIKeyEnv  = "ANTHROPIC_API_KEY"
	DefaultMaxToolResultTokens = 150000
)

// BuiltinConfig holds the configuration that ships with the binary:
// LLM providers and the masking pattern library.
type BuiltinConfig struct {
	LLMProviders    map[string]LLMProviderConfig
	MaskingPatterns map[string]MaskingPattern
	PatternGroups   map[string][]string
	CodeMaskers     map[string]string
}

var (
	builtinConfig     *BuiltinConfig
	builtinConfigOnce sync.Once
)

// GetBuiltinConfig returns the singleton built-in configuration (lazy-initialized)
func GetBuiltinConfig() *BuiltinConfig {
	builtinConfigOnce.Do(initBuiltinConfig)
	return builtinConfig
}

func initBuiltinConfig() {
	builtinConfig = &BuiltinConfig{
		LLMProviders:    initBuiltinLLMProviders(),
		MaskingPatterns: initBuiltinMaskingPatterns(),
		PatternGroups:   initBuiltinPatternGroups(),
		CodeMaskers:     initBuiltinCodeMaskers(),
	}
}

func initBuiltinLLMProviders() map[string]LLMProviderConfig {
	return map[string]LLMProviderConfig{
		DefaultLLMProvider: {
			Type:                LLMProviderTypeAnthropic,
			Model:               "claude-sonnet-4-20250514",
			APIKeyEnv:           DefaultAnthropicAPIKeyEnv,
			MaxToolResultTokens: DefaultMaxToolResultTokens, // 200K context window
		},
	}
}

func initBuiltinMaskingPatterns() map[string]MaskingPattern {
	return map[string]MaskingPattern{
		"api_key": {
			Pattern:     `(?i)(?:api[_-]?key|apikey)["\']?\s*[:=]\s*["\']?([A-Za-z0-9_\-]{20,})["\']?`,
			Replacement: `"api_key": "__MASKED_API_KEY__"`,
			Description: "API keys",
		},
		"password": {
			Pattern:     `(?i)(?:password|passwd|pwd)["\']?\s*[:=]\s*["\']?([^"\'\s\n,}]{6,})["\']?`,
			Replacement: `"password": "__MASKED_PASSWORD__"`,
			Description: "Passwords",
		},
		"certificate": {
			Pattern:     `(?s)-----BEGIN [A-Z ]+-----.*?-----END [A-Z ]+-----`,
			Replacement: `__MASKED_CERTIFICATE__`,
			Description: "PEM blocks",
		},
		"token": {
			Pattern:     `(?i)(?:token|bearer|jwt)["\']?\s*[:=]\s*["\']?([A-Za-z0-9_\-\.]{20,})["\']?`,
			Replacement: `"token": "__MASKED_TOKEN__"`,
			Description: "Access tokens",
		},
		"authorization_header": {
			Pattern:     `(?i)authorization:\s*(?:bearer|basic)\s+[A-Za-z0-9_\-\.=+/]+`,
			Replacement: `Authorization: __MASKED_AUTH_HEADER__`,
			Description: "HTTP Authorization headers captured in request logs",
		},
		"email": {
			Pattern:     `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9]+(?:[.-][A-Za-z0-9]+)*\.[A-Za-z]{2,63}\b`,
			Replacement: `__MASKED_EMAIL__`,
			Description: "Email addresses",
		},
		"ipv4": {
			Pattern:     `\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`,
			Replacement: `__MASKED_IP__`,
			Description: "IPv4 addresses",
		},
		"ssh_key": {
			Pattern:     `ssh-(?:rsa|dss|ed25519|ecdsa)\s+[A-Za-z0-9+/=]+`,
			Replacement: `__MASKED_SSH_KEY__`,
			Description: "SSH public keys",
		},
		"private_key": {
			Pattern:     `(?i)(?:private[_-]?key)["\']?\s*[:=]\s*["\']?([A-Za-z0-9_\-\.]{20,})["\']?`,
			Replacement: `"private_key": "__MASKED_PRIVATE_KEY__"`,
			Description: "Private keys",
		},
		"secret_key": {
			Pattern:     `(?i)(?:secret[_-]?key)["\']?\s*[:=]\s*["\']?([A-Za-z0-9_\-\.]{20,})["\']?`,
			Replacement: `"secret_key": "__MASKED_SECRET_KEY__"`,
			Description: "Secret keys",
		},
		"aws_access_key": {
			Pattern:     `\bAKIA[A-Z0-9]{16}\b`,
			Replacement: `__MASKED_AWS_KEY__`,
			Description: "AWS access key IDs",
		},
		"aws_secret_key": {
			Pattern:     `(?i)(?:aws[_-]?secret[_-]?access[_-]?key)["\']?\s*[:=]\s*["\']?([A-Za-z0-9/+=]{40})["\']?`,
			Replacement: `"aws_secret_access_key": "__MASKED_AWS_SECRET__"`,
			Description: "AWS secret keys",
		},
		"github_token": {
			Pattern:     `\bgh[pousr]_[A-Za-z0-9_]{36,255}\b`,
			Replacement: `__MASKED_GITHUB_TOKEN__`,
			Description: "GitHub tokens",
		},
		"slack_token": {
			Pattern:     `xox[baprs]-[A-Za-z0-9-]{10,72}`,
			Replacement: `__MASKED_SLACK_TOKEN__`,
			Description: "Slack tokens",
		},
	}
}

// initBuiltinPatternGroups returns named bundles of masking patterns.
// Members resolve against MaskingPatterns first and CodeMaskers second.
func initBuiltinPatternGroups() map[string][]string {
	return map[string][]string{
		"basic":   {"api_key", "password"},
		"secrets": {"api_key", "password", "token", "private_key", "secret_key"},
		"logs":    {"json_log_fields", "authorization_header", "api_key", "password", "token", "email"},
		"cloud":   {"aws_access_key", "aws_secret_key", "api_key", "token"},
		"all": {
			"json_log_fields", "authorization_header", "api_key", "password", "certificate", "email",
			"ipv4", "token", "ssh_key", "private_key", "secret_key", "aws_access_key", "aws_secret_key",
			"github_token", "slack_token",
		},
	}
}

// initBuiltinCodeMaskers returns the structural maskers that can be listed
// in pattern groups alongside regex patterns.
func initBuiltinCodeMaskers() map[string]string {
	return map[string]string{
		// Redacts values of sensitive keys in JSON-structured log lines.
		"json_log_fields": "masking.JSONLogFieldMasker",
	}
}
