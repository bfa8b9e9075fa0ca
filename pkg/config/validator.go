package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// ConfigValidator validates configuration with clear error messages
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll performs validation, stopping at the first error
func (v *ConfigValidator) ValidateAll() error {
	if err := v.validateLLMProviders(); err != nil {
		return fmt.Errorf("LLM provider validation failed: %w", err)
	}

	if err := v.validateAgent(); err != nil {
		return fmt.Errorf("agent validation failed: %w", err)
	}

	if err := v.validateMCPServers(); err != nil {
		return fmt.Errorf("MCP server validation failed: %w", err)
	}

	if err := v.validateStore(); err != nil {
		return fmt.Errorf("store validation failed: %w", err)
	}

	if err := v.validateLogging(); err != nil {
		return fmt.Errorf("logging validation failed: %w", err)
	}

	if err := v.validateSlack(); err != nil {
		return fmt.Errorf("slack validation failed: %w", err)
	}

	return nil
}

func (v *ConfigValidator) validateAgent() error {
	a := v.cfg.Agent
	if a == nil {
		return NewValidationError("agent", "agent", "", ErrMissingRequiredField)
	}

	if !v.cfg.LLMProviderRegistry.Has(a.LLMProvider) {
		return NewValidationError("agent", "agent", "llm_provider", fmt.Errorf("LLM provider '%s' not found", a.LLMProvider))
	}
	if a.MaxIterations < 1 {
		return NewValidationError("agent", "agent", "max_iterations", fmt.Errorf("must be at least 1"))
	}
	if a.MaxTokens < 1 {
		return NewValidationError("agent", "agent", "max_tokens", fmt.Errorf("must be at least 1"))
	}
	if a.LLMTimeout <= 0 {
		return NewValidationError("agent", "agent", "llm_timeout", fmt.Errorf("must be positive"))
	}
	if a.ToolTimeout <= 0 {
		return NewValidationError("agent", "agent", "tool_timeout", fmt.Errorf("must be positive"))
	}

	return nil
}

func (v *ConfigValidator) validateMCPServers() error {
	builtin := GetBuiltinConfig()

	for serverID, server := range v.cfg.MCPServerRegistry.GetAll() {
		if strings.Contains(serverID, "__") {
			return NewValidationError("mcp_server", serverID, "", fmt.Errorf("%w: server ID must not contain '__'", ErrInvalidValue))
		}

		if !server.Transport.Type.IsValid() {
			return NewValidationError("mcp_server", serverID, "transport.type", fmt.Errorf("invalid transport type: %s", server.Transport.Type))
		}

		switch server.Transport.Type {
		case TransportTypeStdio:
			if server.Transport.Command == "" {
				return NewValidationError("mcp_server", serverID, "transport.command", fmt.Errorf("command required for stdio transport"))
			}

		case TransportTypeHTTP, TransportTypeSSE:
			if server.Transport.URL == "" {
				return NewValidationError("mcp_server", serverID, "transport.url", fmt.Errorf("url required for %s transport", server.Transport.Type))
			}
		}

		if server.DataMasking == nil || !server.DataMasking.Enabled {
			continue
		}

		for _, groupName := range server.DataMasking.PatternGroups {
			if _, exists := builtin.PatternGroups[groupName]; !exists {
				return NewValidationError("mcp_server", serverID, "data_masking.pattern_groups", fmt.Errorf("pattern group '%s' not found", groupName))
			}
		}

		for _, patternName := range server.DataMasking.Patterns {
			_, isRegex := builtin.MaskingPatterns[patternName]
			_, isCode := builtin.CodeMaskers[patternName]
			if !isRegex && !isCode {
				return NewValidationError("mcp_server", serverID, "data_masking.patterns", fmt.Errorf("pattern '%s' not found", patternName))
			}
		}

		for i, pattern := range server.DataMasking.CustomPatterns {
			field := fmt.Sprintf("data_masking.custom_patterns[%d]", i)
			if pattern.Pattern == "" {
				return NewValidationError("mcp_server", serverID, field+".pattern", fmt.Errorf("pattern required"))
			}
			if pattern.Replacement == "" {
				return NewValidationError("mcp_server", serverID, field+".replacement", fmt.Errorf("replacement required"))
			}
			if _, err := regexp.Compile(pattern.Pattern); err != nil {
				return NewValidationError("mcp_server", serverID, field+".pattern", fmt.Errorf("%w: %v", ErrInvalidValue, err))
			}
		}
	}

	return nil
}

func (v *ConfigValidator) validateLLMProviders() error {
	for name, provider := range v.cfg.LLMProviderRegistry.GetAll() {
		if !provider.Type.IsValid() {
			return NewValidationError("llm_provider", name, "type", fmt.Errorf("invalid provider type: %s", provider.Type))
		}

		if provider.Model == "" {
			return NewValidationError("llm_provider", name, "model", fmt.Errorf("model required"))
		}

		if provider.MaxToolResultTokens < 1000 {
			return NewValidationError("llm_provider", name, "max_tool_result_tokens", fmt.Errorf("must be at least 1000"))
		}
	}

	// Only the provider in use needs its credentials present.
	if v.cfg.Agent == nil {
		return nil
	}
	active, err := v.cfg.LLMProviderRegistry.Get(v.cfg.Agent.LLMProvider)
	if err != nil {
		return nil // reported by validateAgent
	}
	if active.APIKeyEnv != "" && os.Getenv(active.APIKeyEnv) == "" {
		return NewValidationError("llm_provider", v.cfg.Agent.LLMProvider, "api_key_env",
			fmt.Errorf("environment variable %s is not set", active.APIKeyEnv))
	}

	return nil
}

func (v *ConfigValidator) validateStore() error {
	s := v.cfg.Store
	if !s.Backend.IsValid() {
		return NewValidationError("store", string(s.Backend), "backend", fmt.Errorf("%w: %s", ErrInvalidValue, s.Backend))
	}

	switch s.Backend {
	case StoreBackendFile:
		if s.Dir == "" {
			return NewValidationError("store", string(s.Backend), "dir", ErrMissingRequiredField)
		}
	case StoreBackendSQLite:
		if s.SQLitePath == "" {
			return NewValidationError("store", string(s.Backend), "sqlite_path", ErrMissingRequiredField)
		}
	}

	return nil
}

func (v *ConfigValidator) validateLogging() error {
	l := v.cfg.Logging
	if !l.Format.IsValid() {
		return NewValidationError("logging", "logging", "format", fmt.Errorf("%w: %s", ErrInvalidValue, l.Format))
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return NewValidationError("logging", "logging", "level", fmt.Errorf("%w: %s", ErrInvalidValue, l.Level))
	}

	return nil
}

func (v *ConfigValidator) validateSlack() error {
	s := v.cfg.Slack
	if s.Enabled && s.Channel == "" {
		return NewValidationError("slack", "slack", "channel", fmt.Errorf("%w: channel required when enabled", ErrMissingRequiredField))
	}
	return nil
}
