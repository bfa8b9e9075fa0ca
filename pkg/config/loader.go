package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the config directory.
const FileName = "sherlog.yaml"

// SherlogYAMLConfig represents the complete sherlog.yaml file structure
type SherlogYAMLConfig struct {
	Investigator string                       `yaml:"investigator"`
	LLMProviders map[string]LLMProviderConfig `yaml:"llm_providers"`
	MCPServers   map[string]MCPServerConfig   `yaml:"mcp_servers"`
	Agent        *AgentConfig                 `yaml:"agent"`
	Store        *StoreConfig                 `yaml:"store"`
	Slack        *SlackYAMLConfig             `yaml:"slack"`
	Logging      *LoggingConfig               `yaml:"logging"`
	Metrics      *MetricsConfig               `yaml:"metrics"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
//
// Steps performed:
//  1. Load sherlog.yaml from configDir (built-in defaults when absent)
//  2. Expand {{.ENV}} references
//  3. Merge built-in LLM providers with user-defined ones
//  4. Fill unset values from built-in defaults
//  5. Build registries
//  6. Validate
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"mcp_servers", stats.MCPServers,
		"llm_providers", stats.LLMProviders,
		"store_backend", cfg.Store.Backend)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	fileCfg, err := loader.loadSherlogYAML()
	if err != nil {
		if !errors.Is(err, ErrConfigNotFound) {
			return nil, NewLoadError(FileName, err)
		}
		slog.Warn("No configuration file found, using built-in defaults",
			"path", filepath.Join(configDir, FileName))
		fileCfg = &SherlogYAMLConfig{}
	}

	builtin := GetBuiltinConfig()

	providers := make(map[string]*LLMProviderConfig)
	for name, p := range builtin.LLMProviders {
		providerCopy := p
		providers[name] = &providerCopy
	}
	for name, p := range fileCfg.LLMProviders {
		providerCopy := p
		providers[name] = &providerCopy
	}

	servers := make(map[string]*MCPServerConfig, len(fileCfg.MCPServers))
	for id, s := range fileCfg.MCPServers {
		serverCopy := s
		servers[id] = &serverCopy
	}

	agentCfg := defaultAgentConfig()
	if fileCfg.Agent != nil {
		if err := mergo.Merge(agentCfg, fileCfg.Agent, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge agent config: %w", err)
		}
	}

	storeCfg := defaultStoreConfig()
	if fileCfg.Store != nil {
		if err := mergo.Merge(storeCfg, fileCfg.Store, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge store config: %w", err)
		}
	}
	storeCfg.Dir = resolvePath(configDir, storeCfg.Dir)
	storeCfg.SQLitePath = resolvePath(configDir, storeCfg.SQLitePath)

	loggingCfg := defaultLoggingConfig()
	if fileCfg.Logging != nil {
		if err := mergo.Merge(loggingCfg, fileCfg.Logging, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge logging config: %w", err)
		}
	}
	if loggingCfg.File != "-" {
		loggingCfg.File = resolvePath(configDir, loggingCfg.File)
	}

	metricsCfg := &MetricsConfig{}
	if fileCfg.Metrics != nil {
		metricsCfg = fileCfg.Metrics
	}

	return &Config{
		configDir:           configDir,
		Investigator:        resolveInvestigator(fileCfg.Investigator),
		Agent:               agentCfg,
		Store:               storeCfg,
		Slack:               resolveSlackConfig(fileCfg.Slack),
		Logging:             loggingCfg,
		Metrics:             metricsCfg,
		MCPServerRegistry:   NewMCPServerRegistry(servers),
		LLMProviderRegistry: NewLLMProviderRegistry(providers),
	}, nil
}

func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// ExpandEnv passes through content it cannot template, leaving the
	// error report to the YAML parser.
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadSherlogYAML() (*SherlogYAMLConfig, error) {
	var config SherlogYAMLConfig

	config.LLMProviders = make(map[string]LLMProviderConfig)
	config.MCPServers = make(map[string]MCPServerConfig)

	if err := l.loadYAML(FileName, &config); err != nil {
		return nil, err
	}

	return &config, nil
}

func defaultAgentConfig() *AgentConfig {
	return &AgentConfig{
		LLMProvider:   DefaultLLMProvider,
		MaxIterations: DefaultMaxIterations,
		LLMTimeout:    DefaultLLMTimeout,
		ToolTimeout:   DefaultToolTimeout,
		MaxTokens:     DefaultMaxTokens,
	}
}

func defaultStoreConfig() *StoreConfig {
	return &StoreConfig{
		Backend:    StoreBackendFile,
		Dir:        DefaultStoreDir,
		SQLitePath: DefaultSQLitePath,
	}
}

func defaultLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		Level:      DefaultLogLevel,
		Format:     LogFormatText,
		File:       "sherlog.log",
		MaxSizeMB:  DefaultLogMaxSizeMB,
		MaxBackups: DefaultLogMaxBackups,
		MaxAgeDays: DefaultLogMaxAgeDays,
	}
}

// resolveSlackConfig resolves Slack configuration from YAML, applying defaults.
func resolveSlackConfig(s *SlackYAMLConfig) *SlackConfig {
	cfg := &SlackConfig{
		Enabled:  false,
		TokenEnv: DefaultSlackTokenEnv,
	}

	if s == nil {
		return cfg
	}

	if s.Enabled != nil {
		cfg.Enabled = *s.Enabled
	}
	if s.TokenEnv != "" {
		cfg.TokenEnv = s.TokenEnv
	}
	if s.Channel != "" {
		cfg.Channel = s.Channel
	}

	return cfg
}

// resolveInvestigator falls back to the login name when the YAML leaves it empty.
func resolveInvestigator(name string) string {
	if name != "" {
		return name
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "unknown"
}

// resolvePath anchors relative paths at the config directory.
func resolvePath(configDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(configDir, path)
}
