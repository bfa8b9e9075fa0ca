package config

// Config is the umbrella configuration object returned by Initialize and
// shared by every component wired in cmd/sherlog.
type Config struct {
	configDir string

	// Name recorded as metadata.investigator on new incidents
	Investigator string

	Agent   *AgentConfig
	Store   *StoreConfig
	Slack   *SlackConfig
	Logging *LoggingConfig
	Metrics *MetricsConfig

	MCPServerRegistry   *MCPServerRegistry
	LLMProviderRegistry *LLMProviderRegistry
}

// Stats contains statistics about loaded configuration
type Stats struct {
	MCPServers   int
	LLMProviders int
}

// Stats returns configuration statistics for logging
func (c *Config) Stats() Stats {
	s := Stats{}
	if c.MCPServerRegistry != nil {
		s.MCPServers = c.MCPServerRegistry.Len()
	}
	if c.LLMProviderRegistry != nil {
		s.LLMProviders = c.LLMProviderRegistry.Len()
	}
	return s
}

// ConfigDir returns the configuration directory path
func (c *Config) ConfigDir() string {
	return c.configDir
}

// GetMCPServer retrieves an MCP server configuration by ID.
func (c *Config) GetMCPServer(serverID string) (*MCPServerConfig, error) {
	return c.MCPServerRegistry.Get(serverID)
}

// GetLLMProvider retrieves an LLM provider configuration by name.
func (c *Config) GetLLMProvider(name string) (*LLMProviderConfig, error) {
	return c.LLMProviderRegistry.Get(name)
}

// ActiveLLMProvider returns the provider selected by agent.llm_provider.
func (c *Config) ActiveLLMProvider() (*LLMProviderConfig, error) {
	return c.LLMProviderRegistry.Get(c.Agent.LLMProvider)
}

// AllMCPServerIDs returns a sorted list of all configured MCP server IDs.
func (c *Config) AllMCPServerIDs() []string {
	return c.MCPServerRegistry.ServerIDs()
}
