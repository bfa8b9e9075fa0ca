package config

// TransportType defines MCP server transport types
type TransportType string

const (
	// TransportTypeStdio uses subprocess communication via stdin/stdout
	TransportTypeStdio TransportType = "stdio"
	// TransportTypeHTTP uses streamable HTTP JSON-RPC
	TransportTypeHTTP TransportType = "http"
	// TransportTypeSSE uses Server-Sent Events
	TransportTypeSSE TransportType = "sse"
)

// IsValid checks if the transport type is valid
func (t TransportType) IsValid() bool {
	return t == TransportTypeStdio || t == TransportTypeHTTP || t == TransportTypeSSE
}

// LLMProviderType defines supported completion providers
type LLMProviderType string

const (
	// LLMProviderTypeAnthropic is the Anthropic Messages API
	LLMProviderTypeAnthropic LLMProviderType = "anthropic"
)

// IsValid checks if the LLM provider type is valid
func (t LLMProviderType) IsValid() bool {
	return t == LLMProviderTypeAnthropic
}

// StoreBackend selects where incident records are persisted
type StoreBackend string

const (
	// StoreBackendFile keeps one JSON document per incident in a directory
	StoreBackendFile StoreBackend = "file"
	// StoreBackendSQLite keeps documents in a local SQLite database
	StoreBackendSQLite StoreBackend = "sqlite"
	// StoreBackendPostgres keeps documents in a PostgreSQL JSONB table
	StoreBackendPostgres StoreBackend = "postgres"
)

// IsValid checks if the store backend is valid
func (b StoreBackend) IsValid() bool {
	switch b {
	case StoreBackendFile, StoreBackendSQLite, StoreBackendPostgres:
		return true
	default:
		return false
	}
}

// LogFormat selects the slog handler
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// IsValid checks if the log format is valid
func (f LogFormat) IsValid() bool {
	return f == LogFormatText || f == LogFormatJSON
}
