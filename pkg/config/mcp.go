package config

import (
	"fmt"
	"sort"
	"sync"
)

// MCPServerConfig defines one log-query (MCP) server
type MCPServerConfig struct {
	Transport TransportConfig `yaml:"transport" validate:"required"`

	// Guidance for the model on how to use this server's tools
	Instructions string `yaml:"instructions,omitempty"`

	// Applied to every tool result before it reaches the model
	DataMasking *MaskingConfig `yaml:"data_masking,omitempty"`
}

// MCPServerRegistry stores MCP server configurations with thread-safe access
type MCPServerRegistry struct {
	servers map[string]*MCPServerConfig
	mu      sync.RWMutex
}

// NewMCPServerRegistry creates a new MCP server registry
func NewMCPServerRegistry(servers map[string]*MCPServerConfig) *MCPServerRegistry {
	copied := make(map[string]*MCPServerConfig, len(servers))
	for k, v := range servers {
		copied[k] = v
	}
	return &MCPServerRegistry{
		servers: copied,
	}
}

// Get retrieves an MCP server configuration by ID
func (r *MCPServerRegistry) Get(serverID string) (*MCPServerConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	server, exists := r.servers[serverID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrMCPServerNotFound, serverID)
	}
	return server, nil
}

// GetAll returns a copy of all MCP server configurations
func (r *MCPServerRegistry) GetAll() map[string]*MCPServerConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*MCPServerConfig, len(r.servers))
	for k, v := range r.servers {
		result[k] = v
	}
	return result
}

// Has checks if an MCP server exists in the registry
func (r *MCPServerRegistry) Has(serverID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.servers[serverID]
	return exists
}

// ServerIDs returns the sorted server IDs.
func (r *MCPServerRegistry) ServerIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.servers))
	for id := range r.servers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of MCP servers in the registry
func (r *MCPServerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.servers)
}
