package mcp

import (
	"fmt"
	"regexp"

	"github.com/codeready-toolchain/sherlog/pkg/tools"
)

// qualifiedNameRegex matches "server__tool". The server part may not itself
// contain "__" (the config validator rejects such ids).
var qualifiedNameRegex = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9-]*(?:_[A-Za-z0-9-]+)*)__([A-Za-z0-9_-]+)$`)

type route struct {
	server string
	tool   string
}

// QualifiedName joins a server id and a tool name.
func QualifiedName(serverID, toolName string) string {
	return serverID + tools.QualifiedSeparator + toolName
}

// SplitQualifiedName splits "server__tool".
func SplitQualifiedName(name string) (serverID, toolName string, err error) {
	m := qualifiedNameRegex.FindStringSubmatch(name)
	if m == nil {
		return "", "", fmt.Errorf("invalid tool name %q: expected 'server__tool'", name)
	}
	return m[1], m[2], nil
}
