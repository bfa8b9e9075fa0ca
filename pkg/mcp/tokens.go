package mcp

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// charsPerToken approximates English text; len() counts bytes, so multi-byte
// text over-estimates, which truncates early rather than late.
const charsPerToken = 4

// EstimateTokens returns an approximate token count, rounded up.
func EstimateTokens(text string) int {
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// TruncateToTokens cuts content to roughly maxTokens at the last line break
// before the limit and appends a marker naming the original size. maxTokens
// <= 0 disables truncation.
func TruncateToTokens(content string, maxTokens int) string {
	maxChars := maxTokens * charsPerToken
	if maxTokens <= 0 || len(content) <= maxChars {
		return content
	}

	cut := maxChars
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	truncated := content[:cut]
	if idx := strings.LastIndex(truncated, "\n"); idx > 0 {
		truncated = truncated[:idx]
	}
	return truncated + fmt.Sprintf(
		"\n\n[TRUNCATED: tool output exceeded the result limit. Original size: %s, limit: %s. Narrow the query to see more.]",
		formatSize(len(content)), formatSize(maxChars),
	)
}

func formatSize(bytes int) string {
	if bytes < 1024 {
		return fmt.Sprintf("%dB", bytes)
	}
	return fmt.Sprintf("%dKB", bytes/1024)
}
