package incident

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimeLayout is the fixed-width UTC form every stored timestamp uses, so
// string comparison orders timestamps chronologically.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// NormalizeTimestamp accepts a caller-supplied RFC 3339 timestamp (any
// offset, optional fractional seconds) and returns it in TimeLayout.
func NormalizeTimestamp(s string) (string, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return "", NewValidationError("timestamp", fmt.Sprintf("%q is not an RFC 3339 timestamp", s))
	}
	return FormatTime(t), nil
}

// NewID returns an incident id made of the creation time in base36
// milliseconds and eight random hex characters.
func NewID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return "inc_" + strconv.FormatInt(now.UnixMilli(), 36) + "_" + suffix
}
