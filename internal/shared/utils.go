package shared

import (
	"fmt"
	"strings"
	"time"
)

// NowTimestampISO returns the current local time as an ISO-8601 string with
// the numeric UTC offset, e.g. "2024-05-01T13:37:00+09:00".
func NowTimestampISO() string {
	return time.Now().Format("2006-01-02T15:04:05-07:00")
}

// TruncateForDiagnostics shortens a response body excerpt so error strings
// stay readable.
func TruncateForDiagnostics(body string, max int) string {
	if len(body) <= max {
		return body
	}
	return body[:max] + "..."
}

// FirstNonEmpty returns the first value that is non-empty after trimming.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// FormatSeconds renders a duration in seconds as m:ss or h:mm:ss.
func FormatSeconds(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	total := int(sec)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
