package shared

import (
	"fmt"
	"log"
	"sync/atomic"
)

var debugEnabled atomic.Bool

// SetDebug enables or disables debug logging globally.
func SetDebug(enabled bool) {
	debugEnabled.Store(enabled)
}

// IsDebug reports whether debug logging is enabled.
func IsDebug() bool {
	return debugEnabled.Load()
}

// DebugLog logs a message only when debug mode is enabled.
func DebugLog(format string, args ...interface{}) {
	if debugEnabled.Load() {
		log.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
	}
}
