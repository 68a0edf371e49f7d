// Package debug provides global debug logging flags
package debug

import (
	"log/slog"
	"sync/atomic"
)

var (
	enabled atomic.Bool
	loop    atomic.Bool
)

// SetEnabled toggles general debug logging.
func SetEnabled(on bool) { enabled.Store(on) }

// SetLoop toggles per-iteration detection loop logs (one line per frame, very verbose).
func SetLoop(on bool) { loop.Store(on) }

// Enabled reports whether debug logging is active.
func Enabled() bool { return enabled.Load() }

// Loop reports whether per-iteration loop logging is active.
func Loop() bool { return loop.Load() }

// Log emits a debug record only if debug mode is enabled
func Log(logger *slog.Logger, msg string, args ...any) {
	if enabled.Load() {
		logger.Debug(msg, args...)
	}
}

// LoopLog emits a debug record only if loop debug mode is enabled
func LoopLog(logger *slog.Logger, msg string, args ...any) {
	if loop.Load() {
		logger.Debug(msg, args...)
	}
}
