//go:build !linux

package script

import "log/slog"

// setMemoryRlimit is a no-op on platforms without RLIMIT_AS support
// (e.g. Darwin); the sandbox's deadline enforcement still bounds a
// runaway script's wall-clock time.
func setMemoryRlimit(limitBytes uint64) {
	slog.Warn("script sandbox: memory limit not enforced on this platform")
}
