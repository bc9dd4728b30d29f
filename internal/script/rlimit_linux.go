//go:build linux

package script

import (
	"log/slog"
	"syscall"
)

// setMemoryRlimit applies an RLIMIT_AS ceiling to the current process,
// best-effort: a failure is logged, never fatal, since a script that
// merely runs without a memory cap is survivable, while refusing to run
// scripts because Setrlimit is unavailable is not.
func setMemoryRlimit(limitBytes uint64) {
	rlimit := syscall.Rlimit{Cur: limitBytes, Max: limitBytes}
	if err := syscall.Setrlimit(syscall.RLIMIT_AS, &rlimit); err != nil {
		slog.Warn("script sandbox: failed to set RLIMIT_AS", "error", err)
	}
}
