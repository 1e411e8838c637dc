//go:build unix

package core

import (
	"time"

	"golang.org/x/sys/unix"
)

// MonotonicNow returns a monotonic timestamp sourced from
// CLOCK_MONOTONIC, standing in for the LF modulation timer peripheral's
// free-running hardware tick counter (spec.md §5's "LF modulation
// timer... decrements the broadcast counter"). Falls back to stdlib
// time on non-unix builds (hwclock_other.go).
func MonotonicNow() time.Duration {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return time.Duration(time.Now().UnixNano())
	}
	return time.Duration(ts.Sec)*time.Second + time.Duration(ts.Nsec)
}
