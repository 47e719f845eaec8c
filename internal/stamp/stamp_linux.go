//go:build linux

package stamp

import "golang.org/x/sys/unix"

// Monotonic returns the raw monotonic clock, which is not subject to NTP
// or wall-clock jumps.
func Monotonic() (sec int64, nsec int64) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC_RAW, &ts); err != nil {
		return 0, 0
	}
	return int64(ts.Sec), int64(ts.Nsec)
}

// ProcessCPU returns the process CPU-time clock.
func ProcessCPU() (sec int64, nsec int64) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_PROCESS_CPUTIME_ID, &ts); err != nil {
		return 0, 0
	}
	return int64(ts.Sec), int64(ts.Nsec)
}

// ThreadID returns the calling OS thread id.
func ThreadID() int {
	return unix.Gettid()
}
