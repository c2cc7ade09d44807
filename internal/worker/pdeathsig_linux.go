//go:build linux

package worker

import "syscall"

const prSetPDeathSig = 1

// EnableParentDeathSignal asks the kernel to deliver SIGTERM to this process
// when its direct parent exits, so a daemon launched under a wrapper process
// still shuts down and lets the sweeper reclaim its in-flight jobs.
func EnableParentDeathSignal() error {
	_, _, errno := syscall.RawSyscall(
		syscall.SYS_PRCTL,
		uintptr(prSetPDeathSig),
		uintptr(syscall.SIGTERM),
		0,
	)
	if errno != 0 {
		return errno
	}
	return nil
}
