//go:build unix

package db

import (
	"os"
	"syscall"
)

func (l *fileLock) lockNB() error {
	return syscall.Flock(int(l.f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
}

func (l *fileLock) unlockFile() {
	syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
}

// processAlive probes pid with signal 0.
func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
