package db

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	lockFileName     = "carelog.lock"
	syncLockFileName = "sync.lock"
	lockTimeout     = 2 * time.Second
	lockPollStart   = 5 * time.Millisecond
	lockPollCeiling = 100 * time.Millisecond
)

// fileLock guards the local database against concurrent writers in other
// processes (a CLI command racing the monitor, for example). The OS drops
// the lock if the holder dies.
type fileLock struct {
	path string
	f    *os.File
}

func newFileLock(baseDir string) *fileLock {
	return &fileLock{path: filepath.Join(baseDir, dataDir, lockFileName)}
}

// lock blocks until the lock is held or timeout elapses.
func (l *fileLock) lock(timeout time.Duration) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	l.f = f

	deadline := time.Now().Add(timeout)
	wait := lockPollStart
	for {
		if err := l.lockNB(); err == nil {
			l.stampHolder()
			return nil
		}
		if time.Now().After(deadline) {
			holder := l.holder()
			l.f.Close()
			l.f = nil
			return fmt.Errorf("local database busy after %v (held by %s)", timeout, holder)
		}
		time.Sleep(wait)
		wait = min(wait*2, lockPollCeiling)
	}
}

// tryLock takes the lock if it is free and reports whether it did.
func (l *fileLock) tryLock() (bool, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return false, fmt.Errorf("open lock file: %w", err)
	}
	l.f = f
	if err := l.lockNB(); err != nil {
		l.f.Close()
		l.f = nil
		return false, nil
	}
	l.stampHolder()
	return true, nil
}

// TryLockSync takes the data directory's sync lock without waiting. It is
// held for a whole sync pass, across many write-lock sections and the
// network round trips between them.
func (db *DB) TryLockSync() (func(), bool, error) {
	l := &fileLock{path: filepath.Join(db.baseDir, dataDir, syncLockFileName)}
	held, err := l.tryLock()
	if err != nil {
		return nil, false, err
	}
	if !held {
		slog.Debug("sync lock busy", "holder", l.holder())
		return nil, false, nil
	}
	return l.unlock, true, nil
}

func (l *fileLock) unlock() {
	if l.f == nil {
		return
	}
	l.f.Truncate(0)
	l.unlockFile()
	l.f.Close()
	l.f = nil
}

func (l *fileLock) stampHolder() {
	l.f.Truncate(0)
	l.f.Seek(0, 0)
	fmt.Fprintf(l.f, "pid:%d\ntime:%s\n", os.Getpid(), time.Now().Format(time.RFC3339))
}

// holder describes the current lock owner for error messages.
func (l *fileLock) holder() string {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return "unknown"
	}
	var pid, since string
	for _, line := range strings.Split(string(data), "\n") {
		if v, ok := strings.CutPrefix(line, "pid:"); ok {
			pid = v
		} else if v, ok := strings.CutPrefix(line, "time:"); ok {
			since = v
		}
	}
	if pid == "" {
		return "unknown"
	}
	if n, err := strconv.Atoi(pid); err == nil && !processAlive(n) {
		return fmt.Sprintf("pid %s since %s, stale", pid, since)
	}
	return fmt.Sprintf("pid %s since %s", pid, since)
}
