//go:build unix

package db

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func lockDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, dataDir), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return dir
}

func TestFileLock_Exclusive(t *testing.T) {
	dir := lockDir(t)

	var mu sync.Mutex
	inside := 0
	maxInside := 0
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				l := newFileLock(dir)
				if err := l.lock(5 * time.Second); err != nil {
					t.Errorf("lock: %v", err)
					return
				}
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				l.unlock()
			}
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Fatalf("lock held by %d holders at once", maxInside)
	}
}

func TestFileLock_TimeoutNamesHolder(t *testing.T) {
	dir := lockDir(t)
	first := newFileLock(dir)
	if err := first.lock(time.Second); err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer first.unlock()

	second := newFileLock(dir)
	err := second.lock(50 * time.Millisecond)
	if err == nil {
		second.unlock()
		t.Fatal("expected timeout")
	}
	if !strings.Contains(err.Error(), "busy") || !strings.Contains(err.Error(), "pid") {
		t.Fatalf("error should describe holder: %v", err)
	}
}

func TestTryLockSync_OneHolderPerDataDir(t *testing.T) {
	dir := t.TempDir()
	first, err := Initialize(dir)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer first.Close()
	second, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer second.Close()

	unlock, held, err := first.TryLockSync()
	if err != nil || !held {
		t.Fatalf("first lock: held=%v err=%v", held, err)
	}
	if _, held, err := second.TryLockSync(); err != nil || held {
		t.Fatalf("second handle took a held lock: held=%v err=%v", held, err)
	}
	// Ordinary writes use a different lock and still go through.
	if err := second.SetServerVersion(3); err != nil {
		t.Fatalf("write while sync lock held: %v", err)
	}

	unlock()
	unlock2, held, err := second.TryLockSync()
	if err != nil || !held {
		t.Fatalf("lock after release: held=%v err=%v", held, err)
	}
	unlock2()
}
