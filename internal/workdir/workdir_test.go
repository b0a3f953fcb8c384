package workdir

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveBaseDir_FindsDataDirFromSubdir(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, dataDir), 0755); err != nil {
		t.Fatalf("create %s: %v", dataDir, err)
	}
	subdir := filepath.Join(root, "nested", "dir")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatalf("create subdir: %v", err)
	}

	assertSamePath(t, root, ResolveBaseDir(subdir))
}

func TestResolveBaseDir_FollowsRootFile(t *testing.T) {
	shared := filepath.Join(t.TempDir(), "shared")
	if err := os.MkdirAll(shared, 0755); err != nil {
		t.Fatalf("create shared root: %v", err)
	}
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, rootFile), []byte(shared+"\n"), 0644); err != nil {
		t.Fatalf("write %s: %v", rootFile, err)
	}

	assertSamePath(t, shared, ResolveBaseDir(dir))
}

func TestResolveBaseDir_RelativeRootFile(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "tablet")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("create dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, rootFile), []byte("../family\n"), 0644); err != nil {
		t.Fatalf("write %s: %v", rootFile, err)
	}

	assertSamePath(t, filepath.Join(parent, "family"), ResolveBaseDir(dir))
}

func TestResolveBaseDir_EmptyRootFileIgnored(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, rootFile), []byte("  \n"), 0644); err != nil {
		t.Fatalf("write %s: %v", rootFile, err)
	}
	if err := os.MkdirAll(filepath.Join(dir, dataDir), 0755); err != nil {
		t.Fatal(err)
	}

	assertSamePath(t, dir, ResolveBaseDir(dir))
}

func TestResolveBaseDir_NoMarkerReturnsInput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if got := ResolveBaseDir(dir); got != dir {
		t.Fatalf("ResolveBaseDir(%q) = %q, want unchanged", dir, got)
	}
}

func assertSamePath(t *testing.T, want, got string) {
	t.Helper()
	wantEval, err := filepath.EvalSymlinks(want)
	if err != nil {
		wantEval = filepath.Clean(want)
	}
	gotEval, err := filepath.EvalSymlinks(got)
	if err != nil {
		gotEval = filepath.Clean(got)
	}
	if wantEval != gotEval {
		t.Fatalf("path = %q, want %q", got, want)
	}
}
