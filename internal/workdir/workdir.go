// Package workdir resolves the directory that holds a device's .carelog data,
// supporting redirection through a .carelog-root file.
package workdir

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	dataDir  = ".carelog"
	rootFile = ".carelog-root"
)

// ResolveBaseDir walks up from dir to the nearest directory containing either
// a .carelog directory or a .carelog-root file. A .carelog-root file names
// the real data root; relative paths are resolved against the file's
// directory. With no marker anywhere above, dir is returned unchanged.
func ResolveBaseDir(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	for cur := abs; ; {
		if target, ok := readRootFile(cur); ok {
			return target
		}
		if info, err := os.Stat(filepath.Join(cur, dataDir)); err == nil && info.IsDir() {
			return cur
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return dir
		}
		cur = parent
	}
}

func readRootFile(dir string) (string, bool) {
	content, err := os.ReadFile(filepath.Join(dir, rootFile))
	if err != nil {
		return "", false
	}
	target := strings.TrimSpace(string(content))
	if target == "" {
		return "", false
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(dir, target)
	}
	return filepath.Clean(target), true
}
