package postmortem

import (
	"os"
	"path/filepath"
	"sync"
)

// The source search path is consulted when a dump refers to sources by a
// path that no longer resolves directly, typically because the dump was
// captured under a different project root.

var (
	searchMu   sync.Mutex
	searchPath []string
)

// WithSearchPath prepends dir to the source search path, optionally makes
// it the working directory, runs fn, and restores both on exit regardless
// of success or failure. An empty dir runs fn unchanged.
func WithSearchPath(dir string, chdir bool, fn func() error) error {
	if dir == "" {
		return fn()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	searchMu.Lock()
	searchPath = append([]string{abs}, searchPath...)
	searchMu.Unlock()

	var oldwd string
	if chdir {
		oldwd, err = os.Getwd()
		if err == nil {
			err = os.Chdir(abs)
		}
		if err != nil {
			removeSearchDir(abs)
			return err
		}
	}

	defer func() {
		removeSearchDir(abs)
		if chdir {
			_ = os.Chdir(oldwd)
		}
	}()
	return fn()
}

// ResolveSource maps a captured source path onto this process's
// filesystem: an existing path is returned as is, otherwise the search
// path directories are tried against the path's trailing components.
func ResolveSource(path string) string {
	if _, err := os.Stat(path); err == nil {
		return path
	}
	searchMu.Lock()
	dirs := append([]string(nil), searchPath...)
	searchMu.Unlock()

	base := filepath.Base(path)
	for _, dir := range dirs {
		if candidate := filepath.Join(dir, base); exists(candidate) {
			return candidate
		}
		if rel := relTail(path); rel != "" {
			if candidate := filepath.Join(dir, rel); exists(candidate) {
				return candidate
			}
		}
	}
	return path
}

func removeSearchDir(dir string) {
	searchMu.Lock()
	defer searchMu.Unlock()
	for i, d := range searchPath {
		if d == dir {
			searchPath = append(searchPath[:i], searchPath[i+1:]...)
			return
		}
	}
}

// relTail returns the last two components of path, a pragmatic match for
// package-dir/file layouts.
func relTail(path string) string {
	dir := filepath.Base(filepath.Dir(path))
	if dir == "." || dir == string(filepath.Separator) {
		return ""
	}
	return filepath.Join(dir, filepath.Base(path))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
