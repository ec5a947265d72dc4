// Package sourcecache is a process-wide cache of source file text used for
// line rendering. Entries normally re-validate against the filesystem, but
// a post-mortem session installs archived sources as pinned entries and
// disables invalidation so the cache cannot "correct" itself against files
// that no longer match what was captured.
package sourcecache

import (
	"os"
	"strings"
	"sync"
	"time"
)

type entry struct {
	lines []string
	size  int64
	mtime time.Time
	// virtual entries come from a dump's source archive and are never
	// re-validated against the filesystem.
	virtual bool
}

var (
	mu           sync.Mutex
	cache        = map[string]*entry{}
	invalidation = true
)

// Line returns the 1-based line n of file, loading the file on a cache
// miss. It returns the empty string when the file or line is unavailable.
func Line(file string, n int) string {
	lines := Lines(file)
	if n < 1 || n > len(lines) {
		return ""
	}
	return lines[n-1]
}

// Lines returns every line of file, loading or re-validating the cache
// entry as needed.
func Lines(file string) []string {
	mu.Lock()
	defer mu.Unlock()

	e, ok := cache[file]
	if ok && (e.virtual || !invalidation || fresh(file, e)) {
		return e.lines
	}
	data, err := os.ReadFile(file)
	if err != nil {
		if ok {
			// Keep serving the stale entry rather than dropping lines
			// mid-session.
			return e.lines
		}
		return nil
	}
	e = &entry{lines: splitLines(string(data))}
	if info, err := os.Stat(file); err == nil {
		e.size = info.Size()
		e.mtime = info.ModTime()
	}
	cache[file] = e
	return e.lines
}

// Install re-populates the cache with archived sources. Previously
// installed archive entries are replaced, not merged.
func Install(files map[string]string) {
	mu.Lock()
	defer mu.Unlock()
	for path, e := range cache {
		if e.virtual {
			delete(cache, path)
		}
	}
	for path, text := range files {
		cache[path] = &entry{lines: splitLines(text), virtual: true}
	}
}

// DisableInvalidation pins every disk-backed entry for the rest of the
// session.
func DisableInvalidation() {
	mu.Lock()
	invalidation = false
	mu.Unlock()
}

// EnableInvalidation restores filesystem re-validation.
func EnableInvalidation() {
	mu.Lock()
	invalidation = true
	mu.Unlock()
}

// Flush drops every cached entry, including installed archives.
func Flush() {
	mu.Lock()
	cache = map[string]*entry{}
	mu.Unlock()
}

func fresh(file string, e *entry) bool {
	info, err := os.Stat(file)
	if err != nil {
		return true
	}
	return info.Size() == e.size && info.ModTime().Equal(e.mtime)
}

func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
