package watcher

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// matcher decides which files and directories the watcher cares about.
type matcher struct {
	globs  []glob.Glob
	ignore []string
}

func newMatcher(include, ignore []string) (*matcher, error) {
	m := &matcher{ignore: ignore}
	for _, pattern := range include {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid include pattern %q: %w", pattern, err)
		}
		m.globs = append(m.globs, g)
		// "**/x" should also match x at the root.
		if rest, ok := strings.CutPrefix(pattern, "**/"); ok {
			g, err := glob.Compile(rest, '/')
			if err != nil {
				return nil, fmt.Errorf("invalid include pattern %q: %w", pattern, err)
			}
			m.globs = append(m.globs, g)
		}
	}
	return m, nil
}

// matchFile reports whether rel, a path relative to the root, is included.
func (m *matcher) matchFile(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, g := range m.globs {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

func (m *matcher) ignoredDir(name string) bool {
	return slices.Contains(m.ignore, name)
}

// ignoredPath reports whether any directory in rel is ignored.
func (m *matcher) ignoredPath(rel string) bool {
	parts := strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/")
	return slices.ContainsFunc(parts, m.ignoredDir)
}
