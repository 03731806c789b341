package watcher

import (
	"context"
	"io/fs"
	"path/filepath"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/flixbridge/internal/session"
)

// Discover walks roots concurrently and returns the file:// URIs of every
// included file, sorted and without duplicates.
func Discover(ctx context.Context, roots []string, opts ...Option) ([]string, error) {
	cfg := newConfig(opts)
	m, err := newMatcher(cfg.include, cfg.ignore)
	if err != nil {
		return nil, err
	}

	var (
		mu    sync.Mutex
		found []string
	)
	g, ctx := errgroup.WithContext(ctx)
	for _, root := range roots {
		g.Go(func() error {
			files, err := walk(ctx, root, root, m)
			if err != nil {
				return err
			}
			mu.Lock()
			for _, f := range files {
				found = append(found, session.FileURI(f))
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slices.Sort(found)
	return slices.Compact(found), nil
}

// walk returns the included files under dir. Include patterns are matched
// against paths relative to root.
func walk(ctx context.Context, root, dir string, m *matcher) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && m.ignoredDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if m.matchFile(rel) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
