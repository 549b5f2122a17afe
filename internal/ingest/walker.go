package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"golang.org/x/sync/errgroup"

	"github.com/agentic-research/kiln/api"
)

const readConcurrency = 16

// Walk enumerates every regular file under root, depth first in name order,
// and returns one entry per file keyed by its slash-separated path relative
// to root. Files are read concurrently, each exactly once. Any error aborts
// the whole walk.
func Walk(ctx context.Context, fsys billy.Filesystem, root string) ([]api.Entry, error) {
	if root == "" {
		root = "/"
	}

	var paths []string
	err := util.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	entries := make([]api.Entry, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(readConcurrency)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			key, err := relativeKey(root, path)
			if err != nil {
				return err
			}
			data, err := util.ReadFile(fsys, path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			entries[i] = api.Entry{Key: key, Value: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

func relativeKey(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", fmt.Errorf("relative path of %s: %w", path, err)
	}
	return filepath.ToSlash(rel), nil
}
