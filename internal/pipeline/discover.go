package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"rana-image-tool/internal/domain/batch"
	"rana-image-tool/internal/observability"
)

// NormalizeExtensions lower-cases extensions and adds a leading dot where
// missing.
func NormalizeExtensions(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = struct{}{}
	}
	return set
}

func isHidden(name string) bool {
	return len(name) > 1 && strings.HasPrefix(name, ".")
}

// Discover walks root recursively and returns every regular file whose
// extension is in exts, compared case-insensitively. Hidden files and
// directories are skipped, as are entries that cannot be read. Only a
// missing root is an error.
func Discover(ctx context.Context, root string, exts []string, logger *observability.Logger) ([]batch.FileDescriptor, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", batch.ErrDirectoryNotFound, root)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", batch.ErrDirectoryNotFound, abs)
	}

	want := NormalizeExtensions(exts)
	var files []batch.FileDescriptor

	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == abs {
				return walkErr
			}
			logger.Debug(ctx).Err(walkErr).Str("path", path).Msg("Skipping inaccessible entry")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if path != abs && isHidden(d.Name()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := want[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}

		// Stat follows symlinks, so a link to a regular file is kept.
		fi, err := os.Stat(path)
		if err != nil {
			logger.Debug(ctx).Err(err).Str("path", path).Msg("Skipping inaccessible entry")
			return nil
		}
		if !fi.Mode().IsRegular() {
			return nil
		}

		files = append(files, batch.FileDescriptor{Path: path, Size: fi.Size()})
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to walk %s: %w", abs, err)
	}

	return files, nil
}
