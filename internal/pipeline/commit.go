package pipeline

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"rana-image-tool/internal/domain/batch"
)

const tempMarker = ".tmp_"

// ErrTargetCollision is returned when a result would overwrite another file
// of the same batch.
var ErrTargetCollision = errors.New("target path collides with another file in the batch")

const defaultFileMode fs.FileMode = 0o644

// tempPath returns a sibling of path that no other writer in any process
// will pick.
func tempPath(path string) string {
	id := uuid.New()
	return path + tempMarker + hex.EncodeToString(id[:])
}

// WriteAtomic writes data to path so that readers of path only ever see the
// previous complete file or the new complete file. The data goes to an
// exclusively created sibling temp file which is then renamed over path.
// The temp file is removed on every failure.
func WriteAtomic(path string, data []byte, perm fs.FileMode) (err error) {
	tmp := tempPath(path)
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// samePath compares paths the way case-insensitive filesystems do.
func samePath(a, b string) bool {
	return strings.EqualFold(a, b)
}

// targetSet tracks final paths within one batch. A result may land on its
// own source path, but never on another discovered file or on a path an
// earlier result already took. Only the Committer uses it.
type targetSet struct {
	sources map[string]struct{}
	claimed map[string]string
}

func targetKey(path string) string {
	return strings.ToLower(filepath.Clean(path))
}

func newTargetSet(files []batch.FileDescriptor) *targetSet {
	s := &targetSet{
		sources: make(map[string]struct{}, len(files)),
		claimed: make(map[string]string, len(files)),
	}
	for _, f := range files {
		s.sources[targetKey(f.Path)] = struct{}{}
	}
	return s
}

func (s *targetSet) claim(source, target string) error {
	key := targetKey(target)
	if key != targetKey(source) {
		if _, ok := s.sources[key]; ok {
			return fmt.Errorf("%w: %s", ErrTargetCollision, filepath.Base(target))
		}
	}
	if prev, ok := s.claimed[key]; ok && prev != source {
		return fmt.Errorf("%w: %s", ErrTargetCollision, filepath.Base(target))
	}
	s.claimed[key] = source
	return nil
}

// commitResult writes one result to its final path and, when requested,
// removes the original afterwards. With an archiver configured the original
// is archived before anything is written; a failed upload leaves the disk
// untouched.
func (r *Runner) commitResult(ctx context.Context, res *batch.ResultUnit) error {
	target := res.TargetPath()
	removeOriginal := res.DeleteOriginal && !samePath(res.Path, target)

	perm := defaultFileMode
	if fi, err := os.Stat(res.Path); err == nil {
		perm = fi.Mode().Perm()
	}

	if removeOriginal && r.archiver != nil {
		if err := r.archiver.Archive(ctx, res.Path); err != nil {
			return fmt.Errorf("failed to archive original: %w", err)
		}
	}

	if err := WriteAtomic(target, res.Data.Bytes(), perm); err != nil {
		return err
	}

	if removeOriginal {
		if err := os.Remove(res.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to delete original: %w", err)
		}
	}
	return nil
}
