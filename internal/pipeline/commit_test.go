package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rana-image-tool/internal/bufpool"
	"rana-image-tool/internal/domain/batch"
	"rana-image-tool/internal/observability"
	"rana-image-tool/internal/testutils"
)

func tempFiles(t *testing.T, dir string) []string {
	t.Helper()
	var found []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.Contains(d.Name(), tempMarker) {
			found = append(found, path)
		}
		return nil
	})
	require.NoError(t, err)
	return found
}

func TestTempPath(t *testing.T) {
	a := tempPath("/d/photo.png")
	b := tempPath("/d/photo.png")

	assert.True(t, strings.HasPrefix(a, "/d/photo.png.tmp_"))
	assert.Len(t, strings.TrimPrefix(a, "/d/photo.png.tmp_"), 32)
	assert.NotEqual(t, a, b)
}

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out.png")

	require.NoError(t, WriteAtomic(target, []byte("first"), 0o644))
	require.NoError(t, WriteAtomic(target, []byte("second version"), 0o644))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "second version", string(data))
	assert.Empty(t, tempFiles(t, dir))
}

func TestWriteAtomic_RenameFailureRemovesTemp(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "occupied")
	require.NoError(t, os.MkdirAll(filepath.Join(target, "child"), 0o755))

	err := WriteAtomic(target, []byte("data"), 0o644)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rename")
	assert.Empty(t, tempFiles(t, dir))
}

func TestWriteAtomic_MissingDirectory(t *testing.T) {
	err := WriteAtomic(filepath.Join(t.TempDir(), "gone", "x.png"), []byte("data"), 0o644)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

type fakeArchiver struct {
	archived []string
	err      error
}

func (f *fakeArchiver) Archive(_ context.Context, path string) error {
	if f.err != nil {
		return f.err
	}
	f.archived = append(f.archived, path)
	return nil
}

func TestRunner_CommitResult(t *testing.T) {
	tests := []struct {
		name           string
		source         string
		targetExt      string
		deleteOriginal bool
		archiveErr     error
		expectErr      bool
		expectOriginal bool
		expectTarget   bool
		expectArchived int
	}{
		{name: "same path overwrites", source: "a.png", targetExt: ".png", deleteOriginal: true, expectOriginal: true, expectTarget: true},
		{name: "extension change deletes original", source: "b.jpg", targetExt: ".png", deleteOriginal: true, expectTarget: true, expectArchived: 1},
		{name: "case only difference keeps file", source: "c.PNG", targetExt: ".png", deleteOriginal: true, expectOriginal: true, expectTarget: true},
		{name: "delete not requested", source: "d.jpg", targetExt: ".png", expectOriginal: true, expectTarget: true},
		{name: "archive failure leaves disk untouched", source: "e.jpg", targetExt: ".png", deleteOriginal: true, archiveErr: errors.New("bucket unreachable"), expectErr: true, expectOriginal: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			source := testutils.WriteFile(t, dir, tt.source, []byte("old"))

			pool := bufpool.New(1 << 20)
			archiver := &fakeArchiver{err: tt.archiveErr}
			r := New(pool, observability.NewNopLogger(), Options{Workers: 1}, WithArchiver(archiver))

			buf := pool.Get(3)
			_, _ = buf.Write([]byte("new"))
			res := &batch.ResultUnit{Path: source, TargetExt: tt.targetExt, Data: buf, DeleteOriginal: tt.deleteOriginal}
			defer res.Release()

			err := r.commitResult(context.Background(), res)
			if tt.expectErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			target := res.TargetPath()
			if !strings.EqualFold(target, source) {
				_, statErr := os.Stat(source)
				assert.Equal(t, tt.expectOriginal, statErr == nil, "original presence")
			}
			data, readErr := os.ReadFile(target)
			if tt.expectTarget {
				require.NoError(t, readErr)
				assert.Equal(t, "new", string(data))
			} else {
				assert.ErrorIs(t, readErr, os.ErrNotExist)
			}
			assert.Len(t, archiver.archived, tt.expectArchived)
			assert.Empty(t, tempFiles(t, dir))
		})
	}
}

func TestTargetSet_Claim(t *testing.T) {
	files := []batch.FileDescriptor{
		{Path: "/d/x.jpg"},
		{Path: "/d/x.png"},
		{Path: "/d/a.jpg"},
		{Path: "/d/a.jpeg"},
		{Path: "/d/b.PNG"},
	}

	tests := []struct {
		name    string
		claims  [][2]string
		wantErr []bool
	}{
		{name: "own path", claims: [][2]string{{"/d/x.png", "/d/x.png"}}, wantErr: []bool{false}},
		{name: "case only rename of own path", claims: [][2]string{{"/d/b.PNG", "/d/b.png"}}, wantErr: []bool{false}},
		{name: "onto another discovered file", claims: [][2]string{{"/d/x.jpg", "/d/x.png"}}, wantErr: []bool{true}},
		{name: "onto a discovered file in another case", claims: [][2]string{{"/d/x.jpg", "/d/X.PNG"}}, wantErr: []bool{true}},
		{name: "two sources one target", claims: [][2]string{{"/d/a.jpg", "/d/a.png"}, {"/d/a.jpeg", "/d/a.png"}}, wantErr: []bool{false, true}},
		{name: "file outside the batch", claims: [][2]string{{"/d/a.jpg", "/d/c.png"}}, wantErr: []bool{false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTargetSet(files)
			for i, c := range tt.claims {
				err := s.claim(c[0], c[1])
				if tt.wantErr[i] {
					assert.ErrorIs(t, err, ErrTargetCollision)
				} else {
					assert.NoError(t, err)
				}
			}
		})
	}
}
