package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rana-image-tool/internal/domain/batch"
	"rana-image-tool/internal/observability"
	"rana-image-tool/internal/testutils"
)

func TestNormalizeExtensions(t *testing.T) {
	set := NormalizeExtensions([]string{".JPG", "png", " .Jpeg ", ""})
	assert.Equal(t, map[string]struct{}{".jpg": {}, ".png": {}, ".jpeg": {}}, set)
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"a.PNG",
		"b.jpg",
		"sub/c.jpeg",
		"sub/deeper/d.Jpg",
		".hidden/e.png",
		"sub/.f.png",
		"g.txt",
		"noext",
		"h.webp",
	} {
		testutils.WriteFile(t, dir, name, []byte("x"))
	}

	files, err := Discover(context.Background(), dir, []string{".jpg", ".jpeg", ".png"}, observability.NewNopLogger())
	require.NoError(t, err)

	var got []string
	for _, f := range files {
		rel, err := filepath.Rel(dir, f.Path)
		require.NoError(t, err)
		got = append(got, filepath.ToSlash(rel))
		assert.Equal(t, int64(1), f.Size)
		assert.True(t, filepath.IsAbs(f.Path))
	}
	sort.Strings(got)
	assert.Equal(t, []string{"a.PNG", "b.jpg", "sub/c.jpeg", "sub/deeper/d.Jpg"}, got)
}

func TestDiscover_RootErrors(t *testing.T) {
	dir := t.TempDir()
	file := testutils.WriteFile(t, dir, "file.png", []byte("x"))

	tests := []struct {
		name string
		root string
	}{
		{name: "missing directory", root: filepath.Join(dir, "nope")},
		{name: "root is a file", root: file},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Discover(context.Background(), tt.root, []string{".png"}, observability.NewNopLogger())
			assert.ErrorIs(t, err, batch.ErrDirectoryNotFound)
		})
	}
}

func TestDiscover_SkipsUnreadableDirectories(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}

	dir := t.TempDir()
	testutils.WriteFile(t, dir, "ok.png", []byte("x"))
	testutils.WriteFile(t, dir, "locked/inside.png", []byte("x"))
	locked := filepath.Join(dir, "locked")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	files, err := Discover(context.Background(), dir, []string{".png"}, observability.NewNopLogger())
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "ok.png", filepath.Base(files[0].Path))
}

func TestDiscover_NoMatches(t *testing.T) {
	dir := t.TempDir()
	testutils.WriteFile(t, dir, "readme.md", []byte("x"))

	files, err := Discover(context.Background(), dir, []string{".png"}, observability.NewNopLogger())
	require.NoError(t, err)
	assert.Empty(t, files)
}
