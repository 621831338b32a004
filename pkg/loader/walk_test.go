package loader

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
)

func TestVisit_SkipsUnreadableEntries(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "locked")
	require.NoError(t, os.Mkdir(sub, 0o755))
	info, err := os.Stat(sub)
	require.NoError(t, err)

	var paths []string
	visit := NewWithConfig(LoaderConfig{Path: root}).visit(root, &paths)
	denied := &fs.PathError{Op: "open", Path: sub, Err: fs.ErrPermission}

	assert.Equal(t, fs.SkipDir, visit(sub, fs.FileInfoToDirEntry(info), denied))
	assert.NoError(t, visit(filepath.Join(root, "gone.txt"), nil, denied))
	assert.ErrorIs(t, visit(root, nil, denied), fs.ErrPermission)
	assert.Empty(t, paths)
}

func TestLoad_UnreadableSubdirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("Atoms have a nucleus."), 0o644))
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Mkdir(locked, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(locked, "b.txt"), []byte("Hidden."), 0o644))
	require.NoError(t, os.Chmod(locked, 0))
	t.Cleanup(func() { os.Chmod(locked, 0o755) })

	docs := NewWithConfig(LoaderConfig{Path: root}).Load(context.Background())
	require.Len(t, docs, 1)
	assert.Equal(t, "a.txt", docs[0].SourceID)
}

func TestLoad_PDFParserPanic(t *testing.T) {
	orig := parsePDF
	t.Cleanup(func() { parsePDF = orig })
	parsePDF = func(ctx context.Context, r io.ReaderAt, size int64) ([]schema.Document, error) {
		panic(errors.New("malformed font dictionary"))
	}

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "broken.pdf"), []byte("%PDF-1.4\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("Light travels fast."), 0o644))

	var docs []string
	assert.NotPanics(t, func() {
		for _, d := range NewWithConfig(LoaderConfig{Path: root}).Load(context.Background()) {
			docs = append(docs, d.SourceID)
		}
	})
	assert.Equal(t, []string{"notes.txt"}, docs)
}
