package loader_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/tutor/pkg/loader"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad_MissingDirectoryIsCreated(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "documents")

	docs := loader.NewWithConfig(loader.LoaderConfig{Path: dir}).Load(context.Background())
	assert.Empty(t, docs)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLoad_EmptyDirectory(t *testing.T) {
	docs := loader.NewWithConfig(loader.LoaderConfig{Path: t.TempDir()}).Load(context.Background())
	assert.Empty(t, docs)
}

func TestLoad_MixedCorpus(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.md"), "# Cells\nCells are the unit of life.")
	writeFile(t, filepath.Join(dir, "a.txt"), "Water boils at 100 degrees Celsius at sea level.")
	writeFile(t, filepath.Join(dir, "nested", "c.html"),
		"<html><head><title>Atoms</title></head><body><main>Atoms have a nucleus.</main></body></html>")
	writeFile(t, filepath.Join(dir, "blank.txt"), "   \n")
	writeFile(t, filepath.Join(dir, "notes.docx"), "ignored")
	writeFile(t, filepath.Join(dir, "broken.pdf"), "this is not a pdf")

	docs := loader.NewWithConfig(loader.LoaderConfig{Path: dir}).Load(context.Background())
	require.Len(t, docs, 3)

	assert.Equal(t, "a.txt", docs[0].SourceID)
	assert.Equal(t, "Water boils at 100 degrees Celsius at sea level.", docs[0].Content)
	assert.Equal(t, "b.md", docs[1].SourceID)
	assert.Contains(t, docs[1].Content, "unit of life")
	assert.Equal(t, "nested/c.html", docs[2].SourceID)
	assert.Equal(t, "Atoms", docs[2].Title)
	assert.Equal(t, "Atoms have a nucleus.", docs[2].Content)
	assert.Equal(t, "nested/c.html", docs[2].Metadata["source"])
}

func TestLoad_ExtensionFilter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "plain text")
	writeFile(t, filepath.Join(dir, "b.md"), "markdown text")

	docs := loader.NewWithConfig(loader.LoaderConfig{
		Path:       dir,
		Extensions: []string{".MD"},
	}).Load(context.Background())

	require.Len(t, docs, 1)
	assert.Equal(t, "b.md", docs[0].SourceID)
}

func TestLoad_PathIsAFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "documents")
	writeFile(t, file, "not a directory")

	docs := loader.NewWithConfig(loader.LoaderConfig{Path: file}).Load(context.Background())
	assert.Empty(t, docs)
}
