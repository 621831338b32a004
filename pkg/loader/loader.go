// Package loader reads the tutor's document corpus from a directory.
//
// A missing or empty directory is a normal state: the tutor then answers from
// the model's own knowledge. Unreadable files are logged and skipped.
package loader

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/xhad/tutor/internal/models"
	"github.com/xhad/tutor/pkg/scraper"
)

type LoaderConfig struct {
	Path       string
	Extensions []string
}

type Loader struct {
	config LoaderConfig
}

func NewWithConfig(config LoaderConfig) *Loader {
	if config.Path == "" {
		config.Path = "./documents"
	}
	if len(config.Extensions) == 0 {
		config.Extensions = []string{".pdf", ".txt", ".md", ".html", ".htm"}
	}
	return &Loader{config: config}
}

// Load returns every readable document under the configured directory,
// creating the directory if it does not exist yet.
func (l *Loader) Load(ctx context.Context) []models.Document {
	root := l.config.Path

	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(root, 0o755); err != nil {
			log.Printf("Failed to create documents folder %s: %v", root, err)
			return nil
		}
		log.Printf("Created documents folder at %s", root)
		return nil
	}
	if err != nil {
		log.Printf("Failed to read documents folder %s: %v", root, err)
		return nil
	}
	if !info.IsDir() {
		log.Printf("Documents path %s is not a directory", root)
		return nil
	}

	paths, err := l.collect(root)
	if err != nil {
		log.Printf("Failed to walk documents folder %s: %v", root, err)
		return nil
	}

	var docs []models.Document
	for _, path := range paths {
		if ctx.Err() != nil {
			log.Printf("Document loading interrupted: %v", ctx.Err())
			return docs
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		loaded, err := l.loadFile(ctx, path, rel)
		if err != nil {
			log.Printf("Skipping %s: %v", rel, err)
			continue
		}
		docs = append(docs, loaded...)
	}

	log.Printf("Loaded %d document pages from %s", len(docs), root)
	return docs
}

func (l *Loader) collect(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, l.visit(root, &paths))
	sort.Strings(paths)
	return paths, err
}

// visit collects allowed files. Entries below root that cannot be read are
// logged and skipped so one bad folder does not hide the rest of the corpus.
func (l *Loader) visit(root string, paths *[]string) fs.WalkDirFunc {
	return func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			log.Printf("Skipping unreadable %s: %v", path, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if l.allowed(path) {
			*paths = append(*paths, path)
		}
		return nil
	}
}

func (l *Loader) allowed(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range l.config.Extensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

func (l *Loader) loadFile(ctx context.Context, path, rel string) ([]models.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		pages, err := loadPDF(ctx, f, info.Size())
		if err != nil {
			return nil, fmt.Errorf("failed to parse pdf: %w", err)
		}
		return fromSchema(rel, pages), nil

	case ".html", ".htm":
		title, content, err := scraper.ExtractText(f)
		if err != nil {
			return nil, fmt.Errorf("failed to parse html: %w", err)
		}
		return nonBlank([]models.Document{{
			ID:       rel,
			SourceID: rel,
			Title:    title,
			Content:  content,
			Metadata: map[string]interface{}{"source": rel},
		}}), nil

	default:
		text := documentloaders.NewText(f)
		texts, err := text.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read text: %w", err)
		}
		return fromSchema(rel, texts), nil
	}
}

var parsePDF = func(ctx context.Context, r io.ReaderAt, size int64) ([]schema.Document, error) {
	return documentloaders.NewPDF(r, size).Load(ctx)
}

// loadPDF turns a panic in the PDF parser into an error for that file.
func loadPDF(ctx context.Context, r io.ReaderAt, size int64) (pages []schema.Document, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("pdf parser panicked: %v", v)
		}
	}()
	return parsePDF(ctx, r, size)
}

func fromSchema(rel string, in []schema.Document) []models.Document {
	docs := make([]models.Document, 0, len(in))
	for i, d := range in {
		metadata := map[string]interface{}{"source": rel}
		for k, v := range d.Metadata {
			metadata[k] = v
		}

		id := rel
		if len(in) > 1 {
			id = fmt.Sprintf("%s#%d", rel, i+1)
		}

		docs = append(docs, models.Document{
			ID:       id,
			SourceID: rel,
			Title:    filepath.Base(rel),
			Content:  d.PageContent,
			Metadata: metadata,
		})
	}
	return nonBlank(docs)
}

func nonBlank(docs []models.Document) []models.Document {
	out := docs[:0]
	for _, d := range docs {
		if strings.TrimSpace(d.Content) != "" {
			out = append(out, d)
		}
	}
	return out
}
