// Package indexer keeps the semantic index and the keyword mirror in step and loads
// knowledge-base files into both.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/hyperjump/semdex/internal/extract"
	"github.com/hyperjump/semdex/internal/keyword"
	"github.com/hyperjump/semdex/internal/models"
	"github.com/hyperjump/semdex/internal/semantic"
	"github.com/hyperjump/semdex/pkg/utils"
	"go.uber.org/zap"
)

// ErrNoKeywordIndex is returned by KeywordSearch when no mirror is configured.
var ErrNoKeywordIndex = errors.New("keyword index is not configured")

const (
	metaKeySourcePath  = "source_path"
	metaKeySourceMtime = "source_mtime"
	metaKeySourceSize  = "source_size"
	metaKeyTitle       = "title"
)

// Indexer applies catalog mutations to the semantic index first and then mirrors them
// into the keyword index. Mirror failures are logged, never returned: the semantic
// index is the source of truth and Resync repairs the mirror.
type Indexer struct {
	index     *semantic.Index
	keyword   keyword.Mirror
	extractor *extract.Extractor
	logger    *zap.Logger
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(idx *Indexer) { idx.logger = l }
}

// WithKeywordIndex mirrors every mutation into m.
func WithKeywordIndex(m keyword.Mirror) Option {
	return func(idx *Indexer) { idx.keyword = m }
}

// New returns an Indexer over index. extractor may be nil, in which case files are
// read as plain text.
func New(index *semantic.Index, extractor *extract.Extractor, opts ...Option) *Indexer {
	idx := &Indexer{index: index, extractor: extractor, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Index returns the semantic index the indexer writes to.
func (idx *Indexer) Index() *semantic.Index { return idx.index }

// Build replaces the whole catalog with inputs. Inputs without an id get a random one.
func (idx *Indexer) Build(ctx context.Context, inputs []*models.DocumentInput) ([]*models.Document, error) {
	docs := make([]*models.Document, len(inputs))
	for n, in := range inputs {
		doc, err := withID(in)
		if err != nil {
			return nil, err
		}
		docs[n] = doc
	}
	if err := idx.index.Build(ctx, docs); err != nil {
		return nil, err
	}
	idx.resetMirror(ctx, docs)
	return docs, nil
}

// Restore rebuilds the semantic index from persistence and re-mirrors it.
func (idx *Indexer) Restore(ctx context.Context) error {
	if err := idx.index.Restore(ctx); err != nil {
		return err
	}
	return idx.Resync(ctx)
}

// Resync makes the keyword mirror hold exactly the catalog's documents.
func (idx *Indexer) Resync(ctx context.Context) error {
	if idx.keyword == nil {
		return nil
	}
	docs, err := idx.index.Documents(ctx)
	if err != nil {
		return err
	}
	if err := idx.keyword.Reset(ctx, docs); err != nil {
		return fmt.Errorf("failed to resync keyword index: %w", err)
	}
	return nil
}

// Add inserts a new document and returns it with its final id.
func (idx *Indexer) Add(ctx context.Context, input *models.DocumentInput) (*models.Document, error) {
	doc, err := withID(input)
	if err != nil {
		return nil, err
	}
	if err := idx.index.Add(ctx, doc); err != nil {
		return nil, err
	}
	idx.mirror(ctx, doc)
	return doc, nil
}

// Update replaces the document with doc.ID, adding it when absent.
func (idx *Indexer) Update(ctx context.Context, doc *models.Document) error {
	if err := idx.index.Update(ctx, doc); err != nil {
		return err
	}
	idx.mirror(ctx, doc)
	return nil
}

// Remove deletes a document from both indices.
func (idx *Indexer) Remove(ctx context.Context, id string) error {
	if err := idx.index.Remove(ctx, id); err != nil {
		return err
	}
	if idx.keyword != nil {
		if err := idx.keyword.Delete(ctx, id); err != nil {
			idx.logger.Warn("keyword delete failed", zap.String("id", id), zap.Error(err))
		}
	}
	return nil
}

// Clear empties both indices and returns the semantic index to the unbuilt state.
func (idx *Indexer) Clear(ctx context.Context) error {
	if err := idx.index.Clear(ctx); err != nil {
		return err
	}
	idx.resetMirror(ctx, nil)
	return nil
}

// KeywordSearch runs a full-text query against the mirror.
func (idx *Indexer) KeywordSearch(ctx context.Context, query string, k int) ([]models.KeywordResult, error) {
	if idx.keyword == nil {
		return nil, ErrNoKeywordIndex
	}
	return idx.keyword.Search(ctx, query, k, &keyword.SearchOptions{TitleBoost: 2})
}

// KeywordCount returns the number of documents in the keyword mirror.
func (idx *Indexer) KeywordCount() (uint64, error) {
	if idx.keyword == nil {
		return 0, ErrNoKeywordIndex
	}
	return idx.keyword.DocCount()
}

func (idx *Indexer) mirror(ctx context.Context, doc *models.Document) {
	if idx.keyword == nil {
		return
	}
	if err := idx.keyword.Index(ctx, doc); err != nil {
		idx.logger.Warn("keyword index failed", zap.String("id", doc.ID), zap.Error(err))
	}
}

func (idx *Indexer) resetMirror(ctx context.Context, docs []*models.Document) {
	if idx.keyword == nil {
		return
	}
	if err := idx.keyword.Reset(ctx, docs); err != nil {
		idx.logger.Warn("keyword reset failed", zap.Int("documents", len(docs)), zap.Error(err))
	}
}

func withID(in *models.DocumentInput) (*models.Document, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: nil document", models.ErrInvalidDocument)
	}
	doc := in.Document()
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	return doc, nil
}

// IndexFile extracts the file at path and stores it under FileDocID of its absolute
// path. Unchanged files (same mtime and size as the stored copy) are skipped. If
// allowedExts is non-empty the extension must be listed.
func (idx *Indexer) IndexFile(ctx context.Context, path string, allowedExts []string) error {
	_, err := idx.indexFile(ctx, path, allowedExts)
	return err
}

// indexFile reports whether the file was written to the index; false with a nil
// error means it was skipped as unchanged.
func (idx *Indexer) indexFile(ctx context.Context, path string, allowedExts []string) (bool, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("absolute path: %w", err)
	}
	if len(allowedExts) > 0 && !extensionAllowed(filepath.Ext(absPath), allowedExts) {
		return false, fmt.Errorf("extension %q not in allowed list", filepath.Ext(absPath))
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return false, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return false, fmt.Errorf("not a regular file: %s", absPath)
	}

	id := FileDocID(absPath)
	if idx.unchanged(ctx, id, absPath, info) {
		idx.logger.Debug("skipping unchanged file", zap.String("path", absPath))
		return false, nil
	}
	extracted, err := idx.extract(absPath)
	if err != nil {
		return false, fmt.Errorf("extract content: %w", err)
	}
	content := utils.CollapseSpace(extracted.Text)
	if content == "" {
		return false, fmt.Errorf("no text in %s", absPath)
	}
	doc := &models.Document{
		ID:      id,
		Content: content,
		Metadata: map[string]interface{}{
			metaKeyTitle:      strings.ReplaceAll(extracted.Title, "_", " "),
			metaKeySourcePath: absPath,
			// strings: UnixNano does not survive a float64 JSON round trip
			metaKeySourceMtime: strconv.FormatInt(info.ModTime().UnixNano(), 10),
			metaKeySourceSize:  strconv.FormatInt(info.Size(), 10),
		},
	}
	if err := idx.Update(ctx, doc); err != nil {
		return false, err
	}
	idx.logger.Debug("file indexed", zap.String("path", absPath), zap.String("id", id))
	return true, nil
}

func (idx *Indexer) unchanged(ctx context.Context, id, absPath string, info os.FileInfo) bool {
	doc, err := idx.index.Document(ctx, id)
	if err != nil {
		return false
	}
	return doc.Metadata[metaKeySourcePath] == absPath &&
		doc.Metadata[metaKeySourceMtime] == strconv.FormatInt(info.ModTime().UnixNano(), 10) &&
		doc.Metadata[metaKeySourceSize] == strconv.FormatInt(info.Size(), 10)
}

func (idx *Indexer) extract(path string) (*extract.Extracted, error) {
	if idx.extractor != nil {
		return idx.extractor.Extract(path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &extract.Extracted{Title: filepath.Base(path), Text: string(content)}, nil
}

// IndexDirectory walks dir recursively and indexes every regular file whose extension
// is allowed. Files that fail are logged and skipped; an unready index or a cancelled
// context stops the walk. It returns the number of files written; unchanged files are
// skipped and not counted.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string, allowedExts []string) (int, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	n := 0
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if len(allowedExts) > 0 && !extensionAllowed(filepath.Ext(path), allowedExts) {
			return nil
		}
		written, err := idx.indexFile(ctx, path, allowedExts)
		if err != nil {
			if errors.Is(err, semantic.ErrNotReady) {
				return err
			}
			idx.logger.Warn("skipping file", zap.String("path", path), zap.Error(err))
			return nil
		}
		if written {
			n++
		}
		return nil
	})
	return n, err
}

// RemoveFile drops the document of the file at path. A file that was never indexed is
// not an error.
func (idx *Indexer) RemoveFile(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	err = idx.Remove(ctx, FileDocID(absPath))
	if errors.Is(err, semantic.ErrNotFound) {
		return nil
	}
	return err
}

func extensionAllowed(ext string, allowed []string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == ext {
			return true
		}
	}
	return false
}
