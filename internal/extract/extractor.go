// Package extract turns knowledge-base files into plain text for indexing.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned for file extensions no extractor handles.
var ErrUnsupported = errors.New("unsupported file type")

// Extracted is the text of one file plus a display title.
type Extracted struct {
	Title string
	Text  string
}

type extractFunc func(content []byte) (*Extracted, error)

// Extractor extracts text from .txt, .md, .pdf and .xlsx files.
type Extractor struct {
	byExt map[string]extractFunc
}

// NewExtractor returns an Extractor for every supported format.
func NewExtractor() *Extractor {
	return &Extractor{byExt: map[string]extractFunc{
		".txt":      extractPlain,
		".text":     extractPlain,
		".md":       extractMarkdown,
		".markdown": extractMarkdown,
		".pdf":      extractPDF,
		".xlsx":     extractExcel,
	}}
}

// Supports reports whether ext (with leading dot, any case) can be extracted.
func (e *Extractor) Supports(ext string) bool {
	_, ok := e.byExt[strings.ToLower(ext)]
	return ok
}

// Extract reads the file at path and returns its text. When the format carries no
// title the file name without extension is used.
func (e *Extractor) Extract(path string) (*Extracted, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	ext := filepath.Ext(path)
	out, err := e.ExtractBytes(content, ext)
	if err != nil {
		return nil, err
	}
	if out.Title == "" {
		out.Title = strings.TrimSuffix(filepath.Base(path), ext)
	}
	return out, nil
}

// ExtractBytes extracts text from content based on ext, e.g. ".pdf".
func (e *Extractor) ExtractBytes(content []byte, ext string) (*Extracted, error) {
	fn, ok := e.byExt[strings.ToLower(ext)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
	return fn(content)
}
