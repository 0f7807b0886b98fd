// Package keyword mirrors the document catalog into a full-text index so documents can
// also be found by exact terms.
package keyword

import (
	"context"

	"github.com/hyperjump/semdex/internal/models"
)

// SearchOptions tunes a keyword search. Nil means plain term matching.
type SearchOptions struct {
	// TitleBoost multiplies matches in the "title" metadata field. Values <= 1 disable it.
	TitleBoost float64
	// Fuzzy enables typo-tolerant matching within Fuzziness edits (default 1).
	Fuzzy     bool
	Fuzziness int
}

// Mirror is a keyword index kept in sync with the semantic catalog.
type Mirror interface {
	Index(ctx context.Context, doc *models.Document) error
	Delete(ctx context.Context, id string) error
	// Reset drops every indexed document and indexes docs in their place.
	Reset(ctx context.Context, docs []*models.Document) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]models.KeywordResult, error)
	DocCount() (uint64, error)
	Close() error
}
