package semantic

import (
	"errors"
	"fmt"

	"github.com/hyperjump/semdex/internal/catalog"
)

var (
	// ErrNotReady is returned by operations that need a built index.
	ErrNotReady = errors.New("index is not built")
	// ErrNotFound is returned when a referenced document id is not in the index.
	ErrNotFound = errors.New("document not found")
	// ErrDuplicateID is returned when adding a document whose id is already present.
	ErrDuplicateID = catalog.ErrDuplicateID
	// ErrEmbedding is matched by every EmbeddingError.
	ErrEmbedding = errors.New("embedding failed")
	// ErrInvalidArgument is returned for out-of-range arguments such as a negative k.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNoStore is returned by Restore when the index has no persistent store.
	ErrNoStore = errors.New("no persistent store configured")
	// ErrMisaligned is returned when catalog and vector store no longer describe the
	// same positions. The index refuses to compact in that state.
	ErrMisaligned = errors.New("catalog and vector store are misaligned")

	errZeroVector = errors.New("embedding has zero magnitude")
)

// EmbeddingError reports a provider failure or an unusable vector. DocumentID is
// empty when the failing text was a query.
type EmbeddingError struct {
	DocumentID string
	Err        error
}

func (e *EmbeddingError) Error() string {
	if e.DocumentID == "" {
		return fmt.Sprintf("embedding failed: %v", e.Err)
	}
	return fmt.Sprintf("embedding failed for document %q: %v", e.DocumentID, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrEmbedding) true for any EmbeddingError.
func (e *EmbeddingError) Is(target error) bool { return target == ErrEmbedding }
