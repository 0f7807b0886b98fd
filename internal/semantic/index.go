// Package semantic provides the semantic document index: a catalog of documents kept
// positionally aligned with their embedding vectors, answering nearest-neighbor,
// pairwise similarity and clustering queries.
//
// The index starts unbuilt. Build makes it ready; every other operation except Clear
// and Restore requires a ready index. Mutations hold an exclusive lock for their whole
// duration, including the embedding calls, and either commit completely or leave the
// index unchanged. Reads share the lock.
package semantic

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperjump/semdex/internal/catalog"
	"github.com/hyperjump/semdex/internal/cluster"
	"github.com/hyperjump/semdex/internal/embedding"
	"github.com/hyperjump/semdex/internal/models"
	"github.com/hyperjump/semdex/internal/vector"
	"go.uber.org/zap"
)

// Default tuning.
const (
	DefaultCompactionThreshold = 0.25
	DefaultClusterIterations   = cluster.DefaultIterations
)

// Index is the semantic document index. Create one with New and share the pointer.
type Index struct {
	embedder            embedding.Embedder
	store               Store
	logger              *zap.Logger
	removal             RemovalPolicy
	compactionThreshold float64
	clusterIterations   int
	seed                int64

	mu      sync.RWMutex
	ready   bool
	catalog *catalog.Catalog
	vectors *vector.Store
}

// Stats describes the current state of an index.
type Stats struct {
	Ready         bool   `json:"ready"`
	Documents     int    `json:"documents"`
	Tombstones    int    `json:"tombstones"`
	Dimensions    int    `json:"dimensions"`
	RemovalPolicy string `json:"removal_policy"`
}

// New creates an unbuilt index that encodes text with embedder.
func New(embedder embedding.Embedder, opts ...Option) *Index {
	i := &Index{
		embedder:            embedder,
		logger:              zap.NewNop(),
		removal:             RemovalRebuild,
		compactionThreshold: DefaultCompactionThreshold,
		clusterIterations:   DefaultClusterIterations,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Build replaces the whole index with docs, encoded in order, and makes it ready.
// The vector dimension is taken from the first embedding. An empty docs slice yields
// a ready, empty index. On any error the previous state is kept.
func (i *Index) Build(ctx context.Context, docs []*models.Document) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.buildLocked(ctx, docs, true)
}

// Restore rebuilds the index from the documents held by the persistent store.
func (i *Index) Restore(ctx context.Context) error {
	if i.store == nil {
		return ErrNoStore
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	docs, err := i.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	return i.buildLocked(ctx, docs, false)
}

func (i *Index) buildLocked(ctx context.Context, docs []*models.Document, persist bool) error {
	clones := make([]*models.Document, len(docs))
	for n, doc := range docs {
		if err := doc.Validate(); err != nil {
			return fmt.Errorf("document %d: %w", n, err)
		}
		clones[n] = doc.Clone()
	}
	cat, err := catalog.New(clones)
	if err != nil {
		return err
	}
	vecs, err := i.embedDocuments(ctx, clones, 0)
	if err != nil {
		return err
	}
	store, err := vector.NewStore(0)
	if err != nil {
		return err
	}
	if err := store.Rebuild(vecs); err != nil {
		return &EmbeddingError{Err: err}
	}
	if persist && i.store != nil {
		if err := i.store.ReplaceAll(context.WithoutCancel(ctx), clones); err != nil {
			return fmt.Errorf("failed to persist catalog: %w", err)
		}
	}

	i.catalog = cat
	i.vectors = store
	i.ready = true
	i.logger.Info("index built",
		zap.Int("documents", cat.Live()),
		zap.Int("dimensions", store.Dimensions()),
	)
	return nil
}

// Add encodes doc and appends it at the final position.
func (i *Index) Add(ctx context.Context, doc *models.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.ready {
		return ErrNotReady
	}
	return i.addLocked(ctx, doc.Clone())
}

func (i *Index) addLocked(ctx context.Context, doc *models.Document) error {
	if _, ok := i.catalog.Position(doc.ID); ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, doc.ID)
	}
	vec, err := i.embedDocument(ctx, doc)
	if err != nil {
		return err
	}
	if i.store != nil {
		if err := i.store.Append(context.WithoutCancel(ctx), doc); err != nil {
			return fmt.Errorf("failed to persist document: %w", err)
		}
	}
	if _, err := i.vectors.Append(vec); err != nil {
		return &EmbeddingError{DocumentID: doc.ID, Err: err}
	}
	if _, err := i.catalog.Append(doc); err != nil {
		return err
	}
	i.logger.Info("document added", zap.String("id", doc.ID), zap.Int("documents", i.catalog.Live()))
	return nil
}

// Update replaces the content and metadata of an existing document and re-encodes only
// its position. An unknown id is added instead.
func (i *Index) Update(ctx context.Context, doc *models.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.ready {
		return ErrNotReady
	}
	doc = doc.Clone()
	pos, ok := i.catalog.Position(doc.ID)
	if !ok {
		return i.addLocked(ctx, doc)
	}
	vec, err := i.embedDocument(ctx, doc)
	if err != nil {
		return err
	}
	if i.store != nil {
		if err := i.store.Update(context.WithoutCancel(ctx), doc); err != nil {
			return fmt.Errorf("failed to persist document: %w", err)
		}
	}
	if err := i.vectors.Set(pos, vec); err != nil {
		return &EmbeddingError{DocumentID: doc.ID, Err: err}
	}
	if err := i.catalog.Replace(pos, doc); err != nil {
		return err
	}
	i.logger.Info("document updated", zap.String("id", doc.ID), zap.Int("position", pos))
	return nil
}

// Remove deletes the document with the given id. An unknown id leaves the index
// untouched and returns ErrNotFound, which callers may ignore.
func (i *Index) Remove(ctx context.Context, id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.ready {
		return ErrNotReady
	}
	pos, ok := i.catalog.Position(id)
	if !ok {
		i.logger.Warn("remove of unknown document", zap.String("id", id))
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if i.removal == RemovalTombstone {
		return i.tombstoneLocked(ctx, id, pos)
	}
	return i.rebuildWithoutLocked(ctx, id, pos)
}

// rebuildWithoutLocked re-encodes every document except the one at pos into a fresh store.
func (i *Index) rebuildWithoutLocked(ctx context.Context, id string, pos int) error {
	remaining := make([]*models.Document, 0, i.catalog.Live())
	for _, doc := range i.catalog.Documents() {
		if doc.ID != id {
			remaining = append(remaining, doc)
		}
	}
	dim := i.vectors.Dimensions()
	vecs, err := i.embedDocuments(ctx, remaining, dim)
	if err != nil {
		return err
	}
	store, err := vector.NewStore(dim)
	if err != nil {
		return err
	}
	if err := store.Rebuild(vecs); err != nil {
		return &EmbeddingError{Err: err}
	}
	if i.store != nil {
		if err := i.store.Delete(context.WithoutCancel(ctx), id); err != nil {
			return fmt.Errorf("failed to persist removal: %w", err)
		}
	}
	if err := i.catalog.Delete(pos); err != nil {
		return err
	}
	i.vectors = store
	i.logger.Info("document removed", zap.String("id", id), zap.Int("documents", i.catalog.Live()))
	return nil
}

func (i *Index) tombstoneLocked(ctx context.Context, id string, pos int) error {
	if i.store != nil {
		if err := i.store.Delete(context.WithoutCancel(ctx), id); err != nil {
			return fmt.Errorf("failed to persist removal: %w", err)
		}
	}
	if err := i.vectors.Tombstone(pos); err != nil {
		return err
	}
	if err := i.catalog.Tombstone(pos); err != nil {
		return err
	}
	i.logger.Info("document tombstoned", zap.String("id", id), zap.Int("tombstones", i.catalog.Dead()))
	if float64(i.catalog.Dead()) > i.compactionThreshold*float64(i.catalog.Len()) {
		if _, err := i.compactLocked(); err != nil {
			return fmt.Errorf("document %s removed but not compacted: %w", id, err)
		}
	}
	return nil
}

// Compact physically drops tombstoned entries without re-encoding anything and
// returns how many were dropped.
func (i *Index) Compact(ctx context.Context) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.ready {
		return 0, ErrNotReady
	}
	return i.compactLocked()
}

// compactLocked drops tombstoned slots from catalog and vector store. Both must agree
// on every slot beforehand; otherwise nothing changes and ErrMisaligned is returned.
func (i *Index) compactLocked() (int, error) {
	dead := i.catalog.Dead()
	if dead == 0 {
		return 0, nil
	}
	if err := i.checkAlignedLocked(); err != nil {
		i.logger.Error("refusing to compact", zap.Error(err))
		return 0, err
	}
	i.catalog.Compact()
	i.vectors.Compact()
	i.logger.Info("index compacted", zap.Int("dropped", dead), zap.Int("documents", i.catalog.Live()))
	return dead, nil
}

func (i *Index) checkAlignedLocked() error {
	if n, m := i.catalog.Len(), i.vectors.Len(); n != m {
		return fmt.Errorf("%w: %d catalog slots, %d vectors", ErrMisaligned, n, m)
	}
	for pos := 0; pos < i.catalog.Len(); pos++ {
		_, live := i.catalog.At(pos)
		if live == i.vectors.IsDead(pos) {
			return fmt.Errorf("%w: position %d", ErrMisaligned, pos)
		}
	}
	return nil
}

// Clear drops every document, including persisted ones, and returns the index to the
// unbuilt state.
func (i *Index) Clear(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.store != nil {
		if err := i.store.ReplaceAll(context.WithoutCancel(ctx), nil); err != nil {
			return fmt.Errorf("failed to clear catalog: %w", err)
		}
	}
	i.catalog = nil
	i.vectors = nil
	i.ready = false
	i.logger.Info("index cleared")
	return nil
}

// Ready reports whether the index has been built.
func (i *Index) Ready() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.ready
}

// Len returns the number of live documents, 0 when unbuilt.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if !i.ready {
		return 0
	}
	return i.catalog.Live()
}

// Stats returns a snapshot of the index state.
func (i *Index) Stats() Stats {
	i.mu.RLock()
	defer i.mu.RUnlock()
	s := Stats{Ready: i.ready, RemovalPolicy: i.removal.String()}
	if i.ready {
		s.Documents = i.catalog.Live()
		s.Tombstones = i.catalog.Dead()
		s.Dimensions = i.vectors.Dimensions()
	}
	return s
}

// embedDocuments encodes docs in one batch and validates every vector against dim,
// or against the first vector when dim is 0.
func (i *Index) embedDocuments(ctx context.Context, docs []*models.Document, dim int) ([][]float32, error) {
	if len(docs) == 0 {
		return [][]float32{}, nil
	}
	texts := make([]string, len(docs))
	for n, doc := range docs {
		texts[n] = doc.Content
	}
	vecs, err := i.embedder.EmbedBatch(context.WithoutCancel(ctx), texts)
	if err != nil {
		return nil, &EmbeddingError{Err: err}
	}
	if len(vecs) != len(docs) {
		return nil, &EmbeddingError{Err: fmt.Errorf("provider returned %d embeddings for %d documents", len(vecs), len(docs))}
	}
	if dim == 0 {
		dim = len(vecs[0])
	}
	for n, vec := range vecs {
		if err := checkVector(vec, dim); err != nil {
			return nil, &EmbeddingError{DocumentID: docs[n].ID, Err: err}
		}
	}
	return vecs, nil
}

// embedDocument encodes one document and validates the vector against the store.
func (i *Index) embedDocument(ctx context.Context, doc *models.Document) ([]float32, error) {
	vec, err := i.embedder.Embed(context.WithoutCancel(ctx), doc.Content)
	if err != nil {
		return nil, &EmbeddingError{DocumentID: doc.ID, Err: err}
	}
	if err := checkVector(vec, i.vectors.Dimensions()); err != nil {
		return nil, &EmbeddingError{DocumentID: doc.ID, Err: err}
	}
	return vec, nil
}

// checkVector rejects empty and zero-magnitude vectors and, when dim is positive,
// vectors of another length.
func checkVector(vec []float32, dim int) error {
	if len(vec) == 0 {
		return vector.ErrEmptyVector
	}
	if dim > 0 && len(vec) != dim {
		return fmt.Errorf("%w: got %d, expected %d", vector.ErrDimensionMismatch, len(vec), dim)
	}
	if vector.IsZero(vec) {
		return errZeroVector
	}
	return nil
}
