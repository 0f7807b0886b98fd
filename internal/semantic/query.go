package semantic

import (
	"context"
	"fmt"

	"github.com/hyperjump/semdex/internal/cluster"
	"github.com/hyperjump/semdex/internal/models"
	"github.com/hyperjump/semdex/internal/vector"
)

// Search encodes query and returns the k closest documents by squared L2 distance,
// scored 1/(1+d) and sorted by descending score. Ties keep catalog order. k larger
// than the index is clamped; an empty index yields no results.
func (i *Index) Search(ctx context.Context, query string, k int) ([]*models.SearchResult, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if !i.ready {
		return nil, ErrNotReady
	}
	if k < 0 {
		return nil, fmt.Errorf("%w: k must not be negative, got %d", ErrInvalidArgument, k)
	}
	if k == 0 || i.catalog.Live() == 0 {
		return []*models.SearchResult{}, nil
	}
	if live := i.catalog.Live(); k > live {
		k = live
	}
	vec, err := i.embedder.Embed(context.WithoutCancel(ctx), query)
	if err != nil {
		return nil, &EmbeddingError{Err: err}
	}
	if dim := i.vectors.Dimensions(); len(vec) != dim {
		return nil, &EmbeddingError{Err: fmt.Errorf("%w: got %d, expected %d", vector.ErrDimensionMismatch, len(vec), dim)}
	}
	neighbors, err := i.vectors.Search(vec, k, nil)
	if err != nil {
		return nil, err
	}
	return i.results(neighbors), nil
}

// SimilarDocuments returns the k documents closest to the stored vector of id,
// excluding id itself.
func (i *Index) SimilarDocuments(ctx context.Context, id string, k int) ([]*models.SearchResult, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if !i.ready {
		return nil, ErrNotReady
	}
	pos, ok := i.catalog.Position(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if k < 0 {
		return nil, fmt.Errorf("%w: k must not be negative, got %d", ErrInvalidArgument, k)
	}
	if others := i.catalog.Live() - 1; k > others {
		k = others
	}
	vec, _ := i.vectors.Vector(pos)
	neighbors, err := i.vectors.Search(vec, k, func(p int) bool { return p == pos })
	if err != nil {
		return nil, err
	}
	return i.results(neighbors), nil
}

// Similarity returns the cosine similarity in [-1, 1] of the stored vectors of two
// documents, or 0 when either has zero magnitude.
func (i *Index) Similarity(ctx context.Context, a, b string) (float64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if !i.ready {
		return 0, ErrNotReady
	}
	pa, ok := i.catalog.Position(a)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, a)
	}
	pb, ok := i.catalog.Position(b)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, b)
	}
	va, _ := i.vectors.Vector(pa)
	vb, _ := i.vectors.Vector(pb)
	return vector.CosineSimilarity(va, vb), nil
}

// Cluster groups every live document into exactly n clusters with k-means and returns
// the document ids of each cluster. Clusters may be empty when there are fewer
// distinct vectors than n.
func (i *Index) Cluster(ctx context.Context, n int) ([][]string, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if !i.ready {
		return nil, ErrNotReady
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: number of clusters must be at least 1, got %d", ErrInvalidArgument, n)
	}
	positions, vecs := i.vectors.LiveVectors()
	res, err := cluster.KMeans(vecs, n, cluster.Options{Iterations: i.clusterIterations, Seed: i.seed})
	if err != nil {
		return nil, err
	}
	groups := make([][]string, n)
	for c, members := range res.Groups() {
		ids := make([]string, 0, len(members))
		for _, m := range members {
			doc, _ := i.catalog.At(positions[m])
			ids = append(ids, doc.ID)
		}
		groups[c] = ids
	}
	return groups, nil
}

// Document returns a copy of the stored document with the given id.
func (i *Index) Document(ctx context.Context, id string) (*models.Document, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if !i.ready {
		return nil, ErrNotReady
	}
	doc, ok := i.catalog.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return doc.Clone(), nil
}

// Documents returns copies of every live document in catalog order.
func (i *Index) Documents(ctx context.Context) ([]*models.Document, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if !i.ready {
		return nil, ErrNotReady
	}
	docs := i.catalog.Documents()
	out := make([]*models.Document, len(docs))
	for n, doc := range docs {
		out[n] = doc.Clone()
	}
	return out, nil
}

// Embedding returns a copy of the stored vector of the document with the given id.
func (i *Index) Embedding(ctx context.Context, id string) ([]float32, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if !i.ready {
		return nil, ErrNotReady
	}
	pos, ok := i.catalog.Position(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	vec, _ := i.vectors.Vector(pos)
	return vec, nil
}

func (i *Index) results(neighbors []vector.Neighbor) []*models.SearchResult {
	out := make([]*models.SearchResult, 0, len(neighbors))
	for rank, n := range neighbors {
		doc, ok := i.catalog.At(n.Position)
		if !ok {
			continue
		}
		out = append(out, &models.SearchResult{
			Document: doc.Clone(),
			Score:    vector.DistanceToScore(n.Distance),
			Rank:     rank + 1,
		})
	}
	return out
}
