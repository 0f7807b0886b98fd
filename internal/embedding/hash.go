package embedding

import (
	"context"
	"fmt"
)

// DefaultHashDimensions is the vector size of the hash embedder when none is configured.
const DefaultHashDimensions = 512

// HashEmbedder is a feature-hashing bag-of-words model. Every lowercased word token is
// hashed into one of a fixed number of signed buckets and the result is L2-normalized,
// so texts sharing words land close together. It needs no model files and is fully
// deterministic across processes.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a hash embedder producing vectors of the given size.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultHashDimensions
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns the hashed embedding of text. Text without word tokens embeds to the zero vector.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	emb := make([]float32, e.dimensions)
	for _, word := range Words(text) {
		h := HashToken(word)
		idx := int(h % uint64(e.dimensions))
		if h>>63 == 1 {
			emb[idx]--
		} else {
			emb[idx]++
		}
	}
	NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for HashEmbedder.
func (e *HashEmbedder) Close() error {
	return nil
}
