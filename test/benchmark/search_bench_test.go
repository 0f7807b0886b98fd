package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/hyperjump/semdex/internal/cluster"
	"github.com/hyperjump/semdex/internal/embedding"
	"github.com/hyperjump/semdex/internal/models"
	"github.com/hyperjump/semdex/internal/semantic"
	"github.com/hyperjump/semdex/internal/vector"
)

func BenchmarkVectorStoreSearch(b *testing.B) {
	store, _ := vector.NewStore(384)
	for i := 0; i < 1000; i++ {
		v := make([]float32, 384)
		v[0] = float32(i) / 1000
		v[i%384] += 1
		_, _ = store.Append(v)
	}
	query := make([]float32, 384)
	query[0] = 1.0
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.Search(query, 10, nil)
	}
}

func BenchmarkHashEmbedder_Embed(b *testing.B) {
	e := embedding.NewHashEmbedder(384)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, "benchmark query text for embedding")
	}
}

func benchIndex(b *testing.B, n int) *semantic.Index {
	b.Helper()
	docs := make([]*models.Document, n)
	for i := range docs {
		docs[i] = &models.Document{
			ID:      fmt.Sprintf("doc-%d", i),
			Content: fmt.Sprintf("document %d about topic %d and subject %d", i, i%17, i%5),
		}
	}
	idx := semantic.New(embedding.NewHashEmbedder(384))
	if err := idx.Build(context.Background(), docs); err != nil {
		b.Fatal(err)
	}
	return idx
}

func BenchmarkIndexSearch(b *testing.B) {
	idx := benchIndex(b, 1000)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.Search(ctx, "topic 3 subject 1", 10)
	}
}

func BenchmarkIndexAdd(b *testing.B) {
	idx := benchIndex(b, 100)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = idx.Add(ctx, &models.Document{ID: fmt.Sprintf("new-%d", i), Content: "freshly added content"})
	}
}

func BenchmarkKMeans(b *testing.B) {
	vecs := make([][]float32, 500)
	for i := range vecs {
		v := make([]float32, 64)
		v[i%8] = 1
		v[(i+3)%64] = float32(i%7) / 7
		vecs[i] = v
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = cluster.KMeans(vecs, 8, cluster.Options{Seed: 1})
	}
}
