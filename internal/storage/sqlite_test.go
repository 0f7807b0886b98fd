package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/semdex/internal/embedding"
	"github.com/hyperjump/semdex/internal/models"
	"github.com/hyperjump/semdex/internal/semantic"
)

func openStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "db", "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func loadIDs(t *testing.T, s *SQLiteStore) []string {
	t.Helper()
	docs, err := s.LoadAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSQLiteStore_CRUD(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	doc := &models.Document{
		ID:       "doc1",
		Content:  "Content",
		Metadata: map[string]interface{}{"k": "v", "n": 3, "ok": true},
	}
	if err := store.Append(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if err := store.Append(ctx, doc); err == nil {
		t.Error("expected error for duplicate id")
	}

	got, err := store.Get(ctx, "doc1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Content != "Content" || got.Metadata["k"] != "v" || got.Metadata["n"] != float64(3) || got.Metadata["ok"] != true {
		t.Errorf("got %+v", got)
	}

	doc.Content = "Updated"
	if err := store.Update(ctx, doc); err != nil {
		t.Fatal(err)
	}
	got, _ = store.Get(ctx, "doc1")
	if got.Content != "Updated" {
		t.Errorf("expected Updated, got %s", got.Content)
	}
	if err := store.Update(ctx, &models.Document{ID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("update missing: expected ErrNotFound, got %v", err)
	}

	if err := store.Delete(ctx, "doc1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, "doc1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, "doc1"); err != nil {
		t.Errorf("deleting an unknown id should not fail: %v", err)
	}
}

func TestSQLiteStore_KeepsCatalogOrder(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	docs := []*models.Document{{ID: "c", Content: "3"}, {ID: "a", Content: "1"}, {ID: "b", Content: "2"}}
	if err := store.ReplaceAll(ctx, docs); err != nil {
		t.Fatal(err)
	}
	if err := store.Append(ctx, &models.Document{ID: "d", Content: "4"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Update(ctx, &models.Document{ID: "c", Content: "three"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if got := loadIDs(t, store); !equalIDs(got, []string{"c", "b", "d"}) {
		t.Errorf("order: got %v", got)
	}

	if err := store.ReplaceAll(ctx, []*models.Document{{ID: "z", Content: "26"}}); err != nil {
		t.Fatal(err)
	}
	if got := loadIDs(t, store); !equalIDs(got, []string{"z"}) {
		t.Errorf("after replace: got %v", got)
	}
	if n, _ := store.Count(ctx); n != 1 {
		t.Errorf("Count: got %d", n)
	}
}

func TestSQLiteStore_ReplaceAllIsAtomic(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	if err := store.ReplaceAll(ctx, []*models.Document{{ID: "keep", Content: "x"}}); err != nil {
		t.Fatal(err)
	}
	dup := []*models.Document{{ID: "a", Content: "1"}, {ID: "a", Content: "2"}}
	if err := store.ReplaceAll(ctx, dup); err == nil {
		t.Fatal("expected error for duplicate ids")
	}
	if got := loadIDs(t, store); !equalIDs(got, []string{"keep"}) {
		t.Errorf("failed replace changed the store: %v", got)
	}
}

func TestSQLiteStore_ReopenAndRestore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.db")
	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}

	idx := semantic.New(embedding.NewHashEmbedder(128), semantic.WithStore(store))
	if err := idx.Build(ctx, []*models.Document{
		{ID: "1", Content: "reset password"},
		{ID: "2", Content: "refund policy"},
		{ID: "3", Content: "shipping times"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Remove(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	if err := idx.Add(ctx, &models.Document{ID: "4", Content: "reset password", Metadata: map[string]interface{}{"lang": "en"}}); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	restored := semantic.New(embedding.NewHashEmbedder(128), semantic.WithStore(reopened))
	if err := restored.Restore(ctx); err != nil {
		t.Fatal(err)
	}
	if restored.Len() != 3 {
		t.Fatalf("restored Len: got %d", restored.Len())
	}
	results, err := restored.Search(ctx, "reset password", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Document.ID != "4" || results[0].Document.Metadata["lang"] != "en" {
		t.Errorf("restored search: %+v", results)
	}
	docs, _ := restored.Documents(ctx)
	if docs[0].ID != "2" || docs[2].ID != "4" {
		t.Errorf("restored order: %v %v %v", docs[0].ID, docs[1].ID, docs[2].ID)
	}
}
