package catalog

import (
	"errors"
	"testing"

	"github.com/hyperjump/semdex/internal/models"
)

func doc(id string) *models.Document {
	return &models.Document{ID: id, Content: "content of " + id}
}

func ids(docs []*models.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func equal(a, b []string) bool {
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

func TestNew_RejectsDuplicates(t *testing.T) {
	if _, err := New([]*models.Document{doc("a"), doc("b"), doc("a")}); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID, got %v", err)
	}
	c, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() != 0 || len(c.Documents()) != 0 {
		t.Error("empty catalog should have no documents")
	}
}

func TestCatalog_AppendAndLookup(t *testing.T) {
	c, _ := New([]*models.Document{doc("a"), doc("b")})
	pos, err := c.Append(doc("c"))
	if err != nil {
		t.Fatal(err)
	}
	if pos != 2 {
		t.Errorf("Append position: got %d, want 2", pos)
	}
	if _, err := c.Append(doc("b")); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID, got %v", err)
	}
	if p, ok := c.Position("b"); !ok || p != 1 {
		t.Errorf("Position(b): got %d, %v", p, ok)
	}
	if d, ok := c.Get("c"); !ok || d.ID != "c" {
		t.Errorf("Get(c): got %v, %v", d, ok)
	}
	if _, ok := c.Get("zzz"); ok {
		t.Error("Get of unknown id should fail")
	}
}

func TestCatalog_Replace(t *testing.T) {
	c, _ := New([]*models.Document{doc("a"), doc("b")})
	updated := &models.Document{ID: "b", Content: "new"}
	if err := c.Replace(1, updated); err != nil {
		t.Fatal(err)
	}
	if d, _ := c.Get("b"); d.Content != "new" {
		t.Errorf("Replace: got %q", d.Content)
	}
	if err := c.Replace(0, updated); err == nil {
		t.Error("Replace with a different id should fail")
	}
	if err := c.Replace(5, updated); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
}

func TestCatalog_Delete(t *testing.T) {
	c, _ := New([]*models.Document{doc("a"), doc("b"), doc("c")})
	if err := c.Delete(0); err != nil {
		t.Fatal(err)
	}
	if !equal(ids(c.Documents()), []string{"b", "c"}) {
		t.Errorf("Documents: got %v", ids(c.Documents()))
	}
	if p, _ := c.Position("c"); p != 1 {
		t.Errorf("Position(c) after delete: got %d, want 1", p)
	}
	if _, ok := c.Position("a"); ok {
		t.Error("deleted id still indexed")
	}
}

func TestCatalog_TombstoneAndCompact(t *testing.T) {
	c, _ := New([]*models.Document{doc("a"), doc("b"), doc("c"), doc("d")})
	if err := c.Tombstone(1); err != nil {
		t.Fatal(err)
	}
	if err := c.Tombstone(1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("second tombstone: expected ErrOutOfRange, got %v", err)
	}
	if c.Len() != 4 || c.Live() != 3 || c.Dead() != 1 {
		t.Errorf("counts: len=%d live=%d dead=%d", c.Len(), c.Live(), c.Dead())
	}
	if _, ok := c.At(1); ok {
		t.Error("At should not return a tombstoned entry")
	}
	// the id becomes free again once tombstoned
	if _, err := c.Append(doc("b")); err != nil {
		t.Fatal(err)
	}

	kept := c.Compact()
	if len(kept) != 4 || kept[0] != 0 || kept[1] != 2 || kept[3] != 4 {
		t.Errorf("kept: got %v", kept)
	}
	if !equal(ids(c.Documents()), []string{"a", "c", "d", "b"}) {
		t.Errorf("Documents after compact: got %v", ids(c.Documents()))
	}
	if p, _ := c.Position("b"); p != 3 {
		t.Errorf("Position(b) after compact: got %d, want 3", p)
	}
	if c.Dead() != 0 || c.Len() != 4 {
		t.Errorf("after compact: len=%d dead=%d", c.Len(), c.Dead())
	}
}
