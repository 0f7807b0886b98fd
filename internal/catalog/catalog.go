// Package catalog holds the ordered document collection backing the semantic index.
// Position i in a Catalog corresponds to position i in the vector store. A Catalog
// is not safe for concurrent use; the owning index serializes access.
package catalog

import (
	"errors"
	"fmt"

	"github.com/hyperjump/semdex/internal/models"
)

var (
	// ErrDuplicateID is returned when a document id is already present.
	ErrDuplicateID = errors.New("duplicate document id")
	// ErrOutOfRange is returned for a position outside the catalog or already removed.
	ErrOutOfRange = errors.New("catalog position out of range")
)

// Catalog is an ordered list of documents with an id index over the live entries.
// Tombstoned entries keep their slot (as nil) until Compact.
type Catalog struct {
	docs []*models.Document
	ids  map[string]int
	dead int
}

// New creates a catalog from docs in order. Duplicate ids are rejected.
func New(docs []*models.Document) (*Catalog, error) {
	c := &Catalog{
		docs: make([]*models.Document, 0, len(docs)),
		ids:  make(map[string]int, len(docs)),
	}
	for _, doc := range docs {
		if _, err := c.Append(doc); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Append adds doc at the final position and returns that position.
func (c *Catalog) Append(doc *models.Document) (int, error) {
	if _, ok := c.ids[doc.ID]; ok {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateID, doc.ID)
	}
	c.docs = append(c.docs, doc)
	pos := len(c.docs) - 1
	c.ids[doc.ID] = pos
	return pos, nil
}

// Replace swaps the live document at pos for doc, which must carry the same id.
func (c *Catalog) Replace(pos int, doc *models.Document) error {
	old, ok := c.At(pos)
	if !ok {
		return fmt.Errorf("%w: %d", ErrOutOfRange, pos)
	}
	if old.ID != doc.ID {
		return fmt.Errorf("replace at %d: id %q does not match %q", pos, doc.ID, old.ID)
	}
	c.docs[pos] = doc
	return nil
}

// Delete physically removes the live entry at pos, shifting later positions down by one.
func (c *Catalog) Delete(pos int) error {
	doc, ok := c.At(pos)
	if !ok {
		return fmt.Errorf("%w: %d", ErrOutOfRange, pos)
	}
	delete(c.ids, doc.ID)
	c.docs = append(c.docs[:pos], c.docs[pos+1:]...)
	for i := pos; i < len(c.docs); i++ {
		if c.docs[i] != nil {
			c.ids[c.docs[i].ID] = i
		}
	}
	return nil
}

// Tombstone removes the live entry at pos from the id index but keeps its slot.
func (c *Catalog) Tombstone(pos int) error {
	doc, ok := c.At(pos)
	if !ok {
		return fmt.Errorf("%w: %d", ErrOutOfRange, pos)
	}
	delete(c.ids, doc.ID)
	c.docs[pos] = nil
	c.dead++
	return nil
}

// Compact drops tombstoned slots. It returns, for each new position, the position it
// had before compaction.
func (c *Catalog) Compact() []int {
	kept := make([]int, 0, len(c.docs)-c.dead)
	docs := make([]*models.Document, 0, len(c.docs)-c.dead)
	for i, doc := range c.docs {
		if doc == nil {
			continue
		}
		kept = append(kept, i)
		c.ids[doc.ID] = len(docs)
		docs = append(docs, doc)
	}
	c.docs = docs
	c.dead = 0
	return kept
}

// Position returns the position of the live document with the given id.
func (c *Catalog) Position(id string) (int, bool) {
	pos, ok := c.ids[id]
	return pos, ok
}

// Get returns the live document with the given id.
func (c *Catalog) Get(id string) (*models.Document, bool) {
	pos, ok := c.ids[id]
	if !ok {
		return nil, false
	}
	return c.docs[pos], true
}

// At returns the live document at pos.
func (c *Catalog) At(pos int) (*models.Document, bool) {
	if pos < 0 || pos >= len(c.docs) || c.docs[pos] == nil {
		return nil, false
	}
	return c.docs[pos], true
}

// Len returns the number of slots, tombstoned ones included.
func (c *Catalog) Len() int { return len(c.docs) }

// Live returns the number of live documents.
func (c *Catalog) Live() int { return len(c.docs) - c.dead }

// Dead returns the number of tombstoned slots.
func (c *Catalog) Dead() int { return c.dead }

// Documents returns the live documents in position order.
func (c *Catalog) Documents() []*models.Document {
	out := make([]*models.Document, 0, c.Live())
	for _, doc := range c.docs {
		if doc != nil {
			out = append(out, doc)
		}
	}
	return out
}
