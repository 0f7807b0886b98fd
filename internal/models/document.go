// Package models defines core data structures for documents, queries, and search results.
package models

import (
	"errors"
	"fmt"
)

// ErrInvalidDocument is returned when a document fails validation.
var ErrInvalidDocument = errors.New("invalid document")

// Document is a caller-identified piece of text held by the semantic index.
// Metadata values are limited to scalars (string, bool, and numbers) so that
// documents serialize and compare predictably.
type Document struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// DocumentInput is the input for creating or updating a document over the API.
type DocumentInput struct {
	ID       string                 `json:"id,omitempty"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Document converts the input into a Document. The input is not validated.
func (in *DocumentInput) Document() *Document {
	return &Document{ID: in.ID, Content: in.Content, Metadata: in.Metadata}
}

// Validate checks that the document has an id and that every metadata value is a scalar.
func (d *Document) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: nil document", ErrInvalidDocument)
	}
	if d.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDocument)
	}
	for k, v := range d.Metadata {
		if !isScalar(v) {
			return fmt.Errorf("%w: metadata %q has unsupported type %T", ErrInvalidDocument, k, v)
		}
	}
	return nil
}

// Clone returns a copy of d that shares no mutable state with it.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{ID: d.ID, Content: d.Content}
	if d.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(d.Metadata))
		for k, v := range d.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

func isScalar(v interface{}) bool {
	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}
