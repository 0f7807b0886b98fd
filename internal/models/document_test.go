package models

import (
	"errors"
	"testing"
)

func TestDocument_Validate(t *testing.T) {
	tests := []struct {
		name    string
		doc     *Document
		wantErr bool
	}{
		{"nil", nil, true},
		{"empty id", &Document{Content: "x"}, true},
		{"plain", &Document{ID: "1", Content: "x"}, false},
		{"scalars", &Document{ID: "1", Metadata: map[string]interface{}{"a": "s", "b": 1, "c": 2.5, "d": true}}, false},
		{"nested map", &Document{ID: "1", Metadata: map[string]interface{}{"a": map[string]interface{}{}}}, true},
		{"slice", &Document{ID: "1", Metadata: map[string]interface{}{"a": []string{"x"}}}, true},
		{"nil value", &Document{ID: "1", Metadata: map[string]interface{}{"a": nil}}, true},
	}
	for _, tt := range tests {
		err := tt.doc.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate() error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidDocument) {
			t.Errorf("%s: error should wrap ErrInvalidDocument, got %v", tt.name, err)
		}
	}
}

func TestDocument_Clone(t *testing.T) {
	d := &Document{ID: "1", Content: "c", Metadata: map[string]interface{}{"k": "v"}}
	c := d.Clone()
	c.Metadata["k"] = "changed"
	c.Content = "other"
	if d.Metadata["k"] != "v" || d.Content != "c" {
		t.Errorf("clone shares state with original: %+v", d)
	}
	var nilDoc *Document
	if nilDoc.Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestSearchQuery_Validate(t *testing.T) {
	q := &SearchQuery{Query: "  reset password "}
	if err := q.Validate(5, 50); err != nil {
		t.Fatal(err)
	}
	if q.Limit() != 5 || q.Query != "reset password" {
		t.Errorf("got %+v", q)
	}

	tests := []struct {
		name string
		k    int
		want int
	}{
		{"explicit zero stays zero", 0, 0},
		{"within range", 7, 7},
		{"clamped to max", 500, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := tt.k
			q := &SearchQuery{Query: "x", K: &k}
			if err := q.Validate(5, 50); err != nil {
				t.Fatal(err)
			}
			if q.Limit() != tt.want {
				t.Errorf("K = %d, want %d", q.Limit(), tt.want)
			}
		})
	}

	negative := -1
	if err := (&SearchQuery{Query: "x", K: &negative}).Validate(5, 50); err == nil {
		t.Error("expected error for negative k")
	}
	if err := (&SearchQuery{Query: "   "}).Validate(5, 50); err == nil {
		t.Error("expected error for blank query")
	}
}
