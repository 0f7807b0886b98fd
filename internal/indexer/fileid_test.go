package indexer

import (
	"strings"
	"testing"
)

func TestFileDocID(t *testing.T) {
	id := FileDocID("/kb/guide.md")
	if id != FileDocID("/kb/guide.md") {
		t.Error("same path should give same id")
	}
	if !strings.HasPrefix(id, fileIDPrefix) || len(id) != len(fileIDPrefix)+64 {
		t.Errorf("unexpected id format: %q", id)
	}
	if id != FileDocID("/kb/./sub/../guide.md") {
		t.Error("paths are cleaned before hashing")
	}
	if id == FileDocID("/kb/other.md") {
		t.Error("different paths should give different ids")
	}
}
