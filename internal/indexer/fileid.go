package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

const fileIDPrefix = "file:"

// FileDocID returns the stable document id of the file at absolutePath, so a changed
// file is re-indexed as an update of the same document.
func FileDocID(absolutePath string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(absolutePath)))
	return fileIDPrefix + hex.EncodeToString(sum[:])
}
