package extract

import (
	"bytes"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// extractPlain decodes content as UTF-8 with a leading BOM dropped, CRLF line endings
// normalized and invalid sequences replaced by U+FFFD.
func extractPlain(content []byte) (*Extracted, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	s := strings.ToValidUTF8(string(content), "\ufffd")
	return &Extracted{Text: strings.ReplaceAll(s, "\r\n", "\n")}, nil
}
