package extract

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"
)

// extractPlain returns content as string. Invalid UTF-8 sequences are replaced with
// the replacement character.
func extractPlain(content []byte) (string, error) {
	if !utf8.Valid(content) {
		content = []byte(strings.ToValidUTF8(string(content), "\ufffd"))
	}
	return string(content), nil
}

// extractFallback decodes content of an unrecognized type as UTF-8 text. Bytes that are
// not valid UTF-8, or that contain NUL bytes, are treated as binary.
func extractFallback(content []byte, mimeType string) (string, error) {
	utf8BOM := []byte{0xEF, 0xBB, 0xBF}
	content = bytes.TrimPrefix(content, utf8BOM)
	if !utf8.Valid(content) || bytes.IndexByte(content, 0) >= 0 {
		return "", fmt.Errorf("%w: %q is not text", ErrUnsupportedFormat, mimeType)
	}
	return string(content), nil
}
