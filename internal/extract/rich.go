package extract

import (
	"strings"

	"github.com/lu4p/cat"
)

// extractRich reads RTF and ODT through cat, which sniffs the format from the bytes.
func extractRich(content []byte) (string, error) {
	text, err := cat.FromBytes(content)
	if err != nil {
		return "", corrupt("rich text", err)
	}
	return strings.TrimSpace(text), nil
}
