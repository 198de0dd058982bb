package extract

import (
	"fmt"
	"strings"
)

// odfContentPath is the path to the main content inside OpenDocument zips.
const odfContentPath = "content.xml"

func extractOpenDocument(format string, content []byte) (string, error) {
	zr, err := openZip(format, content)
	if err != nil {
		return "", err
	}
	data, err := readZipPart(zr, odfContentPath)
	if err != nil {
		return "", corrupt(format, err)
	}
	if data == nil {
		return "", corrupt(format, fmt.Errorf("%s not found", odfContentPath))
	}
	paras, err := paragraphs(data, openDocumentTags)
	if err != nil {
		return "", corrupt(format, err)
	}
	return strings.Join(paras, "\n"), nil
}

// extractODP extracts text:p and text:h text from .odp bytes, one paragraph per line.
func extractODP(content []byte) (string, error) {
	return extractOpenDocument("odp", content)
}

// extractODS extracts cell text from .ods bytes, one cell paragraph per line.
func extractODS(content []byte) (string, error) {
	return extractOpenDocument("ods", content)
}
