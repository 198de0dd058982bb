package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF returns the text of each page in order, separated by newlines. Within a page
// the text runs are joined with a single space.
func extractPDF(content []byte) (text string, err error) {
	// The pdf package panics on some malformed object graphs.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = corrupt("pdf", fmt.Errorf("%v", r))
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", corrupt("pdf", err)
	}
	numPages := r.NumPage()
	if numPages == 0 {
		return "", corrupt("pdf", fmt.Errorf("no pages"))
	}
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		raw, err := page.GetPlainText(nil)
		if err != nil {
			return "", corrupt("pdf", fmt.Errorf("page %d: %w", i, err))
		}
		pages = append(pages, joinRuns(raw))
	}
	return strings.Join(pages, "\n"), nil
}

// joinRuns joins the non-empty lines of a page's text stream with single spaces.
func joinRuns(raw string) string {
	var runs []string
	for _, line := range strings.Split(raw, "\n") {
		if s := strings.TrimSpace(line); s != "" {
			runs = append(runs, s)
		}
	}
	return strings.Join(runs, " ")
}
