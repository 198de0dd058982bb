package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// docxDocumentXMLPath is the default path to the main document body inside a .docx zip.
const docxDocumentXMLPath = "word/document.xml"

// contentTypesPath is the path to [Content_Types].xml in OOXML packages.
const contentTypesPath = "[Content_Types].xml"

// docxMainContentType is the content type for the main document in DOCX files.
const docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"

// partNameRe extracts PartName from Override elements in [Content_Types].xml.
var partNameRe = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"`)

// partNameRe2 handles the case where ContentType appears before PartName.
var partNameRe2 = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"[^>]+PartName="([^"]+)"`)

// slideNumRe captures N from ppt/slides/slideN.xml.
var slideNumRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

func openZip(format string, content []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, corrupt(format, fmt.Errorf("not a zip: %w", err))
	}
	return zr, nil
}

// readZipPart returns the contents of the named zip entry, or nil if it does not exist.
func readZipPart(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		return data, nil
	}
	return nil, nil
}

// findDocxMainDocumentPath finds the main document path from [Content_Types].xml.
// Returns the path without leading slash, or empty string if not found.
func findDocxMainDocumentPath(zr *zip.Reader) string {
	data, err := readZipPart(zr, contentTypesPath)
	if err != nil || data == nil {
		return ""
	}
	content := string(data)
	if matches := partNameRe.FindStringSubmatch(content); len(matches) > 1 {
		return strings.TrimPrefix(matches[1], "/")
	}
	if matches := partNameRe2.FindStringSubmatch(content); len(matches) > 1 {
		return strings.TrimPrefix(matches[1], "/")
	}
	return ""
}

// paragraphTags describes how a markup dialect encodes paragraphs. Element names are
// matched on their local part.
type paragraphTags struct {
	paragraphs map[string]bool
	// textRuns limits collected character data to these elements; nil collects all
	// character data inside a paragraph.
	textRuns map[string]bool
	tabs     map[string]bool
	breaks   map[string]bool
	spaces   map[string]bool
}

var (
	wordTags = paragraphTags{
		paragraphs: map[string]bool{"p": true},
		textRuns:   map[string]bool{"t": true},
		tabs:       map[string]bool{"tab": true},
		breaks:     map[string]bool{"br": true, "cr": true},
	}
	drawingTags = paragraphTags{
		paragraphs: map[string]bool{"p": true},
		textRuns:   map[string]bool{"t": true},
		breaks:     map[string]bool{"br": true},
	}
	openDocumentTags = paragraphTags{
		paragraphs: map[string]bool{"p": true, "h": true},
		tabs:       map[string]bool{"tab": true},
		breaks:     map[string]bool{"line-break": true},
		spaces:     map[string]bool{"s": true},
	}
)

// paragraphs returns the non-empty paragraphs of an XML part in document order,
// with formatting discarded.
func paragraphs(data []byte, tags paragraphTags) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		out   []string
		cur   strings.Builder
		depth int // open paragraph elements
		inRun int // open text run elements
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			switch {
			case tags.paragraphs[name]:
				// Nested paragraphs (text boxes) start a new line.
				flush()
				depth++
			case depth == 0:
			case tags.textRuns[name]:
				inRun++
			case tags.tabs[name]:
				cur.WriteByte('\t')
			case tags.breaks[name]:
				cur.WriteByte('\n')
			case tags.spaces[name]:
				cur.WriteByte(' ')
			}
		case xml.EndElement:
			name := t.Name.Local
			switch {
			case tags.paragraphs[name] && depth > 0:
				flush()
				depth--
			case tags.textRuns[name] && inRun > 0:
				inRun--
			}
		case xml.CharData:
			if depth > 0 && (tags.textRuns == nil || inRun > 0) {
				cur.Write(t)
			}
		}
	}
	flush()
	return out, nil
}

// extractDOCX extracts paragraph text from .docx bytes, one paragraph per line. DOCX is a
// ZIP whose main part (usually word/document.xml) is located through [Content_Types].xml.
func extractDOCX(content []byte) (string, error) {
	zr, err := openZip("docx", content)
	if err != nil {
		return "", err
	}
	docPath := findDocxMainDocumentPath(zr)
	if docPath == "" {
		docPath = docxDocumentXMLPath
	}
	docXML, err := readZipPart(zr, docPath)
	if err != nil {
		return "", corrupt("docx", err)
	}
	if docXML == nil {
		return "", corrupt("docx", fmt.Errorf("%s not found", docPath))
	}
	paras, err := paragraphs(docXML, wordTags)
	if err != nil {
		return "", corrupt("docx", err)
	}
	return strings.Join(paras, "\n"), nil
}

// extractPPTX extracts text from .pptx bytes, slide by slide in slide-number order.
func extractPPTX(content []byte) (string, error) {
	zr, err := openZip("pptx", content)
	if err != nil {
		return "", err
	}
	type slide struct {
		num  int
		name string
	}
	var slides []slide
	for _, f := range zr.File {
		m := slideNumRe.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: n, name: f.Name})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })
	var out []string
	for _, s := range slides {
		data, err := readZipPart(zr, s.name)
		if err != nil {
			return "", corrupt("pptx", err)
		}
		paras, err := paragraphs(data, drawingTags)
		if err != nil {
			return "", corrupt("pptx", fmt.Errorf("%s: %w", s.name, err))
		}
		out = append(out, paras...)
	}
	return strings.Join(out, "\n"), nil
}
