// Package extract provides text extraction from raw document bytes, one reader per MIME type.
package extract

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// MIME types with a dedicated reader.
const (
	MimePDF      = "application/pdf"
	MimeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeXLSX     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimePPTX     = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	MimeODT      = "application/vnd.oasis.opendocument.text"
	MimeODP      = "application/vnd.oasis.opendocument.presentation"
	MimeODS      = "application/vnd.oasis.opendocument.spreadsheet"
	MimeRTF      = "application/rtf"
	MimeHTML     = "text/html"
	MimeXHTML    = "application/xhtml+xml"
	MimePlain    = "text/plain"
	MimeMarkdown = "text/markdown"
	MimeCSV      = "text/csv"
	// MimeUnknown is used when the caller did not declare a type.
	MimeUnknown = "application/octet-stream"
)

// ReaderFunc converts raw bytes of one format into plain text.
type ReaderFunc func(content []byte) (string, error)

// Extractor extracts plain text from document bytes by declared MIME type.
type Extractor struct {
	readers map[string]ReaderFunc
}

// NewExtractor returns an Extractor with the built-in readers registered.
func NewExtractor() *Extractor {
	e := &Extractor{readers: make(map[string]ReaderFunc)}
	e.Register(MimePDF, extractPDF)
	e.Register(MimeDOCX, extractDOCX)
	e.Register(MimeXLSX, extractExcel)
	e.Register(MimePPTX, extractPPTX)
	e.Register(MimeODP, extractODP)
	e.Register(MimeODS, extractODS)
	e.Register(MimeODT, extractRich)
	e.Register(MimeRTF, extractRich)
	e.Register("text/rtf", extractRich)
	e.Register(MimeHTML, extractHTML)
	e.Register(MimeXHTML, extractHTML)
	e.Register(MimePlain, extractPlain)
	e.Register(MimeMarkdown, extractPlain)
	e.Register("text/x-markdown", extractPlain)
	e.Register(MimeCSV, extractPlain)
	return e
}

// Register sets the reader for mimeType, replacing any existing one.
func (e *Extractor) Register(mimeType string, fn ReaderFunc) {
	e.readers[NormalizeMimeType(mimeType)] = fn
}

// Supports reports whether mimeType has a dedicated reader.
func (e *Extractor) Supports(mimeType string) bool {
	_, ok := e.readers[NormalizeMimeType(mimeType)]
	return ok
}

// ExtractText returns the text content of content interpreted as mimeType.
// Types without a reader fall back to a UTF-8 decode; bytes that are not text yield
// ErrUnsupportedFormat. Parser failures yield ErrCorruptInput.
func (e *Extractor) ExtractText(content []byte, mimeType string) (string, error) {
	if fn, ok := e.readers[NormalizeMimeType(mimeType)]; ok {
		return fn(content)
	}
	return extractFallback(content, mimeType)
}

// Extract reads the file at path and extracts its text using the MIME type implied
// by the file extension.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractText(content, MimeTypeForPath(path))
}

// NormalizeMimeType lower-cases mimeType and strips parameters such as charset.
func NormalizeMimeType(mimeType string) string {
	mimeType = strings.TrimSpace(mimeType)
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		return mt
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

var extensionTypes = map[string]string{
	".pdf":      MimePDF,
	".docx":     MimeDOCX,
	".xlsx":     MimeXLSX,
	".pptx":     MimePPTX,
	".odt":      MimeODT,
	".odp":      MimeODP,
	".ods":      MimeODS,
	".rtf":      MimeRTF,
	".html":     MimeHTML,
	".htm":      MimeHTML,
	".xhtml":    MimeXHTML,
	".txt":      MimePlain,
	".text":     MimePlain,
	".rst":      MimePlain,
	".md":       MimeMarkdown,
	".markdown": MimeMarkdown,
	".csv":      MimeCSV,
}

// MimeTypeForPath returns the MIME type for a file name by extension,
// or MimeUnknown when the extension is not recognized.
func MimeTypeForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if mt, ok := extensionTypes[ext]; ok {
		return mt
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		return NormalizeMimeType(mt)
	}
	return MimeUnknown
}
