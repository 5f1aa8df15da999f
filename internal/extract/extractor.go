// Package extract provides text extraction from various document formats.
// Extractors yield a finite sequence of fragments, each tagged with a
// human-readable location (sheet/row/col, paragraph, slide, page, offset).
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/mitsuke/internal/models"
)

// Extractor extracts located text fragments from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its fragments with FilePath set.
// Returns an error if the file cannot be read or parsed; a nil error with zero
// fragments is valid (empty document).
func (e *Extractor) Extract(path string) ([]models.Fragment, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	frags, err := e.ExtractBytes(content, ext)
	if err != nil {
		return nil, err
	}
	for i := range frags {
		frags[i].FilePath = path
		frags[i].Index = i
	}
	return frags, nil
}

// ExtractBytes extracts fragments from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf"). FilePath and Index are
// left for the caller to assign.
func (e *Extractor) ExtractBytes(content []byte, ext string) ([]models.Fragment, error) {
	switch ext {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".xlsx":
		return extractExcel(content)
	case ".pptx":
		return extractPPTX(content)
	default:
		// Plain text, code files, and unknown extensions: chunked plain text.
		return extractPlain(content)
	}
}
