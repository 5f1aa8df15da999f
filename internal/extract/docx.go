package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/hyperjump/mitsuke/internal/models"
)

// docxDocumentXMLPath is the default path to the main document body inside a .docx zip.
const docxDocumentXMLPath = "word/document.xml"

// contentTypesPath is the path to [Content_Types].xml in OOXML packages.
const contentTypesPath = "[Content_Types].xml"

// docxMainContentType is the content type for the main document in DOCX files.
const docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"

// wtTag matches <w:t>text</w:t> or <w:t xml:space="preserve">text</w:t> (and any other attributes).
var wtTag = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

// wpBlock matches one paragraph element including attributes (e.g. <w:p w:rsidR="...">).
var wpBlock = regexp.MustCompile(`(?s)<w:p[ >].*?</w:p>`)

// wtblBlock, wtrBlock, wtcBlock match table, row, and cell elements.
var (
	wtblBlock = regexp.MustCompile(`(?s)<w:tbl>.*?</w:tbl>`)
	wtrBlock  = regexp.MustCompile(`(?s)<w:tr[ >].*?</w:tr>`)
	wtcBlock  = regexp.MustCompile(`(?s)<w:tc[ >].*?</w:tc>`)
)

// partNameRe extracts PartName from Override elements in [Content_Types].xml.
var partNameRe = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"`)

// partNameRe2 handles the case where ContentType appears before PartName.
var partNameRe2 = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"[^>]+PartName="([^"]+)"`)

// findDocxMainDocumentPath finds the main document path from [Content_Types].xml.
// Returns the path without leading slash, or empty string if not found.
func findDocxMainDocumentPath(zr *zip.Reader) string {
	for _, f := range zr.File {
		if f.Name != contentTypesPath {
			continue
		}
		data, err := readZipFile(f)
		if err != nil {
			return ""
		}
		content := string(data)
		// Try both attribute orders
		if matches := partNameRe.FindStringSubmatch(content); len(matches) > 1 {
			return strings.TrimPrefix(matches[1], "/")
		}
		if matches := partNameRe2.FindStringSubmatch(content); len(matches) > 1 {
			return strings.TrimPrefix(matches[1], "/")
		}
		return ""
	}
	return ""
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// extractDOCX extracts fragments from .docx bytes. DOCX is a ZIP containing
// word/document.xml (OOXML). Tables yield one fragment per cell
// ("Table:<t>, Row:<r>, Col:<c>"); remaining paragraphs yield one fragment each
// ("Para:<n>"). We match <w:t>...</w:t> text nodes with attribute-tolerant
// regexes because real-world documents carry attributes on every element
// (e.g. <w:p w:rsidR="...">) that naive patterns miss.
func extractDOCX(content []byte) ([]models.Fragment, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract DOCX: not a zip: %w", err)
	}

	// Find main document path from [Content_Types].xml, fall back to default
	docPath := findDocxMainDocumentPath(zr)
	if docPath == "" {
		docPath = docxDocumentXMLPath
	}

	var docXML []byte
	for _, f := range zr.File {
		if f.Name != docPath {
			continue
		}
		docXML, err = readZipFile(f)
		if err != nil {
			return nil, fmt.Errorf("extract DOCX: read %s: %w", f.Name, err)
		}
		break
	}
	if docXML == nil {
		return nil, fmt.Errorf("extract DOCX: %s not found", docPath)
	}

	xml := string(docXML)
	var frags []models.Fragment

	// Tables first: one fragment per non-empty cell, then strip them so their
	// inner paragraphs are not counted again.
	tableNum := 0
	xml = wtblBlock.ReplaceAllStringFunc(xml, func(tbl string) string {
		tableNum++
		for r, tr := range wtrBlock.FindAllString(tbl, -1) {
			for c, tc := range wtcBlock.FindAllString(tr, -1) {
				text := joinTextNodes(wtTag.FindAllStringSubmatch(tc, -1))
				if text == "" {
					continue
				}
				frags = append(frags, models.Fragment{
					Location: fmt.Sprintf("Table:%d, Row:%d, Col:%d", tableNum, r+1, c+1),
					Text:     text,
				})
			}
		}
		return ""
	})

	paraNum := 0
	for _, p := range wpBlock.FindAllString(xml, -1) {
		text := joinTextNodes(wtTag.FindAllStringSubmatch(p, -1))
		if text == "" {
			continue
		}
		paraNum++
		frags = append(frags, models.Fragment{
			Location: fmt.Sprintf("Para:%d", paraNum),
			Text:     text,
		})
	}
	return frags, nil
}

// joinTextNodes concatenates captured <w:t> contents with spaces.
func joinTextNodes(parts [][]string) string {
	var b strings.Builder
	for _, p := range parts {
		t := strings.TrimSpace(p[1])
		if t == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(t)
	}
	return b.String()
}
