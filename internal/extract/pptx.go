package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/hyperjump/mitsuke/internal/models"
)

// slideNameRe matches slide XML paths inside a .pptx zip and captures the slide number.
var slideNameRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// atTag matches <a:t>text</a:t> or <a:t xml:space="preserve">text</a:t> (and any other attributes).
var atTag = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)

// extractPPTX extracts fragments from .pptx bytes, one fragment per slide with
// a "Slide:<n>" location. PPTX is a ZIP containing ppt/slides/slideN.xml
// (Office Open XML); we collect all <a:t>...</a:t> text nodes per slide.
// Slides are ordered by slide number, not zip entry order.
func extractPPTX(content []byte) ([]models.Fragment, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract PPTX: not a zip: %w", err)
	}

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		m := slideNameRe.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		slides = append(slides, slide{num: n, file: f})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var frags []models.Fragment
	for _, s := range slides {
		data, err := readZipFile(s.file)
		if err != nil {
			return nil, fmt.Errorf("extract PPTX: read %s: %w", s.file.Name, err)
		}
		var buf strings.Builder
		for _, p := range atTag.FindAllStringSubmatch(string(data), -1) {
			t := strings.TrimSpace(p[1])
			if t == "" {
				continue
			}
			if buf.Len() > 0 {
				buf.WriteByte(' ')
			}
			buf.WriteString(t)
		}
		if buf.Len() == 0 {
			continue
		}
		frags = append(frags, models.Fragment{
			Location: fmt.Sprintf("Slide:%d", s.num),
			Text:     buf.String(),
		})
	}
	return frags, nil
}
