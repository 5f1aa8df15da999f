package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/hyperjump/mitsuke/internal/models"
)

// extractPDF extracts one fragment per page with a "Page:<n>" location.
func extractPDF(content []byte) ([]models.Fragment, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	var frags []models.Fragment
	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		frags = append(frags, models.Fragment{
			Location: fmt.Sprintf("Page:%d", i),
			Text:     text,
		})
	}
	return frags, nil
}
