package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/mitsuke/internal/models"
)

func extractExcel(content []byte) ([]models.Fragment, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	var frags []models.Fragment
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		for r, row := range rows {
			for c, cell := range row {
				text := strings.TrimSpace(cell)
				if text == "" {
					continue
				}
				frags = append(frags, models.Fragment{
					Location: fmt.Sprintf("Sheet:%s, Row:%d, Col:%d", sheet, r+1, c+1),
					Text:     text,
				})
			}
		}
	}
	return frags, nil
}
