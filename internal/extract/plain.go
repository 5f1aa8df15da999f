package extract

import (
	"fmt"
	"strings"

	"github.com/hyperjump/mitsuke/internal/models"
	"github.com/hyperjump/mitsuke/pkg/utils"
)

// plainChunkSize is the approximate fragment size in bytes for plain text.
// Lines are never split; a fragment closes once it exceeds this size.
const plainChunkSize = 800

// extractPlain chunks plain text into fragments. Each fragment's location is
// the byte offset of its first line in the original content ("Offset:<n>").
// Invalid UTF-8 sequences are replaced with the replacement character.
func extractPlain(content []byte) ([]models.Fragment, error) {
	text := utils.SanitizeUTF8(string(content))
	var frags []models.Fragment
	var buf strings.Builder
	offset := 0
	chunkStart := 0

	flush := func() {
		chunk := strings.TrimSpace(buf.String())
		if chunk != "" {
			frags = append(frags, models.Fragment{
				Location: fmt.Sprintf("Offset:%d", chunkStart),
				Text:     chunk,
			})
		}
		buf.Reset()
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		if buf.Len() == 0 {
			chunkStart = offset
		}
		buf.WriteString(line)
		offset += len(line)
		if buf.Len() >= plainChunkSize {
			flush()
		}
	}
	flush()
	return frags, nil
}
