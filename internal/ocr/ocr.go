// Package ocr turns document bytes into plain text via an external
// text-detection service.
package ocr

import (
	"context"
	"strings"
)

// BlockTypeLine is the only block type that contributes to extracted text;
// word and page blocks duplicate line content.
const BlockTypeLine = "LINE"

// Block is one detected text block, in reading order.
type Block struct {
	Type string
	Text string
}

// TextDetector is the interface to the OCR service.
type TextDetector interface {
	DetectText(ctx context.Context, doc []byte) ([]Block, error)
}

// ExtractLines concatenates line-type blocks in their original order,
// dropping lines that contain any of the noise markers (case-insensitive).
// Watermarks and draft stamps show up as their own line blocks, so a
// substring match on the line is enough.
func ExtractLines(blocks []Block, noiseMarkers []string) string {
	var lines []string
	for _, b := range blocks {
		if b.Type != BlockTypeLine {
			continue
		}
		if isNoise(b.Text, noiseMarkers) {
			continue
		}
		lines = append(lines, b.Text)
	}
	return strings.Join(lines, "\n")
}

func isNoise(line string, markers []string) bool {
	lower := strings.ToLower(line)
	for _, m := range markers {
		if m == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
