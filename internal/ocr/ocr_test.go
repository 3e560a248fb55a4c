package ocr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/funddocs/funds-tracker/internal/ocr"
)

func TestExtractLines(t *testing.T) {
	blocks := []ocr.Block{
		{Type: "PAGE", Text: ""},
		{Type: ocr.BlockTypeLine, Text: "Fund IV Investment Memo"},
		{Type: "WORD", Text: "Fund"},
		{Type: ocr.BlockTypeLine, Text: "Vintage 2021"},
	}
	assert.Equal(t, "Fund IV Investment Memo\nVintage 2021", ocr.ExtractLines(blocks, nil))
}

func TestExtractLines_DropsNoiseMarkersCaseInsensitive(t *testing.T) {
	blocks := []ocr.Block{
		{Type: ocr.BlockTypeLine, Text: "Fund IV Investment Memo"},
		{Type: ocr.BlockTypeLine, Text: "CONFIDENTIAL WATERMARK"},
		{Type: ocr.BlockTypeLine, Text: "draft copy"},
		{Type: ocr.BlockTypeLine, Text: "Vintage 2021"},
	}
	got := ocr.ExtractLines(blocks, []string{"watermark", "DRAFT"})
	assert.Equal(t, "Fund IV Investment Memo\nVintage 2021", got)
}

func TestExtractLines_Empty(t *testing.T) {
	assert.Empty(t, ocr.ExtractLines(nil, []string{"watermark"}))
	assert.Empty(t, ocr.ExtractLines([]ocr.Block{{Type: "PAGE"}}, nil))
}
