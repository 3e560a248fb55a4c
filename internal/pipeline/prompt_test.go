package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funddocs/funds-tracker/internal/inference"
	"github.com/funddocs/funds-tracker/internal/pipeline"
)

func TestBuildExtractionMessages(t *testing.T) {
	msgs := pipeline.BuildExtractionMessages([]byte(`{"type":"object"}`), "Fund IV memo text")
	require.Len(t, msgs, 1)
	assert.Equal(t, inference.RoleUser, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, `{"type":"object"}`)
	assert.Contains(t, msgs[0].Content, "Fund IV memo text")
	assert.Contains(t, msgs[0].Content, "exactly one JSON object")
}

func TestBuildExtractionMessages_EmptyDocumentText(t *testing.T) {
	msgs := pipeline.BuildExtractionMessages([]byte(`{"type":"object"}`), "")
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Content, `{"type":"object"}`)
}

func TestStripCodeFence(t *testing.T) {
	cases := map[string]string{
		"{\"a\":1}":                       `{"a":1}`,
		"```json\n{\"a\":1}\n```":         `{"a":1}`,
		"```\n{\"a\":1}\n```":             `{"a":1}`,
		"  \n```json\n{\"a\":1}\n```\n  ": `{"a":1}`,
	}
	for in, want := range cases {
		assert.Equal(t, want, pipeline.StripCodeFence(in))
	}
}
