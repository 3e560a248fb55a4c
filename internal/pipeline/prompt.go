package pipeline

import (
	"strings"

	"github.com/funddocs/funds-tracker/internal/inference"
)

// BuildExtractionMessages combines the schema (verbatim) and the OCR text
// into a single instruction asking for exactly one JSON object. The schema
// is always embedded, even when the document text is empty, so the request
// is well formed regardless of OCR output.
func BuildExtractionMessages(schemaRaw []byte, documentText string) []inference.Message {
	var b strings.Builder
	b.WriteString("JSON Schema:\n")
	b.Write(schemaRaw)
	b.WriteString("\n\nDocument text:\n")
	b.WriteString(documentText)
	b.WriteString("\n\nReturn exactly one JSON object that conforms to the schema above. ")
	b.WriteString("Do not include any text before or after the JSON object. ")
	b.WriteString("Never output null; omit fields that are not present in the document.")

	return []inference.Message{
		{Role: inference.RoleUser, Content: b.String()},
	}
}

// StripCodeFence removes a surrounding markdown code fence from a model
// response, if present. Models occasionally wrap JSON despite instructions.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
