package constants

import "strings"

// DocumentType identifies the kind of source document attached to a fund.
type DocumentType string

const (
	// DocTypeICMemo is an investment-committee memorandum.
	DocTypeICMemo DocumentType = "ic_memo"
	// DocTypeCapitalCallNotice is recognized but has no extraction
	// implementation yet; jobs carrying it are skipped, not retried.
	DocTypeCapitalCallNotice DocumentType = "capital_call_notice"
	// DocTypeQuarterlyReport is recognized but not implemented yet.
	DocTypeQuarterlyReport DocumentType = "quarterly_report"
)

// ParseDocumentType normalizes a raw string to a known DocumentType.
// Returns "" when the value is not recognized at all.
func ParseDocumentType(s string) DocumentType {
	switch DocumentType(strings.ToLower(strings.TrimSpace(s))) {
	case DocTypeICMemo:
		return DocTypeICMemo
	case DocTypeCapitalCallNotice:
		return DocTypeCapitalCallNotice
	case DocTypeQuarterlyReport:
		return DocTypeQuarterlyReport
	}
	return ""
}
