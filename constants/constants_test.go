package constants_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/funddocs/funds-tracker/constants"
)

func TestParseDocumentType(t *testing.T) {
	assert.Equal(t, constants.DocTypeICMemo, constants.ParseDocumentType("ic_memo"))
	assert.Equal(t, constants.DocTypeICMemo, constants.ParseDocumentType("  IC_MEMO "))
	assert.Equal(t, constants.DocTypeCapitalCallNotice, constants.ParseDocumentType("capital_call_notice"))
	assert.Equal(t, constants.DocumentType(""), constants.ParseDocumentType("tax_form"))
	assert.Equal(t, constants.DocumentType(""), constants.ParseDocumentType(""))
}

func TestIsValidStatus(t *testing.T) {
	for _, s := range constants.AllStatuses() {
		assert.True(t, constants.IsValidStatus(string(s)))
	}
	assert.False(t, constants.IsValidStatus("processing"))
	assert.False(t, constants.IsValidStatus(""))
}
