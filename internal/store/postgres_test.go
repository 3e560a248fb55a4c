package store

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funddocs/funds-tracker/constants"
)

// assignments returns the SET list of the rendered statement, without the
// WHERE and RETURNING clauses.
func assignments(t *testing.T, q string) []string {
	t.Helper()
	start := strings.Index(q, "SET ")
	end := strings.Index(q, " WHERE ")
	require.True(t, start >= 0 && end > start, "statement shape: %s", q)
	return strings.Split(q[start+len("SET "):end], ", ")
}

func countColumn(sets []string, column string) int {
	n := 0
	for _, s := range sets {
		if strings.HasPrefix(s, column+" = ") {
			n++
		}
	}
	return n
}

func TestBuildFundUpdate_CompletionAssignsEachColumnOnce(t *testing.T) {
	status := constants.FundStatusExtracted
	bucket := "results-bucket"
	key := "results/f1/out.json"
	now := time.Now().UTC()

	q, args := buildFundUpdate("f1", FundMutation{
		Status:       &status,
		Payload:      []byte(`{"fund_name":"Alpha"}`),
		ResultBucket: &bucket,
		ResultKey:    &key,
		ExtractedAt:  &now,
		ClearError:   true,
	}, nil)

	sets := assignments(t, q)
	for _, column := range []string{"status", "payload", "result_bucket", "result_key", "error_reason", "extracted_at"} {
		assert.Equal(t, 1, countColumn(sets, column), "column %s in %s", column, q)
	}
	assert.Contains(t, sets, "error_reason = NULL")

	// fund_id plus five bound values; error_reason binds nothing.
	assert.Len(t, args, 6)
}

func TestBuildFundUpdate_FailureAssignsEachColumnOnce(t *testing.T) {
	status := constants.FundStatusFailed
	reason := "ocr: document too large"

	q, args := buildFundUpdate("f1", FundMutation{
		Status:      &status,
		ErrorReason: &reason,
	}, nil)

	sets := assignments(t, q)
	assert.Equal(t, 1, countColumn(sets, "error_reason"))
	assert.Equal(t, 1, countColumn(sets, "payload"))
	assert.Contains(t, sets, "payload = NULL")
	assert.Len(t, args, 3)
}

func TestBuildFundUpdate_ClearFlagsFoldIntoSingleAssignments(t *testing.T) {
	status := constants.FundStatusProcessing

	q, _ := buildFundUpdate("f1", FundMutation{
		Status:       &status,
		ClearPayload: true,
		ClearError:   true,
	}, nil)

	sets := assignments(t, q)
	assert.Contains(t, sets, "payload = NULL")
	assert.Contains(t, sets, "error_reason = NULL")
	assert.Equal(t, 1, countColumn(sets, "payload"))
	assert.Equal(t, 1, countColumn(sets, "error_reason"))
}

func TestBuildFundUpdate_StatusGuardBindsLastPlaceholder(t *testing.T) {
	status := constants.FundStatusProcessing
	key := "uploads/f1/doc.pdf"

	q, args := buildFundUpdate("f1", FundMutation{
		Status:    &status,
		ObjectKey: &key,
	}, []constants.FundStatus{constants.FundStatusUploaded, constants.FundStatusFailed})

	assert.Contains(t, q, fmt.Sprintf("AND status = ANY($%d)", len(args)))
	guard, ok := args[len(args)-1].([]string)
	require.True(t, ok)
	assert.Equal(t, []string{"UPLOADED", "FAILED"}, guard)
}
