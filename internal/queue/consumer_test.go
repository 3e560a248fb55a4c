package queue_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funddocs/funds-tracker/constants"
	"github.com/funddocs/funds-tracker/internal/lifecycle"
	"github.com/funddocs/funds-tracker/internal/pipeline"
	"github.com/funddocs/funds-tracker/internal/queue"
	"github.com/funddocs/funds-tracker/internal/store"
)

type stubProcessor struct {
	outcome pipeline.Outcome
	jobs    []pipeline.Job
}

func (p *stubProcessor) Process(_ context.Context, job pipeline.Job) pipeline.Outcome {
	p.jobs = append(p.jobs, job)
	return p.outcome
}

type panicProcessor struct{}

func (panicProcessor) Process(context.Context, pipeline.Job) pipeline.Outcome {
	panic("nil dereference in stage four")
}

func message(t *testing.T, id, fundID, docType string) queue.Message {
	t.Helper()
	body, err := json.Marshal(queue.DocumentJob{
		FundID:       fundID,
		DocumentType: docType,
		InputBucket:  "input",
		ObjectKey:    "uploads/" + fundID + "/doc.pdf",
		FileName:     "doc.pdf",
	})
	require.NoError(t, err)
	return queue.Message{ID: id, Body: body}
}

func newConsumer(st *store.MemoryStore, proc pipeline.DocumentProcessor) *queue.Consumer {
	registry := pipeline.NewRegistry()
	registry.Register(constants.DocTypeICMemo, proc)
	registry.Register(constants.DocTypeCapitalCallNotice, pipeline.NewSkipProcessor(nil))
	return queue.NewConsumer(nil, registry, lifecycle.NewController(st, nil))
}

func TestHandleBatch_OneBadMessageDoesNotStopTheRest(t *testing.T) {
	proc := &stubProcessor{outcome: pipeline.Completed()}
	c := newConsumer(store.NewMemoryStore(), proc)

	msgs := []queue.Message{
		message(t, "m1", "f1", "ic_memo"),
		message(t, "m2", "f2", "ic_memo"),
		{ID: "m3", Body: []byte("{not json")},
		message(t, "m4", "f4", "ic_memo"),
		message(t, "m5", "f5", "ic_memo"),
	}

	failed := c.HandleBatch(context.Background(), msgs)
	assert.Equal(t, []string{"m3"}, failed)
	assert.Len(t, proc.jobs, 4)
}

func TestHandleBatch_MissingFieldsFail(t *testing.T) {
	proc := &stubProcessor{outcome: pipeline.Completed()}
	c := newConsumer(store.NewMemoryStore(), proc)

	body, err := json.Marshal(queue.DocumentJob{FundID: "f1", DocumentType: "ic_memo"})
	require.NoError(t, err)

	failed := c.HandleBatch(context.Background(), []queue.Message{{ID: "m1", Body: body}})
	assert.Equal(t, []string{"m1"}, failed)
	assert.Empty(t, proc.jobs)
}

func TestHandleBatch_UnknownTypeLeavesRecordUntouched(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.CreateFund(ctx, &store.FundRecord{
		FundID: "f1",
		Status: constants.FundStatusUploaded,
	}))

	proc := &stubProcessor{outcome: pipeline.Completed()}
	c := newConsumer(st, proc)

	failed := c.HandleBatch(ctx, []queue.Message{message(t, "m1", "f1", "tax_form")})
	assert.Equal(t, []string{"m1"}, failed)
	assert.Empty(t, proc.jobs)

	rec, err := st.GetFund(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, constants.FundStatusUploaded, rec.Status)
	assert.Nil(t, rec.ErrorReason)
}

func TestHandleBatch_SkippedTypeIsSuccess(t *testing.T) {
	c := newConsumer(store.NewMemoryStore(), &stubProcessor{outcome: pipeline.Completed()})

	failed := c.HandleBatch(context.Background(), []queue.Message{
		message(t, "m1", "f1", "capital_call_notice"),
	})
	assert.Empty(t, failed)
}

func TestHandleBatch_FailedOutcome(t *testing.T) {
	proc := &stubProcessor{outcome: pipeline.Failed(assert.AnError)}
	c := newConsumer(store.NewMemoryStore(), proc)

	failed := c.HandleBatch(context.Background(), []queue.Message{message(t, "m1", "f1", "ic_memo")})
	assert.Equal(t, []string{"m1"}, failed)
}

func TestHandleBatch_PanicIsRecoveredAndRecorded(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.CreateFund(ctx, &store.FundRecord{
		FundID: "f1",
		Status: constants.FundStatusUploaded,
	}))

	c := newConsumer(st, panicProcessor{})

	failed := c.HandleBatch(ctx, []queue.Message{message(t, "m1", "f1", "ic_memo")})
	assert.Equal(t, []string{"m1"}, failed)

	rec, err := st.GetFund(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, constants.FundStatusFailed, rec.Status)
	require.NotNil(t, rec.ErrorReason)
	assert.Contains(t, *rec.ErrorReason, "panic")
}

func TestDocumentJobValidate(t *testing.T) {
	job := queue.DocumentJob{FundID: "f1", DocumentType: "ic_memo", InputBucket: "b", ObjectKey: "k"}
	assert.NoError(t, job.Validate())

	job.ObjectKey = ""
	job.InputBucket = ""
	err := job.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input_bucket")
	assert.Contains(t, err.Error(), "object_key")
}
