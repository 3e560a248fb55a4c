// Package queue receives batches of document jobs, drives the pipeline per
// message, and reports per-message success or failure so the delivery
// mechanism redelivers only the failed subset.
package queue

import (
	"encoding/json"
	"fmt"

	"github.com/funddocs/funds-tracker/internal/common"
	"github.com/funddocs/funds-tracker/internal/pipeline"
)

// DocumentJob is the transient, at-least-once delivered message selecting a
// document for extraction. It is never persisted; every field is
// revalidated on each delivery because duplicates are expected.
type DocumentJob struct {
	FundID       string `json:"fund_id"`
	DocumentType string `json:"document_type"`
	InputBucket  string `json:"input_bucket"`
	ObjectKey    string `json:"object_key"`
	FileName     string `json:"file_name,omitempty"`
	PromptKey    string `json:"prompt_key,omitempty"`
	SchemaKey    string `json:"schema_key,omitempty"`
}

// Validate checks the required fields.
func (j *DocumentJob) Validate() error {
	var missing []string
	if j.FundID == "" {
		missing = append(missing, "fund_id")
	}
	if j.DocumentType == "" {
		missing = append(missing, "document_type")
	}
	if j.InputBucket == "" {
		missing = append(missing, "input_bucket")
	}
	if j.ObjectKey == "" {
		missing = append(missing, "object_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing fields %v", common.ErrValidation, missing)
	}
	return nil
}

// Message is one delivered queue message, transport-agnostic.
type Message struct {
	ID   string
	Body []byte
}

// ParseJob decodes a message body into a DocumentJob.
func ParseJob(body []byte) (*DocumentJob, error) {
	var job DocumentJob
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("%w: parse job payload: %v", common.ErrValidation, err)
	}
	return &job, nil
}

func (j *DocumentJob) pipelineJob() pipeline.Job {
	return pipeline.Job{
		FundID:      j.FundID,
		InputBucket: j.InputBucket,
		ObjectKey:   j.ObjectKey,
		FileName:    j.FileName,
		PromptKey:   j.PromptKey,
		SchemaKey:   j.SchemaKey,
	}
}
