package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/funddocs/funds-tracker/constants"
	"github.com/funddocs/funds-tracker/internal/common"
)

// Job is one unit of extraction work, derived from a queued message. Every
// field is revalidated on each delivery because duplicates are expected.
type Job struct {
	FundID       string
	DocumentType constants.DocumentType
	InputBucket  string
	ObjectKey    string
	FileName     string
	// Optional per-job configuration overrides.
	PromptKey string
	SchemaKey string
}

// OutcomeKind distinguishes "expected skip, no retry" from "real failure,
// should retry" so the queue consumer can apply correct batch semantics
// without inspecting error text.
type OutcomeKind int

const (
	OutcomeCompleted OutcomeKind = iota
	OutcomeSkipped
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCompleted:
		return "completed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// Outcome is the tagged result of processing one job.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
	Err    error
}

func Completed() Outcome            { return Outcome{Kind: OutcomeCompleted} }
func Skipped(reason string) Outcome { return Outcome{Kind: OutcomeSkipped, Reason: reason} }
func Failed(err error) Outcome      { return Outcome{Kind: OutcomeFailed, Err: err, Reason: err.Error()} }

// DocumentProcessor handles one document type end to end.
type DocumentProcessor interface {
	Process(ctx context.Context, job Job) Outcome
}

// Registry maps document types to their processor so adding a type is a
// registration, not a change to the routing core.
type Registry struct {
	procs map[constants.DocumentType]DocumentProcessor
}

func NewRegistry() *Registry {
	return &Registry{procs: make(map[constants.DocumentType]DocumentProcessor)}
}

func (r *Registry) Register(t constants.DocumentType, p DocumentProcessor) {
	r.procs[t] = p
}

// Lookup resolves the processor for a document type. Unrecognized types are
// an error; the message must be reported failed, not silently dropped.
func (r *Registry) Lookup(t constants.DocumentType) (DocumentProcessor, error) {
	p, ok := r.procs[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrUnsupportedDocumentType, t)
	}
	return p, nil
}

// SkipProcessor handles document types that are recognized but not yet
// implemented: the job is logged and treated as success so the queue never
// redelivers it.
type SkipProcessor struct {
	Logger *slog.Logger
}

func NewSkipProcessor(logger *slog.Logger) *SkipProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &SkipProcessor{Logger: logger}
}

func (s *SkipProcessor) Process(_ context.Context, job Job) Outcome {
	s.Logger.Info("pipeline.skip.unimplemented_type",
		"fund_id", job.FundID,
		"document_type", job.DocumentType,
	)
	return Skipped(fmt.Sprintf("document type %q not implemented", job.DocumentType))
}

var _ DocumentProcessor = (*SkipProcessor)(nil)
