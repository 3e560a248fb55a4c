package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/funddocs/funds-tracker/constants"
	"github.com/funddocs/funds-tracker/internal/common"
	"github.com/funddocs/funds-tracker/internal/lifecycle"
	"github.com/funddocs/funds-tracker/internal/pipeline"
)

// Consumer drives the extraction pipeline for each message in a delivered
// batch, isolating failures per message.
type Consumer struct {
	Logger    *slog.Logger
	Registry  *pipeline.Registry
	Lifecycle *lifecycle.Controller
}

func NewConsumer(logger *slog.Logger, registry *pipeline.Registry, lc *lifecycle.Controller) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{Logger: logger, Registry: registry, Lifecycle: lc}
}

// HandleBatch processes every message and returns the identifiers of the
// failed subset. A failure in one message never stops the others.
func (c *Consumer) HandleBatch(ctx context.Context, msgs []Message) []string {
	var failed []string
	for _, m := range msgs {
		if ok := c.handle(ctx, m); !ok {
			failed = append(failed, m.ID)
		}
	}
	if len(failed) > 0 {
		c.Logger.Warn("consumer.batch.partial_failure",
			"received", len(msgs),
			"failed", len(failed),
		)
	}
	return failed
}

func (c *Consumer) handle(ctx context.Context, m Message) bool {
	job, err := ParseJob(m.Body)
	if err != nil {
		c.Logger.Error("consumer.message.parse_error", "message_id", m.ID, "error", err)
		return false
	}

	if err := job.Validate(); err != nil {
		c.Logger.Error("consumer.message.invalid", "message_id", m.ID, "fund_id", job.FundID, "error", err)
		return false
	}

	// Routing happens before any record transition so an unrecognized type
	// leaves the fund record untouched.
	docType := constants.ParseDocumentType(job.DocumentType)
	if docType == "" {
		c.Logger.Error("consumer.message.unsupported_type",
			"message_id", m.ID,
			"fund_id", job.FundID,
			"document_type", job.DocumentType,
			"error", fmt.Errorf("%w: %q", common.ErrUnsupportedDocumentType, job.DocumentType),
		)
		return false
	}
	proc, err := c.Registry.Lookup(docType)
	if err != nil {
		c.Logger.Error("consumer.message.unsupported_type", "message_id", m.ID, "fund_id", job.FundID, "error", err)
		return false
	}

	pjob := job.pipelineJob()
	pjob.DocumentType = docType

	outcome := c.process(ctx, m.ID, job.FundID, proc, pjob)
	switch outcome.Kind {
	case pipeline.OutcomeCompleted:
		c.Logger.Info("consumer.message.completed", "message_id", m.ID, "fund_id", job.FundID)
		return true
	case pipeline.OutcomeSkipped:
		// Expected skip: treated as success so the queue never redelivers.
		c.Logger.Info("consumer.message.skipped", "message_id", m.ID, "fund_id", job.FundID, "reason", outcome.Reason)
		return true
	default:
		c.Logger.Error("consumer.message.failed", "message_id", m.ID, "fund_id", job.FundID, "error", outcome.Err)
		return false
	}
}

// process invokes the document processor, converting a panic into a Failed
// outcome recorded on the fund record so one bad message cannot take the
// worker down.
func (c *Consumer) process(ctx context.Context, messageID, fundID string, proc pipeline.DocumentProcessor, job pipeline.Job) (outcome pipeline.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic processing message %s: %v", messageID, r)
			c.Logger.Error("consumer.message.panic", "message_id", messageID, "fund_id", fundID, "error", err)
			if fundID != "" {
				c.Lifecycle.MarkFailed(ctx, fundID, err.Error())
			}
			outcome = pipeline.Failed(err)
		}
	}()
	return proc.Process(ctx, job)
}
