// Package pipeline runs the OCR -> prompt -> inference -> validation ->
// persistence sequence per document. Stages 1-7 are pure reads and
// computation; only persistence and notification have durable side effects,
// both to deterministic or append-safe locations, so the whole run is safe
// to retry from scratch on redelivery.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/funddocs/funds-tracker/internal/common"
	"github.com/funddocs/funds-tracker/internal/inference"
	"github.com/funddocs/funds-tracker/internal/lifecycle"
	"github.com/funddocs/funds-tracker/internal/objstore"
	"github.com/funddocs/funds-tracker/internal/ocr"
	"github.com/funddocs/funds-tracker/internal/promptcfg"
)

// ResultNotification is the downstream "succeeded" event emitted after
// persistence, referencing every input and output location for the fund.
type ResultNotification struct {
	FundID       string   `json:"fund_id"`
	DocumentType string   `json:"document_type"`
	InputBucket  string   `json:"input_bucket"`
	InputKeys    []string `json:"input_keys"`
	ResultBucket string   `json:"result_bucket"`
	ResultKey    string   `json:"result_key"`
	Status       string   `json:"status"`
}

// Notifier publishes result notifications to the downstream queue.
type Notifier interface {
	PublishResult(ctx context.Context, n ResultNotification) error
}

// Pipeline is the per-document extraction strategy with fine-grained
// idempotency gating.
type Pipeline struct {
	Logger    *slog.Logger
	Objects   objstore.Store
	Detector  ocr.TextDetector
	Generator inference.Generator
	Lifecycle *lifecycle.Controller
	Config    *promptcfg.Loader

	ResultBucket string
	NoiseMarkers []string
	Sampling     inference.SamplingConfig
	// Notifier is optional; the single-document strategy usually leaves
	// result fan-out to the record store.
	Notifier Notifier
}

// Process gates entry through the lifecycle controller, runs the stage
// sequence, and records the terminal state. Duplicate deliveries come back
// Skipped or Completed without touching the OCR or inference services.
func (p *Pipeline) Process(ctx context.Context, job Job) Outcome {
	adm, err := p.Lifecycle.BeginProcessing(ctx, job.FundID, job.ObjectKey, job.FileName, job.DocumentType)
	if err != nil {
		return Failed(fmt.Errorf("begin processing: %w", err))
	}

	switch adm.Decision {
	case lifecycle.DecisionAlreadyInFlight:
		return Skipped("duplicate delivery: document already processing")
	case lifecycle.DecisionAlreadyComplete:
		p.Logger.Info("pipeline.already_complete", "fund_id", job.FundID)
		return Completed()
	case lifecycle.DecisionConflict:
		return Failed(fmt.Errorf("%w: another document is processing for fund %s", common.ErrConflict, job.FundID))
	}

	if err := p.run(ctx, job); err != nil {
		p.Lifecycle.MarkFailed(ctx, job.FundID, err.Error())
		return Failed(err)
	}
	return Completed()
}

// run executes stages 1-9 strictly in order; the first failure aborts the
// rest.
func (p *Pipeline) run(ctx context.Context, job Job) error {
	start := time.Now()

	// 1. Existence check.
	exists, err := p.Objects.Exists(ctx, job.InputBucket, job.ObjectKey)
	if err != nil {
		return fmt.Errorf("check source document: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: source document %s/%s", common.ErrNotFound, job.InputBucket, job.ObjectKey)
	}

	// 2. Configuration load.
	bundle, err := p.Config.Load(ctx, job.PromptKey, job.SchemaKey)
	if err != nil {
		return err
	}

	// 3. Document load.
	doc, err := p.Objects.Get(ctx, job.InputBucket, job.ObjectKey)
	if err != nil {
		return fmt.Errorf("load source document: %w", err)
	}

	// 4. OCR.
	text, err := p.detectText(ctx, doc)
	if err != nil {
		return err
	}
	p.Logger.Info("pipeline.ocr.ok",
		"fund_id", job.FundID,
		"object_key", job.ObjectKey,
		"text_bytes", len(text),
	)

	// 5-6. Prompt assembly and inference.
	payload, err := p.generate(ctx, bundle, text)
	if err != nil {
		return err
	}

	// 7. Schema validation, collecting all violations.
	violations, err := ValidateAgainstSchema(bundle.SchemaRaw, payload)
	if err != nil {
		if len(violations) > 0 {
			p.Logger.Warn("pipeline.validate.failed",
				"fund_id", job.FundID,
				"violations", len(violations),
			)
		}
		return err
	}

	// 8. Persistence.
	resultKey := ResultKey(job.FundID, string(job.DocumentType), job.ObjectKey, time.Now().UTC())
	if err := p.Objects.Put(ctx, p.ResultBucket, resultKey, payload, "application/json"); err != nil {
		return fmt.Errorf("persist extraction result: %w", err)
	}
	if _, err := p.Lifecycle.CompleteExtraction(ctx, job.FundID, payload, p.ResultBucket, resultKey); err != nil {
		return err
	}

	// 9. Notification.
	if p.Notifier != nil {
		n := ResultNotification{
			FundID:       job.FundID,
			DocumentType: string(job.DocumentType),
			InputBucket:  job.InputBucket,
			InputKeys:    []string{job.ObjectKey},
			ResultBucket: p.ResultBucket,
			ResultKey:    resultKey,
			Status:       "succeeded",
		}
		if err := p.Notifier.PublishResult(ctx, n); err != nil {
			return fmt.Errorf("publish result notification: %w", err)
		}
	}

	p.Logger.Info("pipeline.extract.ok",
		"fund_id", job.FundID,
		"result_key", resultKey,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (p *Pipeline) detectText(ctx context.Context, doc []byte) (string, error) {
	blocks, err := p.Detector.DetectText(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("ocr detect text: %w", err)
	}
	return ocr.ExtractLines(blocks, p.NoiseMarkers), nil
}

// generate issues one inference call and requires its output to parse as
// JSON; anything else is an InvalidModelOutput failure recorded on the
// record.
func (p *Pipeline) generate(ctx context.Context, bundle *promptcfg.Bundle, text string) ([]byte, error) {
	msgs := BuildExtractionMessages(bundle.SchemaRaw, text)
	out, err := p.Generator.Generate(ctx, bundle.Prompt, msgs, p.Sampling)
	if err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}

	candidate := StripCodeFence(out)
	var v any
	if err := json.Unmarshal([]byte(candidate), &v); err != nil {
		return nil, fmt.Errorf("%w: model response is not valid JSON: %v", common.ErrInvalidModelOutput, err)
	}
	return []byte(candidate), nil
}

// ResultKey builds the deterministic, collision-avoiding output path under
// the fund's namespace.
func ResultKey(fundID, documentType, objectKey string, ts time.Time) string {
	base := path.Base(objectKey)
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return fmt.Sprintf("results/%s/%s/%s-%d.json", fundID, documentType, base, ts.Unix())
}

var _ DocumentProcessor = (*Pipeline)(nil)
