package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/funddocs/funds-tracker/internal/common"
	"github.com/funddocs/funds-tracker/internal/inference"
	"github.com/funddocs/funds-tracker/internal/lifecycle"
	"github.com/funddocs/funds-tracker/internal/objstore"
	"github.com/funddocs/funds-tracker/internal/ocr"
	"github.com/funddocs/funds-tracker/internal/promptcfg"
)

// groupSeparator joins the per-group inference outputs of a batched run.
const groupSeparator = "\n\n---\n\n"

// BatchedPipeline merges every document under a fund's namespace into
// shared inference calls: the manifest counts the schema text as its first
// document, groups cap out at MaxDocsPerCall, and one call is issued per
// group. Gating is per fund rather than per document, which is coarser than
// the single-document strategy; it shares the same lifecycle contract.
type BatchedPipeline struct {
	Logger    *slog.Logger
	Objects   objstore.Store
	Detector  ocr.TextDetector
	Generator inference.Generator
	Lifecycle *lifecycle.Controller
	Config    *promptcfg.Loader

	ResultBucket   string
	NoiseMarkers   []string
	Sampling       inference.SamplingConfig
	MaxDocsPerCall int
	Notifier       Notifier
}

// Process treats job.ObjectKey as the fund's document prefix and runs one
// extraction over everything beneath it.
func (p *BatchedPipeline) Process(ctx context.Context, job Job) Outcome {
	adm, err := p.Lifecycle.BeginProcessing(ctx, job.FundID, job.ObjectKey, job.FileName, job.DocumentType)
	if err != nil {
		return Failed(fmt.Errorf("begin processing: %w", err))
	}

	switch adm.Decision {
	case lifecycle.DecisionAlreadyInFlight:
		return Skipped("duplicate delivery: fund batch already processing")
	case lifecycle.DecisionAlreadyComplete:
		return Completed()
	case lifecycle.DecisionConflict:
		return Failed(fmt.Errorf("%w: another batch is processing for fund %s", common.ErrConflict, job.FundID))
	}

	if err := p.run(ctx, job); err != nil {
		p.Lifecycle.MarkFailed(ctx, job.FundID, err.Error())
		return Failed(err)
	}
	return Completed()
}

func (p *BatchedPipeline) run(ctx context.Context, job Job) error {
	objects, err := p.Objects.List(ctx, job.InputBucket, job.ObjectKey)
	if err != nil {
		return fmt.Errorf("list fund documents: %w", err)
	}
	var keys []string
	for _, obj := range objects {
		if obj.Size == 0 {
			continue
		}
		keys = append(keys, obj.Key)
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: no documents under %s/%s", common.ErrNotFound, job.InputBucket, job.ObjectKey)
	}

	bundle, err := p.Config.Load(ctx, job.PromptKey, job.SchemaKey)
	if err != nil {
		return err
	}

	// The schema text occupies one manifest slot in every call.
	perGroup := p.MaxDocsPerCall - 1
	if perGroup < 1 {
		perGroup = 1
	}

	var outputs []string
	for start := 0; start < len(keys); start += perGroup {
		end := min(start+perGroup, len(keys))
		out, err := p.processGroup(ctx, job, bundle, keys[start:end])
		if err != nil {
			return err
		}
		outputs = append(outputs, out)
	}

	payload := []byte(strings.Join(outputs, groupSeparator))

	// A single-group result that parses as one JSON object gets the full
	// schema check; a multi-group concatenation is persisted as produced.
	if len(outputs) == 1 && json.Valid(payload) {
		if _, err := ValidateAgainstSchema(bundle.SchemaRaw, payload); err != nil {
			return err
		}
	}

	resultKey := ResultKey(job.FundID, string(job.DocumentType), "batch", time.Now().UTC())
	if err := p.Objects.Put(ctx, p.ResultBucket, resultKey, payload, "application/json"); err != nil {
		return fmt.Errorf("persist extraction result: %w", err)
	}
	if _, err := p.Lifecycle.CompleteExtraction(ctx, job.FundID, payload, p.ResultBucket, resultKey); err != nil {
		return err
	}

	if p.Notifier != nil {
		n := ResultNotification{
			FundID:       job.FundID,
			DocumentType: string(job.DocumentType),
			InputBucket:  job.InputBucket,
			InputKeys:    keys,
			ResultBucket: p.ResultBucket,
			ResultKey:    resultKey,
			Status:       "succeeded",
		}
		if err := p.Notifier.PublishResult(ctx, n); err != nil {
			return fmt.Errorf("publish result notification: %w", err)
		}
	}

	p.Logger.Info("pipeline.batch.ok",
		"fund_id", job.FundID,
		"documents", len(keys),
		"groups", len(outputs),
		"result_key", resultKey,
	)
	return nil
}

// processGroup OCRs each source in the group and issues one inference call
// over the combined text. Each call is independent and stateless, so groups
// could run in parallel without changing correctness; they run sequentially
// for now.
func (p *BatchedPipeline) processGroup(ctx context.Context, job Job, bundle *promptcfg.Bundle, keys []string) (string, error) {
	var sections []string
	for _, key := range keys {
		doc, err := p.Objects.Get(ctx, job.InputBucket, key)
		if err != nil {
			return "", fmt.Errorf("load source document %s: %w", key, err)
		}
		blocks, err := p.Detector.DetectText(ctx, doc)
		if err != nil {
			return "", fmt.Errorf("ocr detect text %s: %w", key, err)
		}
		text := ocr.ExtractLines(blocks, p.NoiseMarkers)
		sections = append(sections, fmt.Sprintf("Document: %s\n%s", key, text))
	}

	msgs := BuildExtractionMessages(bundle.SchemaRaw, strings.Join(sections, "\n\n"))
	out, err := p.Generator.Generate(ctx, bundle.Prompt, msgs, p.Sampling)
	if err != nil {
		return "", fmt.Errorf("inference: %w", err)
	}

	candidate := StripCodeFence(out)
	var v any
	if err := json.Unmarshal([]byte(candidate), &v); err != nil {
		return "", fmt.Errorf("%w: model response is not valid JSON: %v", common.ErrInvalidModelOutput, err)
	}
	return candidate, nil
}

var _ DocumentProcessor = (*BatchedPipeline)(nil)
