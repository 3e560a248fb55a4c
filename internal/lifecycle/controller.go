// Package lifecycle owns the fund-status state machine. It wraps the record
// store with transition rules and idempotency gating; the store's
// conditional update is the only synchronization primitive, so every
// decision here survives duplicate delivery and concurrent callers.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/funddocs/funds-tracker/constants"
	"github.com/funddocs/funds-tracker/internal/store"
)

// Decision classifies the outcome of BeginProcessing.
type Decision int

const (
	// DecisionAdmitted means the record transitioned to PROCESSING and the
	// caller owns the pipeline run.
	DecisionAdmitted Decision = iota
	// DecisionAlreadyInFlight means another delivery of the same document
	// is processing; the caller must no-op, not fail.
	DecisionAlreadyInFlight
	// DecisionAlreadyComplete means extraction already finished; the stored
	// payload is returned and the pipeline must not run.
	DecisionAlreadyComplete
	// DecisionConflict means a different document is processing for the
	// same fund; the caller must fail the job, not retry the stale work.
	DecisionConflict
)

func (d Decision) String() string {
	switch d {
	case DecisionAdmitted:
		return "admitted"
	case DecisionAlreadyInFlight:
		return "already_in_flight"
	case DecisionAlreadyComplete:
		return "already_complete"
	case DecisionConflict:
		return "conflict"
	}
	return "unknown"
}

// Admission is the result of a BeginProcessing call.
type Admission struct {
	Decision Decision
	Record   *store.FundRecord
	// Payload is the stored extraction output, set only for
	// DecisionAlreadyComplete.
	Payload []byte
}

// admissibleStatuses may transition into PROCESSING. EXTRACTED and FAILED
// re-enter for reprocessing; the AlreadyComplete fast path runs first, so
// an EXTRACTED record with a payload never reaches the guard.
var admissibleStatuses = []constants.FundStatus{
	constants.FundStatusCreated,
	constants.FundStatusUploading,
	constants.FundStatusUploaded,
	constants.FundStatusFailed,
	constants.FundStatusExtracted,
}

const collisionReason = "processing collision"

// Controller gates entry into processing and records terminal states.
type Controller struct {
	Store  store.Store
	Logger *slog.Logger
}

func NewController(st store.Store, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{Store: st, Logger: logger}
}

// Get returns the fund record, or store.ErrNotFound.
func (c *Controller) Get(ctx context.Context, fundID string) (*store.FundRecord, error) {
	return c.Store.GetFund(ctx, fundID)
}

// BeginProcessing attempts the single atomic transition into PROCESSING,
// recording the document identity as it goes. Duplicate deliveries land on
// AlreadyInFlight or AlreadyComplete; a competing document lands on
// Conflict.
func (c *Controller) BeginProcessing(ctx context.Context, fundID, objectKey, fileName string, docType constants.DocumentType) (*Admission, error) {
	rec, err := c.Store.GetFund(ctx, fundID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// Job arrived before the upload collaborator created the record.
		// Create it directly in PROCESSING; a duplicate-key race falls
		// through to the guarded update below.
		created, createErr := c.createProcessing(ctx, fundID, objectKey, fileName, docType)
		if createErr == nil {
			c.Logger.Info("lifecycle.begin.admitted", "fund_id", fundID, "object_key", objectKey, "created", true)
			return &Admission{Decision: DecisionAdmitted, Record: created}, nil
		}
		if !errors.Is(createErr, store.ErrDuplicateKey) {
			return nil, createErr
		}
		rec, err = c.Store.GetFund(ctx, fundID)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	// Idempotent fast path: extraction already finished for this fund.
	if rec.Status == constants.FundStatusExtracted && rec.Payload != nil {
		c.Logger.Info("lifecycle.begin.already_complete", "fund_id", fundID)
		return &Admission{Decision: DecisionAlreadyComplete, Record: rec, Payload: rec.Payload}, nil
	}

	// ClearPayload covers the race where a concurrent completion lands
	// between the read above and this update: re-admission from EXTRACTED
	// must not carry the stale payload into PROCESSING.
	status := constants.FundStatusProcessing
	updated, err := c.Store.UpdateFund(ctx, fundID, store.FundMutation{
		Status:       &status,
		ObjectKey:    &objectKey,
		FileName:     &fileName,
		DocumentType: &docType,
		ClearError:   true,
		ClearPayload: true,
	}, admissibleStatuses)
	if err == nil {
		c.Logger.Info("lifecycle.begin.admitted", "fund_id", fundID, "object_key", objectKey)
		return &Admission{Decision: DecisionAdmitted, Record: updated}, nil
	}
	if !errors.Is(err, store.ErrPreconditionFailed) {
		return nil, fmt.Errorf("begin processing: %w", err)
	}

	return c.classifyGuardMiss(ctx, fundID, objectKey)
}

// classifyGuardMiss re-reads the record after a failed conditional update
// and decides between the duplicate-delivery no-op and a true collision.
func (c *Controller) classifyGuardMiss(ctx context.Context, fundID, objectKey string) (*Admission, error) {
	rec, err := c.Store.GetFund(ctx, fundID)
	if err != nil {
		return nil, fmt.Errorf("classify guard miss: %w", err)
	}

	switch {
	case rec.Status == constants.FundStatusProcessing && rec.ObjectKey == objectKey:
		c.Logger.Info("lifecycle.begin.already_in_flight", "fund_id", fundID, "object_key", objectKey)
		return &Admission{Decision: DecisionAlreadyInFlight, Record: rec}, nil

	case rec.Status == constants.FundStatusProcessing:
		// A different document is being processed for this fund. Force the
		// record to FAILED so neither run's result lands silently.
		c.Logger.Error("lifecycle.begin.collision",
			"fund_id", fundID,
			"in_flight_key", rec.ObjectKey,
			"requested_key", objectKey,
		)
		c.MarkFailed(ctx, fundID, collisionReason)
		return &Admission{Decision: DecisionConflict, Record: rec}, nil

	case rec.Status == constants.FundStatusExtracted && rec.Payload != nil:
		// Lost a race against a concurrent completion.
		return &Admission{Decision: DecisionAlreadyComplete, Record: rec, Payload: rec.Payload}, nil
	}

	c.Logger.Warn("lifecycle.begin.rejected", "fund_id", fundID, "status", rec.Status)
	return &Admission{Decision: DecisionConflict, Record: rec}, nil
}

func (c *Controller) createProcessing(ctx context.Context, fundID, objectKey, fileName string, docType constants.DocumentType) (*store.FundRecord, error) {
	now := time.Now().UTC()
	rec := &store.FundRecord{
		FundID:       fundID,
		Status:       constants.FundStatusProcessing,
		ObjectKey:    objectKey,
		FileName:     fileName,
		DocumentType: docType,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := c.Store.CreateFund(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// CompleteExtraction records the terminal success state: EXTRACTED with the
// payload, result location, and extraction timestamp; any stale error
// reason is cleared. The update is unconditional because only an admitted
// caller reaches this point.
func (c *Controller) CompleteExtraction(ctx context.Context, fundID string, payload []byte, resultBucket, resultKey string) (*store.FundRecord, error) {
	status := constants.FundStatusExtracted
	now := time.Now().UTC()
	rec, err := c.Store.UpdateFund(ctx, fundID, store.FundMutation{
		Status:       &status,
		Payload:      payload,
		ResultBucket: &resultBucket,
		ResultKey:    &resultKey,
		ExtractedAt:  &now,
		ClearError:   true,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("complete extraction: %w", err)
	}
	c.Logger.Info("lifecycle.complete", "fund_id", fundID, "result_key", resultKey)
	return rec, nil
}

// MarkFailed is best effort: a failure to record FAILED is logged and never
// escalated, so it cannot mask the failure that brought us here.
func (c *Controller) MarkFailed(ctx context.Context, fundID, reason string) {
	status := constants.FundStatusFailed
	_, err := c.Store.UpdateFund(ctx, fundID, store.FundMutation{
		Status:      &status,
		ErrorReason: &reason,
	}, nil)
	if err != nil {
		c.Logger.Error("lifecycle.mark_failed.update_error", "fund_id", fundID, "reason", reason, "error", err)
		return
	}
	c.Logger.Info("lifecycle.mark_failed", "fund_id", fundID, "reason", reason)
}
