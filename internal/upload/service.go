// Package upload manages the fund document upload session: issuing scoped
// upload URLs, then sealing the uploaded set into the record's manifest and
// fanning jobs out to the extraction queue.
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/funddocs/funds-tracker/constants"
	"github.com/funddocs/funds-tracker/internal/common"
	"github.com/funddocs/funds-tracker/internal/objstore"
	"github.com/funddocs/funds-tracker/internal/queue"
	"github.com/funddocs/funds-tracker/internal/store"
)

// JobPublisher enqueues document jobs for the extraction workers.
type JobPublisher interface {
	PublishJob(ctx context.Context, job queue.DocumentJob) error
}

type Service struct {
	Store     store.Store
	Objects   objstore.Store
	Publisher JobPublisher
	Logger    *slog.Logger

	InputBucket string
	URLTTL      time.Duration
}

// InitiateRequest starts an upload session for a new fund.
type InitiateRequest struct {
	FundID       string `json:"fund_id,omitempty"`
	FileName     string `json:"file_name"`
	DocumentType string `json:"document_type"`
}

// InitiateResponse carries the scoped upload URL the client PUTs to.
type InitiateResponse struct {
	FundID    string    `json:"fund_id"`
	UploadURL string    `json:"upload_url"`
	ObjectKey string    `json:"object_key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CompleteResponse reports the sealed manifest.
type CompleteResponse struct {
	FundID       string   `json:"fund_id"`
	Status       string   `json:"status"`
	ObjectKeys   []string `json:"object_keys"`
	JobsEnqueued int      `json:"jobs_enqueued"`
}

// Initiate creates the fund record in UPLOADING and returns a time-limited
// upload URL confined to the fund's upload prefix.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	if req.FileName == "" {
		return nil, fmt.Errorf("%w: file_name is required", common.ErrValidation)
	}
	docType := constants.ParseDocumentType(req.DocumentType)
	if docType == "" {
		return nil, fmt.Errorf("%w: unknown document_type %q", common.ErrValidation, req.DocumentType)
	}

	fundID := req.FundID
	if fundID == "" {
		fundID = uuid.NewString()
	}

	rec := &store.FundRecord{
		FundID:       fundID,
		Status:       constants.FundStatusUploading,
		FileName:     req.FileName,
		DocumentType: docType,
	}
	if err := s.Store.CreateFund(ctx, rec); err != nil {
		if err == store.ErrDuplicateKey {
			return nil, fmt.Errorf("%w: fund %s already exists", common.ErrConflict, fundID)
		}
		return nil, common.WrapError(err, "create fund record")
	}

	objectKey := path.Join(uploadPrefix(fundID), req.FileName)
	url, err := s.Objects.PresignPut(ctx, s.InputBucket, objectKey, s.URLTTL)
	if err != nil {
		return nil, common.WrapError(err, "presign upload url")
	}

	s.Logger.Info("upload.initiate.ok",
		"fund_id", fundID,
		"document_type", string(docType),
		"object_key", objectKey,
	)
	return &InitiateResponse{
		FundID:    fundID,
		UploadURL: url,
		ObjectKey: objectKey,
		ExpiresAt: time.Now().Add(s.URLTTL),
	}, nil
}

// Complete seals the fund's upload prefix into its manifest and enqueues one
// extraction job per uploaded object. Re-completing archives the previous
// manifest first, so each completion works against a fresh set.
func (s *Service) Complete(ctx context.Context, fundID string) (*CompleteResponse, error) {
	rec, err := s.Store.GetFund(ctx, fundID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, fmt.Errorf("%w: fund %s", common.ErrNotFound, fundID)
		}
		return nil, common.WrapError(err, "load fund record")
	}

	objects, err := s.Objects.List(ctx, s.InputBucket, uploadPrefix(fundID))
	if err != nil {
		return nil, common.WrapError(err, "list uploaded objects")
	}

	// Zero-byte objects are folder markers left by some upload clients.
	keys := make([]string, 0, len(objects))
	for _, o := range objects {
		if o.Size == 0 {
			continue
		}
		keys = append(keys, o.Key)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: no documents uploaded for fund %s", common.ErrNoDocuments, fundID)
	}

	keys, err = s.archivePrevious(ctx, fundID, rec.ObjectKey, keys)
	if err != nil {
		return nil, err
	}

	status := constants.FundStatusUploaded
	primary := keys[0]
	updated, err := s.Store.UpdateFund(ctx, fundID, store.FundMutation{
		Status:    &status,
		ObjectKey: &primary,
	}, []constants.FundStatus{
		constants.FundStatusCreated,
		constants.FundStatusUploading,
		constants.FundStatusUploaded,
		constants.FundStatusFailed,
	})
	if err != nil {
		if err == store.ErrPreconditionFailed {
			return nil, fmt.Errorf("%w: fund %s is %s", common.ErrConflict, fundID, rec.Status)
		}
		return nil, common.WrapError(err, "record upload manifest")
	}

	enqueued := 0
	for _, key := range keys {
		job := queue.DocumentJob{
			FundID:       fundID,
			DocumentType: string(updated.DocumentType),
			InputBucket:  s.InputBucket,
			ObjectKey:    key,
			FileName:     updated.FileName,
		}
		if err := s.Publisher.PublishJob(ctx, job); err != nil {
			return nil, common.WrapError(err, "enqueue document job")
		}
		enqueued++
	}

	s.Logger.Info("upload.complete.ok",
		"fund_id", fundID,
		"objects", len(keys),
		"jobs_enqueued", enqueued,
	)
	return &CompleteResponse{
		FundID:       fundID,
		Status:       string(updated.Status),
		ObjectKeys:   keys,
		JobsEnqueued: enqueued,
	}, nil
}

// archivePrevious handles a re-upload: when the recorded manifest object
// from an earlier completion is still in the upload prefix alongside new
// objects, it is moved to a timestamped archive namespace and excluded from
// the new manifest. A retry of the same completion (the listing is exactly
// the prior set) archives nothing, so in-flight jobs keep their source.
func (s *Service) archivePrevious(ctx context.Context, fundID, priorKey string, current []string) ([]string, error) {
	if priorKey == "" {
		return current, nil
	}

	remaining := current[:0:0]
	found := false
	for _, k := range current {
		if k == priorKey {
			found = true
			continue
		}
		remaining = append(remaining, k)
	}
	if !found || len(remaining) == 0 {
		return current, nil
	}

	ts := time.Now().UTC().Format(time.RFC3339)
	dst := path.Join("archive", fundID, ts, path.Base(priorKey))
	if err := s.Objects.Copy(ctx, s.InputBucket, priorKey, dst); err != nil {
		return nil, common.WrapError(err, "archive prior manifest object")
	}
	if err := s.Objects.DeleteMany(ctx, s.InputBucket, []string{priorKey}); err != nil {
		return nil, common.WrapError(err, "remove archived object")
	}

	s.Logger.Info("upload.archive.ok", "fund_id", fundID, "from", priorKey, "to", dst)
	return remaining, nil
}

func uploadPrefix(fundID string) string {
	return "uploads/" + fundID + "/"
}
