package store

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/funddocs/funds-tracker/constants"
)

var (
	ErrNotFound           = errors.New("fund record not found")
	ErrDuplicateKey       = errors.New("fund record already exists")
	ErrPreconditionFailed = errors.New("conditional update precondition failed")
	ErrInvalidCursor      = errors.New("invalid pagination cursor")
)

// FundRecord is the single durable row tracked per fund.
type FundRecord struct {
	FundID       string                 `db:"fund_id"       json:"fund_id"`
	Status       constants.FundStatus   `db:"status"        json:"status"`
	ObjectKey    string                 `db:"object_key"    json:"object_key,omitempty"`
	FileName     string                 `db:"file_name"     json:"file_name,omitempty"`
	DocumentType constants.DocumentType `db:"document_type" json:"document_type,omitempty"`
	Payload      []byte                 `db:"payload"       json:"payload,omitempty"`
	ResultBucket string                 `db:"result_bucket" json:"result_bucket,omitempty"`
	ResultKey    string                 `db:"result_key"    json:"result_key,omitempty"`
	ErrorReason  *string                `db:"error_reason"  json:"error_reason,omitempty"`
	CreatedAt    time.Time              `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time              `db:"updated_at"    json:"updated_at"`
	ExtractedAt  *time.Time             `db:"extracted_at"  json:"extracted_at,omitempty"`
	ExpiresAt    *time.Time             `db:"expires_at"    json:"expires_at,omitempty"`
}

// FundMutation describes the fields a single update touches. Nil pointers
// leave the stored value untouched; the Clear* flags null a column out.
// Payload and ErrorReason are mutually exclusive, so setting one always
// clears the other.
type FundMutation struct {
	Status       *constants.FundStatus
	ObjectKey    *string
	FileName     *string
	DocumentType *constants.DocumentType
	Payload      []byte
	ClearPayload bool
	ResultBucket *string
	ResultKey    *string
	ErrorReason  *string
	ClearError   bool
	ExtractedAt  *time.Time
	ExpiresAt    *time.Time
}

// Page is one page of a fund listing with an opaque continuation cursor.
type Page struct {
	Items      []*FundRecord
	NextCursor string
}

// Store is the data access interface for fund records. The conditional
// UpdateFund is the system's only concurrency-control primitive.
type Store interface {
	Ping(ctx context.Context) error

	// GetFund returns the record for fundID or ErrNotFound.
	GetFund(ctx context.Context, fundID string) (*FundRecord, error)

	// CreateFund inserts a new record, failing with ErrDuplicateKey if a
	// record for the same fund id already exists.
	CreateFund(ctx context.Context, rec *FundRecord) error

	// UpdateFund applies mut to the record for fundID. When allowed is
	// non-nil the update only applies if the current status is in the set;
	// a guard miss returns ErrPreconditionFailed and leaves the row
	// untouched. Returns the updated record.
	UpdateFund(ctx context.Context, fundID string, mut FundMutation, allowed []constants.FundStatus) (*FundRecord, error)

	// ListFundsByStatus pages through records with the given status using
	// the status secondary index.
	ListFundsByStatus(ctx context.Context, status constants.FundStatus, limit int, cursor string) (*Page, error)

	// ListFunds pages through all records.
	ListFunds(ctx context.Context, limit int, cursor string) (*Page, error)
}

// EncodeCursor turns the last-seen fund id into an opaque continuation token.
func EncodeCursor(lastFundID string) string {
	if lastFundID == "" {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(lastFundID))
}

// DecodeCursor reverses EncodeCursor. Empty input means "from the start".
func DecodeCursor(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}
	b, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return "", ErrInvalidCursor
	}
	return string(b), nil
}
