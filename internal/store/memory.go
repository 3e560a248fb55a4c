package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/funddocs/funds-tracker/constants"
)

// MemoryStore is an in-memory Store for tests and local development. It
// mirrors the Postgres semantics, including the conditional-update guard.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]*FundRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*FundRecord)}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) GetFund(_ context.Context, fundID string) (*FundRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[fundID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRecord(rec), nil
}

func (s *MemoryStore) CreateFund(_ context.Context, rec *FundRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[rec.FundID]; ok {
		return ErrDuplicateKey
	}
	s.items[rec.FundID] = copyRecord(rec)
	return nil
}

func (s *MemoryStore) UpdateFund(_ context.Context, fundID string, mut FundMutation, allowed []constants.FundStatus) (*FundRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.items[fundID]
	if !ok {
		return nil, ErrNotFound
	}
	if allowed != nil && !statusIn(rec.Status, allowed) {
		return nil, ErrPreconditionFailed
	}

	if mut.Status != nil {
		rec.Status = *mut.Status
	}
	if mut.ObjectKey != nil {
		rec.ObjectKey = *mut.ObjectKey
	}
	if mut.FileName != nil {
		rec.FileName = *mut.FileName
	}
	if mut.DocumentType != nil {
		rec.DocumentType = *mut.DocumentType
	}
	if mut.Payload != nil {
		rec.Payload = append([]byte(nil), mut.Payload...)
		rec.ErrorReason = nil
	} else if mut.ClearPayload {
		rec.Payload = nil
	}
	if mut.ResultBucket != nil {
		rec.ResultBucket = *mut.ResultBucket
	}
	if mut.ResultKey != nil {
		rec.ResultKey = *mut.ResultKey
	}
	if mut.ErrorReason != nil {
		reason := *mut.ErrorReason
		rec.ErrorReason = &reason
		rec.Payload = nil
	} else if mut.ClearError {
		rec.ErrorReason = nil
	}
	if mut.ExtractedAt != nil {
		t := *mut.ExtractedAt
		rec.ExtractedAt = &t
	}
	if mut.ExpiresAt != nil {
		t := *mut.ExpiresAt
		rec.ExpiresAt = &t
	}
	rec.UpdatedAt = time.Now().UTC()

	return copyRecord(rec), nil
}

func (s *MemoryStore) ListFundsByStatus(_ context.Context, status constants.FundStatus, limit int, cursor string) (*Page, error) {
	return s.list(limit, cursor, func(rec *FundRecord) bool { return rec.Status == status })
}

func (s *MemoryStore) ListFunds(_ context.Context, limit int, cursor string) (*Page, error) {
	return s.list(limit, cursor, func(*FundRecord) bool { return true })
}

func (s *MemoryStore) list(limit int, cursor string, match func(*FundRecord) bool) (*Page, error) {
	after, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, rec := range s.items {
		if strings.Compare(id, after) > 0 && match(rec) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	page := &Page{}
	for _, id := range ids {
		if len(page.Items) == limit {
			page.NextCursor = EncodeCursor(page.Items[limit-1].FundID)
			break
		}
		page.Items = append(page.Items, copyRecord(s.items[id]))
	}
	return page, nil
}

func statusIn(status constants.FundStatus, set []constants.FundStatus) bool {
	for _, st := range set {
		if st == status {
			return true
		}
	}
	return false
}

func copyRecord(rec *FundRecord) *FundRecord {
	out := *rec
	if rec.Payload != nil {
		out.Payload = append([]byte(nil), rec.Payload...)
	}
	if rec.ErrorReason != nil {
		reason := *rec.ErrorReason
		out.ErrorReason = &reason
	}
	if rec.ExtractedAt != nil {
		t := *rec.ExtractedAt
		out.ExtractedAt = &t
	}
	if rec.ExpiresAt != nil {
		t := *rec.ExpiresAt
		out.ExpiresAt = &t
	}
	return &out
}

var _ Store = (*MemoryStore)(nil)
