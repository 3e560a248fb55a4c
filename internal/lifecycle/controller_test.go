package lifecycle_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funddocs/funds-tracker/constants"
	"github.com/funddocs/funds-tracker/internal/lifecycle"
	"github.com/funddocs/funds-tracker/internal/store"
)

const (
	testKey  = "uploads/f1/memo.pdf"
	testName = "memo.pdf"
)

func seed(t *testing.T, s *store.MemoryStore, status constants.FundStatus, payload []byte) {
	t.Helper()
	rec := &store.FundRecord{
		FundID:       "f1",
		Status:       status,
		ObjectKey:    testKey,
		FileName:     testName,
		DocumentType: constants.DocTypeICMemo,
		Payload:      payload,
	}
	require.NoError(t, s.CreateFund(context.Background(), rec))
}

func TestBeginProcessing_AdmitsFromUploaded(t *testing.T) {
	s := store.NewMemoryStore()
	seed(t, s, constants.FundStatusUploaded, nil)
	c := lifecycle.NewController(s, nil)

	adm, err := c.BeginProcessing(context.Background(), "f1", testKey, testName, constants.DocTypeICMemo)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.DecisionAdmitted, adm.Decision)
	assert.Equal(t, constants.FundStatusProcessing, adm.Record.Status)
}

func TestBeginProcessing_CreatesMissingRecord(t *testing.T) {
	s := store.NewMemoryStore()
	c := lifecycle.NewController(s, nil)

	adm, err := c.BeginProcessing(context.Background(), "f1", testKey, testName, constants.DocTypeICMemo)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.DecisionAdmitted, adm.Decision)

	rec, err := s.GetFund(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, constants.FundStatusProcessing, rec.Status)
	assert.Equal(t, testKey, rec.ObjectKey)
}

func TestBeginProcessing_DuplicateDeliveryIsInFlight(t *testing.T) {
	s := store.NewMemoryStore()
	seed(t, s, constants.FundStatusUploaded, nil)
	c := lifecycle.NewController(s, nil)
	ctx := context.Background()

	first, err := c.BeginProcessing(ctx, "f1", testKey, testName, constants.DocTypeICMemo)
	require.NoError(t, err)
	require.Equal(t, lifecycle.DecisionAdmitted, first.Decision)

	second, err := c.BeginProcessing(ctx, "f1", testKey, testName, constants.DocTypeICMemo)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.DecisionAlreadyInFlight, second.Decision)
}

func TestBeginProcessing_ConcurrentAdmitsExactlyOnce(t *testing.T) {
	s := store.NewMemoryStore()
	seed(t, s, constants.FundStatusUploaded, nil)
	c := lifecycle.NewController(s, nil)

	const callers = 8
	decisions := make([]lifecycle.Decision, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			adm, err := c.BeginProcessing(context.Background(), "f1", testKey, testName, constants.DocTypeICMemo)
			if err != nil {
				errs[i] = err
				return
			}
			decisions[i] = adm.Decision
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	admitted, inFlight := 0, 0
	for _, d := range decisions {
		switch d {
		case lifecycle.DecisionAdmitted:
			admitted++
		case lifecycle.DecisionAlreadyInFlight:
			inFlight++
		default:
			t.Fatalf("unexpected decision %s", d)
		}
	}
	assert.Equal(t, 1, admitted)
	assert.Equal(t, callers-1, inFlight)
}

func TestBeginProcessing_AlreadyCompleteReturnsPayload(t *testing.T) {
	s := store.NewMemoryStore()
	payload := []byte(`{"fund_name":"Fund IV"}`)
	seed(t, s, constants.FundStatusExtracted, payload)
	c := lifecycle.NewController(s, nil)

	adm, err := c.BeginProcessing(context.Background(), "f1", testKey, testName, constants.DocTypeICMemo)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.DecisionAlreadyComplete, adm.Decision)
	assert.JSONEq(t, string(payload), string(adm.Payload))
}

// staleReadStore serves one stale record before delegating, standing in for
// a concurrent completion landing between a read and the guarded update.
type staleReadStore struct {
	store.Store
	stale  *store.FundRecord
	served bool
}

func (s *staleReadStore) GetFund(ctx context.Context, fundID string) (*store.FundRecord, error) {
	if !s.served {
		s.served = true
		return s.stale, nil
	}
	return s.Store.GetFund(ctx, fundID)
}

func TestBeginProcessing_ReadmissionClearsStalePayload(t *testing.T) {
	backing := store.NewMemoryStore()
	seed(t, backing, constants.FundStatusExtracted, []byte(`{"fund_name":"Fund IV"}`))

	stale := &store.FundRecord{
		FundID:       "f1",
		Status:       constants.FundStatusUploaded,
		ObjectKey:    testKey,
		FileName:     testName,
		DocumentType: constants.DocTypeICMemo,
	}
	c := lifecycle.NewController(&staleReadStore{Store: backing, stale: stale}, nil)

	adm, err := c.BeginProcessing(context.Background(), "f1", testKey, testName, constants.DocTypeICMemo)
	require.NoError(t, err)
	require.Equal(t, lifecycle.DecisionAdmitted, adm.Decision)

	rec, err := backing.GetFund(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, constants.FundStatusProcessing, rec.Status)
	assert.Nil(t, rec.Payload)
	assert.Nil(t, rec.ErrorReason)
}

func TestBeginProcessing_CollisionFailsRecord(t *testing.T) {
	s := store.NewMemoryStore()
	seed(t, s, constants.FundStatusProcessing, nil)
	c := lifecycle.NewController(s, nil)
	ctx := context.Background()

	adm, err := c.BeginProcessing(ctx, "f1", "uploads/f1/other.pdf", "other.pdf", constants.DocTypeICMemo)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.DecisionConflict, adm.Decision)

	rec, err := s.GetFund(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, constants.FundStatusFailed, rec.Status)
	require.NotNil(t, rec.ErrorReason)
	assert.Equal(t, "processing collision", *rec.ErrorReason)
}

func TestCompleteExtraction(t *testing.T) {
	s := store.NewMemoryStore()
	seed(t, s, constants.FundStatusProcessing, nil)
	c := lifecycle.NewController(s, nil)

	payload := []byte(`{"fund_name":"Fund IV"}`)
	rec, err := c.CompleteExtraction(context.Background(), "f1", payload, "results-bucket", "results/f1/out.json")
	require.NoError(t, err)
	assert.Equal(t, constants.FundStatusExtracted, rec.Status)
	assert.JSONEq(t, string(payload), string(rec.Payload))
	assert.Equal(t, "results-bucket", rec.ResultBucket)
	assert.Equal(t, "results/f1/out.json", rec.ResultKey)
	assert.NotNil(t, rec.ExtractedAt)
	assert.Nil(t, rec.ErrorReason)
}

func TestMarkFailed(t *testing.T) {
	s := store.NewMemoryStore()
	seed(t, s, constants.FundStatusProcessing, nil)
	c := lifecycle.NewController(s, nil)
	ctx := context.Background()

	c.MarkFailed(ctx, "f1", "inference: timeout")

	rec, err := s.GetFund(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, constants.FundStatusFailed, rec.Status)
	require.NotNil(t, rec.ErrorReason)
	assert.Equal(t, "inference: timeout", *rec.ErrorReason)
	assert.Nil(t, rec.Payload)
}

func TestMarkFailed_MissingRecordDoesNotPanic(t *testing.T) {
	c := lifecycle.NewController(store.NewMemoryStore(), nil)
	c.MarkFailed(context.Background(), "missing", "whatever")
}
