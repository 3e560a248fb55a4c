package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/funddocs/funds-tracker/constants"
)

const fundColumns = `fund_id, status, object_key, file_name, document_type, payload,
	result_bucket, result_key, error_reason, created_at, updated_at, extracted_at, expires_at`

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) GetFund(ctx context.Context, fundID string) (*FundRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+fundColumns+` FROM fund_records WHERE fund_id = $1`, fundID)
	rec, err := scanFund(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get fund: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) CreateFund(ctx context.Context, rec *FundRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO fund_records
		   (fund_id, status, object_key, file_name, document_type, payload,
		    result_bucket, result_key, error_reason, created_at, updated_at, extracted_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.FundID, rec.Status, rec.ObjectKey, rec.FileName, rec.DocumentType, rec.Payload,
		rec.ResultBucket, rec.ResultKey, rec.ErrorReason, rec.CreatedAt, rec.UpdatedAt,
		rec.ExtractedAt, rec.ExpiresAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create fund: %w", err)
	}
	return nil
}

// UpdateFund applies the mutation in a single conditional UPDATE. The status
// guard rides in the WHERE clause, so the check and the write are one
// statement; there is no read-modify-write window.
func (s *PostgresStore) UpdateFund(ctx context.Context, fundID string, mut FundMutation, allowed []constants.FundStatus) (*FundRecord, error) {
	q, args := buildFundUpdate(fundID, mut, allowed)

	row := s.pool.QueryRow(ctx, q, args...)
	rec, err := scanFund(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Disambiguate a guard miss from a missing row.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM fund_records WHERE fund_id = $1)`, fundID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("update fund: %w", err)
		}
		if exists {
			return nil, ErrPreconditionFailed
		}
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update fund: %w", err)
	}
	return rec, nil
}

// buildFundUpdate renders the conditional UPDATE for a mutation. Postgres
// rejects a SET list that assigns the same column twice, so payload and
// error_reason each get exactly one assignment: writing one clears the
// other, and the explicit Clear flags fold into the same branch.
func buildFundUpdate(fundID string, mut FundMutation, allowed []constants.FundStatus) (string, []any) {
	sets := []string{"updated_at = NOW()"}
	args := []any{fundID}
	next := 2

	add := func(clause string, v any) {
		sets = append(sets, fmt.Sprintf(clause, next))
		args = append(args, v)
		next++
	}

	if mut.Status != nil {
		add("status = $%d", *mut.Status)
	}
	if mut.ObjectKey != nil {
		add("object_key = $%d", *mut.ObjectKey)
	}
	if mut.FileName != nil {
		add("file_name = $%d", *mut.FileName)
	}
	if mut.DocumentType != nil {
		add("document_type = $%d", *mut.DocumentType)
	}
	switch {
	case mut.Payload != nil:
		add("payload = $%d", mut.Payload)
	case mut.ClearPayload || mut.ErrorReason != nil:
		sets = append(sets, "payload = NULL")
	}
	if mut.ResultBucket != nil {
		add("result_bucket = $%d", *mut.ResultBucket)
	}
	if mut.ResultKey != nil {
		add("result_key = $%d", *mut.ResultKey)
	}
	switch {
	case mut.ErrorReason != nil:
		add("error_reason = $%d", *mut.ErrorReason)
	case mut.ClearError || mut.Payload != nil:
		sets = append(sets, "error_reason = NULL")
	}
	if mut.ExtractedAt != nil {
		add("extracted_at = $%d", *mut.ExtractedAt)
	}
	if mut.ExpiresAt != nil {
		add("expires_at = $%d", *mut.ExpiresAt)
	}

	where := "fund_id = $1"
	if allowed != nil {
		statuses := make([]string, len(allowed))
		for i, st := range allowed {
			statuses[i] = string(st)
		}
		where += fmt.Sprintf(" AND status = ANY($%d)", next)
		args = append(args, statuses)
	}

	return `UPDATE fund_records SET ` + strings.Join(sets, ", ") +
		` WHERE ` + where + ` RETURNING ` + fundColumns, args
}

func (s *PostgresStore) ListFundsByStatus(ctx context.Context, status constants.FundStatus, limit int, cursor string) (*Page, error) {
	after, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+fundColumns+` FROM fund_records
		 WHERE status = $1 AND fund_id > $2
		 ORDER BY fund_id LIMIT $3`,
		status, after, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list funds by status: %w", err)
	}
	defer rows.Close()
	return collectPage(rows, limit)
}

func (s *PostgresStore) ListFunds(ctx context.Context, limit int, cursor string) (*Page, error) {
	after, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+fundColumns+` FROM fund_records
		 WHERE fund_id > $1
		 ORDER BY fund_id LIMIT $2`,
		after, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list funds: %w", err)
	}
	defer rows.Close()
	return collectPage(rows, limit)
}

func collectPage(rows pgx.Rows, limit int) (*Page, error) {
	var items []*FundRecord
	for rows.Next() {
		rec, err := scanFund(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fund: %w", err)
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	page := &Page{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		page.NextCursor = EncodeCursor(page.Items[limit-1].FundID)
	}
	return page, nil
}

func scanFund(row pgx.Row) (*FundRecord, error) {
	var rec FundRecord
	err := row.Scan(&rec.FundID, &rec.Status, &rec.ObjectKey, &rec.FileName, &rec.DocumentType,
		&rec.Payload, &rec.ResultBucket, &rec.ResultKey, &rec.ErrorReason,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.ExtractedAt, &rec.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
