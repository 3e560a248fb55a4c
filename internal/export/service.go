package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/funddocs/funds-tracker/constants"
	"github.com/funddocs/funds-tracker/internal/store"
)

// Service is a tiny façade over the record store that produces XLSX bytes
// for exports.
type Service struct {
	store  store.Store
	logger *slog.Logger
}

func NewService(st store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, logger: logger}
}

const exportPageSize = 500

// ExportFundsXLSX returns an XLSX workbook (as bytes) of fund records.
// An empty status exports everything.
func (s *Service) ExportFundsXLSX(ctx context.Context, status constants.FundStatus) ([]byte, error) {
	start := time.Now()

	recs, err := s.collect(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("query fund records: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Funds"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		_, err := f.NewSheet(sheet)
		if err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Fund ID",
		"Status",
		"Document Type",
		"File Name",
		"Result Location",
		"Extracted At",
		"Error",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range recs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, r.FundID)
		write(2, string(r.Status))
		write(3, string(r.DocumentType))
		write(4, r.FileName)

		location := ""
		if r.ResultBucket != "" && r.ResultKey != "" {
			location = r.ResultBucket + "/" + r.ResultKey
		}
		write(5, location)

		if r.ExtractedAt != nil {
			write(6, r.ExtractedAt.UTC().Format(time.RFC3339))
		} else {
			write(6, "")
		}

		if r.ErrorReason != nil {
			write(7, truncate(*r.ErrorReason, 140))
		} else {
			write(7, "")
		}

		row++
	}

	// Widen a few columns
	_ = f.SetColWidth(sheet, "A", "A", 38) // fund id
	_ = f.SetColWidth(sheet, "B", "C", 16) // status, type
	_ = f.SetColWidth(sheet, "D", "D", 28) // file name
	_ = f.SetColWidth(sheet, "E", "E", 60) // result location
	_ = f.SetColWidth(sheet, "F", "F", 22) // extracted at
	_ = f.SetColWidth(sheet, "G", "G", 48) // error

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"status", string(status),
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func (s *Service) collect(ctx context.Context, status constants.FundStatus) ([]*store.FundRecord, error) {
	var (
		recs   []*store.FundRecord
		cursor string
	)
	for {
		var (
			page *store.Page
			err  error
		)
		if status != "" {
			page, err = s.store.ListFundsByStatus(ctx, status, exportPageSize, cursor)
		} else {
			page, err = s.store.ListFunds(ctx, exportPageSize, cursor)
		}
		if err != nil {
			return nil, err
		}
		recs = append(recs, page.Items...)
		if page.NextCursor == "" {
			return recs, nil
		}
		cursor = page.NextCursor
	}
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
