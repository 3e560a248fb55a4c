// Package api exposes the fund record lifecycle over HTTP: upload
// initiation and completion, record reads and listings, and the XLSX export.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/funddocs/funds-tracker/constants"
	"github.com/funddocs/funds-tracker/internal/api/response"
	"github.com/funddocs/funds-tracker/internal/common"
	"github.com/funddocs/funds-tracker/internal/export"
	"github.com/funddocs/funds-tracker/internal/store"
	"github.com/funddocs/funds-tracker/internal/upload"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Handlers bundles the services the HTTP surface delegates to.
type Handlers struct {
	Store    store.Store
	Uploads  *upload.Service
	Exporter *export.Service
	Pingers  []func(context.Context) error
}

// InitiateUpload handles POST /api/v1/funds/uploads.
func (h *Handlers) InitiateUpload(w http.ResponseWriter, r *http.Request) {
	var req upload.InitiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return
	}

	resp, err := h.Uploads.Initiate(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	response.Created(w, resp)
}

// CompleteUpload handles POST /api/v1/funds/{fundID}/uploads/complete.
func (h *Handlers) CompleteUpload(w http.ResponseWriter, r *http.Request) {
	fundID := chi.URLParam(r, "fundID")
	resp, err := h.Uploads.Complete(common.WithFundID(r.Context(), fundID), fundID)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, resp)
}

// GetFund handles GET /api/v1/funds/{fundID}.
func (h *Handlers) GetFund(w http.ResponseWriter, r *http.Request) {
	fundID := chi.URLParam(r, "fundID")
	rec, err := h.Store.GetFund(r.Context(), fundID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, fmt.Errorf("%w: fund %s", common.ErrNotFound, fundID))
			return
		}
		writeError(w, err)
		return
	}
	response.JSON(w, rec)
}

// ListFunds handles GET /api/v1/funds?status=&limit=&cursor=.
func (h *Handlers) ListFunds(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := defaultPageSize
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a positive integer", nil)
			return
		}
		if n > maxPageSize {
			n = maxPageSize
		}
		limit = n
	}

	var (
		page *store.Page
		err  error
	)
	cursor := q.Get("cursor")
	if raw := q.Get("status"); raw != "" {
		if !constants.IsValidStatus(raw) {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
				fmt.Sprintf("unknown status %q", raw), nil)
			return
		}
		page, err = h.Store.ListFundsByStatus(r.Context(), constants.FundStatus(raw), limit, cursor)
	} else {
		page, err = h.Store.ListFunds(r.Context(), limit, cursor)
	}
	if err != nil {
		if errors.Is(err, store.ErrInvalidCursor) {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid cursor", nil)
			return
		}
		writeError(w, err)
		return
	}

	items := page.Items
	if items == nil {
		items = []*store.FundRecord{}
	}
	response.Collection(w, items, page.NextCursor)
}

// ExportFunds handles GET /api/v1/funds/export.
func (h *Handlers) ExportFunds(w http.ResponseWriter, r *http.Request) {
	var status constants.FundStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		if !constants.IsValidStatus(raw) {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
				fmt.Sprintf("unknown status %q", raw), nil)
			return
		}
		status = constants.FundStatus(raw)
	}

	data, err := h.Exporter.ExportFundsXLSX(r.Context(), status)
	if err != nil {
		writeError(w, err)
		return
	}

	name := fmt.Sprintf("funds-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Healthz handles GET /healthz, pinging each registered dependency.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for _, ping := range h.Pingers {
		if err := ping(ctx); err != nil {
			response.Error(w, http.StatusServiceUnavailable, "UNHEALTHY", err.Error(), nil)
			return
		}
	}
	response.JSON(w, map[string]string{"status": "ok"})
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrNotFound):
		response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, common.ErrConflict):
		response.Error(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, common.ErrSchemaValidation):
		response.Error(w, http.StatusUnprocessableEntity, "SCHEMA_VALIDATION_FAILED", err.Error(), nil)
	case errors.Is(err, common.ErrValidation), errors.Is(err, common.ErrNoDocuments):
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}
