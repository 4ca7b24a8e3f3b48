/*
handlers.go - HTTP API handlers for the cooperative ledger server

PURPOSE:
  Exposes the authoritative ledger via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to storage and the
  recompute logic.

ENDPOINTS:
  Statistics:
    POST   /api/statistics          Batch upsert (idempotent on natural key)
    PUT    /api/statistics/{id}     Replace a statistic
    DELETE /api/statistics/{id}     Remove a statistic

  Invoices:
    POST   /api/invoices            Batch insert (at-most-once per number+product)
    PUT    /api/invoices/{id}       Replace an invoice
    DELETE /api/invoices/{id}       Remove an invoice

  Reads:
    GET    /api/ledger              Statistics and invoices for farm/date range
    GET    /api/health              Liveness probe

DOWNSTREAM RECOMPUTE:
  Every invoice mutation refreshes the statistics of the products it
  touches, so the server's current_inventory always reflects attributed
  usage. Clients never push derived inventory as authority.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid field values
  - 404: Resource not found
  - 409: Conflict (natural key, invoice number reuse)
  - 422: Payload shape the server cannot decode
  - 500: Internal errors
  Clients rely on these codes to rebuild the error taxonomy, so the
  mapping here is part of the wire contract.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - remote/client.go: The consumer of this contract
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coopstack/farm-ledger/ledger"
	"github.com/coopstack/farm-ledger/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store *sqlite.Store
	Log   *zap.Logger
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Store: store, Log: log}
}

// =============================================================================
// STATISTIC HANDLERS
// =============================================================================

// UpsertStatistics inserts-or-replaces statistics, idempotent on the
// (farm, date, product) natural key.
// POST /api/statistics
func (h *Handler) UpsertStatistics(w http.ResponseWriter, r *http.Request) {
	var dtos []StatisticDTO
	if err := json.NewDecoder(r.Body).Decode(&dtos); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Cannot decode statistics payload", err)
		return
	}

	ctx := r.Context()
	stats := h.Store.Statistics()
	out := make([]StatisticDTO, 0, len(dtos))

	for _, dto := range dtos {
		rec, err := FromStatisticDTO(dto)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid statistic", err)
			return
		}

		existing, err := stats.GetByKey(ctx, rec.Key())
		switch {
		case err == nil:
			// Replace in place, keeping the authoritative id.
			rec.ID = existing.ID
			rec.CreatedAt = existing.CreatedAt
			rec.UpdatedAt = time.Now().UTC()
			if err := stats.Update(ctx, rec); err != nil {
				h.writeStoreError(w, "Failed to replace statistic", err)
				return
			}
		case errors.Is(err, ledger.ErrStatisticNotFound):
			rec.ID = ledger.StatisticID(uuid.NewString())
			rec.CreatedAt = time.Now().UTC()
			rec.UpdatedAt = rec.CreatedAt
			if err := stats.Insert(ctx, rec); err != nil {
				h.writeStoreError(w, "Failed to insert statistic", err)
				return
			}
		default:
			h.writeStoreError(w, "Failed to look up statistic", err)
			return
		}

		h.Log.Info("statistic upserted",
			zap.String("farm", string(rec.Farm)),
			zap.String("date", rec.Date.String()),
			zap.String("product", string(rec.Product)))
		out = append(out, ToStatisticDTO(rec))
	}

	writeJSON(w, http.StatusOK, out)
}

// UpdateStatistic replaces the statistic with the given id.
// PUT /api/statistics/{id}
func (h *Handler) UpdateStatistic(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var dto StatisticDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Cannot decode statistic payload", err)
		return
	}
	rec, err := FromStatisticDTO(dto)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid statistic", err)
		return
	}
	rec.ID = ledger.StatisticID(id)
	rec.UpdatedAt = time.Now().UTC()

	if err := h.Store.Statistics().Update(r.Context(), rec); err != nil {
		h.writeStoreError(w, "Failed to update statistic", err)
		return
	}
	writeJSON(w, http.StatusOK, ToStatisticDTO(rec))
}

// DeleteStatistic removes the statistic with the given id.
// DELETE /api/statistics/{id}
func (h *Handler) DeleteStatistic(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Store.Statistics().Delete(r.Context(), ledger.StatisticID(id)); err != nil {
		h.writeStoreError(w, "Failed to delete statistic", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// INVOICE HANDLERS
// =============================================================================

// InsertInvoices inserts new invoices. Reusing an invoice number for the
// same product is a conflict, which replaying clients treat as already
// applied.
// POST /api/invoices
func (h *Handler) InsertInvoices(w http.ResponseWriter, r *http.Request) {
	var dtos []InvoiceDTO
	if err := json.NewDecoder(r.Body).Decode(&dtos); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Cannot decode invoices payload", err)
		return
	}

	ctx := r.Context()
	invs := h.Store.Invoices()
	out := make([]InvoiceDTO, 0, len(dtos))

	for _, dto := range dtos {
		rec, err := FromInvoiceDTO(dto)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid invoice", err)
			return
		}

		rec.ID = ledger.InvoiceID(uuid.NewString())
		rec.CreatedAt = time.Now().UTC()
		rec.UpdatedAt = rec.CreatedAt
		if err := invs.Insert(ctx, rec); err != nil {
			h.writeStoreError(w, "Failed to insert invoice", err)
			return
		}
		if err := h.refreshTouched(ctx, rec); err != nil {
			h.writeStoreError(w, "Failed to refresh statistics", err)
			return
		}

		h.Log.Info("invoice inserted",
			zap.String("number", rec.Number),
			zap.String("farm", string(rec.Farm)),
			zap.String("product", string(rec.Product)),
			zap.Bool("converted", rec.IsConverted))
		out = append(out, ToInvoiceDTO(rec))
	}

	writeJSON(w, http.StatusCreated, out)
}

// UpdateInvoice replaces the invoice with the given id and refreshes the
// statistics of every product the old and new versions touch.
// PUT /api/invoices/{id}
func (h *Handler) UpdateInvoice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var dto InvoiceDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Cannot decode invoice payload", err)
		return
	}
	rec, err := FromInvoiceDTO(dto)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid invoice", err)
		return
	}
	rec.ID = ledger.InvoiceID(id)
	rec.UpdatedAt = time.Now().UTC()

	ctx := r.Context()
	prev, err := h.Store.Invoices().Get(ctx, rec.ID)
	if err != nil {
		h.writeStoreError(w, "Failed to load invoice", err)
		return
	}
	if err := h.Store.Invoices().Update(ctx, rec); err != nil {
		h.writeStoreError(w, "Failed to update invoice", err)
		return
	}
	if err := h.refreshTouched(ctx, prev, rec); err != nil {
		h.writeStoreError(w, "Failed to refresh statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, ToInvoiceDTO(rec))
}

// DeleteInvoice removes the invoice with the given id.
// DELETE /api/invoices/{id}
func (h *Handler) DeleteInvoice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	rec, err := h.Store.Invoices().Get(ctx, ledger.InvoiceID(id))
	if err != nil {
		h.writeStoreError(w, "Failed to load invoice", err)
		return
	}
	if err := h.Store.Invoices().Delete(ctx, rec.ID); err != nil {
		h.writeStoreError(w, "Failed to delete invoice", err)
		return
	}
	if err := h.refreshTouched(ctx, rec); err != nil {
		h.writeStoreError(w, "Failed to refresh statistics", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// refreshTouched recomputes the statistics of every product referenced by
// the touched invoices.
func (h *Handler) refreshTouched(ctx context.Context, touched ...ledger.InvoiceRecord) error {
	if len(touched) == 0 {
		return nil
	}
	products := make([]ledger.ProductID, 0, len(touched)*2)
	for _, inv := range touched {
		products = append(products, inv.Product)
		if inv.IsConverted {
			products = append(products, inv.SourceProduct)
		}
	}
	return ledger.RefreshStatistics(ctx, h.Store.Statistics(), h.Store.Invoices(),
		touched[0].Farm, touched[0].Date, products...)
}

// =============================================================================
// READ HANDLERS
// =============================================================================

// GetLedger returns statistics and invoices for a farm and date range.
// GET /api/ledger?farm=...&from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	farm := ledger.FarmID(r.URL.Query().Get("farm"))

	from, err := ledger.ParseDateKey(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid 'from' date", err)
		return
	}
	to, err := ledger.ParseDateKey(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid 'to' date", err)
		return
	}

	ctx := r.Context()
	stats, err := h.Store.ListStatisticsRange(ctx, farm, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list statistics", err)
		return
	}
	invs, err := h.Store.ListInvoicesRange(ctx, farm, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list invoices", err)
		return
	}

	writeJSON(w, http.StatusOK, ToLedgerDTO(ledger.FetchResult{Statistics: stats, Invoices: invs}))
}

// Health is the liveness probe.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeStoreError maps storage errors onto the wire status contract.
func (h *Handler) writeStoreError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, ledger.ErrDuplicateNaturalKey),
		errors.Is(err, ledger.ErrDuplicateInvoiceNumber):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, ledger.ErrStatisticNotFound),
		errors.Is(err, ledger.ErrInvoiceNotFound):
		writeError(w, http.StatusNotFound, message, err)
	default:
		h.Log.Error(message, zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
