// Package handler exposes the commission engine and ledger over the
// admin HTTP surface. Thin by contract: decode, delegate, encode.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"upline/internal/commission/models"
	"upline/internal/transport/http/shared"
	id "upline/pkg/domain"
	dErrors "upline/pkg/domain-errors"
)

// Engine is the slice of the calculation engine the handler needs.
type Engine interface {
	CalculateForOrder(ctx context.Context, orderID id.OrderID) (*models.CalculationResult, error)
}

// Ledger is the slice of the ledger the handler needs.
type Ledger interface {
	MarkPaid(ctx context.Context, recordID id.RecordID, paidBy string) (*models.CommissionRecord, error)
	Get(ctx context.Context, recordID id.RecordID) (*models.CommissionRecord, error)
	Delete(ctx context.Context, recordID id.RecordID) error
	Query(ctx context.Context, filter models.RecordFilter, page models.Page) ([]*models.CommissionRecord, error)
	Summarize(ctx context.Context, beneficiary id.UserID, filter models.RecordFilter) (*models.Summary, error)
	TopOrdersByLevel(ctx context.Context, beneficiary id.UserID, limitPerLevel int) (map[models.Level][]models.OrderDigest, error)
	GlobalStats(ctx context.Context) (*models.GlobalStats, error)
	Calculations(ctx context.Context, orderID id.OrderID) ([]*models.CalculationLog, error)
}

type Handler struct {
	engine Engine
	ledger Ledger
	logger *slog.Logger
}

func New(engine Engine, ledger Ledger, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, ledger: ledger, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/orders/{orderID}/commissions/calculate", h.handleCalculate)
	r.Get("/orders/{orderID}/calculations", h.handleCalculations)
	r.Get("/commissions", h.handleQuery)
	r.Get("/commissions/stats", h.handleGlobalStats)
	r.Get("/commissions/{recordID}", h.handleGet)
	r.Delete("/commissions/{recordID}", h.handleDelete)
	r.Post("/commissions/{recordID}/pay", h.handleMarkPaid)
	r.Get("/users/{userID}/commissions/summary", h.handleSummary)
	r.Get("/users/{userID}/commissions/top-orders", h.handleTopOrders)
}

func (h *Handler) handleCalculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, err := id.ParseOrderID(chi.URLParam(r, "orderID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	result, err := h.engine.CalculateForOrder(ctx, orderID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "calculate commissions",
				"order", orderID.String(), "error", err)
		}
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toCalculationResponse(result))
}

func (h *Handler) handleCalculations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, err := id.ParseOrderID(chi.URLParam(r, "orderID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	entries, err := h.ledger.Calculations(ctx, orderID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]calculationLogResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, toCalculationLogResponse(entry))
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

type markPaidRequest struct {
	PaidBy string `json:"paidBy"`
}

func (h *Handler) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID, err := id.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req markPaidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	rec, err := h.ledger.MarkPaid(ctx, recordID, req.PaidBy)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "mark commission paid",
				"record", recordID.String(), "error", err)
		}
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toRecordResponse(rec))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	recordID, err := id.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	rec, err := h.ledger.Get(r.Context(), recordID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toRecordResponse(rec))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	recordID, err := id.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.ledger.Delete(r.Context(), recordID); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	page, err := pageFromQuery(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	records, err := h.ledger.Query(r.Context(), filter, page)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toRecordResponse(rec))
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	beneficiary, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	filter, err := filterFromQuery(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	summary, err := h.ledger.Summarize(r.Context(), beneficiary, filter)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toSummaryResponse(summary))
}

func (h *Handler) handleTopOrders(w http.ResponseWriter, r *http.Request) {
	beneficiary, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be an integer"))
			return
		}
	}
	digests, err := h.ledger.TopOrdersByLevel(r.Context(), beneficiary, limit)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make(map[string][]orderDigestResponse, len(digests))
	for level, perLevel := range digests {
		entries := make([]orderDigestResponse, 0, len(perLevel))
		for _, digest := range perLevel {
			entries = append(entries, toOrderDigestResponse(digest))
		}
		out[string(level)] = entries
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGlobalStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.GlobalStats(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toGlobalStatsResponse(stats))
}

func filterFromQuery(r *http.Request) (models.RecordFilter, error) {
	var filter models.RecordFilter
	q := r.URL.Query()

	if raw := q.Get("orderId"); raw != "" {
		orderID, err := id.ParseOrderID(raw)
		if err != nil {
			return filter, err
		}
		filter.OrderID = &orderID
	}
	if raw := q.Get("productId"); raw != "" {
		productID, err := id.ParseProductID(raw)
		if err != nil {
			return filter, err
		}
		filter.ProductID = &productID
	}
	if raw := q.Get("beneficiaryId"); raw != "" {
		beneficiary, err := id.ParseUserID(raw)
		if err != nil {
			return filter, err
		}
		filter.Beneficiary = &beneficiary
	}
	for _, raw := range q["level"] {
		filter.Levels = append(filter.Levels, models.Level(raw))
	}
	if raw := q.Get("status"); raw != "" {
		status := models.Status(raw)
		filter.Status = &status
	}
	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, dErrors.New(dErrors.CodeBadRequest, "from must be RFC3339")
		}
		filter.From = &from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, dErrors.New(dErrors.CodeBadRequest, "to must be RFC3339")
		}
		filter.To = &to
	}
	return filter, nil
}

func pageFromQuery(r *http.Request) (models.Page, error) {
	var page models.Page
	q := r.URL.Query()
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return page, dErrors.New(dErrors.CodeBadRequest, "limit must be an integer")
		}
		page.Limit = limit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil {
			return page, dErrors.New(dErrors.CodeBadRequest, "offset must be an integer")
		}
		page.Offset = offset
	}
	return page, nil
}
