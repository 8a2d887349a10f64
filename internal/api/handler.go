package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/tradeledger/internal/aggregate"
	"github.com/gyaneshwarpardhi/tradeledger/internal/config"
	"github.com/gyaneshwarpardhi/tradeledger/internal/export"
	"github.com/gyaneshwarpardhi/tradeledger/internal/identity"
	"github.com/gyaneshwarpardhi/tradeledger/internal/ingest"
	"github.com/gyaneshwarpardhi/tradeledger/internal/lifecycle"
	"github.com/gyaneshwarpardhi/tradeledger/internal/metrics"
	"github.com/gyaneshwarpardhi/tradeledger/internal/payload"
	"github.com/gyaneshwarpardhi/tradeledger/internal/store"
)

const maxBodyBytes = 1 << 20

// Handler holds all HTTP handler dependencies.
type Handler struct {
	trades   *aggregate.Engine
	writer   *lifecycle.Writer
	ingester *ingest.Ingester
	loader   *config.Loader
	mux      *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(trades *aggregate.Engine, writer *lifecycle.Writer, ingester *ingest.Ingester, loader *config.Loader) http.Handler {
	h := &Handler{trades: trades, writer: writer, ingester: ingester, loader: loader, mux: http.NewServeMux()}

	h.mux.HandleFunc("GET /v1/trades", h.listTrades)
	h.mux.HandleFunc("GET /v1/trades/{ref}", h.getTrade)
	h.mux.HandleFunc("POST /v1/trades", h.bookTrade)
	h.mux.HandleFunc("GET /v1/events/{id}", h.getEvent)
	h.mux.HandleFunc("POST /v1/events/{id}/amend", h.amendTrade)
	h.mux.HandleFunc("POST /v1/events/{id}/cancel", h.cancelTrade)
	h.mux.HandleFunc("POST /v1/events/{id}/verify", h.verifyTrade)
	h.mux.HandleFunc("POST /v1/events", h.ingestEvent)
	h.mux.HandleFunc("POST /v1/events/batch", h.ingestBatch)
	h.mux.HandleFunc("GET /v1/export", h.exportTrades)
	h.mux.HandleFunc("POST /v1/config/reload", h.reloadConfig)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(serviceTokenMiddleware(loader, h.mux))
}

// GET /v1/trades?search=&page=&size=: paged trade listing.
func (h *Handler) listTrades(w http.ResponseWriter, r *http.Request) {
	listing := h.loader.Config().Listing
	q := r.URL.Query()

	page, err := intParam(q.Get("page"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("page: %s", err))
		return
	}
	size, err := intParam(q.Get("size"), listing.DefaultPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("size: %s", err))
		return
	}
	if size > listing.MaxPageSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("size %d exceeds max %d", size, listing.MaxPageSize))
		return
	}

	res, err := h.trades.ListTrades(r.Context(), q.Get("search"), page, size)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPageView(res))
}

// GET /v1/trades/{ref}: one trade with its full history.
func (h *Handler) getTrade(w http.ResponseWriter, r *http.Request) {
	agg, err := h.trades.Trade(r.Context(), r.PathValue("ref"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTradeView(agg))
}

// POST /v1/trades: book a new trade.
func (h *Handler) bookTrade(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.BookRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := h.writer.Book(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, commandResponse{EventID: id, TradeRef: identity.RefFromEventID(id)})
}

// GET /v1/events/{id}: raw event plus decoded fields, used to prefill an amendment.
func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	e, err := h.trades.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	f := payload.Decode(e.Payload)
	writeJSON(w, http.StatusOK, eventDetail{
		Event:    newEventView(e),
		TradeRef: identity.ResolveTradeRef(e),
		Fields: fieldsView{
			Counterparty: f.Counterparty,
			Notional:     f.Notional,
			Currency:     f.Currency,
			Status:       f.Status,
		},
	})
}

// POST /v1/events/{id}/amend: amend the trade the event belongs to.
func (h *Handler) amendTrade(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.BookRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := h.writer.Amend(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, commandResponse{EventID: id, TradeRef: identity.RefFromEventID(id)})
}

// POST /v1/events/{id}/cancel
func (h *Handler) cancelTrade(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.writer.Cancel)
}

// POST /v1/events/{id}/verify
func (h *Handler) verifyTrade(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.writer.Verify)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id string) (string, error)) {
	id, err := fn(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, commandResponse{EventID: id, TradeRef: identity.RefFromEventID(id)})
}

// POST /v1/events: synchronous single external event.
func (h *Handler) ingestEvent(w http.ResponseWriter, r *http.Request) {
	var req ingest.Request
	if !decodeBody(w, r, &req) {
		return
	}
	e, err := h.ingester.Append(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newEventView(e))
}

// POST /v1/events/batch: async batch ingestion (up to 100 events).
func (h *Handler) ingestBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []ingest.Request
	if !decodeBody(w, r, &reqs) {
		return
	}
	if len(reqs) == 0 {
		writeError(w, http.StatusBadRequest, "batch must contain at least one event")
		return
	}
	res, err := h.ingester.Enqueue(reqs)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, batchResponse{Total: len(reqs), BatchResult: res})
}

// GET /v1/export: every trade as a comma-separated download.
func (h *Handler) exportTrades(w http.ResponseWriter, r *http.Request) {
	all, err := h.trades.All(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+export.Filename)
	w.WriteHeader(http.StatusOK)
	if err := export.Render(w, all); err != nil {
		slog.Warn("export write failed", "err", err)
	}
}

// POST /v1/config/reload: re-read config and re-apply the lifecycle policy.
func (h *Handler) reloadConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.loader.Reload()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded":  true,
		"lifecycle": cfg.Lifecycle,
		"listing":   cfg.Listing,
	})
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 if the ingest queue is >80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.ingester.QueueUtilization()
	metrics.IngestQueueUtilization.Set(util)
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ready",
		"queue_utilization": util,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return false
	}
	return true
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

// writeFailure maps domain errors onto HTTP status codes.
func writeFailure(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, aggregate.ErrInvalidPagination),
		errors.Is(err, lifecycle.ErrInvalidField),
		errors.Is(err, ingest.ErrInvalidEvent),
		errors.Is(err, ingest.ErrBatchTooLarge):
		status = http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrConflict),
		errors.Is(err, lifecycle.ErrTradeTerminal),
		errors.Is(err, store.ErrAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, ingest.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
