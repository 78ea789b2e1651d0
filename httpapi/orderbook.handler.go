package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/spooky-finn/kucoin-book-mirror/domain"
	"github.com/spooky-finn/kucoin-book-mirror/usecase"
	"go.uber.org/zap"
)

// NewQueryHandler serves the local books, the reconcile report and metrics.
// metrics may be nil.
func NewQueryHandler(snapshots *usecase.OrderBookSnapshotUseCase, metrics http.Handler, logger *zap.Logger) http.Handler {
	h := &queryHandler{
		snapshots: snapshots,
		logger:    logger.Named("http"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /orderbook/{symbol}", h.orderBook)
	mux.HandleFunc("GET /orderbook/validate/{symbol}", h.validate)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	return mux
}

type queryHandler struct {
	snapshots *usecase.OrderBookSnapshotUseCase
	logger    *zap.Logger
}

func (h *queryHandler) orderBook(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))

	view, err := h.snapshots.GetOrderBookSnapshot(symbol, domain.MaxDepth)
	if err != nil {
		h.notFoundOrFail(w, symbol, err)
		return
	}

	writeJSON(w, http.StatusOK, view, h.logger)
}

func (h *queryHandler) validate(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))

	report, err := h.snapshots.Reconcile(r.Context(), symbol)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, report, h.logger)
	case errors.Is(err, usecase.ErrOfficialSnapshotUnavailable):
		cause := strings.TrimPrefix(err.Error(), usecase.ErrOfficialSnapshotUnavailable.Error()+": ")
		http.Error(w, "Failed to fetch official snapshot: "+cause, http.StatusInternalServerError)
	default:
		h.notFoundOrFail(w, symbol, err)
	}
}

func (h *queryHandler) notFoundOrFail(w http.ResponseWriter, symbol string, err error) {
	if errors.Is(err, domain.ErrOrderBookNotFound) || errors.Is(err, domain.ErrInvalidMarketSymbol) {
		http.Error(w, "Order book not found for symbol: "+symbol, http.StatusNotFound)
		return
	}

	h.logger.Error("request failed", zap.String("symbol", symbol), zap.Error(err))
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, code int, body interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("failed to write response", zap.Error(err))
	}
}
