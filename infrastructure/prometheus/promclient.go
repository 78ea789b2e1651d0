package promclient

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spooky-finn/kucoin-book-mirror/domain"
)

// Metrics exports synchronization events. It is a domain.SyncObserver.
type Metrics struct {
	reg *prometheus.Registry

	updatesApplied    *prometheus.CounterVec
	updatesDiscarded  *prometheus.CounterVec
	pendingUpdates    *prometheus.GaugeVec
	sequenceGaps      *prometheus.CounterVec
	refreshRequests   *prometheus.CounterVec
	refreshFailures   *prometheus.CounterVec
	lastSequence      *prometheus.GaugeVec
	bookLevels        *prometheus.GaugeVec
	reconcileMatch    *prometheus.GaugeVec
	reconcileMismatch *prometheus.CounterVec
}

// NewMetrics registers the collectors on a private registry. openBooks
// reports the number of books held by the store.
func NewMetrics(openBooks func() int) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		updatesApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kucoin_updates_applied_total",
			Help: "incremental updates applied to the local book",
		}, []string{"symbol"}),
		updatesDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kucoin_updates_discarded_total",
			Help: "incremental updates dropped by the sequencer",
		}, []string{"symbol", "reason"}),
		pendingUpdates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kucoin_pending_updates",
			Help: "updates buffered while waiting for a snapshot",
		}, []string{"symbol"}),
		sequenceGaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kucoin_sequence_gaps_total",
			Help: "sequence gaps detected in the update stream",
		}, []string{"symbol"}),
		refreshRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kucoin_snapshot_refresh_requests_total",
			Help: "snapshot refreshes requested",
		}, []string{"symbol"}),
		refreshFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kucoin_snapshot_refresh_failures_total",
			Help: "snapshot refreshes that failed",
		}, []string{"symbol"}),
		lastSequence: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kucoin_last_sequence",
			Help: "last sequence applied to the local book",
		}, []string{"symbol"}),
		bookLevels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kucoin_book_levels",
			Help: "levels loaded by the last snapshot",
		}, []string{"symbol", "side"}),
		reconcileMatch: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kucoin_reconcile_match_percentage",
			Help: "size match against the exchange snapshot at the last reconcile",
		}, []string{"symbol", "side"}),
		reconcileMismatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kucoin_reconcile_mismatch_total",
			Help: "reconciles that found differing levels",
		}, []string{"symbol"}),
	}

	m.reg.MustRegister(
		m.updatesApplied,
		m.updatesDiscarded,
		m.pendingUpdates,
		m.sequenceGaps,
		m.refreshRequests,
		m.refreshFailures,
		m.lastSequence,
		m.bookLevels,
		m.reconcileMatch,
		m.reconcileMismatch,
		collectors.NewGoCollector(),
	)

	if openBooks != nil {
		m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "kucoin_open_order_book",
			Help: "kucoin open order book",
		}, func() float64 { return float64(openBooks()) }))
	}

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

func (m *Metrics) OnUpdateApplied(symbol string, sequence int64) {
	m.updatesApplied.WithLabelValues(symbol).Inc()
	m.lastSequence.WithLabelValues(symbol).Set(float64(sequence))
}

func (m *Metrics) OnUpdateDiscarded(symbol string, reason error) {
	m.updatesDiscarded.WithLabelValues(symbol, discardReason(reason)).Inc()
}

func (m *Metrics) OnUpdateBuffered(symbol string, pending int) {
	m.pendingUpdates.WithLabelValues(symbol).Set(float64(pending))
}

func (m *Metrics) OnGapDetected(symbol string, _, _ int64) {
	m.sequenceGaps.WithLabelValues(symbol).Inc()
}

func (m *Metrics) OnRefreshRequested(symbol string) {
	m.refreshRequests.WithLabelValues(symbol).Inc()
}

func (m *Metrics) OnRefreshFailed(symbol string, _ error) {
	m.refreshFailures.WithLabelValues(symbol).Inc()
}

func (m *Metrics) OnSnapshotApplied(symbol string, sequence int64, bids, asks int) {
	m.lastSequence.WithLabelValues(symbol).Set(float64(sequence))
	m.bookLevels.WithLabelValues(symbol, "bids").Set(float64(bids))
	m.bookLevels.WithLabelValues(symbol, "asks").Set(float64(asks))
}

func (m *Metrics) OnReconciled(symbol string, report *domain.ReconcileReport) {
	m.reconcileMatch.WithLabelValues(symbol, "bids").Set(report.BidsMatchPercentage)
	m.reconcileMatch.WithLabelValues(symbol, "asks").Set(report.AsksMatchPercentage)
	if !report.BooksMatch {
		m.reconcileMismatch.WithLabelValues(symbol).Inc()
	}
}

func discardReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrOrderBookUpdateIsOutdated):
		return "outdated"
	case errors.Is(err, domain.ErrOrderBookUpdateIsOutOfSequence):
		return "out_of_sequence"
	case errors.Is(err, domain.ErrOrderBookUpdateIsMalformed):
		return "malformed"
	case errors.Is(err, domain.ErrOrderBookIsNotInitialized):
		return "not_initialized"
	case errors.Is(err, domain.ErrPendingBufferFull):
		return "buffer_overflow"
	default:
		return "other"
	}
}

