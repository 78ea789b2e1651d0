package kucoin

import (
	"sync"

	"github.com/spooky-finn/kucoin-book-mirror/domain"
	"go.uber.org/zap"
)

type SnapshotFetcher interface {
	OrderBookSnapshot(symbol string) (*domain.OrderBookSnapshot, error)
}

// SnapshotSink consumes fetched snapshots and fetch failures.
type SnapshotSink interface {
	OnSnapshot(symbol string, sequence int64, snapshot *domain.OrderBookSnapshot)
	OnRefreshFailed(symbol string, err error)
}

// SnapshotRefresher fetches snapshots in the background on request.
type SnapshotRefresher struct {
	fetcher SnapshotFetcher
	logger  *zap.Logger

	mu     sync.RWMutex
	sink   SnapshotSink
	closed bool
	wg     sync.WaitGroup
}

func NewSnapshotRefresher(fetcher SnapshotFetcher, logger *zap.Logger) *SnapshotRefresher {
	return &SnapshotRefresher{
		fetcher: fetcher,
		logger:  logger.Named("refresher"),
	}
}

// Attach sets the sink. The sequencer needs the refresher at construction,
// so the two are wired in two steps.
func (r *SnapshotRefresher) Attach(sink SnapshotSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sink = sink
}

// RequestRefresh fetches symbol in the background. Requests made after Wait
// has begun are ignored.
func (r *SnapshotRefresher) RequestRefresh(symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		r.logger.Debug("refresh ignored after shutdown", zap.String("symbol", symbol))
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.refresh(symbol)
	}()
}

// RefreshAll requests a snapshot for every symbol.
func (r *SnapshotRefresher) RefreshAll(symbols []string) {
	for _, symbol := range symbols {
		r.RequestRefresh(symbol)
	}
}

// Wait stops accepting requests and blocks until every in-flight fetch has
// been delivered.
func (r *SnapshotRefresher) Wait() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *SnapshotRefresher) refresh(symbol string) {
	r.mu.RLock()
	sink := r.sink
	r.mu.RUnlock()

	snapshot, err := r.fetcher.OrderBookSnapshot(symbol)
	if err != nil {
		r.logger.Warn("failed to fetch snapshot", zap.String("symbol", symbol), zap.Error(err))
		if sink != nil {
			sink.OnRefreshFailed(symbol, err)
		}
		return
	}

	if sink == nil {
		r.logger.Warn("snapshot dropped, no sink attached", zap.String("symbol", symbol))
		return
	}

	r.logger.Debug("snapshot fetched",
		zap.String("symbol", symbol),
		zap.String("sequence", string(snapshot.Sequence)),
	)
	sink.OnSnapshot(symbol, snapshot.Sequence.Int64(), snapshot)
}
