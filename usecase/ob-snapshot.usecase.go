package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/spooky-finn/kucoin-book-mirror/domain"
	"go.uber.org/zap"
)

var ErrOfficialSnapshotUnavailable = errors.New("failed to fetch official snapshot")

type SnapshotFetcher interface {
	OrderBookSnapshot(symbol string) (*domain.OrderBookSnapshot, error)
}

// OrderBookSnapshotUseCase serves the local books and compares them with the
// exchange on demand.
type OrderBookSnapshotUseCase struct {
	storage  domain.BookStore
	fetcher  SnapshotFetcher
	observer domain.SyncObserver
	logger   *zap.Logger
}

func NewOrderBookSnapshotUseCase(
	storage domain.BookStore,
	fetcher SnapshotFetcher,
	observer domain.SyncObserver,
	logger *zap.Logger,
) *OrderBookSnapshotUseCase {
	if observer == nil {
		observer = domain.NopSyncObserver{}
	}

	return &OrderBookSnapshotUseCase{
		storage:  storage,
		fetcher:  fetcher,
		observer: observer,
		logger:   logger.Named("orderbook-snapshot-usecase"),
	}
}

// GetOrderBookSnapshot returns a copy of the local book, limit levels per side.
func (o *OrderBookSnapshotUseCase) GetOrderBookSnapshot(symbol string, limit int) (*domain.BookView, error) {
	ob, err := o.orderBook(symbol)
	if err != nil {
		return nil, err
	}

	return ob.TakeSnapshot(limit), nil
}

// GetOfficialSnapshot fetches the exchange snapshot for symbol.
func (o *OrderBookSnapshotUseCase) GetOfficialSnapshot(ctx context.Context, symbol string) (*domain.OrderBookSnapshot, error) {
	symbol, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	return o.fetchOfficial(ctx, symbol)
}

// Reconcile compares the local book of symbol with a fresh exchange snapshot.
func (o *OrderBookSnapshotUseCase) Reconcile(ctx context.Context, symbol string) (*domain.ReconcileReport, error) {
	ob, err := o.orderBook(symbol)
	if err != nil {
		return nil, err
	}

	official, err := o.fetchOfficial(ctx, ob.Symbol)
	if err != nil {
		return nil, err
	}

	report := domain.Compare(ob, official)
	o.logger.Info("order book reconciled",
		zap.String("symbol", ob.Symbol),
		zap.Bool("booksMatch", report.BooksMatch),
		zap.Float64("bidsMatch", report.BidsMatchPercentage),
		zap.Float64("asksMatch", report.AsksMatchPercentage),
		zap.Int64("localSequence", report.LocalSequence),
		zap.Int64("officialSequence", report.OfficialSequence),
	)
	o.observer.OnReconciled(ob.Symbol, report)

	return report, nil
}

func (o *OrderBookSnapshotUseCase) orderBook(symbol string) (*domain.OrderBook, error) {
	normalized, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	ob, err := o.storage.Get(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w for symbol: %s", err, normalized)
	}

	return ob, nil
}

func (o *OrderBookSnapshotUseCase) fetchOfficial(ctx context.Context, symbol string) (*domain.OrderBookSnapshot, error) {
	type result struct {
		snapshot *domain.OrderBookSnapshot
		err      error
	}

	done := make(chan result, 1)
	go func() {
		snapshot, err := o.fetcher.OrderBookSnapshot(symbol)
		done <- result{snapshot, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrOfficialSnapshotUnavailable, ctx.Err())
	case r := <-done:
		if r.err != nil {
			o.logger.Warn("failed to fetch official snapshot", zap.String("symbol", symbol), zap.Error(r.err))
			return nil, fmt.Errorf("%w: %w", ErrOfficialSnapshotUnavailable, r.err)
		}
		return r.snapshot, nil
	}
}
