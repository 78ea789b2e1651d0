package usecase

import (
	"context"
	"errors"

	"github.com/spooky-finn/kucoin-book-mirror/domain"
	"go.uber.org/zap"
)

const (
	StatusStarted          = "WebSocket started"
	StatusAlreadyConnected = "WebSocket already connected"
	StatusStopped          = "WebSocket stopped"
	StatusRestarted        = "WebSocket restart requested"
)

type FeedController interface {
	Start() error
	Stop() error
	Restart() error
	Connected() bool
	Symbols() []string
	SetSymbols(symbols []string)
}

type Resyncer interface {
	Resync(symbol string) bool
}

type UpdateSink interface {
	OnUpdate(update *domain.OrderBookUpdate) error
}

// FeedControlUseCase drives the exchange feed: lifecycle commands, symbol
// changes, and forwarding decoded updates to the sequencer.
type FeedControlUseCase struct {
	feed     FeedController
	resyncer Resyncer
	sink     UpdateSink
	logger   *zap.Logger
}

func NewFeedControlUseCase(feed FeedController, resyncer Resyncer, sink UpdateSink, logger *zap.Logger) *FeedControlUseCase {
	return &FeedControlUseCase{
		feed:     feed,
		resyncer: resyncer,
		sink:     sink,
		logger:   logger.Named("feed-control-usecase"),
	}
}

func (f *FeedControlUseCase) Start() (string, error) {
	if f.feed.Connected() {
		return StatusAlreadyConnected, nil
	}

	if err := f.feed.Start(); err != nil {
		return "", err
	}

	f.logger.Info("feed start requested")
	return StatusStarted, nil
}

func (f *FeedControlUseCase) Stop() (string, error) {
	if err := f.feed.Stop(); err != nil {
		return "", err
	}

	f.logger.Info("feed stop requested")
	return StatusStopped, nil
}

func (f *FeedControlUseCase) Restart() (string, error) {
	if err := f.feed.Restart(); err != nil {
		return "", err
	}

	f.logger.Info("feed restart requested")
	return StatusRestarted, nil
}

// ResyncAll requests a fresh snapshot for every subscribed symbol. Called
// each time the feed (re)connects.
func (f *FeedControlUseCase) ResyncAll() {
	for _, symbol := range f.feed.Symbols() {
		f.resyncer.Resync(symbol)
	}
}

func (f *FeedControlUseCase) UpdateSymbols(symbols []string) {
	f.logger.Info("subscribed symbols updated", zap.Strings("symbols", symbols))
	f.feed.SetSymbols(symbols)
}

// Consume forwards updates from sub until the stream closes or ctx is done.
func (f *FeedControlUseCase) Consume(ctx context.Context, sub *domain.Subscription[*domain.OrderBookUpdate]) {
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-sub.Stream:
			if !ok {
				return
			}

			err := f.sink.OnUpdate(update)
			if err != nil && !errors.Is(err, domain.ErrOrderBookUpdateIsOutdated) {
				f.logger.Debug("update not applied",
					zap.String("symbol", update.Symbol),
					zap.Int64("sequenceStart", update.SequenceStart),
					zap.Int64("sequenceEnd", update.SequenceEnd),
					zap.Error(err),
				)
			}
		}
	}
}
