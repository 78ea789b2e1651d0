package provider

import (
	"context"

	"github.com/spooky-finn/kucoin-book-mirror/domain"
	"github.com/spooky-finn/kucoin-book-mirror/provider/kucoin"
	"go.uber.org/zap"
)

// ConnectionManager owns the KuCoin collaborators: the REST API, the feed
// connection, its decoder and the snapshot refresher.
type ConnectionManager struct {
	KucoinSyncAPI   *kucoin.KucoinSyncAPI
	KucoinWS        *kucoin.KucoinStreamClient
	KucoinStreamAPI *kucoin.KucoinStreamAPI
	Refresher       *kucoin.SnapshotRefresher

	logger *zap.Logger
}

func NewConnectionManager(
	syncConfig kucoin.SyncAPIConfig,
	streamConfig kucoin.StreamClientConfig,
	symbols []string,
	logger *zap.Logger,
) *ConnectionManager {
	syncAPI := kucoin.NewKucoinSyncAPI(syncConfig)
	streamClient := kucoin.NewKucoinStreamClient(syncAPI, symbols, streamConfig, logger)

	return &ConnectionManager{
		KucoinSyncAPI:   syncAPI,
		KucoinWS:        streamClient,
		KucoinStreamAPI: kucoin.NewKucoinStreamAPI(streamClient, logger),
		Refresher:       kucoin.NewSnapshotRefresher(syncAPI, logger),
		logger:          logger.Named("conn-manager"),
	}
}

// Init attaches the sequencer, registers the reconnect hook and dials the
// feed. Every (re)connect calls onConnected.
func (cm *ConnectionManager) Init(sink kucoin.SnapshotSink, onConnected func()) error {
	cm.Refresher.Attach(sink)
	cm.KucoinWS.OnConnected(onConnected)

	if err := cm.KucoinWS.Start(); err != nil {
		cm.logger.Error("failed to start kucoin feed", zap.Error(err))
		return err
	}

	cm.logger.Info("kucoin feed started", zap.Strings("symbols", cm.KucoinWS.Symbols()))
	return nil
}

// DepthUpdates returns the decoded update stream of every subscribed symbol.
func (cm *ConnectionManager) DepthUpdates(ctx context.Context) *domain.Subscription[*domain.OrderBookUpdate] {
	return cm.KucoinStreamAPI.DepthDiffStream(ctx)
}

// Close stops the feed and waits for in-flight snapshot fetches.
func (cm *ConnectionManager) Close() {
	if err := cm.KucoinWS.Close(); err != nil {
		cm.logger.Warn("failed to close kucoin feed", zap.Error(err))
	}
	cm.Refresher.Wait()
}
