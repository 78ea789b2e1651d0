package kucoin

import (
	"errors"
	"fmt"

	"github.com/Kucoin/kucoin-go-sdk"
	"github.com/spooky-finn/kucoin-book-mirror/domain"
)

const (
	DefaultBaseURL       = "https://api.kucoin.com"
	DefaultSnapshotDepth = 20
)

var ErrNoInstanceServers = errors.New("no websocket instance servers returned")

type SyncAPIConfig struct {
	BaseURL       string
	APIKey        string
	APISecret     string
	APIPassphrase string
	SnapshotDepth int
}

// KucoinSyncAPI wraps the REST endpoints used to bootstrap the feed.
type KucoinSyncAPI struct {
	apiService *kucoin.ApiService
	depth      int64
}

func NewKucoinSyncAPI(config SyncAPIConfig) *KucoinSyncAPI {
	opts := []kucoin.ApiServiceOption{
		kucoin.ApiKeyOption(config.APIKey),
		kucoin.ApiSecretOption(config.APISecret),
		kucoin.ApiPassPhraseOption(config.APIPassphrase),
	}
	if config.BaseURL != "" {
		opts = append(opts, kucoin.ApiBaseURIOption(config.BaseURL))
	}

	depth := config.SnapshotDepth
	if depth <= 0 {
		depth = DefaultSnapshotDepth
	}

	return &KucoinSyncAPI{
		apiService: kucoin.NewApiService(opts...),
		depth:      int64(depth),
	}
}

// WsConnOpts requests a public feed token and the instance servers to dial.
func (api *KucoinSyncAPI) WsConnOpts() (*kucoin.WebSocketTokenModel, error) {
	resp, err := api.apiService.WebSocketPublicToken()
	if err != nil {
		return nil, fmt.Errorf("failed to get ws connection options: %w", err)
	}

	data := &kucoin.WebSocketTokenModel{}
	if err = resp.ReadData(data); err != nil {
		return nil, fmt.Errorf("failed to read ws connection options: %w", err)
	}

	if len(data.Servers) == 0 {
		return nil, ErrNoInstanceServers
	}

	return data, nil
}

// OrderBookSnapshot fetches the partial level-2 book for symbol.
func (api *KucoinSyncAPI) OrderBookSnapshot(symbol string) (*domain.OrderBookSnapshot, error) {
	resp, err := api.apiService.AggregatedPartOrderBook(symbol, api.depth)
	if err != nil {
		return nil, fmt.Errorf("failed to get order book snapshot: %w", err)
	}

	data := &domain.OrderBookSnapshot{}
	if err = resp.ReadData(data); err != nil {
		return nil, fmt.Errorf("failed to read order book snapshot: %w, response: %s", err, resp.RawData)
	}

	data.Source = domain.OrderBookSource_Provider
	return data, nil
}
