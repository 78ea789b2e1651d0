package kucoin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Kucoin/kucoin-go-sdk"
	"github.com/spooky-finn/kucoin-book-mirror/domain"
	"go.uber.org/zap"
)

const level2Subject = "trade.l2update"

// ErrNotDepthUpdate marks control frames (welcome, ack, pong) and data
// frames of other topics.
var ErrNotDepthUpdate = errors.New("not a depth update")

type DepthUpdateModel struct {
	Changes       domain.OrderBookChanges `json:"changes"`
	SequenceEnd   *int64                  `json:"sequenceEnd"`
	SequenceStart *int64                  `json:"sequenceStart"`
	Symbol        string                  `json:"symbol"`
	Time          int64                   `json:"time"`
}

type KucoinStreamAPI struct {
	wc     *KucoinStreamClient
	logger *zap.Logger
}

func NewKucoinStreamAPI(wc *KucoinStreamClient, logger *zap.Logger) *KucoinStreamAPI {
	return &KucoinStreamAPI{
		wc:     wc,
		logger: logger.Named("stream-api"),
	}
}

type DepthUpdateSubscription = *domain.Subscription[*domain.OrderBookUpdate]

// DepthDiffStream decodes level-2 frames of every subscribed symbol. The
// stream is closed after Unsubscribe or when ctx is done.
func (s *KucoinStreamAPI) DepthDiffStream(ctx context.Context) DepthUpdateSubscription {
	out := make(chan *domain.OrderBookUpdate)
	stop := make(chan struct{})
	var once sync.Once

	go func() {
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case msg := <-s.wc.Messages():
				update, err := DecodeDepthUpdate(msg)
				if errors.Is(err, ErrNotDepthUpdate) {
					continue
				}
				if err != nil {
					s.logger.Warn("failed to decode stream message", zap.Error(err), zap.ByteString("message", msg))
					continue
				}

				select {
				case out <- update:
				case <-ctx.Done():
					return
				case <-stop:
					return
				}
			}
		}
	}()

	return &domain.Subscription[*domain.OrderBookUpdate]{
		Stream: out,
		Topic:  level2TopicPrefix + strings.Join(s.wc.Symbols(), ","),
		Unsubscribe: func() {
			once.Do(func() { close(stop) })
		},
	}
}

// DecodeDepthUpdate parses one raw feed frame. Missing sequence fields are
// reported as NoSequence and left for the sequencer to reject.
func DecodeDepthUpdate(raw []byte) (*domain.OrderBookUpdate, error) {
	msg := &kucoin.WebSocketDownstreamMessage{}
	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	if msg.WebSocketMessage == nil {
		return nil, fmt.Errorf("message without type: %s", raw)
	}

	switch msg.Type {
	case kucoin.Message:
	case kucoin.ErrorMessage:
		return nil, fmt.Errorf("stream error message: %s", raw)
	default:
		return nil, ErrNotDepthUpdate
	}

	if !strings.HasPrefix(msg.Topic, level2TopicPrefix) || (msg.Subject != "" && msg.Subject != level2Subject) {
		return nil, ErrNotDepthUpdate
	}

	data := &DepthUpdateModel{}
	if err := json.Unmarshal(msg.RawData, data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal depth update: %w", err)
	}

	symbol := data.Symbol
	if symbol == "" {
		symbol = strings.TrimPrefix(msg.Topic, level2TopicPrefix)
		if strings.Contains(symbol, ",") {
			symbol = ""
		}
	}

	update := domain.NewOrderBookUpdate(symbol, sequenceOrNone(data.SequenceStart), sequenceOrNone(data.SequenceEnd), data.Changes)
	update.Time = data.Time
	return update, nil
}

func sequenceOrNone(seq *int64) int64 {
	if seq == nil {
		return domain.NoSequence
	}

	return *seq
}
