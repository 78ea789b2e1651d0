package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/spooky-finn/kucoin-book-mirror/domain"
	"go.uber.org/zap"
)

const (
	EventGapDetected     = "gap_detected"
	EventRefreshFailed   = "refresh_failed"
	EventSnapshotApplied = "snapshot_applied"
	EventReconciled      = "reconciled"
)

type Config struct {
	Brokers      []string      `yaml:"brokers" env:"BROKERS" envSeparator:","`
	Topic        string        `yaml:"topic" env:"TOPIC"`
	BatchTimeout time.Duration `yaml:"batchTimeout" env:"BATCH_TIMEOUT"`
	BufferSize   int           `yaml:"bufferSize" env:"BUFFER_SIZE"`
}

func (c Config) Enabled() bool {
	return len(c.Brokers) > 0 && c.Topic != ""
}

// SyncEvent is the payload published for each notable synchronization event.
type SyncEvent struct {
	Type          string                  `json:"type"`
	Symbol        string                  `json:"symbol"`
	Time          time.Time               `json:"time"`
	Sequence      int64                   `json:"sequence,omitempty"`
	LastSequence  int64                   `json:"lastSequence,omitempty"`
	SequenceStart int64                   `json:"sequenceStart,omitempty"`
	Bids          int                     `json:"bids,omitempty"`
	Asks          int                     `json:"asks,omitempty"`
	Error         string                  `json:"error,omitempty"`
	Report        *domain.ReconcileReport `json:"report,omitempty"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// SyncEventPublisher forwards gap, refresh, snapshot and reconcile events to
// a Kafka topic keyed by symbol. Events are queued without blocking and
// dropped when the queue is full.
type SyncEventPublisher struct {
	domain.NopSyncObserver

	writer messageWriter
	events chan SyncEvent
	logger *zap.Logger
	now    func() time.Time

	closeOnce sync.Once
	done      chan struct{}
}

func NewSyncEventPublisher(cfg Config, logger *zap.Logger) *SyncEventPublisher {
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 50 * time.Millisecond
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: batchTimeout,
	}

	return newSyncEventPublisher(writer, cfg.BufferSize, logger)
}

func newSyncEventPublisher(writer messageWriter, bufferSize int, logger *zap.Logger) *SyncEventPublisher {
	if bufferSize <= 0 {
		bufferSize = 1024
	}

	return &SyncEventPublisher{
		writer: writer,
		events: make(chan SyncEvent, bufferSize),
		logger: logger.Named("kafka-publisher"),
		now:    time.Now,
		done:   make(chan struct{}),
	}
}

// Run writes queued events until ctx is done, then flushes what is left.
func (p *SyncEventPublisher) Run(ctx context.Context) {
	defer close(p.done)

	for {
		select {
		case <-ctx.Done():
			p.flush()
			return
		case event := <-p.events:
			p.write(context.Background(), event)
		}
	}
}

// Close waits for Run to return and closes the writer.
func (p *SyncEventPublisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		<-p.done
		err = p.writer.Close()
	})
	return err
}

func (p *SyncEventPublisher) flush() {
	for {
		select {
		case event := <-p.events:
			p.write(context.Background(), event)
		default:
			return
		}
	}
}

func (p *SyncEventPublisher) write(ctx context.Context, event SyncEvent) {
	value, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to encode sync event", zap.String("type", event.Type), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Symbol),
		Value: value,
	})
	if err != nil {
		p.logger.Warn("failed to publish sync event",
			zap.String("type", event.Type),
			zap.String("symbol", event.Symbol),
			zap.Error(err),
		)
	}
}

func (p *SyncEventPublisher) publish(event SyncEvent) {
	event.Time = p.now()

	select {
	case p.events <- event:
	default:
		p.logger.Warn("sync event queue full, dropping event",
			zap.String("type", event.Type),
			zap.String("symbol", event.Symbol),
		)
	}
}

func (p *SyncEventPublisher) OnGapDetected(symbol string, lastSequence, sequenceStart int64) {
	p.publish(SyncEvent{
		Type:          EventGapDetected,
		Symbol:        symbol,
		LastSequence:  lastSequence,
		SequenceStart: sequenceStart,
	})
}

func (p *SyncEventPublisher) OnRefreshFailed(symbol string, err error) {
	event := SyncEvent{Type: EventRefreshFailed, Symbol: symbol}
	if err != nil {
		event.Error = err.Error()
	}
	p.publish(event)
}

func (p *SyncEventPublisher) OnSnapshotApplied(symbol string, sequence int64, bids, asks int) {
	p.publish(SyncEvent{
		Type:     EventSnapshotApplied,
		Symbol:   symbol,
		Sequence: sequence,
		Bids:     bids,
		Asks:     asks,
	})
}

func (p *SyncEventPublisher) OnReconciled(symbol string, report *domain.ReconcileReport) {
	p.publish(SyncEvent{
		Type:   EventReconciled,
		Symbol: symbol,
		Report: report,
	})
}
