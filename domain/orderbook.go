package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spooky-finn/kucoin-book-mirror/helpers"
)

type OrderBookSource string

const (
	OrderBookSource_Provider       OrderBookSource = "Provider"
	OrderBookSource_LocalOrderBook OrderBookSource = "LocalOrderBook"
)

const (
	// MaxDepth is the number of levels kept per side.
	MaxDepth = 100
	// SizeThreshold is the smallest size a level can hold. Smaller snapshot
	// levels are not loaded and smaller incremental entries remove their level.
	SizeThreshold = 1e-4
	// NoSequence marks a book or message without a known sequence.
	NoSequence int64 = -1
)

var ErrMalformedPriceLevel = errors.New("malformed price level")

// SequenceValue holds the snapshot sequence as received. KuCoin sends it as a
// string, but a bare number is accepted too.
type SequenceValue string

func (s *SequenceValue) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*s = ""
		return nil
	}

	if strings.HasPrefix(raw, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = SequenceValue(str)
		return nil
	}

	*s = SequenceValue(raw)
	return nil
}

// Int64 returns NoSequence when the value is absent or not an integer.
func (s SequenceValue) Int64() int64 {
	seq, err := strconv.ParseInt(strings.TrimSpace(string(s)), 10, 64)
	if err != nil {
		return NoSequence
	}

	return seq
}

// OrderBookSnapshot is a full level-2 picture as served by the exchange.
type OrderBookSnapshot struct {
	Source   OrderBookSource `json:"source,omitempty"`
	Sequence SequenceValue   `json:"sequence"`
	Time     int64           `json:"time,omitempty"`
	Bids     [][]string      `json:"bids"`
	Asks     [][]string      `json:"asks"`
}

// OrderBookChanges carries [price, size, sequence] entries per side.
type OrderBookChanges struct {
	Asks [][]string `json:"asks"`
	Bids [][]string `json:"bids"`
}

type OrderBookUpdate struct {
	Symbol        string
	SequenceStart int64
	SequenceEnd   int64
	Changes       OrderBookChanges
	Time          int64
}

func NewOrderBookUpdate(symbol string, sequenceStart, sequenceEnd int64, changes OrderBookChanges) *OrderBookUpdate {
	return &OrderBookUpdate{
		Symbol:        symbol,
		SequenceStart: sequenceStart,
		SequenceEnd:   sequenceEnd,
		Changes:       changes,
	}
}

// BookView is an immutable copy of the book, best levels first.
type BookView struct {
	Sequence int64        `json:"sequence"`
	Bids     []PriceLevel `json:"bids"`
	Asks     []PriceLevel `json:"asks"`
}

type OrderBook struct {
	Symbol string

	mu             sync.RWMutex
	bids           *priceLadder
	asks           *priceLadder
	lastSequence   int64
	lastUpdateTime time.Time
}

func NewOrderBook(symbol string) *OrderBook {
	return &OrderBook{
		Symbol:       symbol,
		bids:         newBidLadder(),
		asks:         newAskLadder(),
		lastSequence: NoSequence,
	}
}

// ApplySnapshot replaces both sides with the snapshot levels. Sequence is
// taken from the snapshot body and may be overridden by SetLastSequence.
// Returns the number of malformed levels skipped.
func (ob *OrderBook) ApplySnapshot(snapshot *OrderBookSnapshot) int {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.bids.reset()
	ob.asks.reset()

	skipped := fillSnapshotSide(ob.bids, snapshot.Bids)
	skipped += fillSnapshotSide(ob.asks, snapshot.Asks)

	ob.bids.truncate(MaxDepth)
	ob.asks.truncate(MaxDepth)

	ob.lastSequence = snapshot.Sequence.Int64()
	ob.lastUpdateTime = time.Now()
	return skipped
}

// ApplyIncremental applies per-entry changes newer than the book sequence.
// It does not move the sequence; the caller advances it to the message end.
// Returns the number of malformed entries skipped.
func (ob *OrderBook) ApplyIncremental(changes OrderBookChanges) int {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	skipped := ob.applySide(ob.bids, changes.Bids)
	skipped += ob.applySide(ob.asks, changes.Asks)

	ob.bids.truncate(MaxDepth)
	ob.asks.truncate(MaxDepth)

	ob.lastUpdateTime = time.Now()
	return skipped
}

func (ob *OrderBook) applySide(side *priceLadder, entries [][]string) int {
	skipped := 0
	for _, entry := range entries {
		if len(entry) < 3 {
			skipped++
			continue
		}

		price, size, err := parsePriceSize(entry)
		if err != nil {
			skipped++
			continue
		}

		seq, err := strconv.ParseInt(entry[2], 10, 64)
		if err != nil {
			skipped++
			continue
		}

		if seq <= ob.lastSequence {
			continue
		}

		if size < SizeThreshold {
			side.remove(price)
		} else {
			side.set(price, size)
		}
	}

	return skipped
}

func (ob *OrderBook) SetLastSequence(seq int64) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.lastSequence = seq
}

func (ob *OrderBook) LastSequence() int64 {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	return ob.lastSequence
}

func (ob *OrderBook) LastUpdateTime() time.Time {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	return ob.lastUpdateTime
}

// Depth returns the number of levels held on each side.
func (ob *OrderBook) Depth() (bids int, asks int) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	return ob.bids.len(), ob.asks.len()
}

// TakeSnapshot copies at most limit levels per side; limit <= 0 copies all.
func (ob *OrderBook) TakeSnapshot(limit int) *BookView {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	return &BookView{
		Sequence: ob.lastSequence,
		Bids:     ob.bids.head(limit),
		Asks:     ob.asks.head(limit),
	}
}

func fillSnapshotSide(side *priceLadder, levels [][]string) int {
	skipped := 0
	for _, level := range levels {
		if len(level) < 2 {
			skipped++
			continue
		}

		price, size, err := parsePriceSize(level)
		if err != nil {
			skipped++
			continue
		}
		if size < SizeThreshold {
			continue
		}

		side.set(price, size)
	}

	return skipped
}

func parsePriceSize(level []string) (float64, float64, error) {
	price, err := strconv.ParseFloat(level[0], 64)
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, 0, fmt.Errorf("%w: price %q", ErrMalformedPriceLevel, level[0])
	}

	size, err := strconv.ParseFloat(level[1], 64)
	if err != nil || math.IsNaN(size) || math.IsInf(size, 0) {
		return 0, 0, fmt.Errorf("%w: size %q", ErrMalformedPriceLevel, level[1])
	}

	return price, size, nil
}

func serializePriceLevel(levels []PriceLevel) [][]string {
	result := make([][]string, len(levels))
	for i, level := range levels {
		result[i] = []string{
			strconv.FormatFloat(level.Price, 'f', -1, 64),
			strconv.FormatFloat(level.Size, 'f', -1, 64),
		}
	}

	return result
}

// ToSnapshot renders the view in the exchange snapshot shape.
func (v *BookView) ToSnapshot() *OrderBookSnapshot {
	return &OrderBookSnapshot{
		Source:   OrderBookSource_LocalOrderBook,
		Sequence: SequenceValue(helpers.IntToString(v.Sequence)),
		Bids:     serializePriceLevel(v.Bids),
		Asks:     serializePriceLevel(v.Asks),
	}
}
