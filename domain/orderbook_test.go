package domain

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderBook_ApplySnapshot(t *testing.T) {
	// Mock data for testing
	snapshot := &OrderBookSnapshot{
		Sequence: "100",
		Bids:     [][]string{{"100.0", "1.5"}},
		Asks:     [][]string{{"101.0", "2.0"}},
	}

	ob := NewOrderBook("BTC-USDT")
	skipped := ob.ApplySnapshot(snapshot)

	// Assertions
	assert.Equal(t, 0, skipped)
	assert.Equal(t, int64(100), ob.LastSequence(), "LastSequence should match")

	view := ob.TakeSnapshot(0)
	assert.Equal(t, []PriceLevel{{Price: 100.0, Size: 1.5}}, view.Bids, "Bids should match")
	assert.Equal(t, []PriceLevel{{Price: 101.0, Size: 2.0}}, view.Asks, "Asks should match")
}

func TestOrderBook_ApplySnapshotReplacesBothSides(t *testing.T) {
	ob := NewOrderBook("BTC-USDT")
	ob.ApplySnapshot(&OrderBookSnapshot{
		Sequence: "1",
		Bids:     [][]string{{"99", "1"}, {"98", "1"}},
		Asks:     [][]string{{"101", "1"}},
	})

	ob.ApplySnapshot(&OrderBookSnapshot{
		Sequence: "2",
		Bids:     [][]string{{"50", "3"}},
		Asks:     [][]string{},
	})

	view := ob.TakeSnapshot(0)
	assert.Equal(t, int64(2), view.Sequence)
	assert.Equal(t, []PriceLevel{{Price: 50, Size: 3}}, view.Bids)
	assert.Empty(t, view.Asks)
}

func TestOrderBook_ApplySnapshotSkipsMalformedLevels(t *testing.T) {
	ob := NewOrderBook("BTC-USDT")
	skipped := ob.ApplySnapshot(&OrderBookSnapshot{
		Sequence: "7",
		Bids:     [][]string{{"100", "1"}, {"abc", "1"}, {"99"}, {"NaN", "1"}},
		Asks:     [][]string{{"101", "x"}, {"102", "2"}},
	})

	assert.Equal(t, 4, skipped)

	bids, asks := ob.Depth()
	assert.Equal(t, 1, bids)
	assert.Equal(t, 1, asks)
}

func TestOrderBook_ApplySnapshotDropsLevelsBelowThreshold(t *testing.T) {
	ob := NewOrderBook("BTC-USDT")
	skipped := ob.ApplySnapshot(&OrderBookSnapshot{
		Sequence: "100",
		Bids:     [][]string{{"100.0", "1.5"}, {"99.0", "0"}, {"98.0", "0.00005"}},
		Asks:     [][]string{{"101.0", "0.0001"}, {"102.0", "0.00009999"}},
	})

	assert.Equal(t, 0, skipped, "small sizes are not malformed")

	view := ob.TakeSnapshot(0)
	assert.Equal(t, []PriceLevel{{Price: 100.0, Size: 1.5}}, view.Bids)
	assert.Equal(t, []PriceLevel{{Price: 101.0, Size: 0.0001}}, view.Asks, "a size equal to the threshold is kept")
}

func TestOrderBook_ApplySnapshotWithoutSequence(t *testing.T) {
	ob := NewOrderBook("BTC-USDT")
	ob.ApplySnapshot(&OrderBookSnapshot{Sequence: "not-a-number"})

	assert.Equal(t, NoSequence, ob.LastSequence())
}

func TestOrderBook_ApplySnapshotKeepsBestLevels(t *testing.T) {
	bids := make([][]string, 0, MaxDepth+20)
	asks := make([][]string, 0, MaxDepth+20)
	for i := 1; i <= MaxDepth+20; i++ {
		bids = append(bids, []string{fmt.Sprint(i), "1"})
		asks = append(asks, []string{fmt.Sprint(1000 + i), "1"})
	}

	ob := NewOrderBook("BTC-USDT")
	ob.ApplySnapshot(&OrderBookSnapshot{Sequence: "1", Bids: bids, Asks: asks})

	view := ob.TakeSnapshot(0)
	require.Len(t, view.Bids, MaxDepth)
	require.Len(t, view.Asks, MaxDepth)

	assert.Equal(t, float64(MaxDepth+20), view.Bids[0].Price, "best bid is the highest price")
	assert.Equal(t, float64(21), view.Bids[MaxDepth-1].Price, "lowest bids are pruned")
	assert.Equal(t, float64(1001), view.Asks[0].Price, "best ask is the lowest price")
	assert.Equal(t, float64(1000+MaxDepth), view.Asks[MaxDepth-1].Price, "highest asks are pruned")
}

func TestOrderBook_ApplyIncremental(t *testing.T) {
	// Mock data for testing
	ob := NewOrderBook("BTC-USDT")
	ob.ApplySnapshot(&OrderBookSnapshot{
		Sequence: "100",
		Bids:     [][]string{{"100.0", "1.5"}},
		Asks:     [][]string{{"101.0", "2.0"}},
	})

	skipped := ob.ApplyIncremental(OrderBookChanges{
		Bids: [][]string{{"100.0", "0", "101"}, {"99.5", "3.0", "102"}},
		Asks: [][]string{{"101.0", "1.0", "103"}},
	})

	assert.Equal(t, 0, skipped)
	assert.Equal(t, int64(100), ob.LastSequence(), "incremental changes never move the sequence")

	view := ob.TakeSnapshot(0)
	assert.Equal(t, []PriceLevel{{Price: 99.5, Size: 3.0}}, view.Bids, "Bids should match")
	assert.Equal(t, []PriceLevel{{Price: 101.0, Size: 1.0}}, view.Asks, "Asks should match")
}

func TestOrderBook_ApplyIncrementalIgnoresStaleEntries(t *testing.T) {
	ob := NewOrderBook("BTC-USDT")
	ob.ApplySnapshot(&OrderBookSnapshot{
		Sequence: "100",
		Bids:     [][]string{{"100", "1"}},
	})

	ob.ApplyIncremental(OrderBookChanges{
		Bids: [][]string{{"100", "5", "100"}, {"98", "1", "90"}},
	})

	assert.Equal(t, []PriceLevel{{Price: 100, Size: 1}}, ob.TakeSnapshot(0).Bids)
}

func TestOrderBook_ApplyIncrementalRemovalThreshold(t *testing.T) {
	ob := NewOrderBook("BTC-USDT")
	ob.ApplySnapshot(&OrderBookSnapshot{
		Sequence: "1",
		Asks:     [][]string{{"10", "1"}, {"11", "1"}},
	})

	ob.ApplyIncremental(OrderBookChanges{
		Asks: [][]string{{"10", "0.00009", "2"}, {"11", "0.0001", "3"}, {"12", "0", "4"}},
	})

	assert.Equal(t, []PriceLevel{{Price: 11, Size: 0.0001}}, ob.TakeSnapshot(0).Asks)
}

func TestOrderBook_ApplyIncrementalSkipsMalformedEntries(t *testing.T) {
	ob := NewOrderBook("BTC-USDT")
	ob.ApplySnapshot(&OrderBookSnapshot{Sequence: "1"})

	skipped := ob.ApplyIncremental(OrderBookChanges{
		Bids: [][]string{{"100", "1"}, {"x", "1", "2"}, {"100", "1", "seq"}, {"99", "1", "3"}},
	})

	assert.Equal(t, 3, skipped)
	assert.Equal(t, []PriceLevel{{Price: 99, Size: 1}}, ob.TakeSnapshot(0).Bids)
}

func TestOrderBook_ApplyIncrementalPrunesToMaxDepth(t *testing.T) {
	ob := NewOrderBook("BTC-USDT")
	ob.ApplySnapshot(&OrderBookSnapshot{Sequence: "0"})

	bids := make([][]string, 0, MaxDepth+5)
	for i := 1; i <= MaxDepth+5; i++ {
		bids = append(bids, []string{fmt.Sprint(i), "1", fmt.Sprint(i)})
	}
	ob.ApplyIncremental(OrderBookChanges{Bids: bids})

	view := ob.TakeSnapshot(0)
	require.Len(t, view.Bids, MaxDepth)
	assert.Equal(t, float64(6), view.Bids[MaxDepth-1].Price)
}

func TestOrderBook_TakeSnapshot(t *testing.T) {
	ob := NewOrderBook("BTC-USDT")
	ob.ApplySnapshot(&OrderBookSnapshot{
		Sequence: "123",
		Bids:     [][]string{{"9900", "2"}, {"10000", "1"}},
		Asks:     [][]string{{"10200", "2.5"}, {"10100", "1.5"}},
	})

	result := ob.TakeSnapshot(1)

	assert.Equal(t, int64(123), result.Sequence, "Sequence should match")
	assert.Equal(t, []PriceLevel{{Price: 10000, Size: 1}}, result.Bids, "Bids should be limited")
	assert.Equal(t, []PriceLevel{{Price: 10100, Size: 1.5}}, result.Asks, "Asks should be limited")

	result.Bids[0].Size = 42
	assert.Equal(t, float64(1), ob.TakeSnapshot(1).Bids[0].Size, "view must be a copy")
}

func TestBookView_JSON(t *testing.T) {
	view := &BookView{
		Sequence: 5,
		Bids:     []PriceLevel{{Price: 100, Size: 1.5}},
		Asks:     []PriceLevel{},
	}

	data, err := json.Marshal(view)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sequence":5,"bids":[[100,1.5]],"asks":[]}`, string(data))

	var decoded BookView
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, view.Bids, decoded.Bids)
}

func TestBookView_ToSnapshot(t *testing.T) {
	view := &BookView{
		Sequence: 9,
		Bids:     []PriceLevel{{Price: 10000, Size: 1}},
		Asks:     []PriceLevel{{Price: 10100.5, Size: 0.25}},
	}

	snapshot := view.ToSnapshot()

	assert.Equal(t, OrderBookSource_LocalOrderBook, snapshot.Source)
	assert.Equal(t, int64(9), snapshot.Sequence.Int64())
	assert.Equal(t, [][]string{{"10000", "1"}}, snapshot.Bids)
	assert.Equal(t, [][]string{{"10100.5", "0.25"}}, snapshot.Asks)
}

func TestSequenceValue_Unmarshal(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		expected int64
	}{
		{"String", `{"sequence":"1545896668986"}`, 1545896668986},
		{"Number", `{"sequence":42}`, 42},
		{"Null", `{"sequence":null}`, NoSequence},
		{"Missing", `{}`, NoSequence},
		{"Garbage", `{"sequence":"abc"}`, NoSequence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var snapshot OrderBookSnapshot
			require.NoError(t, json.Unmarshal([]byte(tt.payload), &snapshot))
			assert.Equal(t, tt.expected, snapshot.Sequence.Int64())
		})
	}
}
