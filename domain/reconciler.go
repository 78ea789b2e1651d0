package domain

import (
	"math"
	"sort"
)

// Sizes closer than this are considered equal.
const reconcileTolerance = 1e-6

type LevelDiff struct {
	Price        float64 `json:"price"`
	LocalSize    float64 `json:"localSize"`
	OfficialSize float64 `json:"officialSize"`
}

type ReconcileDiffs struct {
	BidsDiff []LevelDiff `json:"bids_diff"`
	AsksDiff []LevelDiff `json:"asks_diff"`
}

// ReconcileReport compares the local book against an exchange snapshot.
type ReconcileReport struct {
	Symbol              string         `json:"symbol"`
	LocalSequence       int64          `json:"localSequence"`
	OfficialSequence    int64          `json:"officialSequence"`
	BidsMatchPercentage float64        `json:"bids_match_percentage"`
	AsksMatchPercentage float64        `json:"asks_match_percentage"`
	BooksMatch          bool           `json:"booksMatch"`
	Diffs               ReconcileDiffs `json:"diffs"`
}

// Compare diffs book against official level by level. The local side is read
// from a single consistent copy of the book.
func Compare(book *OrderBook, official *OrderBookSnapshot) *ReconcileReport {
	view := book.TakeSnapshot(0)
	if official == nil {
		official = &OrderBookSnapshot{}
	}

	officialBids := sizesByPrice(official.Bids)
	officialAsks := sizesByPrice(official.Asks)
	localBids := levelSizes(view.Bids)
	localAsks := levelSizes(view.Asks)

	bidsDiff := diffSide(localBids, officialBids, func(a, b float64) bool { return a > b })
	asksDiff := diffSide(localAsks, officialAsks, func(a, b float64) bool { return a < b })

	return &ReconcileReport{
		Symbol:              book.Symbol,
		LocalSequence:       view.Sequence,
		OfficialSequence:    official.Sequence.Int64(),
		BidsMatchPercentage: matchPercentage(localBids, officialBids),
		AsksMatchPercentage: matchPercentage(localAsks, officialAsks),
		BooksMatch:          len(bidsDiff) == 0 && len(asksDiff) == 0,
		Diffs: ReconcileDiffs{
			BidsDiff: bidsDiff,
			AsksDiff: asksDiff,
		},
	}
}

func diffSide(local, official map[float64]float64, better func(a, b float64) bool) []LevelDiff {
	diffs := make([]LevelDiff, 0)

	for price := range unionPrices(local, official) {
		localSize, officialSize := local[price], official[price]
		if math.Abs(localSize-officialSize) > reconcileTolerance {
			diffs = append(diffs, LevelDiff{
				Price:        price,
				LocalSize:    localSize,
				OfficialSize: officialSize,
			})
		}
	}

	sort.Slice(diffs, func(i, j int) bool {
		return better(diffs[i].Price, diffs[j].Price)
	})

	return diffs
}

// matchPercentage is the share of official volume also present locally.
func matchPercentage(local, official map[float64]float64) float64 {
	var total, matched float64
	for _, size := range official {
		total += size
	}

	if total == 0 {
		return 100
	}

	for price := range unionPrices(local, official) {
		matched += math.Min(local[price], official[price])
	}

	return matched / total * 100
}

func unionPrices(a, b map[float64]float64) map[float64]struct{} {
	prices := make(map[float64]struct{}, len(a)+len(b))
	for price := range a {
		prices[price] = struct{}{}
	}
	for price := range b {
		prices[price] = struct{}{}
	}

	return prices
}

func levelSizes(levels []PriceLevel) map[float64]float64 {
	sizes := make(map[float64]float64, len(levels))
	for _, level := range levels {
		sizes[level.Price] = level.Size
	}

	return sizes
}

// sizesByPrice parses exchange levels; malformed ones are ignored and a
// repeated price keeps its last size.
func sizesByPrice(levels [][]string) map[float64]float64 {
	sizes := make(map[float64]float64, len(levels))
	for _, level := range levels {
		if len(level) < 2 {
			continue
		}

		price, size, err := parsePriceSize(level)
		if err != nil {
			continue
		}

		sizes[price] = size
	}

	return sizes
}
