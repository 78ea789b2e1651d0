package domain

import "errors"

var (
	// Gap between the book and the update; buffered until a snapshot arrives.
	ErrOrderBookUpdateIsOutOfSequence = errors.New("order book update is out of sequence")
	// Already covered by the book; dropped.
	ErrOrderBookUpdateIsOutdated = errors.New("order book update is outdated")
	// No usable sequence range; dropped.
	ErrOrderBookUpdateIsMalformed = errors.New("order book update is malformed")
	// The book has no sequence yet; buffered until a snapshot arrives.
	ErrOrderBookIsNotInitialized = errors.New("order book is not initialized")
	// Evicted from a full pending buffer.
	ErrPendingBufferFull = errors.New("pending update buffer is full")
)

type DepthUpdateValidator interface {
	// if return nil, the update can be applied on top of the book
	IsValidUpd(update *OrderBookUpdate, orderBookLastSeq int64) error
	IsErrOutOfSequence(err error) bool
	IsErrOutdated(err error) bool
}
