package kucoin

import (
	"errors"

	"github.com/spooky-finn/kucoin-book-mirror/domain"
)

type KucoinDepthUpdateValidator struct{}

func (v *KucoinDepthUpdateValidator) IsValidUpd(update *domain.OrderBookUpdate, orderBookLastSeq int64) error {
	if update == nil || update.Symbol == "" || update.SequenceEnd == domain.NoSequence {
		return domain.ErrOrderBookUpdateIsMalformed
	}

	if update.SequenceEnd <= orderBookLastSeq {
		return domain.ErrOrderBookUpdateIsOutdated
	}

	if orderBookLastSeq == domain.NoSequence {
		return domain.ErrOrderBookIsNotInitialized
	}

	// a start past lastSeq+1 means we missed messages in between
	if update.SequenceStart > orderBookLastSeq+1 {
		return domain.ErrOrderBookUpdateIsOutOfSequence
	}

	return nil
}

func (v *KucoinDepthUpdateValidator) IsErrOutOfSequence(err error) bool {
	return errors.Is(err, domain.ErrOrderBookUpdateIsOutOfSequence)
}

func (v *KucoinDepthUpdateValidator) IsErrOutdated(err error) bool {
	return errors.Is(err, domain.ErrOrderBookUpdateIsOutdated)
}
