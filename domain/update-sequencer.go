package domain

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"go.uber.org/zap"
)

const (
	DefaultRefreshCooldown   = 5 * time.Second
	DefaultRefreshTimeout    = 15 * time.Second
	DefaultMaxPendingUpdates = 10_000
)

// RefreshRequester fetches a snapshot for symbol asynchronously and feeds it
// back through UpdateSequencer.OnSnapshot. It must not block.
type RefreshRequester interface {
	RequestRefresh(symbol string)
}

type SequencerConfig struct {
	// Minimum time between two snapshot requests for one symbol.
	RefreshCooldown time.Duration
	// After this long an unanswered request no longer blocks a new one.
	RefreshTimeout time.Duration
	// Oldest buffered updates are dropped beyond this.
	MaxPendingUpdates int
}

func DefaultSequencerConfig() SequencerConfig {
	return SequencerConfig{
		RefreshCooldown:   DefaultRefreshCooldown,
		RefreshTimeout:    DefaultRefreshTimeout,
		MaxPendingUpdates: DefaultMaxPendingUpdates,
	}
}

type SequencerOption func(*UpdateSequencer)

func WithSequencerConfig(config SequencerConfig) SequencerOption {
	return func(s *UpdateSequencer) { s.config = config }
}

func WithSyncObserver(observer SyncObserver) SequencerOption {
	return func(s *UpdateSequencer) { s.observer = observer }
}

func WithSequencerLogger(logger *zap.Logger) SequencerOption {
	return func(s *UpdateSequencer) { s.logger = logger }
}

func WithClock(now func() time.Time) SequencerOption {
	return func(s *UpdateSequencer) { s.now = now }
}

type symbolState struct {
	mu            sync.Mutex
	book          *OrderBook
	pending       deque.Deque[*OrderBookUpdate]
	sync          SyncState
	lastRefreshAt time.Time
}

// UpdateSequencer keeps every book sequence-contiguous with the feed. Updates
// that arrive across a gap are buffered and a snapshot is requested; the
// buffer is drained by the next contiguous update.
type UpdateSequencer struct {
	store     BookStore
	refresher RefreshRequester
	validator DepthUpdateValidator
	observer  SyncObserver
	logger    *zap.Logger
	config    SequencerConfig
	now       func() time.Time

	states sync.Map
}

func NewUpdateSequencer(
	store BookStore,
	refresher RefreshRequester,
	validator DepthUpdateValidator,
	opts ...SequencerOption,
) *UpdateSequencer {
	s := &UpdateSequencer{
		store:     store,
		refresher: refresher,
		validator: validator,
		observer:  NopSyncObserver{},
		logger:    zap.NewNop(),
		config:    DefaultSequencerConfig(),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.logger.Named("sequencer")
	return s
}

func (s *UpdateSequencer) stateOf(symbol string) *symbolState {
	if st, ok := s.states.Load(symbol); ok {
		return st.(*symbolState)
	}

	st, _ := s.states.LoadOrStore(symbol, &symbolState{book: s.store.GetOrCreate(symbol)})
	return st.(*symbolState)
}

// OnSnapshot installs a snapshot. sequence is the message-level sequence and
// wins over the body sequence unless it is NoSequence. Buffered updates stay
// in place until the next incremental that passes the gap check drains them.
func (s *UpdateSequencer) OnSnapshot(symbol string, sequence int64, snapshot *OrderBookSnapshot) {
	if snapshot == nil {
		s.logger.Warn("empty snapshot ignored", zap.String("symbol", symbol))
		return
	}

	st := s.stateOf(symbol)

	st.mu.Lock()
	skipped := st.book.ApplySnapshot(snapshot)
	if sequence != NoSequence {
		st.book.SetLastSequence(sequence)
	}

	last := st.book.LastSequence()
	if last == NoSequence {
		st.sync = SyncState{Status: SyncStatus_Uninitialized}
	} else {
		st.sync = SyncState{Status: SyncStatus_Synchronized}
	}
	pending := st.pending.Len()
	bids, asks := st.book.Depth()
	st.mu.Unlock()

	if skipped > 0 {
		s.logger.Warn("malformed snapshot levels skipped",
			zap.String("symbol", symbol),
			zap.Int("skipped", skipped),
		)
	}

	s.logger.Info("snapshot applied",
		zap.String("symbol", symbol),
		zap.Int64("sequence", last),
		zap.Int("bids", bids),
		zap.Int("asks", asks),
		zap.Int("pending", pending),
	)
	s.observer.OnSnapshotApplied(symbol, last, bids, asks)
}

// OnUpdate routes one incremental update. It returns nil when the update was
// applied, otherwise the validator error explaining why it was buffered or
// dropped.
func (s *UpdateSequencer) OnUpdate(update *OrderBookUpdate) error {
	if update == nil || update.Symbol == "" {
		s.logger.Debug("update without symbol dropped")
		s.observer.OnUpdateDiscarded("", ErrOrderBookUpdateIsMalformed)
		return ErrOrderBookUpdateIsMalformed
	}

	symbol := update.Symbol
	st := s.stateOf(symbol)
	now := s.now()

	st.mu.Lock()
	last := st.book.LastSequence()
	err := s.validator.IsValidUpd(update, last)

	switch {
	case s.validator.IsErrOutdated(err):
		st.mu.Unlock()
		s.observer.OnUpdateDiscarded(symbol, err)
		return err

	case s.validator.IsErrOutOfSequence(err), errors.Is(err, ErrOrderBookIsNotInitialized):
		evicted := s.buffer(st, update)
		refresh := s.claimRefresh(st, now, false)
		pending := st.pending.Len()
		st.mu.Unlock()

		if evicted {
			s.observer.OnUpdateDiscarded(symbol, ErrPendingBufferFull)
		}

		if s.validator.IsErrOutOfSequence(err) {
			s.logger.Info("sequence gap detected",
				zap.String("symbol", symbol),
				zap.Int64("lastSequence", last),
				zap.Int64("sequenceStart", update.SequenceStart),
			)
			s.observer.OnGapDetected(symbol, last, update.SequenceStart)
		}
		s.observer.OnUpdateBuffered(symbol, pending)

		if refresh {
			s.requestRefresh(symbol)
		}
		return err

	case err != nil:
		st.mu.Unlock()
		s.observer.OnUpdateDiscarded(symbol, err)
		return err
	}

	applied, currentApplied, skipped := s.drain(st, update)
	last = st.book.LastSequence()
	pending := st.pending.Len()
	st.mu.Unlock()

	if skipped > 0 {
		s.logger.Debug("malformed changes skipped",
			zap.String("symbol", symbol),
			zap.Int("skipped", skipped),
		)
	}

	if applied > 0 {
		s.observer.OnUpdateApplied(symbol, last)
	}
	s.observer.OnUpdateBuffered(symbol, pending)

	switch {
	case currentApplied:
		return nil
	case update.SequenceEnd <= last:
		s.observer.OnUpdateDiscarded(symbol, ErrOrderBookUpdateIsOutdated)
		return ErrOrderBookUpdateIsOutdated
	default:
		return ErrOrderBookUpdateIsOutOfSequence
	}
}

// drain replays the buffer in sequenceEnd order, stopping at the first entry
// that does not start right after the book sequence, then applies current if
// it is contiguous. When current closes the hole the drain stopped at, the
// remaining entries are replayed after it. The buffer is cleared; current is
// kept only when it is still ahead of the book.
func (s *UpdateSequencer) drain(st *symbolState, current *OrderBookUpdate) (applied int, currentApplied bool, skipped int) {
	entries := make([]*OrderBookUpdate, 0, st.pending.Len())
	for st.pending.Len() > 0 {
		entries = append(entries, st.pending.PopFront())
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].SequenceEnd < entries[j].SequenceEnd
	})

	apply := func(upd *OrderBookUpdate) {
		skipped += st.book.ApplyIncremental(upd.Changes)
		st.book.SetLastSequence(upd.SequenceEnd)
		applied++
	}
	replay := func(i int) int {
		for ; i < len(entries) && entries[i].SequenceStart == st.book.LastSequence()+1; i++ {
			apply(entries[i])
		}
		return i
	}

	next := replay(0)
	if current.SequenceStart == st.book.LastSequence()+1 {
		apply(current)
		currentApplied = true
		next = replay(next)
	}

	discarded := len(entries) - next
	if !currentApplied && current.SequenceEnd > st.book.LastSequence() {
		st.pending.PushBack(current)
	}

	if discarded > 0 {
		s.logger.Debug("buffered updates discarded",
			zap.String("symbol", current.Symbol),
			zap.Int("count", discarded),
		)
	}

	return applied, currentApplied, skipped
}

func (s *UpdateSequencer) buffer(st *symbolState, update *OrderBookUpdate) bool {
	st.pending.PushBack(update)

	if s.config.MaxPendingUpdates > 0 && st.pending.Len() > s.config.MaxPendingUpdates {
		dropped := st.pending.PopFront()
		s.logger.Warn("pending buffer full, oldest update dropped",
			zap.String("symbol", update.Symbol),
			zap.Int64("sequenceEnd", dropped.SequenceEnd),
		)
		return true
	}
	return false
}

// claimRefresh moves the state to AwaitingRefresh when a request is allowed.
// Caller holds st.mu and must call requestRefresh after unlocking.
func (s *UpdateSequencer) claimRefresh(st *symbolState, now time.Time, ignoreCooldown bool) bool {
	if st.sync.refreshInFlight(now, s.config.RefreshTimeout) {
		return false
	}

	if !ignoreCooldown && !st.lastRefreshAt.IsZero() && now.Sub(st.lastRefreshAt) < s.config.RefreshCooldown {
		return false
	}

	st.sync = SyncState{Status: SyncStatus_AwaitingRefresh, RequestedAt: now}
	st.lastRefreshAt = now
	return true
}

func (s *UpdateSequencer) requestRefresh(symbol string) {
	s.logger.Info("snapshot refresh requested", zap.String("symbol", symbol))
	s.observer.OnRefreshRequested(symbol)

	if s.refresher != nil {
		s.refresher.RequestRefresh(symbol)
	}
}

// RequestRefresh asks for a snapshot subject to the cooldown. It reports
// whether a request was actually issued.
func (s *UpdateSequencer) RequestRefresh(symbol string) bool {
	return s.refresh(symbol, false)
}

// Resync asks for a snapshot ignoring the cooldown, as done after the feed
// reconnects. A request already in flight is not duplicated.
func (s *UpdateSequencer) Resync(symbol string) bool {
	return s.refresh(symbol, true)
}

func (s *UpdateSequencer) refresh(symbol string, ignoreCooldown bool) bool {
	st := s.stateOf(symbol)

	st.mu.Lock()
	claimed := s.claimRefresh(st, s.now(), ignoreCooldown)
	st.mu.Unlock()

	if claimed {
		s.requestRefresh(symbol)
	}
	return claimed
}

// OnRefreshFailed releases the in-flight marker so the next gap can retry.
func (s *UpdateSequencer) OnRefreshFailed(symbol string, err error) {
	st := s.stateOf(symbol)

	st.mu.Lock()
	if st.sync.Status == SyncStatus_AwaitingRefresh {
		if st.book.LastSequence() == NoSequence {
			st.sync = SyncState{Status: SyncStatus_Uninitialized}
		} else {
			st.sync = SyncState{Status: SyncStatus_Synchronized}
		}
	}
	st.mu.Unlock()

	s.logger.Warn("snapshot refresh failed", zap.String("symbol", symbol), zap.Error(err))
	s.observer.OnRefreshFailed(symbol, err)
}

func (s *UpdateSequencer) State(symbol string) SyncState {
	st := s.stateOf(symbol)

	st.mu.Lock()
	defer st.mu.Unlock()

	return st.sync
}

func (s *UpdateSequencer) PendingCount(symbol string) int {
	st := s.stateOf(symbol)

	st.mu.Lock()
	defer st.mu.Unlock()

	return st.pending.Len()
}
