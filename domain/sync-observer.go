package domain

// SyncObserver receives synchronization events. Implementations must not
// block; they are called from the feed and refresh goroutines.
type SyncObserver interface {
	OnUpdateApplied(symbol string, sequence int64)
	OnUpdateDiscarded(symbol string, reason error)
	OnUpdateBuffered(symbol string, pending int)
	OnGapDetected(symbol string, lastSequence, sequenceStart int64)
	OnRefreshRequested(symbol string)
	OnRefreshFailed(symbol string, err error)
	OnSnapshotApplied(symbol string, sequence int64, bids, asks int)
	OnReconciled(symbol string, report *ReconcileReport)
}

// NopSyncObserver ignores every event. Embed it to observe a subset.
type NopSyncObserver struct{}

func (NopSyncObserver) OnUpdateApplied(string, int64)             {}
func (NopSyncObserver) OnUpdateDiscarded(string, error)           {}
func (NopSyncObserver) OnUpdateBuffered(string, int)              {}
func (NopSyncObserver) OnGapDetected(string, int64, int64)        {}
func (NopSyncObserver) OnRefreshRequested(string)                 {}
func (NopSyncObserver) OnRefreshFailed(string, error)             {}
func (NopSyncObserver) OnSnapshotApplied(string, int64, int, int) {}
func (NopSyncObserver) OnReconciled(string, *ReconcileReport)     {}

// SyncObservers fans every event out to each observer in order.
type SyncObservers []SyncObserver

func (o SyncObservers) OnUpdateApplied(symbol string, sequence int64) {
	for _, obs := range o {
		obs.OnUpdateApplied(symbol, sequence)
	}
}

func (o SyncObservers) OnUpdateDiscarded(symbol string, reason error) {
	for _, obs := range o {
		obs.OnUpdateDiscarded(symbol, reason)
	}
}

func (o SyncObservers) OnUpdateBuffered(symbol string, pending int) {
	for _, obs := range o {
		obs.OnUpdateBuffered(symbol, pending)
	}
}

func (o SyncObservers) OnGapDetected(symbol string, lastSequence, sequenceStart int64) {
	for _, obs := range o {
		obs.OnGapDetected(symbol, lastSequence, sequenceStart)
	}
}

func (o SyncObservers) OnRefreshRequested(symbol string) {
	for _, obs := range o {
		obs.OnRefreshRequested(symbol)
	}
}

func (o SyncObservers) OnRefreshFailed(symbol string, err error) {
	for _, obs := range o {
		obs.OnRefreshFailed(symbol, err)
	}
}

func (o SyncObservers) OnSnapshotApplied(symbol string, sequence int64, bids, asks int) {
	for _, obs := range o {
		obs.OnSnapshotApplied(symbol, sequence, bids, asks)
	}
}

func (o SyncObservers) OnReconciled(symbol string, report *ReconcileReport) {
	for _, obs := range o {
		obs.OnReconciled(symbol, report)
	}
}
