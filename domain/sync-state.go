package domain

import "time"

type SyncStatus int

const (
	// No snapshot applied yet; every incremental is buffered.
	SyncStatus_Uninitialized SyncStatus = iota
	// Book follows the feed.
	SyncStatus_Synchronized
	// A snapshot was requested at RequestedAt and has not arrived.
	SyncStatus_AwaitingRefresh
)

func (s SyncStatus) String() string {
	switch s {
	case SyncStatus_Uninitialized:
		return "uninitialized"
	case SyncStatus_Synchronized:
		return "synchronized"
	case SyncStatus_AwaitingRefresh:
		return "awaiting_refresh"
	default:
		return "unknown"
	}
}

// SyncState is the per-symbol synchronization state. RequestedAt is only
// meaningful for SyncStatus_AwaitingRefresh.
type SyncState struct {
	Status      SyncStatus
	RequestedAt time.Time
}

// refreshInFlight reports whether a requested snapshot is still expected.
// A request older than timeout is considered lost.
func (s SyncState) refreshInFlight(now time.Time, timeout time.Duration) bool {
	return s.Status == SyncStatus_AwaitingRefresh && now.Sub(s.RequestedAt) < timeout
}
