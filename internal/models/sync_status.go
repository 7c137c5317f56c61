package models

import "time"

// SyncStatus is the live view of the offline queue published to observers.
// It is derived state and never persisted.
type SyncStatus struct {
	IsOnline          bool       `json:"isOnline"`
	IsSyncing         bool       `json:"isSyncing"`
	PendingOperations int        `json:"pendingOperations"`
	LastSyncError     *string    `json:"lastSyncError"`
	PersistenceError  *string    `json:"persistenceError,omitempty"`
	LastSyncAt        *time.Time `json:"lastSyncAt,omitempty"`
}

// ForceSyncResponse is returned when a manual sync is requested
type ForceSyncResponse struct {
	Accepted bool       `json:"accepted"`
	Status   SyncStatus `json:"status"`
}

// ConnectivityRequest toggles connectivity in manual mode
type ConnectivityRequest struct {
	Online bool `json:"online"`
}

// QueueResponse lists the operations waiting to be replayed
type QueueResponse struct {
	Operations []QueuedOperation `json:"operations"`
	Count      int               `json:"count"`
}
