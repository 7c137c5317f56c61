package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/models"
	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/observability"
	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/repository"
)

// QueueListener is told about every change to the offline queue.
// It is called synchronously, in mutation order, and must not call back into the queue.
// Listeners are compared by identity, so implementations should be pointer types.
type QueueListener interface {
	OnQueueChange(ops []models.QueuedOperation)
}

// PersistListener is optionally implemented by a QueueListener that wants the
// outcome of every save. It is called just before OnQueueChange.
type PersistListener interface {
	OnPersistResult(err error)
}

// PersistError means the in-memory queue changed but the store could not be written
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("offline queue kept in memory only: %v", e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// OfflineQueue is the in-memory FIFO of deferred writes, mirrored to a QueueStore.
// Every mutation is saved and then announced before the next one starts.
type OfflineQueue struct {
	store    repository.QueueStore
	notifier Notifier
	metrics  *observability.SyncMetrics

	mu         sync.Mutex
	ops        []models.QueuedOperation
	persistErr error
	listeners  []QueueListener

	// held while listeners run so deliveries keep mutation order
	notifyMu sync.Mutex
}

// LoadOfflineQueue reads the persisted queue. It must run before anything is appended.
func LoadOfflineQueue(ctx context.Context, store repository.QueueStore, notifier Notifier, metrics *observability.SyncMetrics) (*OfflineQueue, error) {
	ops, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load offline queue: %w", err)
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}

	if len(ops) > 0 {
		observability.Infof("Loaded %d pending operations from the offline queue", len(ops))
	}

	return &OfflineQueue{
		store:    store,
		notifier: notifier,
		metrics:  metrics,
		ops:      ops,
	}, nil
}

// Append adds op at the tail
func (q *OfflineQueue) Append(ctx context.Context, op models.QueuedOperation) error {
	_, err := q.mutate(ctx, func(ops []models.QueuedOperation) ([]models.QueuedOperation, bool) {
		return append(ops, op.Clone()), true
	})
	return err
}

// Head returns the oldest operation
func (q *OfflineQueue) Head() (models.QueuedOperation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ops) == 0 {
		return models.QueuedOperation{}, false
	}
	return q.ops[0].Clone(), true
}

// Remove deletes the operation with id. It reports false if no such operation is queued.
func (q *OfflineQueue) Remove(ctx context.Context, id string) (bool, error) {
	return q.mutate(ctx, func(ops []models.QueuedOperation) ([]models.QueuedOperation, bool) {
		for i := range ops {
			if ops[i].ID == id {
				next := make([]models.QueuedOperation, 0, len(ops)-1)
				next = append(next, ops[:i]...)
				return append(next, ops[i+1:]...), true
			}
		}
		return ops, false
	})
}

// Update applies fn to the operation with id in place. The id cannot be changed.
func (q *OfflineQueue) Update(ctx context.Context, id string, fn func(op *models.QueuedOperation)) (bool, error) {
	return q.mutate(ctx, func(ops []models.QueuedOperation) ([]models.QueuedOperation, bool) {
		for i := range ops {
			if ops[i].ID == id {
				fn(&ops[i])
				ops[i].ID = id
				return ops, true
			}
		}
		return ops, false
	})
}

// Clear drops every queued operation and returns how many were dropped
func (q *OfflineQueue) Clear(ctx context.Context) (int, error) {
	var n int
	_, err := q.mutate(ctx, func(ops []models.QueuedOperation) ([]models.QueuedOperation, bool) {
		n = len(ops)
		return []models.QueuedOperation{}, n > 0
	})
	return n, err
}

// Len returns the number of queued operations
func (q *OfflineQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Snapshot returns a copy of the queue in FIFO order
func (q *OfflineQueue) Snapshot() []models.QueuedOperation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return models.CloneOperations(q.ops)
}

// PersistError returns the last save failure, or nil once a save succeeds again
func (q *OfflineQueue) PersistError() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.persistErr
}

// Subscribe registers l and immediately sends it the current queue.
// Registering the same listener twice has no effect.
func (q *OfflineQueue) Subscribe(l QueueListener) {
	q.mu.Lock()
	for _, existing := range q.listeners {
		if existing == l {
			q.mu.Unlock()
			return
		}
	}
	q.listeners = append(q.listeners, l)
	snapshot := models.CloneOperations(q.ops)

	q.notifyMu.Lock()
	q.mu.Unlock()
	defer q.notifyMu.Unlock()

	l.OnQueueChange(snapshot)
}

// Unsubscribe removes l. Unknown listeners are ignored.
func (q *OfflineQueue) Unsubscribe(l QueueListener) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, existing := range q.listeners {
		if existing == l {
			q.listeners = append(q.listeners[:i:i], q.listeners[i+1:]...)
			return
		}
	}
}

// mutate runs fn under the lock, saves, then notifies listeners.
// fn reports whether it changed anything; unchanged queues are neither saved nor announced.
func (q *OfflineQueue) mutate(ctx context.Context, fn func([]models.QueuedOperation) ([]models.QueuedOperation, bool)) (bool, error) {
	q.mu.Lock()
	next, changed := fn(q.ops)
	if !changed {
		q.mu.Unlock()
		return false, nil
	}
	q.ops = next

	// A caller's cancelled request must not leave the store behind memory
	saveErr := q.store.Save(context.WithoutCancel(ctx), q.ops)
	hadPersistErr := q.persistErr != nil
	q.persistErr = saveErr

	snapshot := models.CloneOperations(q.ops)
	listeners := append([]QueueListener(nil), q.listeners...)

	q.notifyMu.Lock()
	q.mu.Unlock()
	defer q.notifyMu.Unlock()

	var err error
	switch {
	case saveErr != nil:
		err = &PersistError{Err: saveErr}
		q.metrics.RecordPersistError(ctx)
		observability.WithContext(ctx).WithField("pending", len(snapshot)).Errorf("Failed to persist offline queue: %v", saveErr)
		q.notifier.Notify(Notice{
			Level:   NoticeWarning,
			Message: "Pending changes could not be saved to local storage and will be lost if the app restarts",
			Time:    time.Now().UTC(),
		})
	case hadPersistErr:
		observability.Info("Offline queue persisted again after earlier failure")
	}

	for _, l := range listeners {
		if pl, ok := l.(PersistListener); ok {
			pl.OnPersistResult(saveErr)
		}
		l.OnQueueChange(models.CloneOperations(snapshot))
	}

	return true, err
}
