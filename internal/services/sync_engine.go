package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/models"
	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/observability"
)

var (
	// ErrOffline is returned when a sync is requested without connectivity
	ErrOffline = errors.New("cannot sync while offline")
	// ErrNoRowsMatched fails a replayed update whose target row no longer exists
	ErrNoRowsMatched = errors.New("no rows matched the update conditions")
)

// StatusListener receives the full SyncStatus on registration and after every change.
// It is called synchronously and must not call back into the engine or the queue.
// Listeners are compared by identity, so implementations should be pointer types.
type StatusListener interface {
	OnSyncStatus(status models.SyncStatus)
}

// SyncEngineConfig holds the engine's tuning knobs
type SyncEngineConfig struct {
	Interval   time.Duration
	MaxRetries int
}

// SyncEngine drains the offline queue against the remote service, one operation
// at a time from the head, while connectivity is available.
//
// Lock order is mu then notifyMu. Neither is held while calling into the queue.
type SyncEngine struct {
	queue    *OfflineQueue
	remote   RemoteService
	conn     Connectivity
	clock    Clock
	notifier Notifier
	metrics  *observability.SyncMetrics
	cfg      SyncEngineConfig

	mu            sync.Mutex
	ctx           context.Context
	started       bool
	online        bool
	syncing       bool
	inFlight      bool
	pending       int
	replayed      int
	lastSyncError *string
	lastSyncAt    *time.Time
	persistError  *string
	stopTimer     func()
	cancelConn    func()
	listeners     []StatusListener

	// held while status listeners run so they see statuses in order
	notifyMu sync.Mutex
}

// NewSyncEngine creates a stopped engine
func NewSyncEngine(queue *OfflineQueue, remote RemoteService, conn Connectivity, clock Clock, notifier Notifier, metrics *observability.SyncMetrics, cfg SyncEngineConfig) *SyncEngine {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &SyncEngine{
		queue:    queue,
		remote:   remote,
		conn:     conn,
		clock:    clock,
		notifier: notifier,
		metrics:  metrics,
		cfg:      cfg,
		ctx:      context.Background(),
	}
}

// Start subscribes to the queue and to connectivity and applies the current state.
// ctx scopes replay calls; cancelling it aborts in-flight requests.
func (e *SyncEngine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.ctx = ctx
	e.mu.Unlock()

	e.queue.Subscribe(e)
	cancel := e.conn.Subscribe(e.onConnectivity)

	e.mu.Lock()
	e.cancelConn = cancel
	e.mu.Unlock()

	observability.Infof("Sync engine started (interval %s, max retries %d)", e.cfg.Interval, e.cfg.MaxRetries)
	e.onConnectivity(e.conn.Online())
}

// Stop cancels the timer and the subscriptions. An in-flight replay still completes.
func (e *SyncEngine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	stop, cancel := e.stopTimer, e.cancelConn
	e.stopTimer, e.cancelConn = nil, nil
	e.mu.Unlock()

	if stop != nil {
		stop()
	}
	if cancel != nil {
		cancel()
	}
	e.queue.Unsubscribe(e)
	observability.Info("Sync engine stopped")
}

// Status returns the current status
func (e *SyncEngine) Status() models.SyncStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

// Online reports the engine's view of connectivity
func (e *SyncEngine) Online() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.online
}

// Subscribe registers l and sends it the current status. Duplicates are ignored.
func (e *SyncEngine) Subscribe(l StatusListener) {
	e.mu.Lock()
	for _, existing := range e.listeners {
		if existing == l {
			e.mu.Unlock()
			return
		}
	}
	e.listeners = append(e.listeners, l)
	status := e.statusLocked()

	e.notifyMu.Lock()
	e.mu.Unlock()
	defer e.notifyMu.Unlock()

	l.OnSyncStatus(status)
}

// Unsubscribe removes l. Unknown listeners are ignored.
func (e *SyncEngine) Unsubscribe(l StatusListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, existing := range e.listeners {
		if existing == l {
			e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
			return
		}
	}
}

// ForceSync starts draining immediately and returns after one replay cycle.
// If a replay is already in flight the call does not wait for it.
func (e *SyncEngine) ForceSync(ctx context.Context) error {
	if err := e.acceptForceSync(ctx); err != nil {
		return err
	}
	e.startSyncing()
	return nil
}

// RequestSync is ForceSync without waiting: it returns ErrOffline or starts the replay in
// the background. startSyncing re-checks connectivity, so a drop in between only skips the run.
func (e *SyncEngine) RequestSync(ctx context.Context) error {
	if err := e.acceptForceSync(ctx); err != nil {
		return err
	}
	go e.startSyncing()
	return nil
}

func (e *SyncEngine) acceptForceSync(ctx context.Context) error {
	if !e.Online() {
		observability.WithContext(ctx).Warn("Manual sync rejected while offline")
		e.notify(NoticeError, "Cannot sync while offline. Changes stay queued until the connection returns.", "")
		return ErrOffline
	}
	observability.WithContext(ctx).Info("Manual sync requested")
	return nil
}

// OnQueueChange implements QueueListener
func (e *SyncEngine) OnQueueChange(ops []models.QueuedOperation) {
	e.mu.Lock()
	e.pending = len(ops)
	// Writes that raced a reconnect are picked up without waiting for a tick
	kick := e.started && e.online && !e.syncing && len(ops) > 0
	e.publishLocked()

	if kick {
		go e.startSyncing()
	}
}

// OnPersistResult implements PersistListener
func (e *SyncEngine) OnPersistResult(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		e.persistError = nil
		return
	}
	msg := err.Error()
	e.persistError = &msg
}

func (e *SyncEngine) onConnectivity(online bool) {
	if !online {
		e.mu.Lock()
		e.online = false
		e.syncing = false
		stop := e.stopTimer
		e.stopTimer = nil
		e.publishLocked()

		if stop != nil {
			stop()
		}
		return
	}

	e.mu.Lock()
	e.online = true
	e.mu.Unlock()

	// Replay runs off the connectivity callback so other subscribers see the transition now
	go e.startSyncing()
}

// startSyncing enters Syncing, replays right away, then keeps a timer running until the queue drains
func (e *SyncEngine) startSyncing() {
	e.mu.Lock()
	if !e.online || !e.started {
		e.mu.Unlock()
		return
	}
	if !e.syncing {
		e.syncing = true
		e.replayed = 0
	}
	e.publishLocked()

	e.runCycle()

	e.mu.Lock()
	if e.started && e.online && e.syncing && e.stopTimer == nil {
		e.stopTimer = e.clock.Every(e.cfg.Interval, e.runCycle)
	}
	e.mu.Unlock()
}

// runCycle replays heads until the queue is empty, a replay fails or connectivity drops.
// A call that finds another replay in flight returns immediately.
func (e *SyncEngine) runCycle() {
	e.mu.Lock()
	if e.inFlight || !e.online || !e.syncing {
		e.mu.Unlock()
		return
	}
	e.inFlight = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.inFlight = false
		e.mu.Unlock()
	}()

	for {
		op, ok := e.queue.Head()
		if !ok {
			e.finishDrain()
			return
		}
		if !e.replayOne(op) {
			// A terminal drop can empty the queue
			if e.queue.Len() == 0 {
				e.finishDrain()
			}
			return
		}
		if !e.Online() {
			return
		}
	}
}

// finishDrain returns to Idle. A write that landed after the empty head was seen keeps
// the engine syncing so the timer picks it up.
func (e *SyncEngine) finishDrain() {
	e.mu.Lock()
	if !e.syncing || e.pending > 0 {
		e.mu.Unlock()
		return
	}
	e.syncing = false
	stop := e.stopTimer
	e.stopTimer = nil
	replayed := e.replayed
	e.replayed = 0
	// a drop just before the queue emptied already sent its error notice
	clean := e.lastSyncError == nil
	e.publishLocked()

	if stop != nil {
		stop()
	}
	if replayed > 0 && clean {
		observability.Infof("Offline queue drained, %d operations synced", replayed)
		e.notify(NoticeSuccess, fmt.Sprintf("All pending changes are synced (%d)", replayed), "")
	}
}

// replayOne sends op to the remote service and applies the outcome. It reports success.
func (e *SyncEngine) replayOne(op models.QueuedOperation) bool {
	e.mu.Lock()
	ctx := e.ctx
	e.mu.Unlock()

	ctx, span := observability.StartServiceSpan(ctx, "sync_engine", "replay")
	defer span.End()
	span.SetAttributes(
		observability.TableName(op.TableName),
		observability.OperationID(op.ID),
		observability.OperationKind(string(op.Kind)),
		observability.RetryCount(op.RetryCount),
	)

	logger := observability.WithContext(ctx).WithFields(map[string]interface{}{
		"table": op.TableName,
		"kind":  string(op.Kind),
		"op_id": op.ID,
	})

	start := time.Now()
	err := e.dispatch(ctx, op)
	duration := time.Since(start)

	// Queue save failures reach the status through OnPersistResult
	if err == nil {
		if removed, _ := e.queue.Remove(ctx, op.ID); !removed {
			logger.Debug("Replayed operation was already gone from the queue")
		}
		e.metrics.RecordReplay(ctx, op.TableName, string(op.Kind), observability.OutcomeSuccess, duration)
		observability.SetSuccess(span)
		logger.WithField("duration_ms", duration.Milliseconds()).Info("Replayed queued operation")

		e.mu.Lock()
		now := e.clock.Now().UTC()
		e.lastSyncError = nil
		e.lastSyncAt = &now
		e.replayed++
		e.publishLocked()
		return true
	}

	observability.RecordError(span, err)
	retries := op.RetryCount + 1
	cause := err.Error()

	if retries < e.cfg.MaxRetries {
		_, _ = e.queue.Update(ctx, op.ID, func(o *models.QueuedOperation) {
			o.RetryCount = retries
			o.LastError = cause
		})
		e.metrics.RecordReplay(ctx, op.TableName, string(op.Kind), observability.OutcomeRetry, duration)
		logger.WithField("retry_count", retries).Warnf("Replay failed, will retry: %v", err)

		msg := fmt.Sprintf("Could not sync %s on %s (attempt %d of %d), retrying: %s",
			op.Kind, op.TableName, retries, e.cfg.MaxRetries, cause)
		e.setSyncError(msg)
		e.notify(NoticeWarning, msg, op.ID)
		return false
	}

	if removed, _ := e.queue.Remove(ctx, op.ID); !removed {
		logger.Debug("Dropped operation was already gone from the queue")
	}
	e.metrics.RecordReplay(ctx, op.TableName, string(op.Kind), observability.OutcomeDropped, duration)
	span.AddEvent("operation dropped", trace.WithAttributes(observability.RetryCount(retries)))
	logger.WithField("retry_count", retries).Errorf("Replay failed permanently, operation dropped: %v", err)

	msg := fmt.Sprintf("Gave up syncing %s on %s after %d attempts, the change was discarded: %s",
		op.Kind, op.TableName, retries, cause)
	e.setSyncError(msg)
	e.notify(NoticeError, msg, op.ID)
	return false
}

func (e *SyncEngine) dispatch(ctx context.Context, op models.QueuedOperation) error {
	var err error
	switch op.Kind {
	case models.KindInsert:
		_, err = e.remote.Insert(ctx, op.TableName, op.Payload)
	case models.KindUpdate:
		var rows []models.Row
		rows, err = e.remote.Update(ctx, op.TableName, op.Payload, op.Conditions)
		if err == nil && len(rows) == 0 {
			err = ErrNoRowsMatched
		}
	case models.KindDelete:
		_, err = e.remote.Delete(ctx, op.TableName, op.Conditions)
	default:
		err = fmt.Errorf("%w: %q", models.ErrInvalidKind, op.Kind)
	}
	return err
}

func (e *SyncEngine) setSyncError(msg string) {
	e.mu.Lock()
	e.lastSyncError = &msg
	e.publishLocked()
}

func (e *SyncEngine) notify(level NoticeLevel, msg, opID string) {
	e.notifier.Notify(Notice{
		Level:       level,
		Message:     msg,
		OperationID: opID,
		Time:        e.clock.Now().UTC(),
	})
}

// publishLocked sends the current status to every listener. It must be called
// with mu held and returns with mu released.
func (e *SyncEngine) publishLocked() {
	status := e.statusLocked()
	listeners := append([]StatusListener(nil), e.listeners...)

	e.notifyMu.Lock()
	e.mu.Unlock()
	defer e.notifyMu.Unlock()

	for _, l := range listeners {
		l.OnSyncStatus(status)
	}
}

func (e *SyncEngine) statusLocked() models.SyncStatus {
	status := models.SyncStatus{
		IsOnline:          e.online,
		IsSyncing:         e.syncing,
		PendingOperations: e.pending,
	}
	if e.lastSyncError != nil {
		msg := *e.lastSyncError
		status.LastSyncError = &msg
	}
	if e.persistError != nil {
		msg := *e.persistError
		status.PersistenceError = &msg
	}
	if e.lastSyncAt != nil {
		at := *e.lastSyncAt
		status.LastSyncAt = &at
	}
	return status
}

// Gauges adapts the engine to the metrics callbacks
func (e *SyncEngine) Gauges() (pending int, online bool, syncing bool) {
	s := e.Status()
	return s.PendingOperations, s.IsOnline, s.IsSyncing
}
