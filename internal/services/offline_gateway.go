package services

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/models"
	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/observability"
)

// OfflineGateway is the single write path to the remote service.
// While online writes pass straight through; while offline they are queued
// and an optimistic result is returned.
type OfflineGateway struct {
	remote  RemoteService
	queue   *OfflineQueue
	clock   Clock
	metrics *observability.SyncMetrics

	mu     sync.RWMutex
	online bool
	cancel func()
}

// NewOfflineGateway creates a gateway tracking connectivity from conn
func NewOfflineGateway(remote RemoteService, queue *OfflineQueue, conn Connectivity, clock Clock, metrics *observability.SyncMetrics) *OfflineGateway {
	g := &OfflineGateway{
		remote:  remote,
		queue:   queue,
		clock:   clock,
		metrics: metrics,
	}
	g.cancel = conn.Subscribe(g.setOnline)
	g.setOnline(conn.Online())
	return g
}

// Close stops tracking connectivity
func (g *OfflineGateway) Close() {
	g.cancel()
}

func (g *OfflineGateway) setOnline(online bool) {
	g.mu.Lock()
	g.online = online
	g.mu.Unlock()
}

// Online reports the gateway's view of connectivity
func (g *OfflineGateway) Online() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.online
}

// Subscribe registers a listener for queue changes. It receives the current queue immediately.
func (g *OfflineGateway) Subscribe(l QueueListener) {
	g.queue.Subscribe(l)
}

// Unsubscribe removes a queue listener
func (g *OfflineGateway) Unsubscribe(l QueueListener) {
	g.queue.Unsubscribe(l)
}

// Table returns a gateway bound to one table
func (g *OfflineGateway) Table(name string) *TableGateway {
	return &TableGateway{gateway: g, table: name}
}

// Insert creates a row. The bool result is true when the write was queued.
// Queued inserts carry a client generated id so the optimistic row matches the replayed one.
func (g *OfflineGateway) Insert(ctx context.Context, table string, row models.Row) (models.Row, bool, error) {
	if g.Online() {
		out, err := g.remote.Insert(ctx, table, row)
		return out, false, err
	}

	payload := row.Clone()
	if payload == nil {
		payload = models.Row{}
	}
	if id, ok := payload["id"]; !ok || id == nil || id == "" {
		payload["id"] = uuid.New().String()
	}

	if err := g.enqueue(ctx, table, models.KindInsert, payload, nil); err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

// Update changes the rows matching conditions. Offline, the result echoes the conditions merged with row.
func (g *OfflineGateway) Update(ctx context.Context, table string, row models.Row, conditions models.Conditions) ([]models.Row, bool, error) {
	if len(conditions) == 0 {
		return nil, false, models.ErrMissingConditions
	}
	if g.Online() {
		out, err := g.remote.Update(ctx, table, row, conditions)
		return out, false, err
	}

	if err := g.enqueue(ctx, table, models.KindUpdate, row, conditions); err != nil {
		return nil, false, err
	}

	merged := models.Row{}
	for k, v := range conditions {
		merged[k] = v
	}
	for k, v := range row {
		merged[k] = v
	}
	return []models.Row{merged}, true, nil
}

// Delete removes the rows matching conditions. Offline, the result is empty.
func (g *OfflineGateway) Delete(ctx context.Context, table string, conditions models.Conditions) ([]models.Row, bool, error) {
	if len(conditions) == 0 {
		return nil, false, models.ErrMissingConditions
	}
	if g.Online() {
		out, err := g.remote.Delete(ctx, table, conditions)
		return out, false, err
	}

	if err := g.enqueue(ctx, table, models.KindDelete, nil, conditions); err != nil {
		return nil, false, err
	}
	return []models.Row{}, true, nil
}

// Select always reads from the remote service. Offline failures are returned as is.
func (g *OfflineGateway) Select(ctx context.Context, table, columns string, conditions models.Conditions) ([]models.Row, error) {
	return g.remote.Select(ctx, table, columns, conditions)
}

// enqueue appends the write to the queue. A persistence failure is already
// logged and announced by the queue, and the write stays queued in memory,
// so it is not reported to the caller.
func (g *OfflineGateway) enqueue(ctx context.Context, table string, kind models.OperationKind, payload models.Row, conditions models.Conditions) error {
	op, err := models.NewQueuedOperation(table, kind, payload, conditions, g.clock.Now())
	if err != nil {
		return err
	}

	err = g.queue.Append(ctx, *op)
	var persistErr *PersistError
	if err != nil && !errors.As(err, &persistErr) {
		return err
	}

	g.metrics.RecordEnqueue(ctx, table, string(kind))
	observability.WithContext(ctx).WithFields(map[string]interface{}{
		"table": table,
		"kind":  string(kind),
		"op_id": op.ID,
	}).Info("Offline, write queued")
	return nil
}

// TableGateway is an OfflineGateway bound to one table
type TableGateway struct {
	gateway *OfflineGateway
	table   string
}

// Insert creates a row
func (t *TableGateway) Insert(ctx context.Context, row models.Row) (models.Row, bool, error) {
	return t.gateway.Insert(ctx, t.table, row)
}

// Update changes the rows matching conditions
func (t *TableGateway) Update(ctx context.Context, row models.Row, conditions models.Conditions) ([]models.Row, bool, error) {
	return t.gateway.Update(ctx, t.table, row, conditions)
}

// Delete removes the rows matching conditions
func (t *TableGateway) Delete(ctx context.Context, conditions models.Conditions) ([]models.Row, bool, error) {
	return t.gateway.Delete(ctx, t.table, conditions)
}

// Select reads rows
func (t *TableGateway) Select(ctx context.Context, columns string, conditions models.Conditions) ([]models.Row, error) {
	return t.gateway.Select(ctx, t.table, columns, conditions)
}
