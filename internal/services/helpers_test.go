package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/models"
)

const waitTimeout = 2 * time.Second

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, waitTimeout, 5*time.Millisecond, msg)
}

// fakeClock fires timers only when told to
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	fn      func()
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Every(_ time.Duration, fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &fakeTimer{fn: fn}
	c.timers = append(c.timers, timer)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		timer.stopped = true
	}
}

// Fire runs every active timer once, synchronously
func (c *fakeClock) Fire() {
	c.mu.Lock()
	c.now = c.now.Add(10 * time.Second)
	var fns []func()
	for _, timer := range c.timers {
		if !timer.stopped {
			fns = append(fns, timer.fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Active returns the number of running timers
func (c *fakeClock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, timer := range c.timers {
		if !timer.stopped {
			n++
		}
	}
	return n
}

type remoteCall struct {
	Kind       models.OperationKind
	Table      string
	Row        models.Row
	Conditions models.Conditions
}

// fakeRemote is an in-memory table store with failure and blocking hooks
type fakeRemote struct {
	mu      sync.Mutex
	tables  map[string][]models.Row
	calls   []remoteCall
	failErr error

	// when set, writes signal started and then wait for release
	started chan struct{}
	release chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{tables: make(map[string][]models.Row)}
}

func (r *fakeRemote) seed(table string, row models.Row) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[table] = append(r.tables[table], row.Clone())
}

func (r *fakeRemote) failWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failErr = err
}

func (r *fakeRemote) blockWrites() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = make(chan struct{}, 16)
	r.release = make(chan struct{})
}

func (r *fakeRemote) Calls() []remoteCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]remoteCall(nil), r.calls...)
}

func (r *fakeRemote) rows(table string) []models.Row {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Row(nil), r.tables[table]...)
}

func (r *fakeRemote) record(call remoteCall) error {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	started, release := r.started, r.release
	r.mu.Unlock()

	if started != nil {
		started <- struct{}{}
		<-release
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failErr
}

func matches(row models.Row, conditions models.Conditions) bool {
	for k, v := range conditions {
		if fmt.Sprint(row[k]) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

func (r *fakeRemote) Insert(_ context.Context, table string, row models.Row) (models.Row, error) {
	if err := r.record(remoteCall{Kind: models.KindInsert, Table: table, Row: row.Clone()}); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tables[table] {
		if existing["id"] == row["id"] {
			return nil, &RemoteError{Status: 409, Code: "23505", Message: "duplicate key value violates unique constraint"}
		}
	}
	r.tables[table] = append(r.tables[table], row.Clone())
	return row.Clone(), nil
}

func (r *fakeRemote) Update(_ context.Context, table string, row models.Row, conditions models.Conditions) ([]models.Row, error) {
	if err := r.record(remoteCall{Kind: models.KindUpdate, Table: table, Row: row.Clone(), Conditions: conditions.Clone()}); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Row{}
	for _, existing := range r.tables[table] {
		if matches(existing, conditions) {
			for k, v := range row {
				existing[k] = v
			}
			out = append(out, existing.Clone())
		}
	}
	return out, nil
}

func (r *fakeRemote) Delete(_ context.Context, table string, conditions models.Conditions) ([]models.Row, error) {
	if err := r.record(remoteCall{Kind: models.KindDelete, Table: table, Conditions: conditions.Clone()}); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Row{}
	kept := r.tables[table][:0]
	for _, existing := range r.tables[table] {
		if matches(existing, conditions) {
			out = append(out, existing)
			continue
		}
		kept = append(kept, existing)
	}
	r.tables[table] = kept
	return out, nil
}

func (r *fakeRemote) Select(_ context.Context, table, _ string, conditions models.Conditions) ([]models.Row, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return nil, r.failErr
	}
	out := []models.Row{}
	for _, existing := range r.tables[table] {
		if matches(existing, conditions) {
			out = append(out, existing.Clone())
		}
	}
	return out, nil
}

// memQueueStore keeps the encoded queue in memory, like a key-value store would
type memQueueStore struct {
	mu      sync.Mutex
	data    []byte
	saveErr error
	saves   int
}

func (s *memQueueStore) Load(context.Context) ([]models.QueuedOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := []models.QueuedOperation{}
	if len(s.data) == 0 {
		return ops, nil
	}
	err := json.Unmarshal(s.data, &ops)
	return ops, err
}

func (s *memQueueStore) Save(_ context.Context, ops []models.QueuedOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	data, err := json.Marshal(ops)
	if err != nil {
		return err
	}
	s.data = data
	s.saves++
	return nil
}

func (s *memQueueStore) failSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

type noticeRecorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *noticeRecorder) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *noticeRecorder) Levels() []NoticeLevel {
	r.mu.Lock()
	defer r.mu.Unlock()
	levels := make([]NoticeLevel, len(r.notices))
	for i, n := range r.notices {
		levels[i] = n.Level
	}
	return levels
}

func (r *noticeRecorder) Last() Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return Notice{}
	}
	return r.notices[len(r.notices)-1]
}

type statusRecorder struct {
	mu       sync.Mutex
	statuses []models.SyncStatus
}

func (r *statusRecorder) OnSyncStatus(s models.SyncStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *statusRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.statuses)
}

func (r *statusRecorder) Last() models.SyncStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return models.SyncStatus{}
	}
	return r.statuses[len(r.statuses)-1]
}

type queueRecorder struct {
	mu        sync.Mutex
	snapshots [][]models.QueuedOperation
}

func (r *queueRecorder) OnQueueChange(ops []models.QueuedOperation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, ops)
}

func (r *queueRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

func (r *queueRecorder) Last() []models.QueuedOperation {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		return nil
	}
	return r.snapshots[len(r.snapshots)-1]
}

var errNetwork = errors.New("dial tcp: connection refused")

// harness wires a queue, gateway and engine over fakes
type harness struct {
	store    *memQueueStore
	remote   *fakeRemote
	conn     *ConnectivityMonitor
	clock    *fakeClock
	notices  *noticeRecorder
	queue    *OfflineQueue
	gateway  *OfflineGateway
	engine   *SyncEngine
	statuses *statusRecorder
}

func newHarness(t *testing.T, online bool) *harness {
	t.Helper()
	h := &harness{
		store:    &memQueueStore{},
		remote:   newFakeRemote(),
		conn:     NewConnectivityMonitor(online),
		clock:    newFakeClock(),
		notices:  &noticeRecorder{},
		statuses: &statusRecorder{},
	}

	queue, err := LoadOfflineQueue(context.Background(), h.store, h.notices, nil)
	require.NoError(t, err)
	h.queue = queue
	h.gateway = NewOfflineGateway(h.remote, queue, h.conn, h.clock, nil)
	h.engine = NewSyncEngine(queue, h.remote, h.conn, h.clock, h.notices, nil, SyncEngineConfig{
		Interval:   10 * time.Second,
		MaxRetries: 3,
	})
	h.engine.Subscribe(h.statuses)

	t.Cleanup(func() {
		h.engine.Stop()
		h.gateway.Close()
	})
	return h
}

func (h *harness) start() {
	h.engine.Start(context.Background())
}
