package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/observability"
)

// Connectivity is the online/offline signal shared by the gateway and the sync engine
type Connectivity interface {
	Online() bool
	// Subscribe registers fn for every transition. It does not replay the current state.
	Subscribe(fn func(online bool)) (cancel func())
}

// ConnectivityMonitor holds the current connectivity state and fans out transitions.
// Transitions are delivered in the order they happened.
type ConnectivityMonitor struct {
	mu       sync.Mutex
	notifyMu sync.Mutex
	online   bool
	nextID   int
	subs     map[int]func(bool)
}

// NewConnectivityMonitor creates a monitor starting in the given state
func NewConnectivityMonitor(online bool) *ConnectivityMonitor {
	return &ConnectivityMonitor{
		online: online,
		subs:   make(map[int]func(bool)),
	}
}

// Online returns the last known state
func (m *ConnectivityMonitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe implements Connectivity
func (m *ConnectivityMonitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// Set records a new state. Subscribers are only called when the state changes.
func (m *ConnectivityMonitor) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online

	ids := make([]int, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(bool), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, m.subs[id])
	}

	m.notifyMu.Lock()
	m.mu.Unlock()
	defer m.notifyMu.Unlock()

	if online {
		observability.Info("Remote service reachable, switching to online")
	} else {
		observability.Warn("Remote service unreachable, switching to offline")
	}

	for _, fn := range subs {
		fn(online)
	}
}

// Pinger checks whether the remote service can be reached
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectivityProber drives a ConnectivityMonitor by pinging the remote service periodically
type ConnectivityProber struct {
	*ConnectivityMonitor
	pinger   Pinger
	clock    Clock
	interval time.Duration
	timeout  time.Duration

	mu   sync.Mutex
	stop func()
}

// NewConnectivityProber creates a prober. The state is offline until the first probe succeeds.
func NewConnectivityProber(pinger Pinger, clock Clock, interval, timeout time.Duration) *ConnectivityProber {
	return &ConnectivityProber{
		ConnectivityMonitor: NewConnectivityMonitor(false),
		pinger:              pinger,
		clock:               clock,
		interval:            interval,
		timeout:             timeout,
	}
}

// Start probes once and then every interval until Stop
func (p *ConnectivityProber) Start(ctx context.Context) {
	p.mu.Lock()
	if p.stop != nil {
		p.mu.Unlock()
		return
	}
	p.stop = p.clock.Every(p.interval, func() { p.Probe(ctx) })
	p.mu.Unlock()

	p.Probe(ctx)
	observability.Infof("Connectivity prober started (every %s)", p.interval)
}

// Stop cancels the periodic probe
func (p *ConnectivityProber) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		p.stop()
		p.stop = nil
	}
}

// Probe pings the remote service once and records the result
func (p *ConnectivityProber) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.pinger.Ping(ctx)
	if err != nil {
		observability.Debugf("Connectivity probe failed: %v", err)
	}
	p.Set(err == nil)
	return err == nil
}
