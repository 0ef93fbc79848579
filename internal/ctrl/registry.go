package ctrl

import (
	"sync"
	"time"

	"github.com/scalewob/wobbridge/pkg/wire"
)

const (
	HeartbeatInterval = 5 * time.Second
	HeartbeatExpiry   = 3 * HeartbeatInterval
)

// Agent is one registered bridge agent connection. Send is consumed by the
// connection's writer goroutine; Pending maps in-flight command ids to the
// channels awaiting their responses.
type Agent struct {
	ID            string
	Name          string
	Environment   string
	GuestURL      string
	Version       string
	RemoteAddr    string
	ConnectedAt   time.Time
	LastHeartbeat time.Time
	Send          chan interface{}
	Pending       map[string]chan wire.ResponseEnvelope
	mu            sync.Mutex
	done          chan struct{}
	closeOnce     sync.Once
}

// NewAgent returns an agent ready for one connection's lifetime.
func NewAgent(id string) *Agent {
	return &Agent{
		ID:            id,
		ConnectedAt:   time.Now(),
		LastHeartbeat: time.Now(),
		Send:          make(chan interface{}, 32),
		Pending:       make(map[string]chan wire.ResponseEnvelope),
		done:          make(chan struct{}),
	}
}

// shutdown fails every in-flight command and releases the connection's
// writer goroutine. Safe to call more than once.
func (a *Agent) shutdown() {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		for _, ch := range a.Pending {
			close(ch)
		}
		a.Pending = make(map[string]chan wire.ResponseEnvelope)
		a.mu.Unlock()
		close(a.done)
	})
}

// AddPending registers a response channel for a command id.
func (a *Agent) AddPending(id string, ch chan wire.ResponseEnvelope) {
	a.mu.Lock()
	a.Pending[id] = ch
	a.mu.Unlock()
}

// RemovePending drops the response channel for a command id, if present.
func (a *Agent) RemovePending(id string) {
	a.mu.Lock()
	delete(a.Pending, id)
	a.mu.Unlock()
}

// Resolve routes a response to its waiting channel. Returns false when the
// id is unknown (already timed out or never dispatched).
func (a *Agent) Resolve(resp wire.ResponseEnvelope) bool {
	a.mu.Lock()
	ch, ok := a.Pending[resp.ID]
	if ok {
		delete(a.Pending, resp.ID)
	}
	a.mu.Unlock()
	if !ok {
		return false
	}
	ch <- resp
	close(ch)
	return true
}

// Registry tracks connected agents.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*Agent)}
}

func (r *Registry) Add(a *Agent) {
	r.mu.Lock()
	r.agents[a.ID] = a
	r.mu.Unlock()
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.agents, id)
	r.mu.Unlock()
}

func (r *Registry) Get(id string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	return a, ok
}

// ForEnvironment returns the agents hosting the given environment id.
func (r *Registry) ForEnvironment(env string) []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var res []*Agent
	for _, a := range r.agents {
		if a.Environment == env {
			res = append(res, a)
		}
	}
	return res
}

// List returns every registered agent.
func (r *Registry) List() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		res = append(res, a)
	}
	return res
}

func (r *Registry) UpdateHeartbeat(id string) {
	r.mu.Lock()
	if a, ok := r.agents[id]; ok {
		a.LastHeartbeat = time.Now()
	}
	r.mu.Unlock()
}

// PruneExpired drops agents that stopped heartbeating, failing their
// in-flight commands.
func (r *Registry) PruneExpired(maxAge time.Duration) {
	r.mu.Lock()
	for id, a := range r.agents {
		if time.Since(a.LastHeartbeat) > maxAge {
			delete(r.agents, id)
			a.shutdown()
		}
	}
	r.mu.Unlock()
}
