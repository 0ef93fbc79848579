// Package launcher drives environments onto agents and tracks their
// lifecycle: loading until the guest signals readiness, online after, and
// offline when the source cannot be loaded. A configured fallback source
// is tried at most once.
package launcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/scalewob/wobbridge/internal/catalog"
	"github.com/scalewob/wobbridge/internal/logx"
	"github.com/scalewob/wobbridge/pkg/wire"
)

// State is a launch session's lifecycle phase.
type State string

const (
	StateLoading State = "loading"
	StateOnline  State = "online"
	StateOffline State = "offline"
)

// Dispatcher is the command-sending surface the launcher needs.
type Dispatcher interface {
	Send(ctx context.Context, agentID string, command wire.CommandKind, params any) (wire.ResponseEnvelope, error)
}

// Session is the externally visible record of one launch.
type Session struct {
	AgentID      string    `json:"agent_id"`
	Environment  string    `json:"environment"`
	Source       string    `json:"source"`
	State        State     `json:"state"`
	UsedFallback bool      `json:"used_fallback"`
	StartedAt    time.Time `json:"started_at"`
	ReadyAt      time.Time `json:"ready_at,omitempty"`
	Error        string    `json:"error,omitempty"`
}

type session struct {
	Session
	ready chan struct{}
}

// Manager owns launch sessions, one per agent.
type Manager struct {
	disp         Dispatcher
	cat          *catalog.Service
	readyTimeout time.Duration
	status       func(string)

	mu       sync.Mutex
	sessions map[string]*session
}

// NewManager builds a launch manager; readyTimeout <= 0 means 5s.
func NewManager(disp Dispatcher, cat *catalog.Service, readyTimeout time.Duration) *Manager {
	if readyTimeout <= 0 {
		readyTimeout = 5 * time.Second
	}
	return &Manager{disp: disp, cat: cat, readyTimeout: readyTimeout, sessions: make(map[string]*session)}
}

// OnStatus registers a sink for human readable launch progress lines,
// typically the console.
func (m *Manager) OnStatus(fn func(string)) { m.status = fn }

func (m *Manager) report(format string, args ...any) {
	if m.status != nil {
		m.status(fmt.Sprintf(format, args...))
	}
}

// Launch resolves an environment, navigates the agent's guest document to
// it and waits a bounded interval for a readiness signal. Waiting out the
// interval is not a failure: the session proceeds online regardless, to
// avoid stalling on guests that never announce themselves. One fallback
// source retry is attempted when the primary navigation fails.
func (m *Manager) Launch(ctx context.Context, agentID, envID string) (Session, error) {
	env, err := m.cat.Lookup(ctx, envID)
	if err != nil {
		return Session{}, err
	}

	s := &session{
		Session: Session{
			AgentID:     agentID,
			Environment: env.ID,
			Source:      env.URL(),
			State:       StateLoading,
			StartedAt:   time.Now(),
		},
		ready: make(chan struct{}),
	}
	m.mu.Lock()
	m.sessions[agentID] = s
	m.mu.Unlock()
	m.report("Loading environment %s", env.ID)

	if err := m.navigate(ctx, agentID, env.URL()); err != nil {
		fb := env.Fallback()
		if fb == "" {
			return m.fail(s, err), err
		}
		logx.Log.Warn().Str("agent_id", agentID).Str("environment", env.ID).Err(err).Str("fallback", fb).Msg("primary source failed; trying fallback")
		m.report("Primary source for %s failed; trying fallback", env.ID)
		m.mu.Lock()
		s.Source = fb
		s.UsedFallback = true
		s.State = StateLoading
		m.mu.Unlock()
		if err := m.navigate(ctx, agentID, fb); err != nil {
			return m.fail(s, err), err
		}
	}

	select {
	case <-s.ready:
		m.mu.Lock()
		s.ReadyAt = time.Now()
		m.mu.Unlock()
	case <-time.After(m.readyTimeout):
		logx.Log.Debug().Str("agent_id", agentID).Dur("timeout", m.readyTimeout).Msg("no readiness signal; proceeding")
	case <-ctx.Done():
		return m.snapshot(s), ctx.Err()
	}

	m.mu.Lock()
	s.State = StateOnline
	out := s.Session
	m.mu.Unlock()
	logx.Log.Info().Str("agent_id", agentID).Str("environment", env.ID).Bool("fallback", out.UsedFallback).Msg("environment online")
	m.report("Environment %s online", env.ID)
	return out, nil
}

func (m *Manager) navigate(ctx context.Context, agentID, url string) error {
	resp, err := m.disp.Send(ctx, agentID, wire.CmdNavigate, wire.NavigateParams{URL: url})
	if err != nil {
		return err
	}
	if !resp.Payload.Success {
		reason := "navigation failed"
		if resp.Payload.Error != nil {
			reason = *resp.Payload.Error
		}
		return fmt.Errorf("navigate %s: %s", url, reason)
	}
	return nil
}

func (m *Manager) fail(s *session, err error) Session {
	m.mu.Lock()
	s.State = StateOffline
	s.Error = err.Error()
	out := s.Session
	m.mu.Unlock()
	logx.Log.Error().Str("agent_id", s.AgentID).Str("environment", s.Environment).Err(err).Msg("environment offline")
	m.report("Environment %s offline: %s", out.Environment, out.Error)
	return out
}

func (m *Manager) snapshot(s *session) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return s.Session
}

// NotifyEvent feeds agent events into readiness tracking: an init or
// navigation event from a loading session's agent marks it ready.
func (m *Manager) NotifyEvent(agentID, eventType string) {
	switch eventType {
	case string(wire.EventInit), string(wire.EventNavigation), "ready":
	default:
		return
	}
	m.mu.Lock()
	s, ok := m.sessions[agentID]
	if ok && s.State == StateLoading {
		select {
		case <-s.ready:
		default:
			close(s.ready)
		}
	}
	m.mu.Unlock()
}

// Session returns the launch record for an agent.
func (m *Manager) Session(agentID string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[agentID]; ok {
		return s.Session, true
	}
	return Session{}, false
}

// Drop forgets the session for an agent, typically on disconnect.
func (m *Manager) Drop(agentID string) {
	m.mu.Lock()
	delete(m.sessions, agentID)
	m.mu.Unlock()
}
