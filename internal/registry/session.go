package registry

import (
	"sync"
	"time"
)

type State int32

const (
	StateStarting State = iota
	StateActive
	StateEnding
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateEnding:
		return "ending"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// EngineHandle is the registry's view of a running pipeline engine.
type EngineHandle interface {
	End()
	Done() <-chan struct{}
}

// Session is one live voice conversation: a room, a pipeline engine, and
// lifecycle bookkeeping. Field access is guarded by the session's own mutex;
// the registry mutex only guards the identity map.
type Session struct {
	ID        string
	Identity  string
	StartedAt time.Time

	mu           sync.Mutex
	roomName     string
	roomURL      string
	state        State
	lastActivity time.Time
	engine       EngineHandle
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateEnded {
		return // terminal
	}
	s.state = st
}

// MarkEnding moves the session into Ending unless it is already terminal.
func (s *Session) MarkEnding() { s.setState(StateEnding) }

func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) BindRoom(name, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomName = name
	s.roomURL = url
}

func (s *Session) Room() (name, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomName, s.roomURL
}

func (s *Session) BindEngine(h EngineHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine = h
}

func (s *Session) Engine() EngineHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

// engineDone reports whether the bound engine has already exited. A session
// with no engine yet is not done.
func (s *Session) engineDone() bool {
	h := s.Engine()
	if h == nil {
		return false
	}
	select {
	case <-h.Done():
		return true
	default:
		return false
	}
}
