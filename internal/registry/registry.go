package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/utils"
)

// Registry is the only state shared across sessions: a bounded map from
// participant identity to Session. Admission, release, and sweep are
// mutually exclusive; removal is idempotent, so the normal end path, an
// engine-failure callback, and the idle sweep can all race safely.
type Registry struct {
	mu       sync.Mutex
	max      int
	sessions map[string]*Session
	log      *logrus.Logger
}

func New(maxSessions int, log *logrus.Logger) *Registry {
	if maxSessions <= 0 {
		maxSessions = 20
	}
	if log == nil {
		log = logrus.New()
	}
	return &Registry{
		max:      maxSessions,
		sessions: make(map[string]*Session),
		log:      log,
	}
}

// TryAdmit registers a Starting session for identity. It fails with
// CAPACITY_EXCEEDED at the concurrency cap and ALREADY_ACTIVE when the
// identity already holds a live session; neither failure mutates state.
func (r *Registry) TryAdmit(identity string) (*Session, error) {
	const op = "Registry.TryAdmit"

	if identity == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "identity is required", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[identity]; ok {
		// a dead entry awaiting reclaim can be replaced in place
		if existing.engineDone() {
			existing.setState(StateEnded)
			delete(r.sessions, identity)
		} else {
			return nil, utils.E(utils.CodeAlreadyActive, op, "identity already has an active session", nil)
		}
	}

	if len(r.sessions) >= r.max {
		return nil, utils.E(utils.CodeCapacityExceeded, op, "maximum concurrent sessions reached", nil)
	}

	now := time.Now()
	s := &Session{
		ID:           uuid.NewString(),
		Identity:     identity,
		StartedAt:    now,
		state:        StateStarting,
		lastActivity: now,
	}
	r.sessions[identity] = s

	r.log.WithFields(logrus.Fields{
		"session_id": s.ID,
		"identity":   identity,
		"active":     len(r.sessions),
	}).Info("registry: session admitted")
	return s, nil
}

// Activate marks the identity's session Active after its engine started.
func (r *Registry) Activate(identity string) {
	if s, ok := r.Get(identity); ok {
		s.setState(StateActive)
		s.Touch()
	}
}

func (r *Registry) Get(identity string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[identity]
	return s, ok
}

// Touch refreshes the identity's activity timestamp for idle accounting.
func (r *Registry) Touch(identity string) {
	if s, ok := r.Get(identity); ok {
		s.Touch()
	}
}

// Release removes the identity's session. Only the first caller observes a
// removal; later callers see a no-op.
func (r *Registry) Release(identity string) bool {
	r.mu.Lock()
	s, ok := r.sessions[identity]
	if ok {
		delete(r.sessions, identity)
	}
	n := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return false
	}
	s.setState(StateEnded)
	r.log.WithFields(logrus.Fields{
		"session_id": s.ID,
		"identity":   identity,
		"active":     n,
	}).Info("registry: session released")
	return true
}

// ReleaseSession removes s only if the map still holds that exact session,
// so a stale engine-exit callback cannot evict the identity's replacement.
func (r *Registry) ReleaseSession(s *Session) bool {
	r.mu.Lock()
	cur, ok := r.sessions[s.Identity]
	if !ok || cur != s {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, s.Identity)
	n := len(r.sessions)
	r.mu.Unlock()

	s.setState(StateEnded)
	r.log.WithFields(logrus.Fields{
		"session_id": s.ID,
		"identity":   s.Identity,
		"active":     n,
	}).Info("registry: session released")
	return true
}

// Sweep ends and releases every session idle for longer than maxIdle.
// Engine End() is called outside the registry lock.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	r.mu.Lock()
	var idle []*Session
	for _, s := range r.sessions {
		if s.LastActivity().Before(cutoff) {
			idle = append(idle, s)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		r.log.WithFields(logrus.Fields{
			"session_id": s.ID,
			"identity":   s.Identity,
		}).Info("registry: sweeping idle session")
		s.setState(StateEnding)
		if h := s.Engine(); h != nil {
			h.End()
		}
		r.ReleaseSession(s)
	}
	return len(idle)
}

// Reconcile drops sessions whose engine has already exited, so health
// reporting reflects live sessions only.
func (r *Registry) Reconcile() int {
	r.mu.Lock()
	var dead []*Session
	for _, s := range r.sessions {
		if s.engineDone() {
			dead = append(dead, s)
		}
	}
	r.mu.Unlock()

	for _, s := range dead {
		r.ReleaseSession(s)
	}
	return len(dead)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) Max() int { return r.max }
