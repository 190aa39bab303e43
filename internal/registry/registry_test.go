package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/utils"
)

type fakeEngine struct {
	once sync.Once
	done chan struct{}
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{done: make(chan struct{})}
}

func (f *fakeEngine) End()                  { f.once.Do(func() { close(f.done) }) }
func (f *fakeEngine) Done() <-chan struct{} { return f.done }

func (f *fakeEngine) ended() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestTryAdmitRequiresIdentity(t *testing.T) {
	r := New(2, quietLog())
	_, err := r.TryAdmit("")
	if !utils.IsCode(err, utils.CodeInvalidArgument) {
		t.Fatalf("err = %v, want INVALID_ARGUMENT", err)
	}
}

func TestTryAdmitSingleSessionPerIdentity(t *testing.T) {
	r := New(5, quietLog())

	s1, err := r.TryAdmit("alice")
	if err != nil {
		t.Fatalf("first admit: %v", err)
	}
	if s1.State() != StateStarting {
		t.Fatalf("state = %v, want starting", s1.State())
	}

	_, err = r.TryAdmit("alice")
	if !utils.IsCode(err, utils.CodeAlreadyActive) {
		t.Fatalf("err = %v, want ALREADY_ACTIVE", err)
	}
	if r.Len() != 1 {
		t.Fatalf("len = %d after rejected admit, want 1", r.Len())
	}
}

func TestTryAdmitCapacityExceeded(t *testing.T) {
	r := New(2, quietLog())

	if _, err := r.TryAdmit("a"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.TryAdmit("b"); err != nil {
		t.Fatal(err)
	}

	_, err := r.TryAdmit("c")
	if !utils.IsCode(err, utils.CodeCapacityExceeded) {
		t.Fatalf("err = %v, want CAPACITY_EXCEEDED", err)
	}
	if r.Len() != 2 {
		t.Fatalf("len = %d after rejected admit, want 2", r.Len())
	}

	// a freed slot is admissible again
	r.Release("a")
	if _, err := r.TryAdmit("c"); err != nil {
		t.Fatalf("admit after release: %v", err)
	}
}

func TestTryAdmitReplacesDeadSession(t *testing.T) {
	r := New(2, quietLog())

	s1, err := r.TryAdmit("alice")
	if err != nil {
		t.Fatal(err)
	}
	eng := newFakeEngine()
	s1.BindEngine(eng)
	eng.End() // engine exited but reclaim has not run yet

	s2, err := r.TryAdmit("alice")
	if err != nil {
		t.Fatalf("admit over dead session: %v", err)
	}
	if s2 == s1 {
		t.Fatal("dead session was handed back instead of replaced")
	}
	if s1.State() != StateEnded {
		t.Fatalf("replaced session state = %v, want ended", s1.State())
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	r := New(2, quietLog())
	s, err := r.TryAdmit("alice")
	if err != nil {
		t.Fatal(err)
	}

	if !r.Release("alice") {
		t.Fatal("first release reported no-op")
	}
	if r.Release("alice") {
		t.Fatal("second release reported a removal")
	}
	if r.Release("never-admitted") {
		t.Fatal("release of unknown identity reported a removal")
	}
	if s.State() != StateEnded {
		t.Fatalf("state = %v, want ended", s.State())
	}
}

func TestReleaseSessionIgnoresStalePointer(t *testing.T) {
	r := New(2, quietLog())

	s1, _ := r.TryAdmit("alice")
	eng := newFakeEngine()
	s1.BindEngine(eng)
	eng.End()

	s2, err := r.TryAdmit("alice") // replaces the dead s1
	if err != nil {
		t.Fatal(err)
	}

	// a late exit callback for s1 must not evict s2
	if r.ReleaseSession(s1) {
		t.Fatal("stale release evicted the replacement session")
	}
	if got, ok := r.Get("alice"); !ok || got != s2 {
		t.Fatal("replacement session missing after stale release")
	}
}

func TestStateTransitionsTerminal(t *testing.T) {
	r := New(2, quietLog())
	s, _ := r.TryAdmit("alice")

	r.Activate("alice")
	if s.State() != StateActive {
		t.Fatalf("state = %v, want active", s.State())
	}

	s.MarkEnding()
	if s.State() != StateEnding {
		t.Fatalf("state = %v, want ending", s.State())
	}

	r.Release("alice")
	s.MarkEnding() // terminal: Ended never regresses
	if s.State() != StateEnded {
		t.Fatalf("state = %v, want ended", s.State())
	}
}

func TestSweepEndsIdleSessions(t *testing.T) {
	r := New(5, quietLog())

	idle, _ := r.TryAdmit("idle-user")
	idleEng := newFakeEngine()
	idle.BindEngine(idleEng)

	busy, _ := r.TryAdmit("busy-user")
	busyEng := newFakeEngine()
	busy.BindEngine(busyEng)

	// push the idle session past the cutoff, keep the busy one fresh
	idle.mu.Lock()
	idle.lastActivity = time.Now().Add(-time.Hour)
	idle.mu.Unlock()
	busy.Touch()

	if n := r.Sweep(5 * time.Minute); n != 1 {
		t.Fatalf("swept %d sessions, want 1", n)
	}
	if !idleEng.ended() {
		t.Fatal("idle session's engine was not ended")
	}
	if busyEng.ended() {
		t.Fatal("busy session's engine was ended")
	}
	if _, ok := r.Get("idle-user"); ok {
		t.Fatal("idle session still registered after sweep")
	}
	if _, ok := r.Get("busy-user"); !ok {
		t.Fatal("busy session lost by sweep")
	}
}

func TestReconcileDropsExitedEngines(t *testing.T) {
	r := New(5, quietLog())

	dead, _ := r.TryAdmit("dead-user")
	deadEng := newFakeEngine()
	dead.BindEngine(deadEng)
	deadEng.End()

	live, _ := r.TryAdmit("live-user")
	live.BindEngine(newFakeEngine())

	pending, _ := r.TryAdmit("starting-user") // no engine bound yet
	_ = pending

	if n := r.Reconcile(); n != 1 {
		t.Fatalf("reconciled %d sessions, want 1", n)
	}
	if _, ok := r.Get("dead-user"); ok {
		t.Fatal("dead session survived reconcile")
	}
	if r.Len() != 2 {
		t.Fatalf("len = %d, want 2", r.Len())
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateStarting: "starting",
		StateActive:   "active",
		StateEnding:   "ending",
		StateEnded:    "ended",
		State(99):     "unknown",
	}
	for st, want := range cases {
		if got := st.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", st, got, want)
		}
	}
}
