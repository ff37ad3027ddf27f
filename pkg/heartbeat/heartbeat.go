// Package heartbeat holds the liveness state machine shared by the probe
// sender (client) and the probe responder (server).
package heartbeat

import (
	"sync"
	"time"
)

type State int

const (
	Idle State = iota
	AwaitingAck
	Alive
	Dead
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case AwaitingAck:
		return "AWAITING_ACK"
	case Alive:
		return "ALIVE"
	case Dead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// Stale reports whether last is older than window at now.
func Stale(last, now time.Time, window time.Duration) bool {
	return now.Sub(last) > window
}

// Tracker follows one peer through IDLE -> AWAITING_ACK -> ALIVE -> ... and
// latches DEAD once the window is exceeded. Safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	window time.Duration
	state  State

	lastSent  time.Time
	lastAcked time.Time
	// first probe not yet covered by an ack
	awaitingSince time.Time
}

func NewTracker(window time.Duration) *Tracker {
	return &Tracker{window: window}
}

// ProbeSent records an outgoing probe. It is a no-op once DEAD.
func (t *Tracker) ProbeSent(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == Dead {
		return
	}
	t.lastSent = now
	if t.state != AwaitingAck {
		t.awaitingSince = now
	}
	t.state = AwaitingAck
}

// AckReceived records an acknowledgement. Acks that arrive before any probe
// or after DEAD are ignored and reported as false.
func (t *Tracker) AckReceived(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == Dead || t.state == Idle {
		return false
	}
	t.lastAcked = now
	t.awaitingSince = time.Time{}
	t.state = Alive
	return true
}

// Evaluate applies the liveness window at now and returns the resulting state.
func (t *Tracker) Evaluate(now time.Time) State {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == Dead || t.state == Idle {
		return t.state
	}

	switch {
	case !t.lastAcked.IsZero() && Stale(t.lastAcked, now, t.window):
		t.state = Dead
	case t.lastAcked.IsZero() && !t.awaitingSince.IsZero() && Stale(t.awaitingSince, now, t.window):
		t.state = Dead
	}
	return t.state
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// LastProbeSent returns the last probe time, if any.
func (t *Tracker) LastProbeSent() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSent, !t.lastSent.IsZero()
}

// LastProbeAcked returns the last ack time, if any.
func (t *Tracker) LastProbeAcked() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastAcked, !t.lastAcked.IsZero()
}
