package heartbeat_test

import (
	"testing"
	"time"

	"github.com/shubham-shewale/quotestream/pkg/heartbeat"
)

var t0 = time.Unix(1000, 0)

func at(d time.Duration) time.Time { return t0.Add(d) }

func TestTracker_IdleNeverDies(t *testing.T) {
	tr := heartbeat.NewTracker(5 * time.Second)

	if got := tr.Evaluate(at(time.Hour)); got != heartbeat.Idle {
		t.Errorf("Expected IDLE without probes, got %s", got)
	}
	if tr.AckReceived(at(time.Second)) {
		t.Error("Ack before any probe must be ignored")
	}
}

func TestTracker_HealthyCycle(t *testing.T) {
	tr := heartbeat.NewTracker(5 * time.Second)

	tr.ProbeSent(at(0))
	if tr.State() != heartbeat.AwaitingAck {
		t.Fatalf("Expected AWAITING_ACK, got %s", tr.State())
	}
	if !tr.AckReceived(at(100 * time.Millisecond)) {
		t.Fatal("Ack should be accepted")
	}
	if tr.State() != heartbeat.Alive {
		t.Fatalf("Expected ALIVE, got %s", tr.State())
	}

	// probe every 2s, ack promptly: stays healthy indefinitely
	for i := 1; i <= 10; i++ {
		now := at(time.Duration(i) * 2 * time.Second)
		tr.ProbeSent(now)
		tr.AckReceived(now.Add(50 * time.Millisecond))
		if s := tr.Evaluate(now.Add(time.Second)); s != heartbeat.Alive {
			t.Fatalf("Cycle %d: expected ALIVE, got %s", i, s)
		}
	}
}

func TestTracker_NoAckAfterFirstProbe(t *testing.T) {
	tr := heartbeat.NewTracker(5 * time.Second)

	// keep probing every 2s; window is measured from the FIRST unanswered probe
	tr.ProbeSent(at(0))
	tr.ProbeSent(at(2 * time.Second))
	tr.ProbeSent(at(4 * time.Second))
	if s := tr.Evaluate(at(4500 * time.Millisecond)); s != heartbeat.AwaitingAck {
		t.Fatalf("Expected AWAITING_ACK inside window, got %s", s)
	}

	tr.ProbeSent(at(6 * time.Second))
	if s := tr.Evaluate(at(6 * time.Second)); s != heartbeat.Dead {
		t.Fatalf("Expected DEAD after window, got %s", s)
	}
}

func TestTracker_StaleAck(t *testing.T) {
	tr := heartbeat.NewTracker(5 * time.Second)

	tr.ProbeSent(at(0))
	tr.AckReceived(at(time.Second))
	tr.ProbeSent(at(3 * time.Second))
	tr.ProbeSent(at(5 * time.Second))

	if s := tr.Evaluate(at(6 * time.Second)); s != heartbeat.AwaitingAck {
		t.Fatalf("Expected AWAITING_ACK, got %s", s)
	}
	if s := tr.Evaluate(at(6*time.Second + time.Millisecond)); s != heartbeat.Dead {
		t.Fatalf("Expected DEAD when last ack is older than window, got %s", s)
	}
}

func TestTracker_DeadIsTerminal(t *testing.T) {
	tr := heartbeat.NewTracker(time.Second)

	tr.ProbeSent(at(0))
	tr.Evaluate(at(2 * time.Second))
	if tr.State() != heartbeat.Dead {
		t.Fatalf("Expected DEAD, got %s", tr.State())
	}

	if tr.AckReceived(at(2 * time.Second)) {
		t.Error("Ack after DEAD must be rejected")
	}
	tr.ProbeSent(at(3 * time.Second))
	if tr.Evaluate(at(3*time.Second)) != heartbeat.Dead {
		t.Error("DEAD must be terminal")
	}
}

func TestTracker_Timestamps(t *testing.T) {
	tr := heartbeat.NewTracker(time.Second)

	if _, ok := tr.LastProbeSent(); ok {
		t.Error("No probe sent yet")
	}
	tr.ProbeSent(at(0))
	tr.AckReceived(at(time.Millisecond))

	if ts, ok := tr.LastProbeSent(); !ok || !ts.Equal(at(0)) {
		t.Errorf("Unexpected last probe %v %v", ts, ok)
	}
	if ts, ok := tr.LastProbeAcked(); !ok || !ts.Equal(at(time.Millisecond)) {
		t.Errorf("Unexpected last ack %v %v", ts, ok)
	}
}

func TestStale(t *testing.T) {
	if heartbeat.Stale(at(0), at(5*time.Second), 5*time.Second) {
		t.Error("Exactly window old is not stale")
	}
	if !heartbeat.Stale(at(0), at(6*time.Second), 5*time.Second) {
		t.Error("6s old with 5s window is stale")
	}
}
