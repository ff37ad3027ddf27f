package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/shubham-shewale/quotestream/cmd/server/internal/metrics"
)

func TestCollector_SessionLifecycle(t *testing.T) {
	c := metrics.NewCollector()

	c.SessionCreated()
	c.SessionCreated()
	c.SessionClosed(true)
	c.QuoteDropped("inbox_full")
	c.QuoteDropped("inbox_full")

	got, err := testutil.GatherAndCount(c.Registry(), "quotestream_active_sessions", "quotestream_quotes_dropped_total")
	if err != nil {
		t.Fatal(err)
	}
	if got != 2 {
		t.Errorf("Expected 2 series, got %d", got)
	}

	mfs, err := c.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	values := map[string]float64{}
	for _, mf := range mfs {
		m := mf.GetMetric()[0]
		switch {
		case m.GetGauge() != nil:
			values[mf.GetName()] = m.GetGauge().GetValue()
		case m.GetCounter() != nil:
			values[mf.GetName()] = m.GetCounter().GetValue()
		}
	}

	if values["quotestream_active_sessions"] != 1 {
		t.Errorf("Expected 1 active session, got %v", values["quotestream_active_sessions"])
	}
	if values["quotestream_sessions_evicted_total"] != 1 {
		t.Errorf("Expected 1 eviction, got %v", values["quotestream_sessions_evicted_total"])
	}
	if values["quotestream_quotes_dropped_total"] != 2 {
		t.Errorf("Expected 2 drops, got %v", values["quotestream_quotes_dropped_total"])
	}
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *metrics.Collector
	c.SessionCreated()
	c.SessionClosed(false)
	c.QuoteSent()
	c.PingAnswered()
	if c.Registry() != nil {
		t.Error("nil collector has no registry")
	}
}
