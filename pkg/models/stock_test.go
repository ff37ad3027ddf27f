package models_test

import (
	"errors"
	"math"
	"testing"

	"github.com/shubham-shewale/quotestream/pkg/models"
)

func TestQuote_RoundTrip(t *testing.T) {
	quotes := []models.Quote{
		{Ticker: "AAPL", Price: 151.23456789, Volume: 3456.5, Timestamp: 1700000000},
		{Ticker: "TSLA", Price: 1.0, Volume: 100, Timestamp: 0},
		{Ticker: "X", Price: 0.1 + 0.2, Volume: 1e-7, Timestamp: math.MaxUint64},
	}

	for _, q := range quotes {
		got, err := models.ParseQuote(q.String())
		if err != nil {
			t.Fatalf("ParseQuote(%q) failed: %v", q.String(), err)
		}
		if got != q {
			t.Errorf("Round trip mismatch.\nGot:  %+v\nWant: %+v", got, q)
		}
	}
}

func TestQuote_Format(t *testing.T) {
	q := models.Quote{Ticker: "MSFT", Price: 300.5, Volume: 1200, Timestamp: 42}
	if q.String() != "MSFT|300.5|1200|42" {
		t.Errorf("Unexpected wire form: %s", q.String())
	}
}

func TestParseQuote_Malformed(t *testing.T) {
	inputs := []string{
		"",
		"AAPL|1|2",
		"AAPL|1|2|3|4",
		"AAPL|abc|2|3",
		"AAPL|1|abc|3",
		"AAPL|1|2|-3",
		"PING",
	}

	for _, in := range inputs {
		if _, err := models.ParseQuote(in); !errors.Is(err, models.ErrMalformedQuote) {
			t.Errorf("ParseQuote(%q): expected ErrMalformedQuote, got %v", in, err)
		}
	}
}

func TestPingPong(t *testing.T) {
	if !models.IsPing([]byte("PING")) || models.IsPing([]byte("PONG")) {
		t.Error("IsPing misclassified")
	}
	if !models.IsPong([]byte("PONG")) || models.IsPong([]byte("PINGX")) {
		t.Error("IsPong misclassified")
	}
}
