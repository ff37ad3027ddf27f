package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Wire protocol literals shared by server and client
const (
	StreamCommand = "STREAM"
	ServerOK      = "OK"
	UDPScheme     = "udp://"
)

var (
	Ping = []byte("PING")
	Pong = []byte("PONG")
)

var ErrMalformedQuote = errors.New("malformed quote")

// Quote represents a single market tick for a stock symbol
type Quote struct {
	Ticker    string  `json:"ticker"`
	Price     float64 `json:"price"`
	Volume    float64 `json:"volume"`
	Timestamp uint64  `json:"timestamp"` // unix seconds
}

// String renders the datagram form: ticker|price|volume|timestamp
func (q Quote) String() string {
	var b strings.Builder
	b.WriteString(q.Ticker)
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(q.Price, 'f', -1, 64))
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(q.Volume, 'f', -1, 64))
	b.WriteByte('|')
	b.WriteString(strconv.FormatUint(q.Timestamp, 10))
	return b.String()
}

// Bytes is String as a datagram payload.
func (q Quote) Bytes() []byte { return []byte(q.String()) }

// ParseQuote decodes a datagram produced by Quote.String.
func ParseQuote(s string) (Quote, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 4 {
		return Quote{}, fmt.Errorf("%w: expected 4 fields, got %d", ErrMalformedQuote, len(parts))
	}

	price, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: price: %v", ErrMalformedQuote, err)
	}
	volume, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: volume: %v", ErrMalformedQuote, err)
	}
	ts, err := strconv.ParseUint(parts[3], 10, 64)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: timestamp: %v", ErrMalformedQuote, err)
	}

	return Quote{Ticker: parts[0], Price: price, Volume: volume, Timestamp: ts}, nil
}

// IsPing reports whether a datagram is a liveness probe.
func IsPing(b []byte) bool { return string(b) == string(Ping) }

// IsPong reports whether a datagram is a liveness acknowledgement.
func IsPong(b []byte) bool { return string(b) == string(Pong) }
