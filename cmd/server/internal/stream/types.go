package stream

import (
	"errors"
	"net"
	"os"
	"time"
)

// Registry is the slice of the session registry a stream reads through.
// Streams hold only the session id and re-read state on every use.
type Registry interface {
	HasTicker(id uint64, ticker string) (has bool, ok bool)
	Touch(id uint64) bool
	Exists(id uint64) bool
}

type Config struct {
	SendDelay    time.Duration // pause after each datagram sent
	SendTimeout  time.Duration
	PollInterval time.Duration // bound on every blocking wait
	InboxSize    int
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
