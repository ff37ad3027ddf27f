package control

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/shubham-shewale/quotestream/pkg/models"
	"github.com/shubham-shewale/quotestream/pkg/tickers"
)

var (
	ErrUnknownCommand   = errors.New("unknown command")
	ErrMalformedCommand = errors.New("malformed command")
	ErrBadEndpoint      = errors.New("bad data endpoint")
	ErrNoTickers        = errors.New("no tickers")
)

// Request is a parsed `STREAM <endpoint> <t1,t2,...>` line.
type Request struct {
	Endpoint *net.UDPAddr
	Tickers  []string
}

// ParseRequest validates a control line. Tickers are upper-cased, blanks are
// dropped and duplicates collapse.
func ParseRequest(line string) (Request, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != models.StreamCommand {
		return Request{}, ErrUnknownCommand
	}
	if len(fields) != 3 {
		return Request{}, fmt.Errorf("%w: expected %s <endpoint> <tickers>", ErrMalformedCommand, models.StreamCommand)
	}

	endpoint, err := ParseEndpoint(fields[1])
	if err != nil {
		return Request{}, err
	}

	var syms []string
	seen := make(map[string]bool)
	for _, s := range strings.Split(fields[2], ",") {
		sym := tickers.Normalize(s)
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		syms = append(syms, sym)
	}
	if len(syms) == 0 {
		return Request{}, ErrNoTickers
	}

	return Request{Endpoint: endpoint, Tickers: syms}, nil
}

// ParseEndpoint accepts `ip:port` with an optional udp:// prefix.
func ParseEndpoint(s string) (*net.UDPAddr, error) {
	ap, err := netip.ParseAddrPort(strings.TrimPrefix(s, models.UDPScheme))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEndpoint, err)
	}
	if ap.Port() == 0 {
		return nil, fmt.Errorf("%w: port 0", ErrBadEndpoint)
	}
	return net.UDPAddrFromAddrPort(ap), nil
}

// ErrorResponse renders a rejection for the control connection.
func ErrorResponse(err error, line string) string {
	return fmt.Sprintf("ERR %v: %s", err, line)
}
