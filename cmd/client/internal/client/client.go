package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shubham-shewale/quotestream/pkg/heartbeat"
	"github.com/shubham-shewale/quotestream/pkg/models"
)

const (
	negotiateTimeout = 5 * time.Second
	maxDatagram      = 1024
)

var (
	ErrRejected = errors.New("subscription rejected")
	ErrLinkDead = errors.New("server stopped answering heartbeats")
)

type Config struct {
	ServerAddr        string
	UDPPort           int // 0 picks an ephemeral port
	Tickers           []string
	HeartbeatInterval time.Duration
	HeartbeatWindow   time.Duration
	ReadTimeout       time.Duration
}

// Handler receives every decoded quote.
type Handler func(q models.Quote)

// Client holds one subscription: the control connection that negotiated it
// and the UDP socket quotes and heartbeats travel on.
type Client struct {
	cfg     Config
	logger  *zap.Logger
	handler Handler
	tracker *heartbeat.Tracker

	control net.Conn
	data    net.PacketConn

	mu     sync.Mutex
	server net.Addr // learned from the first datagram
}

func New(cfg Config, logger *zap.Logger, handler Handler) *Client {
	if handler == nil {
		handler = func(models.Quote) {}
	}
	return &Client{
		cfg:     cfg,
		logger:  logger,
		handler: handler,
		tracker: heartbeat.NewTracker(cfg.HeartbeatWindow),
	}
}

// Subscribe binds the data socket, sends the STREAM request and waits for OK.
// The control connection stays open until Close; the server drops the
// session when it closes.
func (c *Client) Subscribe(ctx context.Context) error {
	if len(c.cfg.Tickers) == 0 {
		return errors.New("no tickers to subscribe to")
	}

	data, err := net.ListenPacket("udp", fmt.Sprintf(":%d", c.cfg.UDPPort))
	if err != nil {
		return fmt.Errorf("bind udp port %d: %w", c.cfg.UDPPort, err)
	}

	d := net.Dialer{Timeout: negotiateTimeout}
	control, err := d.DialContext(ctx, "tcp", c.cfg.ServerAddr)
	if err != nil {
		data.Close()
		return fmt.Errorf("connect to %s: %w", c.cfg.ServerAddr, err)
	}

	endpoint, err := advertised(control.LocalAddr(), data.LocalAddr())
	if err != nil {
		control.Close()
		data.Close()
		return err
	}

	request := fmt.Sprintf("%s %s%s %s", models.StreamCommand, models.UDPScheme, endpoint, strings.Join(c.cfg.Tickers, ","))
	c.logger.Info("Subscribing", zap.String("server", c.cfg.ServerAddr), zap.String("request", request))

	if err := negotiate(control, request); err != nil {
		control.Close()
		data.Close()
		return err
	}

	c.control = control
	c.data = data
	c.logger.Info("Subscription accepted", zap.String("endpoint", endpoint))
	return nil
}

func negotiate(conn net.Conn, request string) error {
	if err := conn.SetDeadline(time.Now().Add(negotiateTimeout)); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	defer conn.SetDeadline(time.Time{})

	if _, err := conn.Write([]byte(request + "\n")); err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	resp, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp = strings.TrimSpace(resp); resp != models.ServerOK {
		return fmt.Errorf("%w: %s", ErrRejected, resp)
	}
	return nil
}

// advertised is the data endpoint the server should send to: the address the
// control connection goes out on, with the data socket's port.
func advertised(controlLocal, dataLocal net.Addr) (string, error) {
	tcp, ok := controlLocal.(*net.TCPAddr)
	if !ok {
		return "", fmt.Errorf("unexpected control address %s", controlLocal)
	}
	udp, ok := dataLocal.(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("unexpected data address %s", dataLocal)
	}
	ip, ok := netip.AddrFromSlice(tcp.IP)
	if !ok {
		return "", fmt.Errorf("bad local ip %s", tcp.IP)
	}
	return netip.AddrPortFrom(ip.Unmap(), uint16(udp.Port)).String(), nil
}

// LocalAddr is the data socket's address. Valid after Subscribe.
func (c *Client) LocalAddr() net.Addr { return c.data.LocalAddr() }

// State is the current liveness verdict on the server.
func (c *Client) State() heartbeat.State { return c.tracker.State() }

// Run receives quotes and drives the heartbeat until ctx is cancelled
// (nil) or the server is declared dead (ErrLinkDead). Both sockets are
// closed on return.
func (c *Client) Run(ctx context.Context) error {
	if c.data == nil {
		return errors.New("run before subscribe")
	}
	defer c.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.receive(gctx) })
	g.Go(func() error { return c.ping(gctx) })
	return g.Wait()
}

func (c *Client) Close() {
	if c.control != nil {
		c.control.Close()
	}
	if c.data != nil {
		c.data.Close()
	}
}

func (c *Client) serverAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.server
}

func (c *Client) learn(from net.Addr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.server == nil {
		c.server = from
		c.logger.Info("Learned server data address", zap.String("addr", from.String()))
	}
}

func (c *Client) receive(ctx context.Context) error {
	buf := make([]byte, maxDatagram)
	quietSince := time.Now()
	for {
		if ctx.Err() != nil {
			return nil
		}
		if c.tracker.Evaluate(time.Now()) == heartbeat.Dead {
			c.logger.Error("Server unreachable, heartbeat window exceeded", zap.Duration("window", c.cfg.HeartbeatWindow))
			return ErrLinkDead
		}

		if err := c.data.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
		n, from, err := c.data.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				// the heartbeat cannot start until the server sends something
				if c.serverAddr() == nil && time.Since(quietSince) > c.cfg.HeartbeatWindow {
					c.logger.Warn("No data from server yet",
						zap.Duration("waited", time.Since(quietSince)),
						zap.Strings("tickers", c.cfg.Tickers))
					quietSince = time.Now()
				}
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}

		c.learn(from)
		msg := buf[:n]

		if models.IsPong(msg) {
			c.tracker.AckReceived(time.Now())
			c.logger.Debug("PONG received")
			continue
		}

		q, err := models.ParseQuote(string(msg))
		if err != nil {
			c.logger.Warn("Skipping datagram", zap.String("payload", string(msg)), zap.Error(err))
			continue
		}
		c.handler(q)
	}
}

// ping is the heartbeat driver: once the server's data address is known it
// sends a PING every interval.
func (c *Client) ping(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		addr := c.serverAddr()
		if addr == nil {
			continue
		}
		if c.tracker.State() == heartbeat.Dead {
			return ErrLinkDead
		}

		if _, err := c.data.WriteTo(models.Ping, addr); err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			c.logger.Warn("Failed to send PING", zap.String("addr", addr.String()), zap.Error(err))
		}
		c.tracker.ProbeSent(time.Now())
	}
}
