// Package client sends Atalla command lines to a running simulator.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/andrei-cloud/anet"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

var (
	// ErrCircuitOpen is returned once consecutive transport failures trip the breaker.
	ErrCircuitOpen = errors.New("circuit open: too many consecutive transport failures")
	// ErrNoResponse is returned when the peer closes before answering.
	ErrNoResponse = errors.New("connection closed before a response")
)

// Transport carries one request line and returns one response line.
type Transport interface {
	Send(line string) (string, error)
	Close() error
}

// LineTransport speaks the newline framed protocol. A failed exchange drops
// the connection and the next Send dials again.
type LineTransport struct {
	addr    string
	timeout time.Duration

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// NewLineTransport returns a transport for addr. The connection is opened on
// the first Send.
func NewLineTransport(addr string, timeout time.Duration) *LineTransport {
	return &LineTransport{addr: addr, timeout: timeout}
}

// Send writes line and waits for the response line.
func (t *LineTransport) Send(line string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		conn, err := net.DialTimeout("tcp", t.addr, t.timeout)
		if err != nil {
			return "", fmt.Errorf("dial %s: %w", t.addr, err)
		}
		t.conn = conn
		t.reader = bufio.NewReader(conn)
	}

	resp, err := t.exchange(line)
	if err != nil {
		_ = t.conn.Close()
		t.conn = nil
		t.reader = nil

		return "", err
	}

	return resp, nil
}

func (t *LineTransport) exchange(line string) (string, error) {
	if t.timeout > 0 {
		if err := t.conn.SetDeadline(time.Now().Add(t.timeout)); err != nil {
			return "", err
		}
	}
	if _, err := t.conn.Write([]byte(line + "\n")); err != nil {
		return "", fmt.Errorf("write: %w", err)
	}
	resp, err := t.reader.ReadString('\n')
	if err != nil {
		if resp == "" {
			return "", fmt.Errorf("%w: %w", ErrNoResponse, err)
		}

		return "", fmt.Errorf("read: %w", err)
	}

	return strings.TrimRight(resp, "\r\n"), nil
}

// Close closes the current connection, if any.
func (t *LineTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.reader = nil

	return err
}

// FramedTransport sends each line as one anet frame through a broker.
type FramedTransport struct {
	send  func(line string) (string, error)
	close func()
}

// NewFramedTransport starts an anet broker with a single pooled connection.
// timeout bounds both the dial and each request.
func NewFramedTransport(addr string, timeout time.Duration) *FramedTransport {
	factory := func(addr string) (anet.PoolItem, error) {
		conn, err := net.DialTimeout("tcp", addr, timeout)
		if err != nil {
			return nil, err
		}

		return conn, nil
	}

	pool := anet.NewPool(1, factory, addr, nil)
	broker := anet.NewBroker([]anet.Pool{pool}, 1, nil, nil)
	go broker.Start()

	return &FramedTransport{
		send: func(line string) (string, error) {
			// SendContext waits for the pooled connection instead of treating a
			// full pool as a closing broker.
			ctx := context.Background()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			req := []byte(line)
			resp, err := broker.SendContext(ctx, &req)
			if err != nil {
				return "", fmt.Errorf("framed send: %w", err)
			}

			return string(resp), nil
		},
		close: func() {
			broker.Close()
			pool.Close()
		},
	}
}

// Send sends line as one frame.
func (t *FramedTransport) Send(line string) (string, error) {
	return t.send(line)
}

// Close stops the broker and drains the pool.
func (t *FramedTransport) Close() error {
	t.close()

	return nil
}

// Client wraps a transport with a circuit breaker. Only transport failures
// count against the breaker; error responses from the simulator are normal
// replies.
type Client struct {
	transport Transport
	cb        *gobreaker.CircuitBreaker
}

// New returns a client that opens its breaker after maxFailures consecutive
// transport failures.
func New(t Transport, maxFailures uint32) *Client {
	if maxFailures == 0 {
		maxFailures = 1
	}

	settings := gobreaker.Settings{
		Name:    "atalla-send",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, _, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("state", to.String()).Msg("circuit breaker state changed")
		},
	}

	return &Client{transport: t, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Send sends one line through the breaker.
func (c *Client) Send(line string) (string, error) {
	resp, err := c.cb.Execute(func() (any, error) {
		return c.transport.Send(line)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", ErrCircuitOpen
		}

		return "", err
	}

	s, _ := resp.(string)

	return s, nil
}

// Result summarises a repeated send.
type Result struct {
	Sent      int
	Failed    int
	Responses []string
}

// Repeat sends line count times and stops early when the breaker opens. The
// returned error is ErrCircuitOpen in that case and nil otherwise.
func (c *Client) Repeat(line string, count int) (Result, error) {
	var res Result
	for range count {
		resp, err := c.Send(line)
		if errors.Is(err, ErrCircuitOpen) {
			return res, err
		}
		res.Sent++
		if err != nil {
			res.Failed++
			log.Debug().Err(err).Int("attempt", res.Sent).Msg("send failed")

			continue
		}
		res.Responses = append(res.Responses, resp)
	}

	return res, nil
}

// Close closes the transport.
func (c *Client) Close() error {
	return c.transport.Close()
}
