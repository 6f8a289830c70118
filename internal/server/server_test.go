package server_test

import (
	"bufio"
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andrei-cloud/anet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrei-cloud/go_atalla/internal/dispatch"
	"github.com/andrei-cloud/go_atalla/internal/hsm"
	"github.com/andrei-cloud/go_atalla/internal/ratelimit"
	"github.com/andrei-cloud/go_atalla/internal/server"
)

const (
	testMasterKey = "8CA64DE9C1B123A7B37A8B2C4D5E6F70"
	framedAddr    = "127.0.0.1:17500"
)

type countingObserver struct {
	opened, closed, limited atomic.Int32
}

func (o *countingObserver) ConnectionOpened() { o.opened.Add(1) }
func (o *countingObserver) ConnectionClosed() { o.closed.Add(1) }
func (o *countingObserver) RateLimited()      { o.limited.Add(1) }

func newDispatcher(t *testing.T) *dispatch.Dispatcher {
	t.Helper()

	h, err := hsm.NewHSM(testMasterKey, nil)
	require.NoError(t, err)

	return dispatch.New(h, nil)
}

// startLineServer starts a line server on an ephemeral port.
func startLineServer(t *testing.T, cfg server.Config) server.Listener {
	t.Helper()

	cfg.Address = "127.0.0.1:0"
	srv, err := server.New(cfg, newDispatcher(t))
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop() })

	return srv
}

type lineClient struct {
	conn   net.Conn
	reader *bufio.Reader
}

func dial(t *testing.T, addr string) *lineClient {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))
	t.Cleanup(func() { _ = conn.Close() })

	return &lineClient{conn: conn, reader: bufio.NewReader(conn)}
}

func (c *lineClient) roundTrip(t *testing.T, line string) string {
	t.Helper()

	_, err := c.conn.Write([]byte(line + "\r\n"))
	require.NoError(t, err)
	resp, err := c.reader.ReadString('\n')
	require.NoError(t, err)

	return resp[:len(resp)-1]
}

func TestLineServerRoundTrip(t *testing.T) {
	t.Parallel()

	obs := &countingObserver{}
	srv := startLineServer(t, server.Config{Observer: obs})
	c := dial(t, srv.Addr())

	assert.Equal(t, "<01#ping#>", c.roundTrip(t, "<00#ping#>"))
	assert.Equal(t, "<00#080000#>", c.roundTrip(t, "<ZZ#1#>"))
	assert.Equal(t, "<00#080000#>", c.roundTrip(t, "not a frame"))

	// Blank lines get no response, so the next response matches the next request.
	_, err := c.conn.Write([]byte("\n\n"))
	require.NoError(t, err)
	assert.Equal(t, "<01#again#>", c.roundTrip(t, "<00#again#>"))
	assert.Equal(t, int32(1), obs.opened.Load())

	require.NoError(t, c.conn.Close())
	assert.Eventually(t, func() bool { return obs.closed.Load() == 1 }, time.Second, 10*time.Millisecond)
}

func TestLineServerConcurrentClients(t *testing.T) {
	t.Parallel()

	srv := startLineServer(t, server.Config{})

	done := make(chan string, 5)
	for range 5 {
		c := dial(t, srv.Addr())
		go func() {
			_, err := c.conn.Write([]byte("<00#x#>\n"))
			if err != nil {
				done <- err.Error()
				return
			}
			resp, err := c.reader.ReadString('\n')
			if err != nil {
				done <- err.Error()
				return
			}
			done <- resp
		}()
	}
	for range 5 {
		assert.Equal(t, "<01#x#>\n", <-done)
	}
}

func TestLineServerRateLimit(t *testing.T) {
	t.Parallel()

	obs := &countingObserver{}
	limiter := ratelimit.New(ratelimit.Config{RequestsPerSecond: 0.001, Burst: 2})
	defer limiter.Stop()

	srv := startLineServer(t, server.Config{Limiter: limiter, Observer: obs})
	c := dial(t, srv.Addr())

	assert.Equal(t, "<01#1#>", c.roundTrip(t, "<00#1#>"))
	assert.Equal(t, "<01#2#>", c.roundTrip(t, "<00#2#>"))
	assert.Equal(t, "<00#080000#>", c.roundTrip(t, "<00#3#>"))
	assert.Equal(t, int32(1), obs.limited.Load())
}

func TestLineServerConnectionLimit(t *testing.T) {
	t.Parallel()

	srv := startLineServer(t, server.Config{MaxConns: 1})

	first := dial(t, srv.Addr())
	assert.Equal(t, "<01#a#>", first.roundTrip(t, "<00#a#>"))

	second := dial(t, srv.Addr())
	_, err := second.reader.ReadString('\n')
	require.Error(t, err, "second connection should be closed by the server")

	assert.Equal(t, "<01#b#>", first.roundTrip(t, "<00#b#>"))
}

func TestLineServerStopClosesClients(t *testing.T) {
	t.Parallel()

	cfg := server.Config{Address: "127.0.0.1:0"}
	srv, err := server.New(cfg, newDispatcher(t))
	require.NoError(t, err)
	require.NoError(t, srv.Start())

	c := dial(t, srv.Addr())
	assert.Equal(t, "<01#a#>", c.roundTrip(t, "<00#a#>"))

	require.NoError(t, srv.Stop())
	_, err = c.reader.ReadString('\n')
	assert.Error(t, err)
}

func TestUnknownFraming(t *testing.T) {
	t.Parallel()

	_, err := server.New(server.Config{Framing: "xml"}, newDispatcher(t))
	require.ErrorIs(t, err, server.ErrUnknownFraming)
}

// startFramedServer starts the anet server for testing.
func startFramedServer(t *testing.T) server.Listener {
	t.Helper()

	srv, err := server.New(server.Config{Address: framedAddr, Framing: server.FramingAnet}, newDispatcher(t))
	require.NoError(t, err)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		require.NoError(t, err)
	case <-time.After(time.Second):
	}
	time.Sleep(100 * time.Millisecond)

	return srv
}

func TestFramedServer(t *testing.T) {
	srv := startFramedServer(t)
	defer srv.Stop()

	factory := func(addr string) (anet.PoolItem, error) {
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err != nil {
			return nil, err
		}

		if err := conn.SetDeadline(time.Now().Add(2 * time.Second)); err != nil {
			conn.Close()

			return nil, err
		}

		return conn, nil
	}

	pool := anet.NewPool(1, factory, framedAddr, nil)
	defer pool.Close()

	broker := anet.NewBroker([]anet.Pool{pool}, 1, nil, nil)
	go broker.Start()
	defer broker.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req := []byte("<00#framed#>")
	resp, err := broker.SendContext(ctx, &req)
	require.NoError(t, err)
	assert.Equal(t, "<01#framed#>", string(resp))

	req = []byte("<ZZ#>")
	resp, err = broker.SendContext(ctx, &req)
	require.NoError(t, err)
	assert.Equal(t, "<00#080000#>", string(resp))
}
