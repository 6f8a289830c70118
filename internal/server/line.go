package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andrei-cloud/go_atalla/internal/dispatch"
	"github.com/andrei-cloud/go_atalla/internal/ratelimit"
)

// LineServer reads newline-terminated request lines and writes one response
// line per request. Each connection has its own goroutine; requests on one
// connection are handled in order.
type LineServer struct {
	handler
	address     string
	readTimeout time.Duration
	listener    net.Listener
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	slots       chan struct{}

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewLineServer creates a line server. It does not listen until Start.
func NewLineServer(cfg Config, d *dispatch.Dispatcher) *LineServer {
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &LineServer{
		address:     cfg.Address,
		readTimeout: cfg.ReadTimeout,
		ctx:         ctx,
		cancel:      cancel,
		slots:       make(chan struct{}, maxConns),
		conns:       make(map[net.Conn]struct{}),
	}
	s.dispatcher = d
	s.limiter = cfg.Limiter
	s.observer = cfg.Observer

	return s
}

// Start binds the listener and accepts connections in the background.
func (s *LineServer) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}
	s.listener = listener
	log.Info().Str("address", listener.Addr().String()).Str("framing", FramingLine).Msg("server started")

	s.wg.Add(1)
	go s.acceptConnections()

	return nil
}

// Addr returns the bound address once started, the configured one before.
func (s *LineServer) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}

	return s.address
}

// Stop closes the listener and every open connection, then waits for the
// connection goroutines to finish.
func (s *LineServer) Stop() error {
	s.cancel()

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}

	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	log.Info().Str("address", s.address).Msg("server stopped")

	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("close listener: %w", err)
	}

	return nil
}

func (s *LineServer) acceptConnections() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Error().Err(err).Msg("error accepting connection")

			continue
		}

		select {
		case s.slots <- struct{}{}:
		default:
			log.Warn().
				Str("event", "connection_rejected").
				Str("client_ip", ratelimit.ClientID(conn.RemoteAddr())).
				Int("max_connections", cap(s.slots)).
				Msg("connection limit reached")
			_ = conn.Close()

			continue
		}

		if !s.track(conn) {
			<-s.slots
			_ = conn.Close()

			return
		}
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// track registers conn for Stop. It refuses once Stop has begun.
func (s *LineServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return false
	}
	s.conns[conn] = struct{}{}

	return true
}

func (s *LineServer) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conns, conn)
}

func (s *LineServer) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() { <-s.slots }()
	defer s.untrack(conn)
	defer func() { _ = conn.Close() }()

	s.opened()
	defer s.closed()

	clientIP := ratelimit.ClientID(conn.RemoteAddr())
	log.Debug().Str("event", "connection_opened").Str("client_ip", clientIP).Msg("client connected")

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLineLength)
	writer := bufio.NewWriter(conn)

	for {
		if s.readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		}
		if !scanner.Scan() {
			break
		}

		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		resp := s.serve(clientIP, line)
		if _, err := writer.WriteString(resp + "\n"); err != nil {
			log.Debug().Err(err).Str("client_ip", clientIP).Msg("write failed")

			return
		}
		if err := writer.Flush(); err != nil {
			log.Debug().Err(err).Str("client_ip", clientIP).Msg("write failed")

			return
		}
	}

	if err := scanner.Err(); err != nil && s.ctx.Err() == nil {
		log.Debug().Err(err).Str("client_ip", clientIP).Msg("connection read ended")
	}
	log.Debug().Str("event", "connection_closed").Str("client_ip", clientIP).Msg("client disconnected")
}
