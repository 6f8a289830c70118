package server

import (
	"fmt"
	"time"

	anetserver "github.com/andrei-cloud/anet/server"
	"github.com/rs/zerolog/log"

	"github.com/andrei-cloud/go_atalla/internal/dispatch"
	"github.com/andrei-cloud/go_atalla/internal/ratelimit"
)

// logAdapter implements anet.Logger using zerolog.
type logAdapter struct{}

func (l logAdapter) Print(v ...any) {
	log.Info().Msg(fmt.Sprint(v...))
}

func (l logAdapter) Printf(format string, v ...any) {
	log.Info().Msgf(format, v...)
}

func (l logAdapter) Infof(format string, v ...any) {
	log.Info().Msgf(format, v...)
}

func (l logAdapter) Warnf(format string, v ...any) {
	log.Warn().Msgf(format, v...)
}

func (l logAdapter) Errorf(format string, v ...any) {
	log.Error().Msgf(format, v...)
}

// FramedServer carries one request line per anet frame. anet owns the
// connection lifecycle, so active connections are counted per in-flight
// frame.
type FramedServer struct {
	handler
	address string
	srv     *anetserver.Server
}

// NewFramedServer configures the anet server.
func NewFramedServer(cfg Config, d *dispatch.Dispatcher) (*FramedServer, error) {
	acfg := &anetserver.ServerConfig{
		MaxConns:        cfg.MaxConns,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     cfg.ReadTimeout,
		ShutdownTimeout: 5 * time.Second,
		Logger:          logAdapter{},
	}

	s := &FramedServer{address: cfg.Address}
	s.dispatcher = d
	s.limiter = cfg.Limiter
	s.observer = cfg.Observer

	srv, err := anetserver.NewServer(cfg.Address, anetserver.HandlerFunc(s.handle), acfg)
	if err != nil {
		return nil, fmt.Errorf("server setup failed: %w", err)
	}
	s.srv = srv

	return s, nil
}

// Start begins accepting framed connections.
func (s *FramedServer) Start() error {
	log.Info().Str("address", s.address).Str("framing", FramingAnet).Msg("server started")

	return s.srv.Start()
}

// Stop gracefully shuts down the server.
func (s *FramedServer) Stop() error {
	return s.srv.Stop()
}

// Addr returns the configured listen address.
func (s *FramedServer) Addr() string {
	return s.address
}

func (s *FramedServer) handle(conn *anetserver.ServerConn, data []byte) ([]byte, error) {
	s.activeConns.Add(1)
	defer s.activeConns.Add(-1)

	clientIP := ratelimit.ClientID(conn.Conn.RemoteAddr())

	return []byte(s.serve(clientIP, string(data))), nil
}
