// Package server exposes the dispatcher over TCP, either one command per
// newline-terminated line or one command per anet length-prefixed frame.
package server

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/andrei-cloud/go_atalla/internal/dispatch"
	"github.com/andrei-cloud/go_atalla/internal/errorcodes"
	"github.com/andrei-cloud/go_atalla/internal/message"
	"github.com/andrei-cloud/go_atalla/internal/ratelimit"
)

// Supported framings.
const (
	FramingLine = "line"
	FramingAnet = "anet"
)

const (
	defaultMaxConns = 100
	maxLineLength   = 64 * 1024
)

var (
	ErrUnknownFraming = errors.New("unknown framing")
	ErrRateLimited    = errors.New("rate limit exceeded")
)

// ConnObserver receives connection lifecycle events. metrics.Metrics
// implements it.
type ConnObserver interface {
	ConnectionOpened()
	ConnectionClosed()
	RateLimited()
}

// Config configures a listener.
type Config struct {
	Address  string
	Framing  string
	MaxConns int
	// ReadTimeout bounds how long an idle connection waits for the next
	// request. Zero disables it.
	ReadTimeout time.Duration
	Limiter     *ratelimit.Limiter
	Observer    ConnObserver
}

// Listener is a running protocol front end.
type Listener interface {
	Start() error
	Stop() error
	Addr() string
}

// New builds the listener selected by cfg.Framing. An empty framing means
// line framing.
func New(cfg Config, d *dispatch.Dispatcher) (Listener, error) {
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = defaultMaxConns
	}

	switch cfg.Framing {
	case "", FramingLine:
		return NewLineServer(cfg, d), nil
	case FramingAnet:
		return NewFramedServer(cfg, d)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFraming, cfg.Framing)
	}
}

// handler is the part shared by both framings: throttle, tag and dispatch one
// request.
type handler struct {
	dispatcher  *dispatch.Dispatcher
	limiter     *ratelimit.Limiter
	observer    ConnObserver
	activeConns atomic.Int32
}

func (h *handler) serve(clientIP, line string) string {
	if !h.limiter.Allow(clientIP) {
		if h.observer != nil {
			h.observer.RateLimited()
		}
		log.Warn().
			Str("event", "rate_limited").
			Str("client_ip", clientIP).
			Msg("request rejected by rate limiter")

		return message.Format(errorcodes.New(0, ErrRateLimited).Fields()...)
	}

	return h.dispatcher.Handle(dispatch.Request{
		ClientIP:    clientIP,
		RequestID:   uuid.NewString(),
		ActiveConns: int(h.activeConns.Load()),
	}, line)
}

func (h *handler) opened() {
	h.activeConns.Add(1)
	if h.observer != nil {
		h.observer.ConnectionOpened()
	}
}

func (h *handler) closed() {
	h.activeConns.Add(-1)
	if h.observer != nil {
		h.observer.ConnectionClosed()
	}
}
