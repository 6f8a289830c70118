// Package dispatch turns request lines into response lines: parse, look up
// the handler, execute against the current snapshot and format the result.
package dispatch

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andrei-cloud/go_atalla/internal/errorcodes"
	"github.com/andrei-cloud/go_atalla/internal/hsm"
	"github.com/andrei-cloud/go_atalla/internal/logging"
	"github.com/andrei-cloud/go_atalla/internal/message"
)

// Command outcomes reported to the Observer.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeUnknown = "unknown"
	OutcomeInvalid = "invalid"
)

// ErrUnknownCommand is the cause logged for codes with no handler.
var ErrUnknownCommand = errors.New("unknown command code")

// Observer receives one callback per handled line.
type Observer interface {
	ObserveCommand(code, outcome string, elapsed time.Duration)
}

// Request carries connection metadata used for logging.
type Request struct {
	ClientIP    string
	RequestID   string
	ActiveConns int
}

// Dispatcher executes request lines. It is safe for concurrent use.
type Dispatcher struct {
	hsm      *hsm.HSM
	registry *Registry
	observer Observer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithObserver sets the command observer.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// New creates a dispatcher over h. A nil registry means DefaultRegistry.
func New(h *hsm.HSM, registry *Registry, opts ...Option) *Dispatcher {
	if registry == nil {
		registry = DefaultRegistry()
	}
	d := &Dispatcher{hsm: h, registry: registry}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Registry returns the command registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Handle processes one request line and always returns a response line.
// Unknown codes, handler errors and panics all produce the generic error shape.
func (d *Dispatcher) Handle(req Request, line string) string {
	start := time.Now()

	cmd, err := message.Parse(line)
	if err != nil {
		ce := errorcodes.New(0, err)
		logging.LogCommandError(req.ClientIP, req.RequestID, "", 0, err)
		d.observe("", OutcomeInvalid, start)

		return message.Format(ce.Fields()...)
	}
	logging.LogRequest(req.ClientIP, req.RequestID, cmd.Code, cmd.Trace(), req.ActiveConns)

	info, ok := d.registry.Get(cmd.Code)
	if !ok {
		logging.LogUnknownCommand(req.ClientIP, req.RequestID, cmd.Code)
		d.observe(cmd.Code, OutcomeUnknown, start)

		ce := errorcodes.New(0, ErrUnknownCommand)

		return d.respond(req, cmd.Code, ce.Fields(), ce.Code(), start)
	}

	// The snapshot is loaded once so a rotation mid-command cannot mix keys.
	fields, err := d.execute(info, d.hsm.Snapshot(), cmd)
	if err != nil {
		ce := errorcodes.From(err)
		logging.LogCommandError(req.ClientIP, req.RequestID, cmd.Code, ce.Field, ce.Cause)
		d.observe(cmd.Code, OutcomeError, start)

		return d.respond(req, cmd.Code, ce.Fields(), ce.Code(), start)
	}
	d.observe(cmd.Code, OutcomeOK, start)

	return d.respond(req, cmd.Code, fields, "", start)
}

func (d *Dispatcher) execute(info *CommandInfo, snap *hsm.Snapshot, cmd *message.Command) (fields []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("command", cmd.Code).
				Interface("panic", r).
				Msg("handler panicked")
			fields, err = nil, errorcodes.New(0, fmt.Errorf("handler panic: %v", r))
		}
	}()

	return info.Handler(snap, cmd)
}

func (d *Dispatcher) respond(req Request, code string, fields []string, errorCode string, start time.Time) string {
	var responseCode string
	if len(fields) > 0 {
		responseCode = fields[0]
	}
	logging.LogResponse(req.ClientIP, req.RequestID, code, responseCode, errorCode, time.Since(start), req.ActiveConns)

	return message.Format(fields...)
}

func (d *Dispatcher) observe(code, outcome string, start time.Time) {
	if d.observer != nil {
		d.observer.ObserveCommand(code, outcome, time.Since(start))
	}
}
