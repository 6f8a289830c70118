package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger initializes the zerolog logger with the specified debug mode and output format.
func InitLogger(debug, human bool) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	base := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if human {
		log.Logger = base.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339Nano,
		})
	} else {
		log.Logger = base
	}
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// LogRequest logs a received command. trace must already be redacted.
func LogRequest(clientIP, requestID, command, trace string, activeConns int) {
	log.Info().
		Str("event", "request_received").
		Str("client_ip", clientIP).
		Str("request_id", requestID).
		Str("command", command).
		Str("trace", trace).
		Int("active_connections", activeConns).
		Msg("received command")
}

// LogResponse logs a sent response. errorCode is empty on success.
func LogResponse(
	clientIP string,
	requestID string,
	command string,
	responseCode string,
	errorCode string,
	elapsed time.Duration,
	activeConns int,
) {
	log.Info().
		Str("event", "response_sent").
		Str("client_ip", clientIP).
		Str("request_id", requestID).
		Str("command", command).
		Str("response_command", responseCode).
		Str("error_code", errorCode).
		Dur("elapsed", elapsed).
		Int("active_connections", activeConns).
		Msg("sent response")
}

// LogUnknownCommand logs a command code with no registered handler.
func LogUnknownCommand(clientIP, requestID, command string) {
	log.Warn().
		Str("event", "unknown_command").
		Str("client_ip", clientIP).
		Str("request_id", requestID).
		Str("command", command).
		Msg("unknown command code")
}

// LogCommandError logs a handler failure with the field it was attributed to.
func LogCommandError(clientIP, requestID, command string, field int, err error) {
	log.Error().
		Str("event", "command_error").
		Str("client_ip", clientIP).
		Str("request_id", requestID).
		Str("command", command).
		Int("field", field).
		Err(err).
		Msg("command failed")
}
