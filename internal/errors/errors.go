// Package errors defines the error taxonomy of the compiler bridge and the
// helpers used to classify errors.
//
// # Error Types
//
// Sentinel errors name the conditions the bridge handles locally:
//   - ErrTransportNotReady: a send was attempted while the socket was not open
//     and every retry was exhausted
//   - ErrUnknownCorrelationID: a reply referenced an id with no registered callback
//   - ErrPayloadRead: the source of an add-file job could not be read
//   - ErrSubprocessCrash: the compiler process exited or reported a failure
//   - ErrDecode: an inbound message could not be decoded
//   - ErrSessionClosed: the session was torn down before a reply arrived
//
// Structured errors wrap a sentinel with context:
//   - TransportError: transport operation, address and attempt count
//   - JobError: job id and kind
//   - SessionError: session id
//
// # Usage
//
//	err := errors.NewTransportError("send", errors.ErrTransportNotReady).WithAttempts(4)
//
//	if errors.Is(err, errors.ErrTransportNotReady) { ... }
//
//	var te *errors.TransportError
//	if errors.As(err, &te) {
//	    log.Warn("send failed", "attempts", te.Attempts)
//	}
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions so callers only import this package.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Transport and protocol sentinel errors
var (
	// ErrTransportNotReady indicates the socket stayed closed through every send retry.
	ErrTransportNotReady = New("transport not ready")
	// ErrTransportClosed indicates the transport was closed while an operation was running.
	ErrTransportClosed = New("transport closed")
	// ErrDecode indicates an inbound message could not be decoded.
	ErrDecode = New("decode failure")
	// ErrUnknownCorrelationID indicates a reply referenced an id nobody is waiting for.
	ErrUnknownCorrelationID = New("unknown correlation id")
)

// Job sentinel errors
var (
	// ErrInvalidKind indicates a job kind outside the known request set.
	ErrInvalidKind = New("invalid job kind")
	// ErrPayloadRead indicates the file content for an add-file job could not be read.
	ErrPayloadRead = New("payload read failure")
	// ErrInvalidPayload indicates a payload that is not a JSON object.
	ErrInvalidPayload = New("invalid payload")
)

// Session sentinel errors
var (
	// ErrSubprocessCrash indicates the compiler process exited or failed.
	ErrSubprocessCrash = New("compiler process crashed")
	// ErrSessionClosed indicates the session ended before a reply arrived.
	ErrSessionClosed = New("session closed")
	// ErrSessionActive indicates an operation that requires no running session.
	ErrSessionActive = New("session already active")
	// ErrNotStarted indicates an operation that requires a running session.
	ErrNotStarted = New("session not started")
	// ErrReadyTimeout indicates the compiler never announced its endpoint.
	ErrReadyTimeout = New("compiler did not become ready")
)

// -----------------------------------------------------------------------------
// Base Error
// -----------------------------------------------------------------------------

// BridgeError is implemented by every structured error in this package.
type BridgeError interface {
	error
	Unwrap() error
	Severity() Severity
	IsRetryable() bool
}

type baseError struct {
	message   string
	cause     error
	severity  Severity
	retryable bool
}

func (e *baseError) Unwrap() error       { return e.cause }
func (e *baseError) Severity() Severity  { return e.severity }
func (e *baseError) IsRetryable() bool   { return e.retryable }
func (e *baseError) describe() string    { return e.message }
func (e *baseError) causeSuffix() string { return suffix(e.cause) }

func suffix(cause error) string {
	if cause == nil {
		return ""
	}
	return ": " + cause.Error()
}

func format(prefix string, parts []string, message, tail string) string {
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
	}
	if message == "" {
		return prefix + tail
	}
	return prefix + ": " + message + tail
}

// -----------------------------------------------------------------------------
// TransportError
// -----------------------------------------------------------------------------

// TransportError describes a failed transport operation.
//
// Example:
//
//	err := errors.NewTransportError("send", errors.ErrTransportNotReady).
//	    WithAddress("ws://localhost:8888").WithAttempts(4)
//	fmt.Println(err) // "transport error [op=send, address=ws://localhost:8888, attempts=4]: transport not ready"
type TransportError struct {
	baseError
	Op       string
	Address  string
	Attempts int
}

// NewTransportError creates a TransportError for op wrapping cause.
func NewTransportError(op string, cause error) *TransportError {
	return &TransportError{
		baseError: baseError{cause: cause, severity: SeverityWarning, retryable: true},
		Op:        op,
	}
}

// WithAddress records the socket address.
func (e *TransportError) WithAddress(addr string) *TransportError {
	e.Address = addr
	return e
}

// WithAttempts records how many times the operation was tried.
func (e *TransportError) WithAttempts(n int) *TransportError {
	e.Attempts = n
	return e
}

// Error returns the formatted error message.
func (e *TransportError) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, "op="+e.Op)
	}
	if e.Address != "" {
		parts = append(parts, "address="+e.Address)
	}
	if e.Attempts > 0 {
		parts = append(parts, fmt.Sprintf("attempts=%d", e.Attempts))
	}
	if e.cause == nil {
		return format("transport error", parts, e.describe(), "")
	}
	return format("transport error", parts, e.cause.Error(), "")
}

// -----------------------------------------------------------------------------
// JobError
// -----------------------------------------------------------------------------

// JobError ties a failure to the job that caused it.
type JobError struct {
	baseError
	JobID string
	Kind  string
}

// NewJobError creates a JobError.
func NewJobError(message string, cause error) *JobError {
	return &JobError{
		baseError: baseError{message: message, cause: cause, severity: SeverityError},
	}
}

// WithJob records the job id and kind.
func (e *JobError) WithJob(id, kind string) *JobError {
	e.JobID = id
	e.Kind = kind
	return e
}

// Error returns the formatted error message.
func (e *JobError) Error() string {
	var parts []string
	if e.JobID != "" {
		parts = append(parts, "job="+e.JobID)
	}
	if e.Kind != "" {
		parts = append(parts, "kind="+e.Kind)
	}
	return format("job error", parts, e.describe(), e.causeSuffix())
}

// -----------------------------------------------------------------------------
// SessionError
// -----------------------------------------------------------------------------

// SessionError describes a session lifecycle failure.
type SessionError struct {
	baseError
	SessionID string
}

// NewSessionError creates a SessionError.
func NewSessionError(message string, cause error) *SessionError {
	return &SessionError{
		baseError: baseError{message: message, cause: cause, severity: SeverityError},
	}
}

// WithSessionID records the session id.
func (e *SessionError) WithSessionID(id string) *SessionError {
	e.SessionID = id
	return e
}

// WithSeverity overrides the default severity.
func (e *SessionError) WithSeverity(s Severity) *SessionError {
	e.severity = s
	return e
}

// WithRetryable marks the error as retryable (a restart may fix it).
func (e *SessionError) WithRetryable(r bool) *SessionError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *SessionError) Error() string {
	var parts []string
	if e.SessionID != "" {
		parts = append(parts, "session="+e.SessionID)
	}
	return format("session error", parts, e.describe(), e.causeSuffix())
}

// -----------------------------------------------------------------------------
// Classification
// -----------------------------------------------------------------------------

// IsRetryable reports whether err is transient. Structured errors answer for
// themselves; bare ErrTransportNotReady and ErrSubprocessCrash are retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var be BridgeError
	if As(err, &be) {
		return be.IsRetryable()
	}
	return Is(err, ErrTransportNotReady) || Is(err, ErrSubprocessCrash)
}

// GetSeverity returns the severity of err, SeverityError for unknown errors.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var be BridgeError
	if As(err, &be) {
		return be.Severity()
	}
	if Is(err, ErrUnknownCorrelationID) {
		return SeverityDebug
	}
	return SeverityError
}

// Wrap wraps err with a context message. Returns nil for a nil err.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps err with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
