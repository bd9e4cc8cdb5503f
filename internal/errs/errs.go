// Package errs defines the error taxonomy shared across the bridge.
//
// Components never let a raw error cross a task boundary as a propagated
// failure; they convert it to one of these sentinels (via errors.Is) and a
// log record, then continue. Only ConfigError at startup and an explicit
// Bug escalation terminate the process.
package errs

import "errors"

var (
	// ErrConfig is fatal at startup: printed, process exits 1.
	ErrConfig = errors.New("configuration error")

	// ErrTransientLink covers panel connect/read/write/TLS failures.
	// Logged at WARN, triggers PanelLink reconnect backoff.
	ErrTransientLink = errors.New("transient panel link error")

	// ErrProtocol covers a malformed frame or an unrecognized tag.
	// Logged at WARN, the offending frame is discarded, the link stays up.
	ErrProtocol = errors.New("panel protocol error")

	// ErrBadCode is returned when a supplied user code doesn't match policy.
	ErrBadCode = errors.New("user code rejected")

	// ErrBadCodeFormat is returned when a code is neither 4 nor 6 digits.
	ErrBadCodeFormat = errors.New("user code must be 4 or 6 digits")

	// ErrBadSessionToken is returned when a control command's session
	// token doesn't match the one issued at startup.
	ErrBadSessionToken = errors.New("invalid session token")

	// ErrMqttTransient covers a publish/subscribe failure expected to
	// clear on reconnect.
	ErrMqttTransient = errors.New("transient mqtt error")

	// ErrBug marks an invariant violation (e.g. a partition id referenced
	// by an event but absent from the known set). Logged at ERROR; unlike
	// every other sentinel here, a child returning ErrBug escalates the
	// whole supervisor group rather than being restarted alone.
	ErrBug = errors.New("internal invariant violation")
)
