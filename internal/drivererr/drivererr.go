// Package drivererr defines the error kinds shared across every component
// of the driver, so the job engine and the external client surface can
// branch on *what* failed without parsing strings.
package drivererr

import (
	"errors"
	"fmt"
)

// Kind is one of the eight error categories spec'd for this driver.
type Kind int

const (
	TransportLost Kind = iota
	Timeout
	DeviceRejected
	ProtocolViolation
	InvariantViolation
	Cancelled
	ImportMalformed
	CryptoFailure
)

func (k Kind) String() string {
	switch k {
	case TransportLost:
		return "transport_lost"
	case Timeout:
		return "timeout"
	case DeviceRejected:
		return "device_rejected"
	case ProtocolViolation:
		return "protocol_violation"
	case InvariantViolation:
		return "invariant_violation"
	case Cancelled:
		return "cancelled"
	case ImportMalformed:
		return "import_malformed"
	case CryptoFailure:
		return "crypto_failure"
	default:
		return "unknown"
	}
}

// Error wraps a Kind with a human message and optional structured context
// (command code, address, failed step index) carried by whichever field
// applies.
type Error struct {
	Kind    Kind
	Message string
	Command string
	Address uint16
	HasAddr bool
	Step    int
	HasStep bool
	Cause   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Command != "" {
		msg += fmt.Sprintf(" (command=%s)", e.Command)
	}
	if e.HasAddr {
		msg += fmt.Sprintf(" (address=%#04x)", e.Address)
	}
	if e.HasStep {
		msg += fmt.Sprintf(" (step=%d)", e.Step)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a plain Error of kind k.
func New(k Kind, msg string) *Error {
	return &Error{Kind: k, Message: msg}
}

// Wrap builds an Error of kind k around cause, preserving it for
// errors.Is/errors.As chains.
func Wrap(k Kind, cause error, msg string) *Error {
	return &Error{Kind: k, Message: msg, Cause: cause}
}

// WithCommand attaches the command name this error arose from.
func (e *Error) WithCommand(cmd string) *Error {
	e.Command = cmd
	return e
}

// WithAddress attaches the flash address this error arose from.
func (e *Error) WithAddress(addr uint16) *Error {
	e.Address = addr
	e.HasAddr = true
	return e
}

// WithStep attaches the failed job step index.
func (e *Error) WithStep(step int) *Error {
	e.Step = step
	e.HasStep = true
	return e
}

// KindOf reports the Kind of err if it is (or wraps) a *Error, and false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return 0, false
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, k Kind) bool {
	kind, ok := KindOf(err)
	return ok && kind == k
}
