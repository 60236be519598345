package exchange

import (
	"errors"
	"fmt"

	"github.com/uptime-industries/ota-agent/pkg/mcuproto"
)

var (
	// ErrTransport indicates the link itself failed.
	ErrTransport = errors.New("transport failure")
	// ErrProtocol indicates a malformed or unexpected response.
	ErrProtocol = errors.New("protocol failure")
	// ErrDeviceRejected indicates a well formed negative acknowledgement.
	ErrDeviceRejected = errors.New("device rejected request")
)

// StatusError carries the status byte of a negative acknowledgement.
type StatusError struct {
	Operation string
	Command   mcuproto.Command
	Status    uint8
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s (command %s, status 0x%02x)", e.Operation, ErrDeviceRejected, e.Command, e.Status)
}

// Is matches ErrDeviceRejected.
func (e *StatusError) Is(target error) bool {
	return target == ErrDeviceRejected
}

// Rejected returns a StatusError for the given negative acknowledgement.
func Rejected(operation string, cmd mcuproto.Command, status uint8) error {
	return &StatusError{Operation: operation, Command: cmd, Status: status}
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string {
	return p.err.Error()
}

func (p *permanentError) Unwrap() error {
	return p.err
}

// Permanent marks err as not worth retrying. RetryOperation returns the
// wrapped error immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}
