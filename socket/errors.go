package socket

import "errors"

// Error taxonomy: transient conditions a caller is expected to retry,
// protocol violations that indicate caller misuse, and fatal conditions
// that mean the socket is no longer usable.
var (
	// Transient.
	ErrWouldBlock  = errors.New("socket: would block")
	ErrInterrupted = errors.New("socket: interrupted")

	// Protocol.
	ErrFSM             = errors.New("socket: operation not valid in current state")
	ErrHostUnreachable = errors.New("socket: host unreachable")
	ErrFault           = errors.New("socket: protocol fault")

	// Fatal.
	ErrTerm      = errors.New("socket: terminated")
	ErrNotSocket = errors.New("socket: not a socket")
	ErrNoSupport = errors.New("socket: operation not supported")
)
