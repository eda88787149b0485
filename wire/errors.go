package wire

import "errors"

var (
	ErrClosed     = errors.New("wire: channel closed")
	ErrEmpty      = errors.New("wire: empty frame")
	ErrWouldBlock = errors.New("wire: would block")
)
