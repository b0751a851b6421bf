package cp

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout reports that no byte arrived within the read timeout.
	// It is an expected outcome on an idle bus, not a fault.
	ErrTimeout = errors.New("cp: read timeout")

	// ErrDecode is the parent of every malformed-frame error.
	ErrDecode = errors.New("cp: decode error")
	// ErrUnexpectedControlCode reports a first body byte outside the receivable set.
	ErrUnexpectedControlCode = fmt.Errorf("%w: unexpected control code", ErrDecode)
	// ErrUnknownEscape reports a DLE followed by neither DLE nor ETX.
	ErrUnknownEscape = fmt.Errorf("%w: unknown escape sequence", ErrDecode)
	// ErrMissingControlCode reports a frame closed before its control code.
	ErrMissingControlCode = fmt.Errorf("%w: missing control code", ErrDecode)

	// ErrFrameRejected reports a NAK from the remote end.
	ErrFrameRejected = errors.New("cp: frame rejected by NAK")
	// ErrBusReset reports an out-of-band MDB bus reset.
	ErrBusReset = errors.New("cp: MDB bus reset")
	// ErrUnexpectedAck reports a handshake byte other than ACK after a send.
	ErrUnexpectedAck = errors.New("cp: unexpected acknowledgement byte")
	// ErrRetryExhausted reports that a retrying send gave up.
	ErrRetryExhausted = errors.New("cp: retries exhausted")
	// ErrShutdown reports that a shutdown interrupted the operation.
	ErrShutdown = errors.New("cp: shutdown requested")
)
