// Package cp implements the control protocol (CP) spoken between a host and an
// MDB to serial bridge.
//
// # Wire format
//
// Every frame is
//
//	STX(0x02) control-code payload... DLE(0x10) ETX(0x03)
//
// A DLE inside the control code or payload is doubled. STX and ETX are never
// escaped; they only act as delimiters at the top level of the receiver. The
// receiver answers a correct frame with ACK (0x06) or rejects it with NAK
// (0x15). Between frames the receiver treats ACK and NAK as status bytes for
// the frame it sent last.
//
// # Peripheral mode
//
// An MDB peripheral may only speak when addressed. In peripheral mode the
// Driver therefore queues outbound DATA frames and transmits exactly one of
// them right after acknowledging the next inbound frame. In master mode frames
// are written immediately.
//
// # Bus reset
//
// The bridge reports an MDB bus reset with an out-of-band MDB_RESET frame.
// Driver.ReadFrame acknowledges it like any other frame and then reports
// ErrBusReset, so the application can reinitialize on its next poll.
package cp
