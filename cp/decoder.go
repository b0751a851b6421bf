package cp

import (
	"errors"
	"fmt"
	"io"
)

type decodeState int

const (
	stateIdle   decodeState = iota // between frames; status bytes are consumed here
	stateBody                      // after STX
	stateEscape                    // after DLE inside a body
)

// Decoder reads CP frames from a byte source.
//
// A Decoder keeps no state across ReadFrame calls: every call starts idle and
// returns after one frame, one rejection, or one error. It is not safe for
// concurrent use.
type Decoder struct {
	src io.ByteReader

	// onStatus is called with each ACK seen between frames. It may be nil.
	onStatus func(b byte)
}

// NewDecoder returns a Decoder reading from src.
//
// src must report a read timeout as an error matching ErrTimeout.
func NewDecoder(src io.ByteReader, onStatus func(b byte)) *Decoder {
	return &Decoder{src: src, onStatus: onStatus}
}

// ReadFrame reads bytes until a complete frame is decoded.
//
// While idle, ACK bytes are passed to the status callback, NAK returns
// ErrFrameRejected, STX opens a frame and any other byte is skipped.
//
// A frame carrying MDB_RESET is returned together with ErrBusReset. Errors
// matching ErrDecode leave the decoder idle, so the next call resynchronizes
// on the next STX.
func (d *Decoder) ReadFrame() (*Frame, error) {
	var (
		state   = stateIdle
		frame   *Frame
		hasCode bool
	)

	for {
		b, err := d.src.ReadByte()
		if err != nil {
			if frame != nil && errors.Is(err, ErrTimeout) {
				return nil, fmt.Errorf("%w: partial frame % X", ErrTimeout, frame.raw)
			}

			return nil, err
		}

		if frame != nil {
			frame.raw = append(frame.raw, b)
		}

		switch state {
		case stateIdle:
			switch b {
			case STX:
				frame = &Frame{Payload: make([]byte, 0, 16), raw: []byte{STX}}
				hasCode = false
				state = stateBody
			case ACK:
				if d.onStatus != nil {
					d.onStatus(b)
				}
			case NAK:
				return nil, ErrFrameRejected
			}

		case stateBody:
			if b == DLE {
				state = stateEscape
				continue
			}

			if !hasCode {
				if err := d.setCode(frame, b); err != nil {
					return nil, err
				}
				hasCode = true

				continue
			}
			frame.Payload = append(frame.Payload, b)

		case stateEscape:
			switch b {
			case DLE:
				state = stateBody
				if !hasCode {
					if err := d.setCode(frame, DLE); err != nil {
						return nil, err
					}
					hasCode = true

					continue
				}
				frame.Payload = append(frame.Payload, DLE)

			case ETX:
				if !hasCode {
					return nil, fmt.Errorf("%w: % X", ErrMissingControlCode, frame.raw)
				}
				if frame.Code == MDBReset {
					return frame, ErrBusReset
				}

				return frame, nil

			default:
				return nil, fmt.Errorf("%w: DLE followed by 0x%02X", ErrUnknownEscape, b)
			}
		}
	}
}

func (d *Decoder) setCode(frame *Frame, b byte) error {
	code := ControlCode(b)
	if !code.Receivable() {
		return fmt.Errorf("%w: 0x%02X", ErrUnexpectedControlCode, b)
	}
	frame.Code = code

	return nil
}
