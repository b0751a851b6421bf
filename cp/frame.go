package cp

import (
	"fmt"
	"time"
)

// CP framing and handshake bytes.
const (
	STX byte = 0x02 // start of frame
	ETX byte = 0x03 // end of frame, only meaningful after DLE
	ACK byte = 0x06 // correct reception
	DLE byte = 0x10 // escape
	NAK byte = 0x15 // incorrect reception
)

// ControlCode is the first body byte of a frame.
type ControlCode byte

const (
	Data              ControlCode = 0x00 // MDB payload
	StatusRequest     ControlCode = 0x10
	StatusInfo        ControlCode = 0x11
	AddressRegister   ControlCode = 0x12
	AddressUnregister ControlCode = 0x13
	MDBReset          ControlCode = 0x14 // out-of-band bus reset notification
	FlashUpdate       ControlCode = 0x15
	GSM               ControlCode = 0x16
	GSMStatusInfo     ControlCode = 0x17
	LED               ControlCode = 0x18
	MDBMode           ControlCode = 0x19
	TestModeFlags     ControlCode = 0x20
	SetSerialSpeed    ControlCode = 0x21
)

var controlCodeNames = map[ControlCode]string{
	Data:              "DATA",
	StatusRequest:     "STATUSREQUEST",
	StatusInfo:        "STATUSINFO",
	AddressRegister:   "ADDRESSREGISTER",
	AddressUnregister: "ADDRESSUNREGISTER",
	MDBReset:          "MDB_RESET",
	FlashUpdate:       "FLASH_UPDATE",
	GSM:               "GSM",
	GSMStatusInfo:     "GSM_STATUSINFO",
	LED:               "LED",
	MDBMode:           "MDB_MODE",
	TestModeFlags:     "TESTMODE_FLAGS",
	SetSerialSpeed:    "SET_SERIAL_SPEED",
}

func (c ControlCode) String() string {
	if name, ok := controlCodeNames[c]; ok {
		return name
	}

	return fmt.Sprintf("CP(0x%02X)", byte(c))
}

// Receivable reports whether the bridge may send frames with this code.
func (c ControlCode) Receivable() bool {
	switch c {
	case Data, StatusInfo, GSMStatusInfo, MDBReset:
		return true
	default:
		return false
	}
}

// Frame is a decoded CP frame.
type Frame struct {
	Code    ControlCode
	Payload []byte

	raw []byte
}

// Raw returns the frame bytes as they were read from the wire.
func (f *Frame) Raw() []byte { return f.raw }

// Message is an outbound frame waiting in the peripheral queue.
type Message struct {
	Code    ControlCode
	Payload []byte
}

// Encode builds the wire form of a frame, doubling every DLE in the control
// code and payload.
func Encode(code ControlCode, payload []byte) []byte {
	out := make([]byte, 0, len(payload)+6)
	out = append(out, STX)
	out = appendEscaped(out, byte(code))
	for _, b := range payload {
		out = appendEscaped(out, b)
	}

	return append(out, DLE, ETX)
}

func appendEscaped(dst []byte, b byte) []byte {
	if b == DLE {
		dst = append(dst, DLE)
	}

	return append(dst, b)
}

// SerialSpeed selects the bridge's host-side baud rate (SET_SERIAL_SPEED).
type SerialSpeed byte

const (
	Speed115200 SerialSpeed = 0
	Speed57600  SerialSpeed = 1
	Speed38400  SerialSpeed = 2
	Speed19200  SerialSpeed = 3
	Speed9600   SerialSpeed = 4
)

// Baud returns the baud rate, or 0 for an unknown speed.
func (s SerialSpeed) Baud() int {
	switch s {
	case Speed115200:
		return 115200
	case Speed57600:
		return 57600
	case Speed38400:
		return 38400
	case Speed19200:
		return 19200
	case Speed9600:
		return 9600
	default:
		return 0
	}
}

// SpeedForBaud maps a baud rate to its SerialSpeed.
func SpeedForBaud(baud int) (SerialSpeed, error) {
	for s := Speed115200; s <= Speed9600; s++ {
		if s.Baud() == baud {
			return s, nil
		}
	}

	return 0, fmt.Errorf("cp: unsupported baud rate %d", baud)
}

// BusMode is the MDB role the bridge plays (MDB_MODE).
type BusMode byte

const (
	ModeSlave  BusMode = 0x00
	ModeMaster BusMode = 0x01
)

func (m BusMode) String() string {
	switch m {
	case ModeSlave:
		return "slave"
	case ModeMaster:
		return "master"
	default:
		return fmt.Sprintf("mode(0x%02X)", byte(m))
	}
}

// TestMode is the bridge test mode bitmask (TESTMODE_FLAGS).
type TestMode byte

const (
	TestModeNone               TestMode = 0
	TestModeWeakACK            TestMode = 1
	TestModeIgnoreVendApproved TestMode = 2
)

// BridgeStatus is the decoded payload of a STATUSINFO frame.
type BridgeStatus struct {
	Version  string
	BusReady bool
	Mode     BusMode
	Received time.Time
}

// ParseStatus decodes a STATUSINFO payload: version major, version minor,
// bus ready flag, bus mode.
func ParseStatus(payload []byte) (BridgeStatus, error) {
	if len(payload) < 4 {
		return BridgeStatus{}, fmt.Errorf("%w: status info needs 4 bytes, got %d", ErrDecode, len(payload))
	}

	return BridgeStatus{
		Version:  fmt.Sprintf("%X.%X", payload[0], payload[1]),
		BusReady: payload[2] == 0x01,
		Mode:     BusMode(payload[3]),
		Received: time.Now(),
	}, nil
}
