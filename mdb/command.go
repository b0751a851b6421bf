package mdb

import "fmt"

// MasterCommand is the first byte of a VMC to peripheral payload.
type MasterCommand byte

const (
	CmdReset     MasterCommand = 0x10
	CmdSetup     MasterCommand = 0x11
	CmdPoll      MasterCommand = 0x12
	CmdVend      MasterCommand = 0x13
	CmdReader    MasterCommand = 0x14
	CmdRevalue   MasterCommand = 0x15
	CmdExpansion MasterCommand = 0x17
)

func (c MasterCommand) String() string {
	switch c {
	case CmdReset:
		return "RESET"
	case CmdSetup:
		return "SETUP"
	case CmdPoll:
		return "POLL"
	case CmdVend:
		return "VEND"
	case CmdReader:
		return "READER"
	case CmdRevalue:
		return "REVALUE"
	case CmdExpansion:
		return "EXPANSION"
	default:
		return fmt.Sprintf("MASTER(0x%02X)", byte(c))
	}
}

// SETUP sub-commands.
const (
	SetupConfigData byte = 0x00
	SetupPriceRange byte = 0x01
)

// VEND sub-commands.
const (
	VendRequest         byte = 0x00
	VendCancel          byte = 0x01
	VendSuccess         byte = 0x02
	VendFailure         byte = 0x03
	VendSessionComplete byte = 0x04
)

// READER sub-commands.
const (
	ReaderDisable byte = 0x00
	ReaderEnable  byte = 0x01
	ReaderCancel  byte = 0x02
)

// REVALUE sub-commands.
const (
	RevalueRequest      byte = 0x00
	RevalueLimitRequest byte = 0x01
)

// EXPANSION sub-commands.
const (
	ExpansionRequestID byte = 0x00
)

// ReaderReply is the first byte of a peripheral to VMC payload.
type ReaderReply byte

const (
	ReplyJustReset            ReaderReply = 0x00
	ReplyConfigData           ReaderReply = 0x01
	ReplyDisplayRequest       ReaderReply = 0x02
	ReplyBeginSession         ReaderReply = 0x03
	ReplySessionCancelRequest ReaderReply = 0x04
	ReplyVendApproved         ReaderReply = 0x05
	ReplyVendDenied           ReaderReply = 0x06
	ReplyEndSession           ReaderReply = 0x07
	ReplyCancelled            ReaderReply = 0x08
	ReplyPeripheralID         ReaderReply = 0x09
	ReplyOutOfSequence        ReaderReply = 0x0B
	ReplyRevalueApproved      ReaderReply = 0x0D
	ReplyRevalueDenied        ReaderReply = 0x0E
	ReplyRevalueLimitAmount   ReaderReply = 0x0F
)

var readerReplyNames = map[ReaderReply]string{
	ReplyJustReset:            "JUST_RESET",
	ReplyConfigData:           "CONFIG_DATA",
	ReplyDisplayRequest:       "DISPLAY_REQUEST",
	ReplyBeginSession:         "BEGIN_SESSION",
	ReplySessionCancelRequest: "SESSION_CANCEL_REQUEST",
	ReplyVendApproved:         "VEND_APPROVED",
	ReplyVendDenied:           "VEND_DENIED",
	ReplyEndSession:           "END_SESSION",
	ReplyCancelled:            "CANCELLED",
	ReplyPeripheralID:         "PERIPHERAL_ID",
	ReplyOutOfSequence:        "OUT_OF_SEQUENCE",
	ReplyRevalueApproved:      "REVALUE_APPROVED",
	ReplyRevalueDenied:        "REVALUE_DENIED",
	ReplyRevalueLimitAmount:   "REVALUE_LIMIT_AMOUNT",
}

func (r ReaderReply) String() string {
	if name, ok := readerReplyNames[r]; ok {
		return name
	}

	return fmt.Sprintf("READER(0x%02X)", byte(r))
}
