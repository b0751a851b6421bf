package mdb

import "fmt"

var subCommandNames = map[MasterCommand]map[byte]string{
	CmdVend: {
		VendRequest:         "VEND Request",
		VendCancel:          "VEND Cancel",
		VendSuccess:         "VEND Success",
		VendFailure:         "VEND Failure",
		VendSessionComplete: "VEND Session Complete",
	},
	CmdSetup: {
		SetupConfigData: "SETUP Config Data",
		SetupPriceRange: "SETUP Max/Min Prices",
	},
	CmdRevalue: {
		RevalueRequest:      "REVALUE Request",
		RevalueLimitRequest: "REVALUE Limit Request",
	},
	CmdReader: {
		ReaderDisable: "READER Disable",
		ReaderEnable:  "READER Enable",
		ReaderCancel:  "READER Cancel",
	},
	CmdExpansion: {
		ExpansionRequestID: "EXPANSION Request ID",
	},
}

// MasterName names a VMC command payload, including its sub-command when known.
func MasterName(payload []byte) string {
	if len(payload) == 0 {
		return "<none>"
	}

	cmd := MasterCommand(payload[0])
	if len(payload) > 1 {
		if name, ok := subCommandNames[cmd][payload[1]]; ok {
			return name
		}
	}

	return cmd.String()
}

// ReaderName names a peripheral reply payload. An empty payload is the plain
// ACK answer.
func ReaderName(payload []byte) string {
	if len(payload) == 0 {
		return "ACK"
	}

	return ReaderReply(payload[0]).String()
}

// Hex renders bytes as upper-case pairs separated by spaces, e.g. "02 00 12 10 03".
func Hex(data []byte) string {
	return fmt.Sprintf("% X", data)
}

// MasterTrace renders a VMC payload as "hex (name)".
func MasterTrace(payload []byte) string {
	return fmt.Sprintf("%s (%s)", Hex(payload), MasterName(payload))
}

// ReaderTrace renders a reader payload as "hex (name)".
func ReaderTrace(payload []byte) string {
	return fmt.Sprintf("%s (%s)", Hex(payload), ReaderName(payload))
}
