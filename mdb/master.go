package mdb

import (
	"encoding/binary"
	"strings"
)

// Builders for the VMC side of the bus, used when driving a reader in master mode.

// ResetCmd returns the RESET command.
func ResetCmd() []byte { return []byte{byte(CmdReset)} }

// PollCmd returns the POLL command.
func PollCmd() []byte { return []byte{byte(CmdPoll)} }

// SetupConfigCmd announces the VMC feature level and display geometry.
func SetupConfigCmd(featureLevel, columns, rows, displayInfo byte) []byte {
	return []byte{byte(CmdSetup), SetupConfigData, featureLevel, columns, rows, displayInfo}
}

// SetupPriceRangeCmd announces the maximum and minimum prices (scaled).
func SetupPriceRangeCmd(maxPrice, minPrice uint16) []byte {
	return []byte{
		byte(CmdSetup), SetupPriceRange,
		byte(maxPrice >> 8), byte(maxPrice),
		byte(minPrice >> 8), byte(minPrice),
	}
}

// ReaderEnableCmd enables the reader.
func ReaderEnableCmd() []byte { return []byte{byte(CmdReader), ReaderEnable} }

// ReaderDisableCmd disables the reader.
func ReaderDisableCmd() []byte { return []byte{byte(CmdReader), ReaderDisable} }

// ReaderCancelCmd aborts the reader activity.
func ReaderCancelCmd() []byte { return []byte{byte(CmdReader), ReaderCancel} }

// VendRequestCmd asks for approval of a vend of the scaled amount for item.
func VendRequestCmd(amount [2]byte, item uint16) []byte {
	return []byte{byte(CmdVend), VendRequest, amount[0], amount[1], byte(item >> 8), byte(item)}
}

// VendCancelCmd withdraws a pending VEND Request.
func VendCancelCmd() []byte { return []byte{byte(CmdVend), VendCancel} }

// VendSuccessCmd reports that item was dispensed.
func VendSuccessCmd(item uint16) []byte {
	return []byte{byte(CmdVend), VendSuccess, byte(item >> 8), byte(item)}
}

// VendFailureCmd reports that the approved vend could not be dispensed.
func VendFailureCmd() []byte { return []byte{byte(CmdVend), VendFailure} }

// SessionCompleteCmd tells the reader the VMC is done with the session.
func SessionCompleteCmd() []byte { return []byte{byte(CmdVend), VendSessionComplete} }

// RevalueLimitRequestCmd asks for the maximum revalue amount.
func RevalueLimitRequestCmd() []byte { return []byte{byte(CmdRevalue), RevalueLimitRequest} }

// ExpansionRequestIDCmd sends the VMC identity and asks for the peripheral's.
func ExpansionRequestIDCmd(id PeripheralIdentity) []byte {
	out := make([]byte, 0, 2+manufacturerLen+serialLen+modelLen+2)
	out = append(out, byte(CmdExpansion), ExpansionRequestID)
	out = appendPadded(out, id.Manufacturer, manufacturerLen)
	out = appendPadded(out, id.SerialNumber, serialLen)
	out = appendPadded(out, id.ModelNumber, modelLen)
	out = append(out, byte(id.SoftwareVersion>>8), byte(id.SoftwareVersion))

	return out
}

// MasterSetup holds the diagnostic fields of a SETUP/Config Data payload.
// Fields missing from a short payload are left zero and their Has flag false.
type MasterSetup struct {
	FeatureLevel   byte
	Columns        byte
	Rows           byte
	DisplayInfo    byte
	HasLevel       bool
	HasColumns     bool
	HasRows        bool
	HasDisplayInfo bool
}

// ParseSetup extracts the VMC feature level and display geometry.
func ParseSetup(payload []byte) MasterSetup {
	var s MasterSetup
	if len(payload) > 2 {
		s.FeatureLevel, s.HasLevel = payload[2], true
	}
	if len(payload) > 3 {
		s.Columns, s.HasColumns = payload[3], true
	}
	if len(payload) > 4 {
		s.Rows, s.HasRows = payload[4], true
	}
	if len(payload) > 5 {
		s.DisplayInfo, s.HasDisplayInfo = payload[5], true
	}

	return s
}

// ParseIdentity extracts the VMC identity from an EXPANSION/Request ID payload.
// Each field is decoded only when the payload is long enough to hold it.
func ParseIdentity(payload []byte) PeripheralIdentity {
	var id PeripheralIdentity

	const (
		mfrStart    = 2
		serialStart = mfrStart + manufacturerLen
		modelStart  = serialStart + serialLen
		verStart    = modelStart + modelLen
	)

	if len(payload) >= serialStart {
		id.Manufacturer = strings.TrimRight(string(payload[mfrStart:serialStart]), " \x00")
	}
	if len(payload) >= modelStart {
		id.SerialNumber = strings.TrimRight(string(payload[serialStart:modelStart]), " \x00")
	}
	if len(payload) >= verStart {
		id.ModelNumber = strings.TrimRight(string(payload[modelStart:verStart]), " \x00")
	}
	if len(payload) >= verStart+2 {
		id.SoftwareVersion = binary.BigEndian.Uint16(payload[verStart : verStart+2])
	}

	return id
}
