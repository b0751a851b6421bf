package mdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMasterName(t *testing.T) {
	tests := []struct {
		payload []byte
		want    string
	}{
		{nil, "<none>"},
		{[]byte{0x10}, "RESET"},
		{[]byte{0x12}, "POLL"},
		{[]byte{0x11, 0x00, 0x02, 0x02, 0x02, 0x00}, "SETUP Config Data"},
		{[]byte{0x11, 0x01, 0xFF, 0xFF, 0x00, 0x00}, "SETUP Max/Min Prices"},
		{[]byte{0x13, 0x00, 0x00, 0x64, 0x00, 0x01}, "VEND Request"},
		{[]byte{0x13, 0x01}, "VEND Cancel"},
		{[]byte{0x13, 0x02, 0x00, 0x01}, "VEND Success"},
		{[]byte{0x13, 0x03}, "VEND Failure"},
		{[]byte{0x13, 0x04}, "VEND Session Complete"},
		{[]byte{0x13, 0x09}, "VEND"},
		{[]byte{0x14, 0x00}, "READER Disable"},
		{[]byte{0x14, 0x01}, "READER Enable"},
		{[]byte{0x14, 0x02}, "READER Cancel"},
		{[]byte{0x15, 0x01}, "REVALUE Limit Request"},
		{[]byte{0x17, 0x00}, "EXPANSION Request ID"},
		{[]byte{0x42}, "MASTER(0x42)"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, MasterName(tt.payload), "payload % X", tt.payload)
	}
}

func TestReaderName(t *testing.T) {
	assert.Equal(t, "ACK", ReaderName(nil))
	assert.Equal(t, "JUST_RESET", ReaderName([]byte{0x00}))
	assert.Equal(t, "CONFIG_DATA", ReaderName(ConfigData(DefaultCapabilities())))
	assert.Equal(t, "BEGIN_SESSION", ReaderName(BeginSession(500)))
	assert.Equal(t, "VEND_DENIED", ReaderName(VendDenied()))
	assert.Equal(t, "REVALUE_LIMIT_AMOUNT", ReaderName(RevalueLimit()))
	assert.Equal(t, "READER(0x0C)", ReaderName([]byte{0x0C}))
}

func TestTraceMessages(t *testing.T) {
	assert.Equal(t, "02 00 12 10 03", Hex([]byte{0x02, 0x00, 0x12, 0x10, 0x03}))
	assert.Equal(t, "13 00 00 64 00 01 (VEND Request)", MasterTrace([]byte{0x13, 0x00, 0x00, 0x64, 0x00, 0x01}))
	assert.Equal(t, "05 00 64 (VEND_APPROVED)", ReaderTrace(VendApproved([2]byte{0x00, 0x64})))
	assert.Equal(t, " (ACK)", ReaderTrace(nil))
}
