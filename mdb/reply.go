package mdb

// Capabilities is the reader configuration advertised in CONFIG_DATA.
type Capabilities struct {
	FeatureLevel    byte
	CurrencyCode    uint16
	ScaleFactor     byte
	DecimalPlaces   byte
	MaxResponseTime byte // seconds
	Options         byte
}

// DefaultCapabilities is a level 1 reader with scale factor 1, two decimal
// places and a ten second response time.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		FeatureLevel:    0x01,
		CurrencyCode:    0x0001,
		ScaleFactor:     0x01,
		DecimalPlaces:   0x02,
		MaxResponseTime: 0x0A,
		Options:         0x00,
	}
}

// Scaler returns the AmountScaler matching the advertised scale and decimals.
func (c Capabilities) Scaler() (AmountScaler, error) {
	return NewAmountScaler(int(c.ScaleFactor), int(c.DecimalPlaces))
}

// PeripheralIdentity is the reader identity advertised in PERIPHERAL_ID.
// Text fields are space padded or truncated to their bus widths.
type PeripheralIdentity struct {
	Manufacturer    string // 3 characters
	SerialNumber    string // 12 characters
	ModelNumber     string // 12 characters
	SoftwareVersion uint16 // BCD
}

// DefaultPeripheralIdentity returns the identity reported when none is configured.
func DefaultPeripheralIdentity() PeripheralIdentity {
	return PeripheralIdentity{
		Manufacturer:    "ABX",
		ModelNumber:     "A3",
		SoftwareVersion: 0x1531,
	}
}

const (
	manufacturerLen = 3
	serialLen       = 12
	modelLen        = 12
)

// JustReset is the unsolicited announcement after a reset.
func JustReset() []byte {
	return []byte{byte(ReplyJustReset)}
}

// ConfigData answers SETUP/Config Data.
func ConfigData(c Capabilities) []byte {
	return []byte{
		byte(ReplyConfigData),
		c.FeatureLevel,
		byte(c.CurrencyCode >> 8), byte(c.CurrencyCode),
		c.ScaleFactor,
		c.DecimalPlaces,
		c.MaxResponseTime,
		c.Options,
	}
}

// BeginSession opens a session with the given funds available (scaled).
func BeginSession(funds uint16) []byte {
	return []byte{
		byte(ReplyBeginSession),
		byte(funds >> 8), byte(funds),
		0xFF, 0xFF, 0xFF, 0xFF, // payment media id: unknown
		0x00,       // payment type
		0x00, 0x00, // payment data
	}
}

// VendApproved approves a vend for the scaled amount.
func VendApproved(amount [2]byte) []byte {
	return []byte{byte(ReplyVendApproved), amount[0], amount[1]}
}

// VendDenied denies the pending vend.
func VendDenied() []byte {
	return []byte{byte(ReplyVendDenied)}
}

// EndSession closes the session after VEND/Session Complete.
func EndSession() []byte {
	return []byte{byte(ReplyEndSession)}
}

// Cancelled acknowledges a READER/Cancel or VEND/Cancel.
func Cancelled() []byte {
	return []byte{byte(ReplyCancelled)}
}

// PeripheralID answers EXPANSION/Request ID.
func PeripheralID(id PeripheralIdentity) []byte {
	out := make([]byte, 0, 1+manufacturerLen+serialLen+modelLen+2)
	out = append(out, byte(ReplyPeripheralID))
	out = appendPadded(out, id.Manufacturer, manufacturerLen)
	out = appendPadded(out, id.SerialNumber, serialLen)
	out = appendPadded(out, id.ModelNumber, modelLen)
	out = append(out, byte(id.SoftwareVersion>>8), byte(id.SoftwareVersion))

	return out
}

// RevalueLimit reports a revalue limit of zero: this reader never revalues.
func RevalueLimit() []byte {
	return []byte{byte(ReplyRevalueLimitAmount), 0x00, 0x00}
}

func appendPadded(dst []byte, s string, width int) []byte {
	for i := 0; i < width; i++ {
		if i < len(s) {
			dst = append(dst, s[i])
		} else {
			dst = append(dst, ' ')
		}
	}

	return dst
}
