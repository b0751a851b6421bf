package mdb

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// MaxScaledAmount is the largest amount representable in the two amount bytes.
// 0xFFFF is reserved by the bus for "unknown".
const MaxScaledAmount = 0xFFFE

var (
	// ErrInvalidScale reports an unusable scale factor / decimal places pair.
	ErrInvalidScale = errors.New("mdb: invalid amount scale")
	// ErrAmountOutOfRange reports an amount that does not fit into two bytes.
	ErrAmountOutOfRange = errors.New("mdb: amount out of range")
)

// AmountScaler converts between currency amounts and the scaled two-byte
// integers carried in MDB payloads (MDB 4.2 §7.4.2).
//
// Either the scale factor or the decimal places are used, never both.
type AmountScaler struct {
	scaleFactor   int
	decimalPlaces int
}

// NewAmountScaler validates and returns a scaler.
//
// scaleFactor must be 1 when decimalPlaces is not 0. Otherwise it must be 1 or
// a non-zero multiple of 10, and both values must fit into a byte.
func NewAmountScaler(scaleFactor int, decimalPlaces int) (AmountScaler, error) {
	switch {
	case scaleFactor != 1 && decimalPlaces != 0:
		return AmountScaler{}, fmt.Errorf("%w: scale factor must be 1 when decimal places is %d", ErrInvalidScale, decimalPlaces)
	case scaleFactor > 0xFF:
		return AmountScaler{}, fmt.Errorf("%w: scale factor %d exceeds 255", ErrInvalidScale, scaleFactor)
	case decimalPlaces < 0 || decimalPlaces > 0xFF:
		return AmountScaler{}, fmt.Errorf("%w: decimal places %d out of range [0, 255]", ErrInvalidScale, decimalPlaces)
	case scaleFactor <= 0:
		return AmountScaler{}, fmt.Errorf("%w: scale factor must be positive, use 1 when unused", ErrInvalidScale)
	case scaleFactor != 1 && scaleFactor%10 != 0:
		return AmountScaler{}, fmt.Errorf("%w: scale factor %d is not a multiple of 10", ErrInvalidScale, scaleFactor)
	}

	return AmountScaler{scaleFactor: scaleFactor, decimalPlaces: decimalPlaces}, nil
}

// ScaleFactor returns the configured scale factor.
func (s AmountScaler) ScaleFactor() int { return s.scaleFactor }

// DecimalPlaces returns the configured number of decimal places.
func (s AmountScaler) DecimalPlaces() int { return s.decimalPlaces }

// Scale converts amount to its big-endian two-byte bus form. Fractions below
// the bus resolution are truncated. Amounts above MaxScaledAmount are capped
// when capAmount is set and rejected otherwise.
func (s AmountScaler) Scale(amount decimal.Decimal, capAmount bool) ([2]byte, error) {
	var out [2]byte

	if amount.IsNegative() {
		return out, fmt.Errorf("%w: negative amount %s", ErrAmountOutOfRange, amount)
	}

	scaled := amount.
		Div(decimal.NewFromInt(int64(s.scaleFactor))).
		Shift(int32(s.decimalPlaces)).
		Truncate(0)

	if scaled.GreaterThan(decimal.NewFromInt(MaxScaledAmount)) {
		if !capAmount {
			return out, fmt.Errorf("%w: %s scales to %s with factor %d and %d decimal places",
				ErrAmountOutOfRange, amount, scaled, s.scaleFactor, s.decimalPlaces)
		}
		scaled = decimal.NewFromInt(MaxScaledAmount)
	}

	v := scaled.IntPart()
	out[0] = byte(v >> 8)
	out[1] = byte(v)

	return out, nil
}

// Unscale converts bus amount bytes back into a currency amount. A single byte
// is treated as the high byte, an empty slice as zero.
func (s AmountScaler) Unscale(b []byte) decimal.Decimal {
	var raw int64
	if len(b) > 0 {
		raw = int64(b[0]) << 8
		if len(b) > 1 {
			raw += int64(b[1])
		}
	}

	return decimal.New(raw*int64(s.scaleFactor), -int32(s.decimalPlaces))
}

// SaleAmount renders amount with two implied decimals and no separator, the
// format the payment backend expects: 12.34 becomes "1234", 1 becomes "100".
func SaleAmount(amount decimal.Decimal) string {
	return amount.Shift(2).Truncate(0).String()
}

// AmountBytes returns the two amount bytes of a VEND request payload
// (13 00 hi lo item item). ok is false when the payload is too short.
func AmountBytes(payload []byte) (amount [2]byte, ok bool) {
	if len(payload) < 4 {
		return amount, false
	}
	amount[0], amount[1] = payload[2], payload[3]

	return amount, true
}
