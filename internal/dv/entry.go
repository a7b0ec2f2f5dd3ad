package dv

import (
	"encoding/hex"
	"strings"
)

// MeasurementType is the DIF function field.
type MeasurementType int

const (
	AnyMeasurement MeasurementType = iota
	Instantaneous
	Maximum
	Minimum
	AtError
)

func (m MeasurementType) String() string {
	switch m {
	case Instantaneous:
		return "instantaneous"
	case Maximum:
		return "maximum"
	case Minimum:
		return "minimum"
	case AtError:
		return "at error"
	default:
		return "any"
	}
}

func measurementOf(dif byte) MeasurementType {
	return Instantaneous + MeasurementType((dif>>4)&0x03)
}

// Kind is the family of a record's data field.
type Kind int

const (
	KindNone Kind = iota
	KindBinary
	KindReal
	KindBCD
	KindText
	KindManufacturer
)

// Encoding describes how the data bytes of a record are laid out.
type Encoding struct {
	Kind     Kind
	Width    int
	Signed   bool
	Negative bool // variable length BCD with a negative LVAR
}

// Digits is the number of decimal digits of a BCD encoding.
func (e Encoding) Digits() int {
	if e.Kind != KindBCD {
		return 0
	}
	return e.Width * 2
}

// Entry is one data record. All slices are views into the scanned buffer.
type Entry struct {
	Offset      int
	DataOffset  int
	DIF         byte
	DIFE        []byte
	VIF         byte
	VIFE        []byte
	PlainUnit   []byte
	Measurement MeasurementType
	Encoding    Encoding
	Scale       Scale
	Storage     int
	Tariff      int
	Subunit     int
	Data        []byte
}

// Info is the semantic identity of the record value.
func (e Entry) Info() ValueInformation {
	return e.Scale.Info
}

// Key renders the DIF/DIFE/VIF/VIFE chain as upper-case hex, the way
// records are usually referred to in meter documentation.
func (e Entry) Key() string {
	var b strings.Builder
	b.Grow(2 * (2 + len(e.DIFE) + len(e.VIFE)))
	b.WriteString(hex.EncodeToString([]byte{e.DIF}))
	b.WriteString(hex.EncodeToString(e.DIFE))
	if e.Encoding.Kind != KindManufacturer {
		b.WriteString(hex.EncodeToString([]byte{e.VIF}))
		b.WriteString(hex.EncodeToString(e.VIFE))
	}
	return strings.ToUpper(b.String())
}

// UnitText returns the plain text VIF unit, which is transmitted reversed.
func (e Entry) UnitText() string {
	return reversedString(e.PlainUnit)
}

func reversedString(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		out[len(b)-1-i] = c
	}
	return string(out)
}
