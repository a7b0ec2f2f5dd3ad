package dv

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/d21d3q/meterbus/internal/units"
)

// Explainer collects human readable notes about telegram bytes.
type Explainer interface {
	AddExplanation(offset int, text string)
}

// DecodeBCD reads b least significant byte first, two digits per byte with
// the high nibble more significant. A 0xF high nibble in the most
// significant byte marks a negative number.
func DecodeBCD(b []byte) (int64, error) {
	var v int64
	negative := false
	for i := len(b) - 1; i >= 0; i-- {
		hi, lo := b[i]>>4, b[i]&0x0F
		if i == len(b)-1 && hi == 0x0F {
			negative = true
			hi = 0
		}
		if hi > 9 || lo > 9 {
			return 0, fmt.Errorf("%w: 0x%02X", ErrInvalidBCD, b[i])
		}
		v = v*100 + int64(hi)*10 + int64(lo)
	}
	if negative {
		v = -v
	}
	return v, nil
}

// DecodeUint reads b as a little-endian unsigned integer of up to 8 bytes.
func DecodeUint(b []byte) uint64 {
	var u uint64
	for i := len(b) - 1; i >= 0; i-- {
		u = u<<8 | uint64(b[i])
	}
	return u
}

// DecodeInt reads b as a little-endian two's complement integer and sign
// extends it to 64 bits.
func DecodeInt(b []byte) int64 {
	u := DecodeUint(b)
	if len(b) == 0 || len(b) >= 8 {
		return int64(u)
	}
	shift := 64 - 8*uint(len(b))
	return int64(u<<shift) >> shift
}

// Raw decodes the record's data bytes without applying the scale.
func (e Entry) Raw() (float64, error) {
	switch e.Encoding.Kind {
	case KindBCD:
		v, err := DecodeBCD(e.Data)
		if err != nil {
			return 0, err
		}
		if e.Encoding.Negative {
			v = -v
		}
		return float64(v), nil
	case KindBinary:
		if len(e.Data) > 8 {
			return 0, fmt.Errorf("%w: %d byte binary value at offset %d", ErrNotNumeric, len(e.Data), e.DataOffset)
		}
		if e.Encoding.Signed {
			return float64(DecodeInt(e.Data)), nil
		}
		return float64(DecodeUint(e.Data)), nil
	case KindReal:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(e.Data))), nil
	default:
		return 0, fmt.Errorf("%w: DIF 0x%02X carries no number", ErrNotNumeric, e.DIF)
	}
}

// Double decodes the record into the default unit of its quantity.
func (e Entry) Double() (float64, error) {
	if e.Scale.Quantity == units.QuantityUnknown {
		return 0, fmt.Errorf("%w: %s (VIF 0x%02X)", ErrNotNumeric, e.Scale.Info, e.VIF)
	}
	raw, err := e.Raw()
	if err != nil {
		return 0, err
	}
	v := raw
	if exp := e.Scale.Exponent; exp >= 0 {
		v *= math.Pow10(exp)
	} else {
		v /= math.Pow10(-exp)
	}
	if f := e.Scale.factor(); f != 1 {
		v *= f
	}
	return v, nil
}

// ExtractDouble decodes e and notes the result at the record's data offset.
func ExtractDouble(x Explainer, e Entry, description string) (float64, int, error) {
	v, err := e.Double()
	if err != nil {
		return 0, e.DataOffset, err
	}
	x.AddExplanation(e.DataOffset, fmt.Sprintf("%s (%s %s)", description,
		strconv.FormatFloat(v, 'f', -1, 64), e.Scale.Unit().Symbol()))
	return v, e.DataOffset, nil
}

// ExtractDate decodes a type G date (VIF 0x6C) or a type F date time
// (VIF 0x6D) and notes it.
func ExtractDate(x Explainer, e Entry, description string) (time.Time, int, error) {
	var (
		ts  time.Time
		err error
	)
	switch {
	case e.Scale.Info == Date && len(e.Data) == 2:
		ts, err = DecodeTypeGDate(e.Data)
	case e.Scale.Info == DateTime && len(e.Data) == 4:
		ts, err = DecodeTypeFDateTime(e.Data)
	default:
		err = fmt.Errorf("%w: %s with %d data bytes is not a date", ErrNotNumeric, e.Scale.Info, len(e.Data))
	}
	if err != nil {
		return time.Time{}, e.DataOffset, err
	}
	x.AddExplanation(e.DataOffset, fmt.Sprintf("%s (%s)", description, ts.Format("2006-01-02 15:04")))
	return ts, e.DataOffset, nil
}

// ExtractString decodes a variable length text record and notes it.
func ExtractString(x Explainer, e Entry, description string) (string, int, error) {
	if e.Encoding.Kind != KindText {
		return "", e.DataOffset, fmt.Errorf("%w: DIF 0x%02X is not text", ErrNotNumeric, e.DIF)
	}
	s := reversedString(e.Data)
	x.AddExplanation(e.DataOffset, fmt.Sprintf("%s (%q)", description, s))
	return s, e.DataOffset, nil
}

// DecodeTypeFDateTime decodes the four-byte type F timestamp.
func DecodeTypeFDateTime(b []byte) (time.Time, error) {
	if len(b) != 4 {
		return time.Time{}, fmt.Errorf("type F datetime requires 4 bytes, got %d", len(b))
	}
	minute := int(b[0] & 0x3F)
	hour := int(b[1] & 0x1F)
	day := int(b[2] & 0x1F)
	month := int(b[3] & 0x0F)
	year := 2000 + int((b[3]&0xF0)>>1|(b[2]&0xE0)>>5)
	if minute > 59 || hour > 23 || day == 0 || month == 0 || month > 12 {
		return time.Time{}, fmt.Errorf("invalid type F datetime % X", b)
	}
	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC), nil
}

// DecodeTypeGDate decodes the two-byte type G date.
func DecodeTypeGDate(b []byte) (time.Time, error) {
	if len(b) != 2 {
		return time.Time{}, fmt.Errorf("type G date requires 2 bytes, got %d", len(b))
	}
	day := int(b[0] & 0x1F)
	month := int(b[1] & 0x0F)
	year := 2000 + int((b[1]&0xF0)>>1|(b[0]&0xE0)>>5)
	if day == 0 || month == 0 || month > 12 {
		return time.Time{}, fmt.Errorf("invalid type G date % X", b)
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
}
