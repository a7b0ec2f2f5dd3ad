package hydrodigit

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/d21d3q/meterbus/internal/dv"
)

const (
	frameBackflow         = 0x15
	frameBackflowLeakDate = 0x95

	monthlyWidth = 3

	minLegacyBytes   = 1 + 1 + 4 + 12*monthlyWidth // frame id, voltage, backflow, months
	minExtendedBytes = 1 + 3 + 1                   // battery, error bits, section byte
)

// Optional sections of the extended block, one bit each in the section byte
// and laid out in bit order.
const (
	sectionInstantaneous byte = 1 << iota
	sectionReverseFlow
	sectionEmptyPipe
	sectionLeak
	sectionFreeze
	sectionMemoDay1
	sectionMemoDay2
	sectionMonthly
)

var sectionNames = [8]string{
	"instantaneous", "reverse flow", "empty pipe date", "leak date",
	"freeze date", "memo day 1", "memo day 2", "monthly data",
}

var errUnsupportedBlock = errors.New("unsupported manufacturer block")

// legacyBlock is the manufacturer specific record (DIF 0x0F) sent by
// hydrodigit firmware using frame identifier 0x15 or 0x95.
type legacyBlock struct {
	FrameIdentifier byte
	Voltage         float64
	LeakDate        string // dd.mm.yyyy
	BackflowM3      float64
	MonthlyM3       [12]float64
}

// Contents describes what the frame identifier says the block carries.
func (b legacyBlock) Contents() string {
	switch b.FrameIdentifier {
	case frameBackflow:
		return "Backflow, alarms and monthly data"
	case frameBackflowLeakDate:
		return "Backflow, leak date, alarms and monthly data"
	default:
		return "unknown"
	}
}

// parseLegacyBlock decodes the bytes following DIF 0x0F. monthlyScale is the
// m³ value of one unit of the monthly history counters.
func parseLegacyBlock(block []byte, monthlyScale float64) (legacyBlock, error) {
	if len(block) == 0 || (block[0] != frameBackflow && block[0] != frameBackflowLeakDate) {
		return legacyBlock{}, errUnsupportedBlock
	}
	b := legacyBlock{FrameIdentifier: block[0]}
	offset := 1
	need := func(n int, what string) error {
		if offset+n > len(block) {
			return fmt.Errorf("%w: %s at offset %d", dv.ErrTruncated, what, offset)
		}
		return nil
	}

	if err := need(1, "voltage"); err != nil {
		return legacyBlock{}, err
	}
	b.Voltage = decodeVoltage(block[offset] & 0x0F)
	offset++

	if b.FrameIdentifier == frameBackflowLeakDate {
		if err := need(3, "leak date"); err != nil {
			return legacyBlock{}, err
		}
		year, month, day := block[offset], block[offset+1], block[offset+2]
		b.LeakDate = fmt.Sprintf("%02X.%02X.20%02X", day, month, year)
		offset += 3
	}

	if err := need(4, "backflow"); err != nil {
		return legacyBlock{}, err
	}
	b.BackflowM3 = float64(dv.DecodeUint(block[offset:offset+4])) / 1000
	offset += 4

	for i := range b.MonthlyM3 {
		if err := need(monthlyWidth, "monthly history"); err != nil {
			return legacyBlock{}, err
		}
		b.MonthlyM3[i] = decodeMonthly(block[offset:offset+monthlyWidth], monthlyScale)
		offset += monthlyWidth
	}
	return b, nil
}

// extendedBlock is the Hydrolink layout of the manufacturer record. It
// starts with the battery level instead of a frame identifier.
type extendedBlock struct {
	BatteryRaw    byte
	ErrorBits     uint32
	Sections      byte
	Instantaneous []byte
	ReverseFlowM3 float64
	EmptyPipeDate string // dd.mm.yyyy
	LeakDate      string
	FreezeDate    string
	MemoDay1      []byte
	MemoDay2      []byte
	MonthlyM3     [12]float64
}

// Has reports whether the optional section s was sent.
func (b extendedBlock) Has(s byte) bool { return b.Sections&s != 0 }

// BatteryPercent clamps the raw level, some firmware reports above 100.
func (b extendedBlock) BatteryPercent() float64 {
	if b.BatteryRaw > 100 {
		return 100
	}
	return float64(b.BatteryRaw)
}

// Contents lists the sections the block carries.
func (b extendedBlock) Contents() string {
	parts := []string{"Battery", "error flags"}
	for bit, name := range sectionNames {
		if b.Has(1 << bit) {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, ", ")
}

// isLegacyBlock tells the two layouts apart. The battery level of an
// extended block can collide with a frame identifier, so the length of the
// block decides as well.
func isLegacyBlock(block []byte) bool {
	return len(block) >= minLegacyBytes && (block[0] == frameBackflow || block[0] == frameBackflowLeakDate)
}

// parseExtendedBlock decodes a Hydrolink block. Error bits are sent most
// significant byte first, everything else least significant byte first.
func parseExtendedBlock(block []byte, monthlyScale float64) (extendedBlock, error) {
	if len(block) < minExtendedBytes {
		return extendedBlock{}, fmt.Errorf("%w: extended header of %d bytes", dv.ErrTruncated, len(block))
	}
	b := extendedBlock{
		BatteryRaw: block[0],
		ErrorBits:  uint32(block[1])<<16 | uint32(block[2])<<8 | uint32(block[3]),
		Sections:   block[4],
	}
	offset := minExtendedBytes
	take := func(n int, what string) ([]byte, error) {
		if offset+n > len(block) {
			return nil, fmt.Errorf("%w: %s at offset %d", dv.ErrTruncated, what, offset)
		}
		out := block[offset : offset+n]
		offset += n
		return out, nil
	}
	date := func(dst *string, what string) error {
		raw, err := take(3, what)
		if err != nil {
			return err
		}
		for _, c := range raw {
			if c>>4 > 9 || c&0x0F > 9 {
				// an invalid date is skipped, the section still occupies its bytes
				return nil
			}
		}
		*dst = fmt.Sprintf("%02X.%02X.20%02X", raw[2], raw[1], raw[0])
		return nil
	}

	for bit := 0; bit < 8; bit++ {
		section := byte(1) << bit
		if !b.Has(section) {
			continue
		}
		var err error
		switch section {
		case sectionInstantaneous:
			var raw []byte
			raw, err = take(7, sectionNames[bit])
			b.Instantaneous = append([]byte(nil), raw...)
		case sectionReverseFlow:
			var raw []byte
			if raw, err = take(3, sectionNames[bit]); err == nil {
				b.ReverseFlowM3 = float64(dv.DecodeUint(raw)) / 1000
			}
		case sectionEmptyPipe:
			err = date(&b.EmptyPipeDate, sectionNames[bit])
		case sectionLeak:
			err = date(&b.LeakDate, sectionNames[bit])
		case sectionFreeze:
			err = date(&b.FreezeDate, sectionNames[bit])
		case sectionMemoDay1:
			var raw []byte
			raw, err = take(5, sectionNames[bit])
			b.MemoDay1 = append([]byte(nil), raw...)
		case sectionMemoDay2:
			var raw []byte
			raw, err = take(5, sectionNames[bit])
			b.MemoDay2 = append([]byte(nil), raw...)
		case sectionMonthly:
			var raw []byte
			if raw, err = take(12*monthlyWidth, sectionNames[bit]); err == nil {
				for i := range b.MonthlyM3 {
					b.MonthlyM3[i] = decodeMonthly(raw[i*monthlyWidth:(i+1)*monthlyWidth], monthlyScale)
				}
			}
		}
		if err != nil {
			return extendedBlock{}, err
		}
	}
	return b, nil
}

// monthlyScaleFor derives the monthly counter resolution from the exponent
// of the main volume record: the history is kept one decade coarser.
func monthlyScaleFor(e dv.Entry, ok bool) float64 {
	if !ok {
		return 0.01
	}
	return math.Pow10(e.Scale.Exponent + 1)
}

func decodeVoltage(nibble byte) float64 {
	switch nibble {
	case 0x01:
		return 1.9
	case 0x02:
		return 2.1
	case 0x03:
		return 2.2
	case 0x04:
		return 2.3
	case 0x05:
		return 2.4
	case 0x06:
		return 2.5
	case 0x07:
		return 2.65
	case 0x08:
		return 2.8
	case 0x09:
		return 2.9
	case 0x0A:
		return 3.05
	case 0x0B:
		return 3.2
	case 0x0C:
		return 3.35
	case 0x0D:
		return 3.5
	default:
		return 3.7
	}
}

// decodeMonthly drops implausible counters, which the meter sends for months
// it has not recorded yet.
func decodeMonthly(b []byte, scale float64) float64 {
	result := float64(dv.DecodeUint(b)) * scale
	if result >= 100000 {
		return 0
	}
	return result
}
