package frame

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/d21d3q/meterbus/internal/dv"
)

const (
	ciNoTPL    = 0x78
	ciShortTPL = 0x7A
	ciLongTPL  = 0x72
	ciELL      = 0x8C

	headerLen = 11
)

// Telegram is a Wireless M-Bus frame with the link and transport headers
// split off. Values and Explanations are filled while the payload is decoded.
type Telegram struct {
	Raw           []byte
	Length        byte
	Control       byte
	Manufacturer  uint16
	MeterID       [4]byte
	Version       byte
	DeviceType    byte
	CI            byte
	AccessNumber  byte
	Status        byte
	TPL           TPLInfo
	StatusFlags   map[string]bool
	Payload       []byte
	PayloadOffset int

	Values       []dv.Entry
	Explanations []Explanation
}

// TPLInfo describes the transport layer header, if the frame has one.
type TPLInfo struct {
	Present      bool
	CI           byte
	AccessField  byte
	StatusField  byte
	Config       uint16
	SecurityMode byte
}

// Explanation annotates a byte offset of Raw.
type Explanation struct {
	Offset int
	Text   string
}

// AddExplanation records a note for a payload offset.
func (t *Telegram) AddExplanation(offset int, text string) {
	t.Explanations = append(t.Explanations, Explanation{Offset: t.PayloadOffset + offset, Text: text})
}

// Parse splits the link header (C, M, A, version, device type, CI) and the
// transport header from raw. CI 0x8C (short ELL) is followed by a second CI
// selecting the transport header.
func Parse(raw []byte) (Telegram, error) {
	if len(raw) < headerLen {
		return Telegram{}, fmt.Errorf("telegram too short: %d bytes", len(raw))
	}
	length := raw[0]
	if int(length)+1 != len(raw) {
		return Telegram{}, fmt.Errorf("declared length %d does not match actual length %d", length, len(raw))
	}
	t := Telegram{
		Raw:          raw,
		Length:       length,
		Control:      raw[1],
		Manufacturer: binary.LittleEndian.Uint16(raw[2:4]),
		Version:      raw[8],
		DeviceType:   raw[9],
		CI:           raw[10],
		StatusFlags:  map[string]bool{},
	}
	copy(t.MeterID[:], raw[4:8])

	cursor := headerLen
	ci := t.CI
	if ci == ciELL {
		if len(raw) < cursor+3 {
			return Telegram{}, fmt.Errorf("ELL header truncated")
		}
		t.AccessNumber = raw[cursor+1]
		ci = raw[cursor+2]
		cursor += 3
	}

	switch ci {
	case ciShortTPL:
		if !shortTPLPresent(raw, cursor) {
			break
		}
		if len(raw) < cursor+4 {
			return Telegram{}, fmt.Errorf("short TPL header truncated")
		}
		t.TPL = parseTPL(ci, raw[cursor:cursor+4])
		cursor += 4
	case ciLongTPL:
		if len(raw) < cursor+12 {
			return Telegram{}, fmt.Errorf("long TPL header truncated")
		}
		// The long header repeats the address of the meter the data comes from.
		copy(t.MeterID[:], raw[cursor:cursor+4])
		t.Manufacturer = binary.LittleEndian.Uint16(raw[cursor+4 : cursor+6])
		t.Version = raw[cursor+6]
		t.DeviceType = raw[cursor+7]
		t.TPL = parseTPL(ci, raw[cursor+8:cursor+12])
		cursor += 12
	case ciNoTPL:
	default:
		return Telegram{}, fmt.Errorf("unsupported CI 0x%02X", ci)
	}
	if t.TPL.Present {
		t.AccessNumber = t.TPL.AccessField
		t.Status = t.TPL.StatusField
		t.StatusFlags = decodeStatusFlags(t.Status)
	}
	t.Payload = raw[cursor:]
	t.PayloadOffset = cursor
	return t, nil
}

// MeterIDString returns the EN 13757 display format (MSB first).
func (t Telegram) MeterIDString() string {
	return fmt.Sprintf("%02X%02X%02X%02X", t.MeterID[3], t.MeterID[2], t.MeterID[1], t.MeterID[0])
}

// Encrypted reports whether the payload is still encrypted: the transport
// header announces a security mode but the 0x2F 0x2F check bytes are missing.
func (t Telegram) Encrypted() bool {
	if !t.TPL.Present || t.TPL.SecurityMode == 0 {
		return false
	}
	return len(t.Payload) < 2 || t.Payload[0] != 0x2F || t.Payload[1] != 0x2F
}

// ManufacturerFlag returns the three letter manufacturer code, e.g. "BMT".
func (t Telegram) ManufacturerFlag() string {
	return ManufacturerFlag(t.Manufacturer)
}

// ManufacturerFlag decodes the packed five-bits-per-letter manufacturer id.
func ManufacturerFlag(m uint16) string {
	return string([]byte{
		byte(m>>10&0x1F) + 64,
		byte(m>>5&0x1F) + 64,
		byte(m&0x1F) + 64,
	})
}

// ManufacturerCode packs a three letter flag into its numeric id.
func ManufacturerCode(flag string) uint16 {
	if len(flag) != 3 {
		return 0
	}
	return uint16(flag[0]-64)<<10 | uint16(flag[1]-64)<<5 | uint16(flag[2]-64)
}

var mediaNames = map[byte]string{
	0x02: "electricity",
	0x03: "gas",
	0x04: "heat",
	0x06: "warm water",
	0x07: "water",
	0x08: "heat cost allocation",
	0x0A: "cooling load volume at return temperature",
	0x0B: "cooling load volume at flow temperature",
	0x0C: "heat volume at flow temperature",
	0x0D: "heat/cooling load",
	0x15: "hot water",
	0x16: "cold water",
	0x1A: "smoke detector",
	0x1B: "room sensor",
}

// Media names the device type byte, e.g. "water" for 0x07.
func (t Telegram) Media() string {
	if name, ok := mediaNames[t.DeviceType]; ok {
		return name
	}
	return "unknown"
}

var statusFlagDefs = []struct {
	mask byte
	key  string
}{
	{0x80, "status_empty_pipe"},
	{0x40, "status_reverse_flow"},
	{0x20, "status_freezing"},
	{0x10, "status_temp_alarm"},
	{0x08, "status_perm_alarm"},
	{0x04, "status_battery_alarm"},
	{0x02, "status_hw_alarm"},
}

// StatusText lists the set status flags without their prefix, sorted and
// space separated, or "OK" when none is set.
func (t Telegram) StatusText() string {
	var set []string
	for name, on := range t.StatusFlags {
		if on {
			set = append(set, strings.TrimPrefix(name, "status_"))
		}
	}
	if len(set) == 0 {
		return "OK"
	}
	sort.Strings(set)
	return strings.Join(set, " ")
}

func decodeStatusFlags(status byte) map[string]bool {
	flags := make(map[string]bool)
	for _, def := range statusFlagDefs {
		if status&def.mask != 0 {
			flags[def.key] = true
		}
	}
	return flags
}

func parseTPL(ci byte, hdr []byte) TPLInfo {
	cfg := binary.LittleEndian.Uint16(hdr[2:4])
	return TPLInfo{
		Present:      true,
		CI:           ci,
		AccessField:  hdr[0],
		StatusField:  hdr[1],
		Config:       cfg,
		SecurityMode: byte((cfg >> 8) & 0x1F),
	}
}

// shortTPLPresent guards against meters that send CI 0x7A followed directly
// by the 0x2F 0x2F decryption check bytes.
func shortTPLPresent(data []byte, offset int) bool {
	if len(data) < offset+2 {
		return false
	}
	return !(data[offset] == 0x2F && data[offset+1] == 0x2F)
}
