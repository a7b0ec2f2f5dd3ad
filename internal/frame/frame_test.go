package frame

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	raw := decodeHex(t, "4E44B4098686868613077AF00040052F2F0C1366380000046D27287E2A0F150E00000000C10000D10000E60000FD00000C01002F0100410100540100680100890000A00000B30000002F2F2F2F2F2F")
	tg, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, uint16(0x09B4), tg.Manufacturer)
	require.Equal(t, "BMT", tg.ManufacturerFlag())
	require.Equal(t, "86868686", tg.MeterIDString())
	require.Equal(t, byte(0x7A), tg.CI)
	require.Equal(t, byte(0x07), tg.DeviceType)
	require.True(t, tg.TPL.Present)
	require.Equal(t, byte(5), tg.TPL.SecurityMode)
	require.Equal(t, byte(0xF0), tg.AccessNumber)
	require.Equal(t, 15, tg.PayloadOffset)
	require.Equal(t, []byte{0x2F, 0x2F, 0x0C, 0x13}, tg.Payload[:4])
	require.False(t, tg.Encrypted())
}

func TestParseShortTPLWithoutHeader(t *testing.T) {
	raw := decodeHex(t, "00"+"44"+"6850"+"78563412"+"01"+"04"+"7A"+"2F2F0C0601000000")
	raw[0] = byte(len(raw) - 1)
	tg, err := Parse(raw)
	require.NoError(t, err)
	require.False(t, tg.TPL.Present)
	require.Equal(t, "TCH", tg.ManufacturerFlag())
	require.Equal(t, "12345678", tg.MeterIDString())
	require.Equal(t, 11, tg.PayloadOffset)
}

func TestParseELLWithShortTPL(t *testing.T) {
	raw := decodeHex(t, "00"+"44B40901020304010D"+"8C"+"2033"+"7A"+"33000000"+"2F2F046D27287E2A")
	raw[0] = byte(len(raw) - 1)
	tg, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, byte(0x8C), tg.CI)
	require.Equal(t, byte(0x7A), tg.TPL.CI)
	require.Equal(t, byte(0x33), tg.AccessNumber)
	require.Equal(t, 18, tg.PayloadOffset)
	require.Equal(t, "04030201", tg.MeterIDString())
}

func TestParseLongTPL(t *testing.T) {
	raw := decodeHex(t, "00"+"44FFFF11111111FFFF"+"72"+"78563412"+"6850"+"0A04"+"2A000000"+"0C0601000000")
	raw[0] = byte(len(raw) - 1)
	tg, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "12345678", tg.MeterIDString())
	require.Equal(t, "TCH", tg.ManufacturerFlag())
	require.Equal(t, byte(0x04), tg.DeviceType)
	require.Equal(t, byte(0x2A), tg.AccessNumber)
	require.Equal(t, 23, tg.PayloadOffset)
}

func TestParseEncryptedPayload(t *testing.T) {
	raw := decodeHex(t, "00"+"44"+"6850"+"78563412"+"01"+"04"+"7A"+"01000005"+"A1B2C3D4E5F60718")
	raw[0] = byte(len(raw) - 1)
	tg, err := Parse(raw)
	require.NoError(t, err)
	require.True(t, tg.Encrypted())
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte{0x02, 0x44, 0x00})
	require.Error(t, err)

	raw := decodeHex(t, "4E44B409868686861307")
	_, err = Parse(raw)
	require.Error(t, err)

	raw = decodeHex(t, "0B44B40986868686130751")
	_, err = Parse(raw)
	require.ErrorContains(t, err, "declared length")

	raw = decodeHex(t, "0A44B40986868686130751")
	_, err = Parse(raw)
	require.ErrorContains(t, err, "unsupported CI")
}

func TestAddExplanationUsesRawOffsets(t *testing.T) {
	tg := Telegram{PayloadOffset: 15}
	tg.AddExplanation(2, "total volume (3.866 m³)")
	require.Equal(t, []Explanation{{Offset: 17, Text: "total volume (3.866 m³)"}}, tg.Explanations)
}

func TestManufacturerCode(t *testing.T) {
	require.Equal(t, uint16(0x09B4), ManufacturerCode("BMT"))
	require.Equal(t, "TCH", ManufacturerFlag(ManufacturerCode("TCH")))
	require.Zero(t, ManufacturerCode("TOOLONG"))
}

func decodeHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestMedia(t *testing.T) {
	require.Equal(t, "water", Telegram{DeviceType: 0x07}.Media())
	require.Equal(t, "heat/cooling load", Telegram{DeviceType: 0x0D}.Media())
	require.Equal(t, "unknown", Telegram{DeviceType: 0x55}.Media())
}

func TestStatusText(t *testing.T) {
	require.Equal(t, "OK", Telegram{}.StatusText())
	require.Equal(t, "OK", Telegram{StatusFlags: decodeStatusFlags(0x00)}.StatusText())
	require.Equal(t, "perm_alarm", Telegram{StatusFlags: decodeStatusFlags(0x08)}.StatusText())
	require.Equal(t, "battery_alarm reverse_flow", Telegram{StatusFlags: decodeStatusFlags(0x44)}.StatusText())
}
