package dv

import (
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/d21d3q/meterbus/internal/units"
)

type explanation struct {
	offset int
	text   string
}

type recorder struct {
	notes []explanation
}

func (r *recorder) AddExplanation(offset int, text string) {
	r.notes = append(r.notes, explanation{offset: offset, text: text})
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestScanSingleBCDEnergy(t *testing.T) {
	buf := mustHex(t, "0C0622052400")
	entries, err := Scan(buf)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	require.Equal(t, Instantaneous, e.Measurement)
	require.Equal(t, EnergyWh, e.Info())
	require.Equal(t, KindBCD, e.Encoding.Kind)
	require.Equal(t, 8, e.Encoding.Digits())
	require.Equal(t, 0, e.Storage)
	require.Equal(t, 2, e.DataOffset)
	require.Equal(t, "0C06", e.Key())

	var rec recorder
	v, offset, err := ExtractDouble(&rec, e, "total energy consumption")
	require.NoError(t, err)
	require.Equal(t, 240522.0, v)
	require.Equal(t, 2, offset)
	require.Len(t, rec.notes, 1)
	require.Equal(t, explanation{offset: 2, text: "total energy consumption (240522 kWh)"}, rec.notes[0])
}

func TestScanHeatMeterPayload(t *testing.T) {
	buf := mustHex(t, "0C0622052400"+
		"0C1356426509"+
		"0B3B280900"+
		"0C2B70640200"+
		"0A5A3409"+
		"0A5E8406"+
		"8C100600000000"+
		"0B26341200")
	entries, err := Scan(buf)
	require.NoError(t, err)
	require.Len(t, entries, 8)

	want := []struct {
		info  ValueInformation
		value float64
		unit  units.Unit
	}{
		{EnergyWh, 240522, units.KWH},
		{Volume, 9654.256, units.M3},
		{VolumeFlow, 0.928, units.M3H},
		{PowerW, 26470, units.W},
		{FlowTemperature, 93.4, units.C},
		{ReturnTemperature, 68.4, units.C},
		{EnergyWh, 0, units.KWH},
		{OperatingTime, 1234 * 3600, units.Second},
	}
	for i, w := range want {
		require.Equal(t, w.info, entries[i].Info(), "entry %d", i)
		v, err := entries[i].Double()
		require.NoError(t, err)
		require.InDelta(t, w.value, v, 1e-9, "entry %d", i)
		require.Equal(t, w.unit, entries[i].Scale.Unit(), "entry %d", i)
	}
	require.Equal(t, 1, entries[6].Tariff)
	require.Equal(t, "8C1006", entries[6].Key())
}

func TestScanDIFEChain(t *testing.T) {
	entries, err := Scan(mustHex(t, "8C811006"+"01000000"+"CC4013"+"10000000"))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.Equal(t, 2, entries[0].Storage)
	require.Equal(t, 4, entries[0].Tariff)
	require.Equal(t, 0, entries[0].Subunit)
	require.Len(t, entries[0].DIFE, 2)

	require.Equal(t, 1, entries[1].Storage)
	require.Equal(t, 0, entries[1].Tariff)
	require.Equal(t, 1, entries[1].Subunit)
}

func TestScanBinaryAndExtensions(t *testing.T) {
	entries, err := Scan(mustHex(t, "025A9CFF"+"0413E8030000"+"02FD46100E"+"052B0000C03F"))
	require.NoError(t, err)
	require.Len(t, entries, 4)

	temp, err := entries[0].Double()
	require.NoError(t, err)
	require.InDelta(t, -10.0, temp, 1e-9)
	require.True(t, entries[0].Encoding.Signed)

	vol, err := entries[1].Double()
	require.NoError(t, err)
	require.InDelta(t, 1.0, vol, 1e-9)
	require.False(t, entries[1].Encoding.Signed)

	require.Equal(t, Voltage, entries[2].Info())
	volts, err := entries[2].Double()
	require.NoError(t, err)
	require.InDelta(t, 3.6, volts, 1e-9)

	require.Equal(t, KindReal, entries[3].Encoding.Kind)
	power, err := entries[3].Double()
	require.NoError(t, err)
	require.InDelta(t, 1.5, power, 1e-9)
}

func TestScanFillerAndManufacturerData(t *testing.T) {
	buf := mustHex(t, "2F2F041301000000"+"0FAABB")
	entries, err := Scan(buf)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, 2, entries[0].Offset)

	mfct, ok := ManufacturerData(entries)
	require.True(t, ok)
	require.Equal(t, []byte{0xAA, 0xBB}, mfct.Data)
	require.Equal(t, 9, mfct.DataOffset)

	_, ok = ManufacturerData(entries[:1])
	require.False(t, ok)
}

func TestScanVariableLengthAndPlainText(t *testing.T) {
	entries, err := Scan(mustHex(t, "0D7803434241"+"027C03485225"+"7401"))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var rec recorder
	s, _, err := ExtractString(&rec, entries[0], "fabrication number")
	require.NoError(t, err)
	require.Equal(t, "ABC", s)

	require.Equal(t, PlainText, entries[1].Info())
	require.Equal(t, "%RH", entries[1].UnitText())
	raw, err := entries[1].Raw()
	require.NoError(t, err)
	require.Equal(t, 372.0, raw)
	_, err = entries[1].Double()
	require.ErrorIs(t, err, ErrNotNumeric)
}

func TestScanDateTime(t *testing.T) {
	entries, err := Scan(mustHex(t, "046D27287E2A"+"026C7E2A"))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var rec recorder
	ts, _, err := ExtractDate(&rec, entries[0], "meter datetime")
	require.NoError(t, err)
	require.Equal(t, "2019-10-30 08:39", ts.Format("2006-01-02 15:04"))

	d, _, err := ExtractDate(&rec, entries[1], "meter date")
	require.NoError(t, err)
	require.Equal(t, "2019-10-30", d.Format("2006-01-02"))
	require.Len(t, rec.notes, 2)
}

func TestScanTruncated(t *testing.T) {
	cases := map[string]string{
		"data":       "0C062205",
		"vif":        "0C",
		"dife":       "8C",
		"vife":       "0C86",
		"lvar":       "0D13",
		"text":       "0D1305414243",
		"after good": "0C0622052400" + "0B3B2809",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			entries, err := Scan(mustHex(t, in))
			require.Nil(t, entries)
			require.ErrorIs(t, err, ErrTruncated)
			var perr *ParseError
			require.True(t, errors.As(err, &perr))
		})
	}
}

func TestScanUnknownEncoding(t *testing.T) {
	cases := map[string]string{
		"reserved special DIF": "3F",
		"reserved LVAR":        "0D13F5",
		"reserved VIF":         "0CEF00000000",
		"long DIFE chain":      "8C8080808080808080808000" + "0600000000",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Scan(mustHex(t, in))
			require.ErrorIs(t, err, ErrUnknownEncoding)
		})
	}
}

func TestScanEmpty(t *testing.T) {
	entries, err := Scan(nil)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestScaleForVIFECorrection(t *testing.T) {
	s := ScaleFor(0x93, []byte{0x74})
	require.Equal(t, Volume, s.Info)
	require.Equal(t, -5, s.Exponent)

	s = ScaleFor(0xFB, []byte{0x01})
	require.Equal(t, EnergyWh, s.Info)
	require.Equal(t, 3, s.Exponent)

	require.Equal(t, Unknown, ScaleFor(0xFD, nil).Info)
	require.Equal(t, Unknown, ScaleFor(0x50, nil).Info)
}
