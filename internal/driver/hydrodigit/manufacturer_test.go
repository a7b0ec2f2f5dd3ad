package hydrodigit

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/d21d3q/meterbus/internal/dv"
)

func TestParseLegacyBlock(t *testing.T) {
	block, err := hex.DecodeString("150E00000000C10000D10000E60000FD00000C01002F0100410100540100680100890000A00000B30000")
	require.NoError(t, err)
	b, err := parseLegacyBlock(block, 0.01)
	require.NoError(t, err)
	require.Equal(t, "Backflow, alarms and monthly data", b.Contents())
	require.Equal(t, 3.7, b.Voltage)
	require.Empty(t, b.LeakDate)
	require.InDelta(t, 2.09, b.MonthlyM3[1], 1e-9)
	require.InDelta(t, 1.37, b.MonthlyM3[9], 1e-9)
}

func TestParseLegacyBlockErrors(t *testing.T) {
	_, err := parseLegacyBlock([]byte{0x84, 0x29, 0x03}, 0.01)
	require.ErrorIs(t, err, errUnsupportedBlock)

	_, err = parseLegacyBlock([]byte{0x95, 0x0D, 0x24, 0x04}, 0.01)
	require.ErrorIs(t, err, dv.ErrTruncated)
	require.Contains(t, err.Error(), "leak date")

	_, err = parseLegacyBlock([]byte{0x15, 0x0D, 0, 0, 0, 0, 0xC1, 0x00}, 0.01)
	require.ErrorIs(t, err, dv.ErrTruncated)
	require.Contains(t, err.Error(), "monthly history")
}

func TestMonthlyScale(t *testing.T) {
	require.Equal(t, 0.01, monthlyScaleFor(dv.Entry{}, false))

	entries, err := dv.Scan([]byte{0x0C, 0x14, 0, 0, 0, 0})
	require.NoError(t, err)
	require.InDelta(t, 0.1, monthlyScaleFor(entries[0], true), 1e-12)
}

func TestDecodeVoltage(t *testing.T) {
	require.Equal(t, 1.9, decodeVoltage(0x01))
	require.Equal(t, 3.05, decodeVoltage(0x0A))
	require.Equal(t, 3.7, decodeVoltage(0x00))
	require.Equal(t, 3.7, decodeVoltage(0x0F))
}

func TestParseExtendedBlock(t *testing.T) {
	block, err := hex.DecodeString("842903575D01020304050607240315240425FFFFFF0A0B0C0D0E")
	require.NoError(t, err)
	require.False(t, isLegacyBlock(block))

	b, err := parseExtendedBlock(block, 0.01)
	require.NoError(t, err)
	require.Equal(t, byte(0x84), b.BatteryRaw)
	require.Equal(t, 100.0, b.BatteryPercent())
	require.Equal(t, uint32(0x290357), b.ErrorBits)
	require.Equal(t, byte(0x5D), b.Sections)
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7}, b.Instantaneous)
	require.Equal(t, "15.03.2024", b.EmptyPipeDate)
	require.Equal(t, "25.04.2024", b.LeakDate)
	require.Empty(t, b.FreezeDate)
	require.Nil(t, b.MemoDay1)
	require.Equal(t, []byte{0x0A, 0x0B, 0x0C, 0x0D, 0x0E}, b.MemoDay2)
	require.False(t, b.Has(sectionReverseFlow))
	require.Equal(t, "Battery, error flags, instantaneous, empty pipe date, leak date, freeze date, memo day 2", b.Contents())
}

func TestParseExtendedBlockReverseFlowAndHistory(t *testing.T) {
	block := []byte{0x50, 0x00, 0x00, 0x01, sectionReverseFlow | sectionMonthly, 0xE8, 0x03, 0x00}
	for i := 1; i <= 12; i++ {
		v := i * 100
		block = append(block, byte(v), byte(v>>8), 0)
	}
	b, err := parseExtendedBlock(block, 0.01)
	require.NoError(t, err)
	require.Equal(t, 80.0, b.BatteryPercent())
	require.Equal(t, uint32(1), b.ErrorBits)
	require.InDelta(t, 1.0, b.ReverseFlowM3, 1e-12)
	for i, v := range b.MonthlyM3 {
		require.InDelta(t, float64(i+1), v, 1e-9, "month %d", i)
	}
}

func TestParseExtendedBlockErrors(t *testing.T) {
	_, err := parseExtendedBlock([]byte{0x50, 0x00}, 0.01)
	require.ErrorIs(t, err, dv.ErrTruncated)

	_, err = parseExtendedBlock([]byte{0x50, 0, 0, 0, sectionReverseFlow, 0xE8}, 0.01)
	require.ErrorIs(t, err, dv.ErrTruncated)
	require.Contains(t, err.Error(), "reverse flow")

	_, err = parseExtendedBlock([]byte{0x50, 0, 0, 0, sectionMonthly, 0x01, 0x02, 0x03}, 0.01)
	require.ErrorIs(t, err, dv.ErrTruncated)
	require.Contains(t, err.Error(), "monthly data")
}

func TestIsLegacyBlock(t *testing.T) {
	legacy := make([]byte, minLegacyBytes)
	legacy[0] = frameBackflow
	require.True(t, isLegacyBlock(legacy))

	// a battery level of 0x15 with few sections is an extended block
	require.False(t, isLegacyBlock(legacy[:minExtendedBytes]))

	legacy[0] = 0x84
	require.False(t, isLegacyBlock(legacy))
}
