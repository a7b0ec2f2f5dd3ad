package dv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func encodeBCD(n int64, width int) []byte {
	out := make([]byte, width)
	for i := 0; i < width; i++ {
		lo := n % 10
		n /= 10
		hi := n % 10
		n /= 10
		out[i] = byte(hi<<4 | lo)
	}
	return out
}

func TestDecodeBCDRoundTrip(t *testing.T) {
	step := int64(1)
	if testing.Short() {
		step = 9973
	}
	for n := int64(0); n <= 99_999_999; n += step {
		got, err := DecodeBCD(encodeBCD(n, 4))
		if err != nil || got != n {
			t.Fatalf("DecodeBCD(%d) = %d, %v", n, got, err)
		}
	}
}

func TestDecodeBCD(t *testing.T) {
	v, err := DecodeBCD([]byte{0x22, 0x05, 0x24, 0x00})
	require.NoError(t, err)
	require.Equal(t, int64(240522), v)

	v, err = DecodeBCD([]byte{0x34, 0xF9})
	require.NoError(t, err)
	require.Equal(t, int64(-934), v)

	_, err = DecodeBCD([]byte{0x3A, 0x09})
	require.ErrorIs(t, err, ErrInvalidBCD)

	v, err = DecodeBCD(nil)
	require.NoError(t, err)
	require.Zero(t, v)
}

func TestDecodeInt(t *testing.T) {
	require.Equal(t, int64(-1), DecodeInt([]byte{0xFF, 0xFF, 0xFF}))
	require.Equal(t, int64(-8388608), DecodeInt([]byte{0x00, 0x00, 0x80}))
	require.Equal(t, int64(0x7FFF), DecodeInt([]byte{0xFF, 0x7F}))
	require.Equal(t, int64(-2), DecodeInt([]byte{0xFE, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}))
	require.Equal(t, uint64(0xFFFFFF), DecodeUint([]byte{0xFF, 0xFF, 0xFF}))
	require.Equal(t, int64(-1), DecodeInt([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}))
}

func TestDoubleInvalidBCDLeavesNoExplanation(t *testing.T) {
	entries, err := Scan(mustHex(t, "0A5A3A09"))
	require.NoError(t, err)

	var rec recorder
	_, _, err = ExtractDouble(&rec, entries[0], "flow temperature")
	require.ErrorIs(t, err, ErrInvalidBCD)
	require.Empty(t, rec.notes)
}

func TestDoubleNegativeBCD(t *testing.T) {
	entries, err := Scan(mustHex(t, "0A5A34F9"+"0D5AD23409"))
	require.NoError(t, err)

	v, err := entries[0].Double()
	require.NoError(t, err)
	require.InDelta(t, -93.4, v, 1e-9)

	v, err = entries[1].Double()
	require.NoError(t, err)
	require.InDelta(t, -93.4, v, 1e-9)
}

func TestDoubleNoData(t *testing.T) {
	entries, err := Scan(mustHex(t, "0806"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	_, err = entries[0].Double()
	require.ErrorIs(t, err, ErrNotNumeric)
}

func TestDoubleWideBinaryRejected(t *testing.T) {
	entries, err := Scan(mustHex(t, "0D13E9"+"000000000000000001"+"0D13E8"+"2A00000000000000"))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var rec recorder
	_, _, err = ExtractDouble(&rec, entries[0], "total volume")
	require.ErrorIs(t, err, ErrNotNumeric)
	require.Empty(t, rec.notes)

	v, err := entries[1].Double()
	require.NoError(t, err)
	require.InDelta(t, 0.042, v, 1e-12)
}

func TestDoubleEnergyUnits(t *testing.T) {
	entries, err := Scan(mustHex(t, "0C0300100000"+"0C0E01000000"+"0C2B00360000"))
	require.NoError(t, err)

	wh, err := entries[0].Double()
	require.NoError(t, err)
	require.InDelta(t, 1.0, wh, 1e-12)

	mj, err := entries[1].Double()
	require.NoError(t, err)
	require.InDelta(t, 1.0/3.6, mj, 1e-12)

	w, err := entries[2].Double()
	require.NoError(t, err)
	require.InDelta(t, 3600.0, w, 1e-12)
}
