package testutil

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/d21d3q/meterbus/internal/frame"
)

// LoadJSON loads a JSON fixture from testdata relative to the repo root.
func LoadJSON(t *testing.T, rel string, v any) {
	t.Helper()
	data := readTestdata(t, rel)
	require.NoError(t, json.Unmarshal(data, v), "decode %s", rel)
}

// LoadHex returns a trimmed hex string from testdata relative path.
func LoadHex(t *testing.T, rel string) string {
	t.Helper()
	data := readTestdata(t, rel)
	return strings.TrimSpace(string(data))
}

// LoadTelegram parses the hex fixture at rel into a telegram.
func LoadTelegram(t *testing.T, rel string) *frame.Telegram {
	t.Helper()
	raw, err := hex.DecodeString(LoadHex(t, rel))
	require.NoError(t, err, "hex decode %s", rel)
	tg, err := frame.Parse(raw)
	require.NoError(t, err, "parse %s", rel)
	return &tg
}

// PayloadTelegram wraps a bare record payload, for tests that do not need
// link and transport headers.
func PayloadTelegram(t *testing.T, payload string) *frame.Telegram {
	t.Helper()
	b, err := hex.DecodeString(payload)
	require.NoError(t, err)
	return &frame.Telegram{Payload: b}
}

func readTestdata(t *testing.T, rel string) []byte {
	t.Helper()
	candidates := []string{
		filepath.Join("testdata", rel),
		filepath.Join("..", "testdata", rel),
		filepath.Join("..", "..", "testdata", rel),
		filepath.Join("..", "..", "..", "testdata", rel),
	}
	for _, path := range candidates {
		if data, err := os.ReadFile(path); err == nil {
			return data
		}
	}
	t.Fatalf("unable to locate testdata file %s", rel)
	return nil
}
