// Package meterbus decodes Wireless M-Bus telegrams into named, unit
// converted meter readings.
package meterbus

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/d21d3q/meterbus/internal/driver"
	_ "github.com/d21d3q/meterbus/internal/driver/hydrocalm4" // register driver
	_ "github.com/d21d3q/meterbus/internal/driver/hydrodigit" // register driver
	_ "github.com/d21d3q/meterbus/internal/driver/sharkytch"  // register driver
	"github.com/d21d3q/meterbus/internal/frame"
	"github.com/d21d3q/meterbus/internal/meter"
	"github.com/d21d3q/meterbus/internal/units"
)

// Result captures the outcome of AnalyzeHex.
type Result struct {
	Driver       string
	RawHex       string
	ByteCount    int
	Telegram     *frame.Telegram
	Fields       map[string]any
	Explanations []frame.Explanation
}

// String renders a human-readable representation of the result.
func (r Result) String() string {
	summary := map[string]any{
		"driver":     r.Driver,
		"byte_count": r.ByteCount,
		"raw_hex":    r.RawHex,
	}
	if r.Telegram != nil {
		summary["meter_id"] = r.Telegram.MeterIDString()
		summary["manufacturer"] = r.Telegram.ManufacturerFlag()
		summary["ci"] = fmt.Sprintf("0x%02X", r.Telegram.CI)
	}
	if len(r.Fields) > 0 {
		summary["fields"] = r.Fields
	}
	if len(r.Explanations) > 0 {
		notes := make([]string, 0, len(r.Explanations))
		for _, e := range r.Explanations {
			notes = append(notes, fmt.Sprintf("%03d: %s", e.Offset, e.Text))
		}
		summary["explanations"] = notes
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Sprintf("driver: %s bytes:%d raw:%s (marshal error: %v)", r.Driver, r.ByteCount, r.RawHex, err)
	}
	return string(data)
}

// AnalyzeOptions configures parsing. Driver forces a driver instead of
// detecting one from the header. Units lists preferred display units such as
// "mwh". A nil Log discards decode warnings.
type AnalyzeOptions struct {
	Driver string
	Units  []string
	Log    *logrus.Entry
}

func (opts AnalyzeOptions) preferredUnits() (map[units.Quantity]units.Unit, error) {
	prefer := make(map[units.Quantity]units.Unit, len(opts.Units))
	for _, name := range opts.Units {
		u, err := units.ParseUnit(name)
		if err != nil {
			return nil, err
		}
		prefer[u.Quantity()] = u
	}
	return prefer, nil
}

func (opts AnalyzeOptions) log() *logrus.Entry {
	if opts.Log != nil {
		return opts.Log
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// AnalyzeHex parses the frame, selects a driver, and returns decoded data.
func AnalyzeHex(ctx context.Context, raw string) (Result, error) {
	return AnalyzeHexWithOptions(ctx, raw, AnalyzeOptions{})
}

// AnalyzeHexWithOptions parses the frame with custom options. A telegram no
// driver claims is not an error: the result has driver "unknown" and no
// fields. A telegram that cannot be decoded carries an "error" field.
func AnalyzeHexWithOptions(ctx context.Context, raw string, opts AnalyzeOptions) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	prefer, err := opts.preferredUnits()
	if err != nil {
		return Result{}, err
	}
	data, err := decodeHex(raw)
	if err != nil {
		return Result{}, err
	}
	telegram, err := frame.Parse(data)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Driver:    "unknown",
		RawHex:    strings.ToUpper(stripWhitespace(raw)),
		ByteCount: len(data),
		Telegram:  &telegram,
	}

	reg, err := selectDriver(&telegram, opts.Driver)
	if err != nil {
		if opts.Driver != "" {
			return result, err
		}
		return result, nil
	}
	result.Driver = reg.Name

	m := reg.Factory(infoFor(reg, &telegram, telegram.MeterIDString()))
	if err := meter.Consume(m, &telegram, opts.log()); err != nil {
		result.Fields = partialFields(m, err)
		result.Explanations = telegram.Explanations
		return result, nil
	}
	result.Fields = meter.Render(m, prefer)
	result.Explanations = telegram.Explanations
	return result, nil
}

func selectDriver(t *frame.Telegram, name string) (driver.Registration, error) {
	if name == "" {
		return driver.Lookup(t)
	}
	reg, ok := driver.ByName(name)
	if !ok {
		return driver.Registration{}, fmt.Errorf("unknown driver %q, known drivers: %s", name, strings.Join(driver.Names(), ", "))
	}
	return reg, nil
}

// infoFor describes the meter that sent t. The driver's media is used when
// the device type byte is not one we can name.
func infoFor(reg driver.Registration, t *frame.Telegram, name string) meter.Info {
	media := t.Media()
	if media == "unknown" && reg.Media != "" {
		media = reg.Media
	}
	return meter.Info{
		Name:         name,
		ID:           t.MeterIDString(),
		Manufacturer: t.ManufacturerFlag(),
		Media:        media,
	}
}

// partialFields describes a telegram whose payload could not be used.
func partialFields(m meter.Meter, err error) map[string]any {
	info := m.Info()
	fields := map[string]any{
		"_":     "telegram",
		"meter": info.Driver,
		"name":  info.Name,
		"id":    info.ID,
		"media": info.Media,
		"error": err.Error(),
	}
	if errors.Is(err, meter.ErrEncrypted) {
		fields["encryption"] = "payload is encrypted, no key support"
	}
	return fields
}

func decodeHex(input string) ([]byte, error) {
	clean := strings.ToUpper(stripWhitespace(input))
	clean = strings.TrimPrefix(clean, "0X")
	if len(clean)%2 != 0 {
		return nil, fmt.Errorf("hex telegram must contain an even number of digits, got %d", len(clean))
	}
	decoded := make([]byte, len(clean)/2)
	if _, err := hex.Decode(decoded, []byte(clean)); err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	return decoded, nil
}

func stripWhitespace(s string) string {
	builder := strings.Builder{}
	builder.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) || r == '|' || r == '_' {
			continue
		}
		builder.WriteRune(r)
	}
	return builder.String()
}
