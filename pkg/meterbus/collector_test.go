package meterbus

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/d21d3q/meterbus/internal/config"
	"github.com/d21d3q/meterbus/internal/meter"
	"github.com/d21d3q/meterbus/internal/metrics"
	internaltestutil "github.com/d21d3q/meterbus/internal/testutil"
	"github.com/d21d3q/meterbus/internal/units"
)

type recordingPublisher struct {
	topics   []string
	readings []map[string]any
	err      error
}

func (p *recordingPublisher) PublishReading(name string, fields map[string]any) error {
	p.topics = append(p.topics, name)
	p.readings = append(p.readings, fields)
	return p.err
}

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newTestCollector(t *testing.T, opts CollectorOptions) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	opts.Metrics = metrics.New(reg)
	if opts.Log == nil {
		opts.Log = quietLog()
	}
	c, err := NewCollector(opts)
	require.NoError(t, err)
	return c, reg
}

func telegramsTotal(t *testing.T, reg *prometheus.Registry) int {
	t.Helper()
	n, err := testutil.GatherAndCount(reg, "meterbus_telegrams_total")
	require.NoError(t, err)
	return n
}

func TestCollectorPublishesReadings(t *testing.T) {
	pub := &recordingPublisher{}
	c, reg := newTestCollector(t, CollectorOptions{
		Meters:    []config.MeterConfig{{Name: "heat", ID: "12345678"}},
		Units:     map[units.Quantity]units.Unit{units.Energy: units.MWH},
		Publisher: pub,
	})

	fields, err := c.HandleHex(context.Background(), internaltestutil.LoadHex(t, "sharkytch/sharky.hex"))
	require.NoError(t, err)
	require.Equal(t, "heat", fields["name"])
	require.InDelta(t, 240.522, fields["total_energy_consumption_mwh"], 1e-9)

	require.Equal(t, []string{"heat"}, pub.topics)
	require.Equal(t, 1, c.Len())
	require.Equal(t, 1, telegramsTotal(t, reg))
	n, err := testutil.GatherAndCount(reg, "meterbus_field_value")
	require.NoError(t, err)
	require.Equal(t, 8, n)
}

func TestCollectorKeepsOneInstancePerMeter(t *testing.T) {
	c, _ := newTestCollector(t, CollectorOptions{})
	ctx := context.Background()
	sharky := internaltestutil.LoadHex(t, "sharkytch/sharky.hex")

	_, err := c.HandleHex(ctx, sharky)
	require.NoError(t, err)
	_, err = c.HandleHex(ctx, sharky)
	require.NoError(t, err)
	_, err = c.HandleHex(ctx, internaltestutil.LoadHex(t, "hydrodigit/hydrodigit_water.hex"))
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())

	m, ok := c.Meter("sharkytch", "12345678")
	require.True(t, ok)
	v, err := meter.Value(m, "total_volume", units.M3)
	require.NoError(t, err)
	require.InDelta(t, 9654.256, v, 1e-9)
	require.Equal(t, "12345678", m.Info().Name)
}

func TestCollectorIgnoresUnconfiguredMeters(t *testing.T) {
	pub := &recordingPublisher{}
	c, _ := newTestCollector(t, CollectorOptions{
		Meters:    []config.MeterConfig{{Name: "water", ID: "86868686"}},
		Publisher: pub,
	})
	_, err := c.HandleHex(context.Background(), internaltestutil.LoadHex(t, "sharkytch/sharky.hex"))
	require.ErrorIs(t, err, ErrIgnored)
	require.Empty(t, pub.topics)
	require.Zero(t, c.Len())
}

func TestCollectorPinnedDriver(t *testing.T) {
	_, err := NewCollector(CollectorOptions{Meters: []config.MeterConfig{{Name: "x", ID: "00000001", Driver: "nope"}}})
	require.ErrorContains(t, err, "unknown driver")

	c, _ := newTestCollector(t, CollectorOptions{
		Meters: []config.MeterConfig{{Name: "odd", ID: "12345678", Driver: "hydrodigit"}},
	})
	fields, err := c.HandleHex(context.Background(), kamstrupFrame)
	require.NoError(t, err)
	require.Equal(t, "hydrodigit", fields["meter"])
}

func TestCollectorDiscardsBadTelegrams(t *testing.T) {
	logger, hook := test.NewNullLogger()
	c, _ := newTestCollector(t, CollectorOptions{Log: logrus.NewEntry(logger)})
	ctx := context.Background()

	_, err := c.HandleHex(ctx, internaltestutil.LoadHex(t, "hydrodigit/hydrodigit_encrypted.hex"))
	require.ErrorIs(t, err, meter.ErrEncrypted)

	_, err = c.HandleHex(ctx, "0044")
	require.Error(t, err)

	_, err = c.HandleHex(ctx, kamstrupFrame)
	require.Error(t, err)

	// sharky frame cut inside the last record, length byte fixed up
	sharky := internaltestutil.LoadHex(t, "sharkytch/sharky.hex")
	cut := "37" + sharky[2:len(sharky)-4]
	_, err = c.HandleHex(ctx, cut)
	require.Error(t, err)
	require.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	require.Equal(t, "discarding telegram", hook.LastEntry().Message)
}

func TestCollectorPublishError(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	c, _ := newTestCollector(t, CollectorOptions{Publisher: pub})
	fields, err := c.HandleHex(context.Background(), internaltestutil.LoadHex(t, "sharkytch/sharky.hex"))
	require.ErrorContains(t, err, "broker down")
	require.NotNil(t, fields)
}

func TestCollectorRun(t *testing.T) {
	pub := &recordingPublisher{}
	c, reg := newTestCollector(t, CollectorOptions{Publisher: pub})
	input := strings.Join([]string{
		"# captured telegrams",
		internaltestutil.LoadHex(t, "sharkytch/sharky.hex"),
		"",
		"not hex",
		internaltestutil.LoadHex(t, "hydrocalm4/hydrocalm4.hex"),
	}, "\n")
	require.NoError(t, c.Run(context.Background(), strings.NewReader(input)))
	require.Len(t, pub.readings, 2)
	require.Equal(t, 2, c.Len())
	require.Equal(t, 3, telegramsTotal(t, reg))
}

func TestCollectorRunStopsOnCancel(t *testing.T) {
	c, _ := newTestCollector(t, CollectorOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Run(ctx, strings.NewReader(kamstrupFrame+"\n"))
	require.ErrorIs(t, err, context.Canceled)
}
