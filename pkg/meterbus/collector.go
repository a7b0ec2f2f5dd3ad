package meterbus

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/d21d3q/meterbus/internal/config"
	"github.com/d21d3q/meterbus/internal/driver"
	"github.com/d21d3q/meterbus/internal/frame"
	"github.com/d21d3q/meterbus/internal/meter"
	"github.com/d21d3q/meterbus/internal/metrics"
	"github.com/d21d3q/meterbus/internal/units"
)

// ErrIgnored is returned for telegrams from meters the collector is not
// configured for.
var ErrIgnored = errors.New("meter not configured")

// Publisher receives every reading the collector produces.
type Publisher interface {
	PublishReading(meterName string, fields map[string]any) error
}

// CollectorOptions wires a Collector. An empty Meters list accepts every
// meter a driver claims; otherwise only listed ids are decoded.
type CollectorOptions struct {
	Meters    []config.MeterConfig
	Units     map[units.Quantity]units.Unit
	Metrics   *metrics.Collector
	Publisher Publisher
	Log       *logrus.Entry
}

type instanceKey struct {
	driver string
	id     string
}

// Collector keeps one meter instance per (driver, id) and feeds it the
// telegrams addressed to it, in arrival order.
type Collector struct {
	opts CollectorOptions
	log  *logrus.Entry

	mu     sync.Mutex
	meters map[instanceKey]meter.Meter
}

// NewCollector checks that every pinned driver exists.
func NewCollector(opts CollectorOptions) (*Collector, error) {
	for _, mc := range opts.Meters {
		if mc.Driver == "" {
			continue
		}
		if _, ok := driver.ByName(mc.Driver); !ok {
			return nil, fmt.Errorf("meter %s: unknown driver %q", mc.Name, mc.Driver)
		}
	}
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Collector{
		opts:   opts,
		log:    log,
		meters: make(map[instanceKey]meter.Meter),
	}, nil
}

// HandleHex decodes one hex encoded telegram.
func (c *Collector) HandleHex(ctx context.Context, line string) (map[string]any, error) {
	raw, err := decodeHex(line)
	if err != nil {
		c.count("", metrics.OutcomeMalformed)
		return nil, err
	}
	return c.Handle(ctx, raw)
}

// Handle decodes one telegram, updates its meter and publishes the reading.
func (c *Collector) Handle(ctx context.Context, raw []byte) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := frame.Parse(raw)
	if err != nil {
		c.count("", metrics.OutcomeMalformed)
		return nil, err
	}
	id := t.MeterIDString()
	log := c.log.WithFields(logrus.Fields{"id": id, "manufacturer": t.ManufacturerFlag()})

	mc, configured := c.meterConfig(id)
	if !configured && len(c.opts.Meters) > 0 {
		c.count("", metrics.OutcomeIgnored)
		log.Debug("ignoring telegram from unconfigured meter")
		return nil, fmt.Errorf("%s: %w", id, ErrIgnored)
	}
	reg, err := selectDriver(&t, mc.Driver)
	if err != nil {
		c.count("", metrics.OutcomeNoDriver)
		log.WithError(err).Info("no driver for telegram")
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.instance(reg, &t, mc)
	if err := meter.Consume(m, &t, log); err != nil {
		if errors.Is(err, meter.ErrEncrypted) {
			c.count(reg.Name, metrics.OutcomeEncrypted)
		} else {
			c.count(reg.Name, metrics.OutcomeDiscarded)
		}
		return nil, err
	}
	c.count(reg.Name, metrics.OutcomeDecoded)

	fields := meter.Render(m, c.opts.Units)
	if c.opts.Metrics != nil {
		c.opts.Metrics.Fields(reg.Name, m.Info().Name, numericFields(fields))
	}
	if c.opts.Publisher != nil {
		if err := c.opts.Publisher.PublishReading(m.Info().Name, fields); err != nil {
			log.WithError(err).Warn("publish failed")
			return fields, err
		}
	}
	return fields, nil
}

// Run reads one hex telegram per line until r is exhausted or ctx is done.
// Blank lines and lines starting with '#' are skipped; bad telegrams are
// logged and do not stop the loop.
func (c *Collector) Run(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, err := c.HandleHex(ctx, line); err != nil && !errors.Is(err, ErrIgnored) {
			c.log.WithError(err).Warn("telegram not processed")
		}
	}
	return scanner.Err()
}

// Meter returns the instance for driver and id, if one has been created.
func (c *Collector) Meter(driverName, id string) (meter.Meter, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.meters[instanceKey{driver: driverName, id: id}]
	return m, ok
}

// Len returns the number of meter instances.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.meters)
}

func (c *Collector) instance(reg driver.Registration, t *frame.Telegram, mc config.MeterConfig) meter.Meter {
	key := instanceKey{driver: reg.Name, id: t.MeterIDString()}
	if m, ok := c.meters[key]; ok {
		return m
	}
	name := mc.Name
	if name == "" {
		name = key.id
	}
	m := reg.Factory(infoFor(reg, t, name))
	c.meters[key] = m
	if c.opts.Metrics != nil {
		c.opts.Metrics.Meters(len(c.meters))
	}
	c.log.WithFields(logrus.Fields{"driver": reg.Name, "id": key.id, "name": name}).Info("new meter")
	return m
}

func (c *Collector) meterConfig(id string) (config.MeterConfig, bool) {
	for _, mc := range c.opts.Meters {
		if strings.EqualFold(mc.ID, id) {
			return mc, true
		}
	}
	return config.MeterConfig{}, false
}

func (c *Collector) count(driverName, outcome string) {
	if c.opts.Metrics != nil {
		c.opts.Metrics.Telegram(driverName, outcome)
	}
}

func numericFields(fields map[string]any) map[string]float64 {
	out := make(map[string]float64, len(fields))
	for k, v := range fields {
		if f, ok := v.(float64); ok {
			out[k] = f
		}
	}
	return out
}
