package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes of one received telegram.
const (
	OutcomeDecoded   = "decoded"
	OutcomeEncrypted = "encrypted"
	OutcomeDiscarded = "discarded"
	OutcomeNoDriver  = "no_driver"
	OutcomeMalformed = "malformed"
	OutcomeIgnored   = "ignored"
)

// Collector counts what the telegram collector does.
type Collector struct {
	telegrams *prometheus.CounterVec
	fields    *prometheus.CounterVec
	meters    prometheus.Gauge
	value     *prometheus.GaugeVec
}

// New registers the collector's metrics with reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		telegrams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meterbus_telegrams_total",
			Help: "Telegrams received, by driver and outcome.",
		}, []string{"driver", "outcome"}),
		fields: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meterbus_field_updates_total",
			Help: "Numeric fields published after a decoded telegram.",
		}, []string{"driver"}),
		meters: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meterbus_known_meters",
			Help: "Meter instances the collector holds state for.",
		}),
		value: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "meterbus_field_value",
			Help: "Last decoded value of a numeric field, in its display unit.",
		}, []string{"meter", "field"}),
	}
	reg.MustRegister(c.telegrams, c.fields, c.meters, c.value)
	return c
}

// Telegram counts one telegram with its outcome.
func (c *Collector) Telegram(driver, outcome string) {
	if driver == "" {
		driver = "unknown"
	}
	c.telegrams.WithLabelValues(driver, outcome).Inc()
}

// Fields records the numeric fields of one rendered reading.
func (c *Collector) Fields(driver, meter string, values map[string]float64) {
	c.fields.WithLabelValues(driver).Add(float64(len(values)))
	for field, v := range values {
		c.value.WithLabelValues(meter, field).Set(v)
	}
}

// Meters sets the number of meter instances held.
func (c *Collector) Meters(n int) {
	c.meters.Set(float64(n))
}
