package meter

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/d21d3q/meterbus/internal/dv"
	"github.com/d21d3q/meterbus/internal/frame"
	"github.com/d21d3q/meterbus/internal/units"
)

var (
	ErrUnknownField = errors.New("unknown field")
	ErrNotNumeric   = errors.New("field is not numeric")
	ErrEncrypted    = errors.New("telegram payload is encrypted")
)

// Key selects one value of a driver's private state.
type Key int

// Flags control how a print is emitted.
type Flags uint8

const (
	// PrintDefault fields are part of the rendered reading.
	PrintDefault Flags = 1 << iota
	// PrintLoggable fields may be written to a log line.
	PrintLoggable
)

// Print describes one named field a driver exposes. Unit is the unit the
// driver stores the value in, Display the unit used when rendering (zero
// means Unit). Key selects the value in the driver's state.
type Print struct {
	Name     string
	Quantity units.Quantity
	Unit     units.Unit
	Display  units.Unit
	Key      Key
	Help     string
	Flags    Flags
}

// Info identifies one meter instance.
type Info struct {
	Name         string
	Driver       string
	ID           string
	Manufacturer string
	Media        string
}

// Meter is implemented by every driver. ProcessContent reads the telegram's
// scanned values and overwrites the fields it addresses; others keep their
// previous value.
type Meter interface {
	Info() Info
	Prints() []Print
	Print(name string) (Print, bool)
	FieldValue(Key) float64
	FieldText(Key) string
	ProcessContent(t *frame.Telegram)
}

// Value reads a numeric field converted to u. Asking for a unit of another
// quantity panics: that is a wiring bug, not bad input.
func Value(m Meter, name string, u units.Unit) (float64, error) {
	p, ok := m.Print(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	if p.Quantity == units.Text {
		return 0, fmt.Errorf("%w: %s", ErrNotNumeric, name)
	}
	units.AssertQuantity(u, p.Quantity)
	return units.Convert(m.FieldValue(p.Key), p.Unit, u), nil
}

// Text reads a text field.
func Text(m Meter, name string) (string, error) {
	p, ok := m.Print(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	if p.Quantity != units.Text {
		return "", fmt.Errorf("field %s is a %s field", name, p.Quantity)
	}
	return m.FieldText(p.Key), nil
}

// Common carries the framework state every driver embeds.
type Common struct {
	info   Info
	prints []Print
	index  map[string]int
	log    *logrus.Entry
}

// NewCommon starts an empty print table for the meter described by info.
func NewCommon(info Info) Common {
	return Common{info: info, index: make(map[string]int)}
}

// AddPrint registers a field. It is called while a driver is constructed;
// duplicate names and units outside the field's quantity panic.
func (c *Common) AddPrint(p Print) {
	if _, dup := c.index[p.Name]; dup {
		panic(fmt.Sprintf("meter %s: field %q registered twice", c.info.Driver, p.Name))
	}
	if p.Display == units.UnitUnknown {
		p.Display = p.Unit
	}
	units.AssertQuantity(p.Unit, p.Quantity)
	units.AssertQuantity(p.Display, p.Quantity)
	if c.index == nil {
		c.index = make(map[string]int)
	}
	c.index[p.Name] = len(c.prints)
	c.prints = append(c.prints, p)
}

// AddText registers a text field.
func (c *Common) AddText(name string, key Key, help string, flags Flags) {
	c.AddPrint(Print{
		Name:     name,
		Quantity: units.Text,
		Unit:     units.TextUnit,
		Key:      key,
		Help:     help,
		Flags:    flags,
	})
}

func (c *Common) Info() Info { return c.info }

// Log returns the logger of the telegram being consumed, tagged with the
// meter's driver and id.
func (c *Common) Log() *logrus.Entry {
	if c.log == nil {
		return logrus.WithFields(logrus.Fields{"driver": c.info.Driver, "id": c.info.ID})
	}
	return c.log
}

func (c *Common) setLog(log *logrus.Entry) { c.log = log }

func (c *Common) Prints() []Print { return c.prints }

func (c *Common) Print(name string) (Print, bool) {
	i, ok := c.index[name]
	if !ok {
		return Print{}, false
	}
	return c.prints[i], true
}

// FieldText is overridden by drivers that have text fields.
func (c *Common) FieldText(Key) string { return "" }

// Extract decodes the first record matching q into dst. It reports whether
// dst was written; a missing record or a failed decode leaves dst as is.
func (c *Common) Extract(t *frame.Telegram, q dv.Query, description string, dst *float64) bool {
	e, ok := dv.Find(t.Values, q)
	if !ok {
		return false
	}
	v, _, err := dv.ExtractDouble(t, e, description)
	if err != nil {
		c.logFieldError(e, description, err)
		return false
	}
	*dst = v
	return true
}

// ExtractDate decodes a date or date time record into dst using layout.
func (c *Common) ExtractDate(t *frame.Telegram, q dv.Query, description, layout string, dst *string) bool {
	e, ok := dv.Find(t.Values, q)
	if !ok {
		return false
	}
	ts, _, err := dv.ExtractDate(t, e, description)
	if err != nil {
		c.logFieldError(e, description, err)
		return false
	}
	*dst = ts.Format(layout)
	return true
}
