package units

import (
	"fmt"
	"strings"
)

// Quantity is a measurement family. Units convert only within one family.
type Quantity int

const (
	QuantityUnknown Quantity = iota
	Energy
	Volume
	Flow
	Power
	Temperature
	Time
	Voltage
	Current
	Mass
	Pressure
	Relative
	Counter
	Text
)

var quantityNames = map[Quantity]string{
	QuantityUnknown: "unknown",
	Energy:          "energy",
	Volume:          "volume",
	Flow:            "flow",
	Power:           "power",
	Temperature:     "temperature",
	Time:            "time",
	Voltage:         "voltage",
	Current:         "current",
	Mass:            "mass",
	Pressure:        "pressure",
	Relative:        "relative",
	Counter:         "counter",
	Text:            "text",
}

func (q Quantity) String() string {
	if name, ok := quantityNames[q]; ok {
		return name
	}
	return fmt.Sprintf("quantity(%d)", int(q))
}

// DefaultUnit returns the base unit decoded values of the quantity are
// expressed in.
func (q Quantity) DefaultUnit() Unit {
	switch q {
	case Energy:
		return KWH
	case Volume:
		return M3
	case Flow:
		return M3H
	case Power:
		return W
	case Temperature:
		return C
	case Time:
		return Second
	case Voltage:
		return V
	case Current:
		return A
	case Mass:
		return KG
	case Pressure:
		return Bar
	case Relative:
		return Percent
	case Counter:
		return Count
	case Text:
		return TextUnit
	default:
		return UnitUnknown
	}
}

// Unit is a concrete scale within a quantity.
type Unit int

const (
	UnitUnknown Unit = iota
	KWH
	WH
	MWH
	J
	KJ
	MJ
	GJ
	M3
	L
	M3H
	LH
	W
	KW
	MW
	C
	F
	K
	Second
	Minute
	Hour
	Day
	Year
	V
	MV
	A
	KG
	Ton
	Bar
	Percent
	Count
	TextUnit
)

// unitDef describes a unit as a linear map onto the quantity's default unit:
// base = value*factor + offset.
type unitDef struct {
	quantity Quantity
	name     string
	symbol   string
	factor   float64
	offset   float64
}

var unitDefs = map[Unit]unitDef{
	KWH:      {Energy, "kwh", "kWh", 1, 0},
	WH:       {Energy, "wh", "Wh", 1e-3, 0},
	MWH:      {Energy, "mwh", "MWh", 1e3, 0},
	J:        {Energy, "j", "J", 1 / 3.6e6, 0},
	KJ:       {Energy, "kj", "kJ", 1 / 3.6e3, 0},
	MJ:       {Energy, "mj", "MJ", 1 / 3.6, 0},
	GJ:       {Energy, "gj", "GJ", 1e3 / 3.6, 0},
	M3:       {Volume, "m3", "m³", 1, 0},
	L:        {Volume, "l", "l", 1e-3, 0},
	M3H:      {Flow, "m3h", "m³/h", 1, 0},
	LH:       {Flow, "lh", "l/h", 1e-3, 0},
	W:        {Power, "w", "W", 1, 0},
	KW:       {Power, "kw", "kW", 1e3, 0},
	MW:       {Power, "mw", "MW", 1e6, 0},
	C:        {Temperature, "c", "°C", 1, 0},
	F:        {Temperature, "f", "°F", 5.0 / 9.0, -32 * 5.0 / 9.0},
	K:        {Temperature, "k", "K", 1, -273.15},
	Second:   {Time, "s", "s", 1, 0},
	Minute:   {Time, "min", "min", 60, 0},
	Hour:     {Time, "h", "h", 3600, 0},
	Day:      {Time, "d", "d", 86400, 0},
	Year:     {Time, "y", "y", 365 * 86400, 0},
	V:        {Voltage, "v", "V", 1, 0},
	MV:       {Voltage, "mv", "mV", 1e-3, 0},
	A:        {Current, "a", "A", 1, 0},
	KG:       {Mass, "kg", "kg", 1, 0},
	Ton:      {Mass, "t", "t", 1e3, 0},
	Bar:      {Pressure, "bar", "bar", 1, 0},
	Percent:  {Relative, "pct", "%", 1, 0},
	Count:    {Counter, "counter", "", 1, 0},
	TextUnit: {Text, "txt", "", 1, 0},
}

// Quantity returns the family the unit belongs to.
func (u Unit) Quantity() Quantity {
	return unitDefs[u].quantity
}

// Symbol is the human readable unit, e.g. "m³/h".
func (u Unit) Symbol() string {
	return unitDefs[u].symbol
}

// Suffix is the lower-case token appended to rendered field names.
func (u Unit) Suffix() string {
	return unitDefs[u].name
}

func (u Unit) String() string {
	if def, ok := unitDefs[u]; ok {
		return def.name
	}
	return fmt.Sprintf("unit(%d)", int(u))
}

// All returns every known unit, in declaration order.
func All() []Unit {
	out := make([]Unit, 0, len(unitDefs))
	for u := KWH; u <= TextUnit; u++ {
		out = append(out, u)
	}
	return out
}

// ParseUnit maps a suffix such as "kwh" or "m3h" back to its unit.
func ParseUnit(name string) (Unit, error) {
	clean := strings.ToLower(strings.TrimSpace(name))
	for u, def := range unitDefs {
		if def.name == clean {
			return u, nil
		}
	}
	return UnitUnknown, fmt.Errorf("unknown unit %q", name)
}
