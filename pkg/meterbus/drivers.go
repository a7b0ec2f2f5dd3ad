package meterbus

import (
	"fmt"

	"github.com/d21d3q/meterbus/internal/driver"
	"github.com/d21d3q/meterbus/internal/meter"
)

// FieldInfo describes one field a driver exposes.
type FieldInfo struct {
	Name     string
	Quantity string
	Unit     string
	Help     string
	Default  bool
}

// Drivers lists the registered driver names.
func Drivers() []string {
	return driver.Names()
}

// DriverFields lists the fields of a driver in registration order.
func DriverFields(name string) ([]FieldInfo, error) {
	reg, ok := driver.ByName(name)
	if !ok {
		return nil, fmt.Errorf("unknown driver %q", name)
	}
	m := reg.Factory(meter.Info{})
	prints := m.Prints()
	out := make([]FieldInfo, 0, len(prints))
	for _, p := range prints {
		out = append(out, FieldInfo{
			Name:     p.Name,
			Quantity: p.Quantity.String(),
			Unit:     p.Display.Symbol(),
			Help:     p.Help,
			Default:  p.Flags&meter.PrintDefault != 0,
		})
	}
	return out, nil
}
