package driver

import (
	"fmt"
	"sort"
	"sync"

	"github.com/d21d3q/meterbus/internal/frame"
	"github.com/d21d3q/meterbus/internal/meter"
)

// Detection contains minimal information required to identify a driver.
// A zero CI and an empty DeviceTypes match anything.
type Detection struct {
	Manufacturer uint16
	CI           byte
	DeviceTypes  []byte
}

// Factory builds a fresh meter instance.
type Factory func(meter.Info) meter.Meter

// Registration binds a driver name to its factory.
type Registration struct {
	Name    string
	Media   string
	Factory Factory
}

var (
	regMu    sync.RWMutex
	registry []registeredDriver
	byName   = map[string]Registration{}
)

type registeredDriver struct {
	detect Detection
	reg    Registration
}

// Register stores a driver/detection pair in memory. A driver may register
// several detections under one name.
func Register(det Detection, reg Registration) {
	regMu.Lock()
	defer regMu.Unlock()
	registry = append(registry, registeredDriver{detect: det, reg: reg})
	byName[reg.Name] = reg
}

// Lookup returns the first driver whose detection matches the telegram.
func Lookup(t *frame.Telegram) (Registration, error) {
	regMu.RLock()
	defer regMu.RUnlock()
	for _, rd := range registry {
		if rd.detect.matches(t) {
			return rd.reg, nil
		}
	}
	return Registration{}, fmt.Errorf("driver not found for manufacturer %s (0x%04X) CI 0x%02X type 0x%02X",
		t.ManufacturerFlag(), t.Manufacturer, t.CI, t.DeviceType)
}

// ByName returns the registration of a driver.
func ByName(name string) (Registration, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	reg, ok := byName[name]
	return reg, ok
}

// Names lists registered drivers alphabetically.
func Names() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d Detection) matches(t *frame.Telegram) bool {
	if d.Manufacturer != t.Manufacturer {
		return false
	}
	if d.CI != 0 && d.CI != t.CI {
		return false
	}
	if len(d.DeviceTypes) == 0 {
		return true
	}
	for _, dt := range d.DeviceTypes {
		if dt == t.DeviceType {
			return true
		}
	}
	return false
}
