// Package sharkytch decodes the Sharky 775 heat meter as branded by Techem.
package sharkytch

import (
	"github.com/d21d3q/meterbus/internal/driver"
	"github.com/d21d3q/meterbus/internal/dv"
	"github.com/d21d3q/meterbus/internal/frame"
	"github.com/d21d3q/meterbus/internal/meter"
	"github.com/d21d3q/meterbus/internal/units"
)

// Name is the driver name used in configuration and output.
const Name = "sharkytch"

const deviceTypeHeat = 0x04

const (
	keyTotalEnergy meter.Key = iota
	keyTotalVolume
	keyVolumeFlow
	keyPower
	keyFlowTemperature
	keyReturnTemperature
	keyTotalEnergyTariff1
	keyOperatingTime
)

func init() {
	driver.Register(driver.Detection{
		Manufacturer: frame.ManufacturerCode("TCH"),
		DeviceTypes:  []byte{deviceTypeHeat},
	}, driver.Registration{
		Name:    Name,
		Media:   "heat",
		Factory: func(info meter.Info) meter.Meter { return New(info) },
	})
}

// Meter holds the last decoded values of one Sharky heat meter.
type Meter struct {
	meter.Common

	totalEnergyKWh        float64
	totalVolumeM3         float64
	volumeFlowM3H         float64
	powerW                float64
	flowTemperatureC      float64
	returnTemperatureC    float64
	totalEnergyTariff1KWh float64
	operatingTimeS        float64
}

// New builds a meter and registers its fields.
func New(info meter.Info) *Meter {
	info.Driver = Name
	m := &Meter{Common: meter.NewCommon(info)}
	const flags = meter.PrintDefault | meter.PrintLoggable

	m.AddPrint(meter.Print{Name: "total_energy_consumption", Quantity: units.Energy, Unit: units.KWH,
		Key: keyTotalEnergy, Help: "The total energy consumption recorded by this meter.", Flags: flags})
	m.AddPrint(meter.Print{Name: "total_volume", Quantity: units.Volume, Unit: units.M3,
		Key: keyTotalVolume, Help: "The total volume recorded by this meter.", Flags: flags})
	m.AddPrint(meter.Print{Name: "volume_flow", Quantity: units.Flow, Unit: units.M3H,
		Key: keyVolumeFlow, Help: "The current flow.", Flags: flags})
	m.AddPrint(meter.Print{Name: "power", Quantity: units.Power, Unit: units.W, Display: units.KW,
		Key: keyPower, Help: "The power.", Flags: flags})
	m.AddPrint(meter.Print{Name: "flow_temperature", Quantity: units.Temperature, Unit: units.C,
		Key: keyFlowTemperature, Help: "The flow temperature.", Flags: flags})
	m.AddPrint(meter.Print{Name: "return_temperature", Quantity: units.Temperature, Unit: units.C,
		Key: keyReturnTemperature, Help: "The return temperature.", Flags: flags})
	m.AddPrint(meter.Print{Name: "total_energy_consumption_tariff1", Quantity: units.Energy, Unit: units.KWH,
		Key: keyTotalEnergyTariff1, Help: "The total energy consumption recorded by this meter on tariff 1.", Flags: flags})
	m.AddPrint(meter.Print{Name: "operating_time", Quantity: units.Time, Unit: units.Second, Display: units.Hour,
		Key: keyOperatingTime, Help: "How long the meter has been in operation.", Flags: flags})
	return m
}

func (m *Meter) FieldValue(k meter.Key) float64 {
	switch k {
	case keyTotalEnergy:
		return m.totalEnergyKWh
	case keyTotalVolume:
		return m.totalVolumeM3
	case keyVolumeFlow:
		return m.volumeFlowM3H
	case keyPower:
		return m.powerW
	case keyFlowTemperature:
		return m.flowTemperatureC
	case keyReturnTemperature:
		return m.returnTemperatureC
	case keyTotalEnergyTariff1:
		return m.totalEnergyTariff1KWh
	case keyOperatingTime:
		return m.operatingTimeS
	}
	return 0
}

// ProcessContent reads the records a Sharky sends:
//
//	0C 06          total energy, 8 digit BCD kWh
//	0C 13          total volume, 8 digit BCD litres
//	0B 3B          volume flow, 6 digit BCD l/h
//	0C 2B          power, 8 digit BCD W
//	0A 5A / 0A 5E  flow and return temperature, 4 digit BCD 0.1 °C
//	8C 10 06       energy on tariff 1
//	0B 26          operating time, 6 digit BCD hours
func (m *Meter) ProcessContent(t *frame.Telegram) {
	m.Extract(t, dv.KeyQuery(dv.Instantaneous, dv.EnergyWh, 0, 0), "total energy consumption", &m.totalEnergyKWh)
	m.Extract(t, dv.KeyQuery(dv.Instantaneous, dv.Volume, 0, 0), "total volume", &m.totalVolumeM3)
	m.Extract(t, dv.KeyQuery(dv.Instantaneous, dv.VolumeFlow, 0, 0), "volume flow", &m.volumeFlowM3H)
	m.Extract(t, dv.KeyQuery(dv.Instantaneous, dv.PowerW, 0, 0), "power", &m.powerW)
	m.Extract(t, dv.KeyQuery(dv.Instantaneous, dv.FlowTemperature, 0, 0), "flow temperature", &m.flowTemperatureC)
	m.Extract(t, dv.KeyQuery(dv.Instantaneous, dv.ReturnTemperature, 0, 0), "return temperature", &m.returnTemperatureC)
	m.Extract(t, dv.KeyQuery(dv.Instantaneous, dv.EnergyWh, 0, 1), "total energy tariff 1", &m.totalEnergyTariff1KWh)
	m.Extract(t, dv.KeyQuery(dv.Instantaneous, dv.OperatingTime, 0, 0), "operating time", &m.operatingTimeS)
}
