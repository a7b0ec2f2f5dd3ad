// Package hydrodigit decodes BMT Hydrodigit water meters, including the
// manufacturer specific data they send in either the legacy layout (backflow
// and monthly history) or the Hydrolink layout (battery, error flags and
// optional event sections).
package hydrodigit

import (
	"fmt"

	"github.com/d21d3q/meterbus/internal/driver"
	"github.com/d21d3q/meterbus/internal/dv"
	"github.com/d21d3q/meterbus/internal/frame"
	"github.com/d21d3q/meterbus/internal/meter"
	"github.com/d21d3q/meterbus/internal/units"
)

// Name is the driver name used in configuration and output.
const Name = "hydrodigit"

const (
	manufacturerBMT      = 0x09B4
	ciHydrodigitPrimary  = 0x7A
	ciHydrodigitExtended = 0x8C
	dateTimeFormat       = "2006-01-02 15:04"
	deviceTypeWater      = 0x07
	deviceTypeWarmWater  = 0x06
)

var monthOrder = [12]string{
	"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december",
}

const (
	keyTotal meter.Key = iota
	keyVoltage
	keyBackflow
	keyBattery
	keyReverseFlow
	keyMeterDateTime
	keyContents
	keyLeakDate
	keyStatus
	keyErrorBits
	keyEmptyPipeDate
	keyFreezeDate
	keyMonth // keyMonth+i is month i
)

func init() {
	for _, ci := range []byte{ciHydrodigitPrimary, ciHydrodigitExtended} {
		driver.Register(driver.Detection{
			Manufacturer: manufacturerBMT,
			CI:           ci,
			DeviceTypes:  []byte{deviceTypeWater, deviceTypeWarmWater},
		}, driver.Registration{
			Name:    Name,
			Media:   "water",
			Factory: func(info meter.Info) meter.Meter { return New(info) },
		})
	}
}

// Meter implements the hydrodigit post-processing logic.
type Meter struct {
	meter.Common

	totalM3       float64
	voltage       float64
	backflowM3    float64
	battery       float64
	reverseFlowM3 float64
	monthlyM3     [12]float64
	meterDateTime string
	contents      string
	leakDate      string
	status        string
	errorBits     string
	emptyPipeDate string
	freezeDate    string
}

// New builds a meter and registers its fields.
func New(info meter.Info) *Meter {
	info.Driver = Name
	m := &Meter{Common: meter.NewCommon(info)}

	m.AddPrint(meter.Print{Name: "total", Quantity: units.Volume, Unit: units.M3,
		Key: keyTotal, Help: "The total water consumption recorded by this meter.", Flags: meter.PrintDefault | meter.PrintLoggable})
	m.AddText("meter_datetime", keyMeterDateTime, "Date and time when the meter sent the telegram.", meter.PrintDefault)
	m.AddText("contents", keyContents, "What the manufacturer block carries.", meter.PrintDefault)
	m.AddPrint(meter.Print{Name: "voltage", Quantity: units.Voltage, Unit: units.V,
		Key: keyVoltage, Help: "Battery voltage.", Flags: meter.PrintDefault | meter.PrintLoggable})
	m.AddPrint(meter.Print{Name: "backflow", Quantity: units.Volume, Unit: units.M3,
		Key: keyBackflow, Help: "Volume that flowed backwards.", Flags: meter.PrintDefault})
	m.AddText("leak_date", keyLeakDate, "Date of the last detected leak.", meter.PrintDefault)
	m.AddText("status", keyStatus, "Alarm flags from the transport header, or OK.", meter.PrintDefault)
	m.AddPrint(meter.Print{Name: "battery_percent", Quantity: units.Relative, Unit: units.Percent,
		Key: keyBattery, Help: "Remaining battery reported by Hydrolink firmware.", Flags: meter.PrintDefault | meter.PrintLoggable})
	m.AddText("error_bits", keyErrorBits, "Hydrolink error flags as six hex digits.", meter.PrintDefault)
	m.AddPrint(meter.Print{Name: "reverse_flow", Quantity: units.Volume, Unit: units.M3,
		Key: keyReverseFlow, Help: "Reverse flow volume reported by Hydrolink firmware.", Flags: meter.PrintDefault})
	m.AddText("empty_pipe_date", keyEmptyPipeDate, "Date the pipe was last detected empty.", meter.PrintDefault)
	m.AddText("freeze_date", keyFreezeDate, "Date freezing was last detected.", meter.PrintDefault)
	for i, month := range monthOrder {
		m.AddPrint(meter.Print{Name: month + "_total", Quantity: units.Volume, Unit: units.M3,
			Key: keyMonth + meter.Key(i), Help: fmt.Sprintf("Total at the end of %s.", month), Flags: meter.PrintDefault})
	}
	return m
}

func (m *Meter) FieldValue(k meter.Key) float64 {
	switch {
	case k == keyTotal:
		return m.totalM3
	case k == keyVoltage:
		return m.voltage
	case k == keyBackflow:
		return m.backflowM3
	case k == keyBattery:
		return m.battery
	case k == keyReverseFlow:
		return m.reverseFlowM3
	case k >= keyMonth && k < keyMonth+meter.Key(len(m.monthlyM3)):
		return m.monthlyM3[k-keyMonth]
	}
	return 0
}

func (m *Meter) FieldText(k meter.Key) string {
	switch k {
	case keyMeterDateTime:
		return m.meterDateTime
	case keyContents:
		return m.contents
	case keyLeakDate:
		return m.leakDate
	case keyStatus:
		return m.status
	case keyErrorBits:
		return m.errorBits
	case keyEmptyPipeDate:
		return m.emptyPipeDate
	case keyFreezeDate:
		return m.freezeDate
	}
	return ""
}

func (m *Meter) ProcessContent(t *frame.Telegram) {
	volume := dv.KeyQuery(dv.Instantaneous, dv.Volume, 0, 0)
	m.Extract(t, volume, "total consumption", &m.totalM3)
	m.ExtractDate(t, dv.KeyQuery(dv.Instantaneous, dv.DateTime, 0, 0), "meter datetime", dateTimeFormat, &m.meterDateTime)
	m.status = t.StatusText()

	mfct, ok := dv.ManufacturerData(t.Values)
	if !ok {
		return
	}
	primary, found := dv.Find(t.Values, volume)
	scale := monthlyScaleFor(primary, found)
	if isLegacyBlock(mfct.Data) {
		block, err := parseLegacyBlock(mfct.Data, scale)
		if err != nil {
			m.blockError(mfct, err)
			return
		}
		m.applyLegacy(block)
		t.AddExplanation(mfct.DataOffset, fmt.Sprintf("manufacturer data (%s, %.2f V)", m.contents, m.voltage))
		return
	}
	block, err := parseExtendedBlock(mfct.Data, scale)
	if err != nil {
		m.blockError(mfct, err)
		return
	}
	m.applyExtended(block)
	t.AddExplanation(mfct.DataOffset, fmt.Sprintf("manufacturer data (%s, battery %.0f%%, errors %s)", m.contents, m.battery, m.errorBits))
}

func (m *Meter) blockError(mfct dv.Entry, err error) {
	m.Log().WithField("offset", mfct.DataOffset).WithError(err).Warn("manufacturer block not decoded")
}

func (m *Meter) applyLegacy(b legacyBlock) {
	m.contents = b.Contents()
	m.voltage = b.Voltage
	m.backflowM3 = b.BackflowM3
	if b.LeakDate != "" {
		m.leakDate = b.LeakDate
	}
	m.monthlyM3 = b.MonthlyM3
}

// applyExtended keeps the previous value of every optional section the
// block does not carry.
func (m *Meter) applyExtended(b extendedBlock) {
	m.contents = b.Contents()
	m.battery = b.BatteryPercent()
	m.errorBits = fmt.Sprintf("%06X", b.ErrorBits)
	if b.Has(sectionReverseFlow) {
		m.reverseFlowM3 = b.ReverseFlowM3
	}
	if b.EmptyPipeDate != "" {
		m.emptyPipeDate = b.EmptyPipeDate
	}
	if b.LeakDate != "" {
		m.leakDate = b.LeakDate
	}
	if b.FreezeDate != "" {
		m.freezeDate = b.FreezeDate
	}
	if b.Has(sectionMonthly) {
		m.monthlyM3 = b.MonthlyM3
	}
}
