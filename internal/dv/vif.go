package dv

import (
	"fmt"

	"github.com/d21d3q/meterbus/internal/units"
)

// ValueInformation names what a record measures, independent of its scale.
type ValueInformation int

const (
	Unknown ValueInformation = iota
	EnergyWh
	EnergyMJ
	Volume
	Mass
	OnTime
	OperatingTime
	PowerW
	PowerJh
	VolumeFlow
	FlowTemperature
	ReturnTemperature
	TemperatureDifference
	ExternalTemperature
	Pressure
	Date
	DateTime
	HeatCostAllocation
	AveragingDuration
	ActualityDuration
	FabricationNo
	EnhancedIdentification
	BusAddress
	PlainText
	AnyVIF
	ManufacturerSpecific
	AccessNumber
	ErrorFlags
	Dimensionless
	Voltage
	Current
	RemainingBattery
)

var valueInformationNames = [...]string{
	Unknown:                "unknown",
	EnergyWh:               "energy",
	EnergyMJ:               "energy (J)",
	Volume:                 "volume",
	Mass:                   "mass",
	OnTime:                 "on time",
	OperatingTime:          "operating time",
	PowerW:                 "power",
	PowerJh:                "power (J/h)",
	VolumeFlow:             "volume flow",
	FlowTemperature:        "flow temperature",
	ReturnTemperature:      "return temperature",
	TemperatureDifference:  "temperature difference",
	ExternalTemperature:    "external temperature",
	Pressure:               "pressure",
	Date:                   "date",
	DateTime:               "date time",
	HeatCostAllocation:     "heat cost allocation",
	AveragingDuration:      "averaging duration",
	ActualityDuration:      "actuality duration",
	FabricationNo:          "fabrication number",
	EnhancedIdentification: "enhanced identification",
	BusAddress:             "bus address",
	PlainText:              "plain text unit",
	AnyVIF:                 "any VIF",
	ManufacturerSpecific:   "manufacturer specific",
	AccessNumber:           "access number",
	ErrorFlags:             "error flags",
	Dimensionless:          "dimensionless",
	Voltage:                "voltage",
	Current:                "current",
	RemainingBattery:       "remaining battery",
}

func (v ValueInformation) String() string {
	if v >= 0 && int(v) < len(valueInformationNames) {
		return valueInformationNames[v]
	}
	return fmt.Sprintf("vif(%d)", int(v))
}

// Scale tells how a raw record value maps onto the default unit of its
// quantity: value = raw * 10^Exponent * Factor.
type Scale struct {
	Info     ValueInformation
	Quantity units.Quantity
	Exponent int
	Factor   float64
	Signed   bool
}

// Unit is the unit decoded values of this scale are expressed in.
func (s Scale) Unit() units.Unit {
	return s.Quantity.DefaultUnit()
}

func (s Scale) factor() float64 {
	if s.Factor == 0 {
		return 1
	}
	return s.Factor
}

var timeFactors = [4]float64{1, 60, 3600, 86400}

// primaryScale covers VIF codes 0x00-0x7F (extension bit masked off).
func primaryScale(code byte) Scale {
	n := int(code & 0x07)
	nn := int(code & 0x03)
	switch {
	case code <= 0x07:
		return Scale{Info: EnergyWh, Quantity: units.Energy, Exponent: n - 6}
	case code <= 0x0F:
		return Scale{Info: EnergyMJ, Quantity: units.Energy, Exponent: n, Factor: 1 / 3.6e6}
	case code <= 0x17:
		return Scale{Info: Volume, Quantity: units.Volume, Exponent: n - 6}
	case code <= 0x1F:
		return Scale{Info: Mass, Quantity: units.Mass, Exponent: n - 3}
	case code <= 0x23:
		return Scale{Info: OnTime, Quantity: units.Time, Factor: timeFactors[nn]}
	case code <= 0x27:
		return Scale{Info: OperatingTime, Quantity: units.Time, Factor: timeFactors[nn]}
	case code <= 0x2F:
		return Scale{Info: PowerW, Quantity: units.Power, Exponent: n - 3, Signed: true}
	case code <= 0x37:
		return Scale{Info: PowerJh, Quantity: units.Power, Exponent: n, Factor: 1 / 3600.0, Signed: true}
	case code <= 0x3F:
		return Scale{Info: VolumeFlow, Quantity: units.Flow, Exponent: n - 6, Signed: true}
	case code <= 0x47:
		return Scale{Info: VolumeFlow, Quantity: units.Flow, Exponent: n - 7, Factor: 60, Signed: true}
	case code <= 0x4F:
		return Scale{Info: VolumeFlow, Quantity: units.Flow, Exponent: n - 9, Factor: 3600, Signed: true}
	case code >= 0x58 && code <= 0x5B:
		return Scale{Info: FlowTemperature, Quantity: units.Temperature, Exponent: nn - 3, Signed: true}
	case code >= 0x5C && code <= 0x5F:
		return Scale{Info: ReturnTemperature, Quantity: units.Temperature, Exponent: nn - 3, Signed: true}
	case code >= 0x60 && code <= 0x63:
		return Scale{Info: TemperatureDifference, Quantity: units.Temperature, Exponent: nn - 3, Signed: true}
	case code >= 0x64 && code <= 0x67:
		return Scale{Info: ExternalTemperature, Quantity: units.Temperature, Exponent: nn - 3, Signed: true}
	case code >= 0x68 && code <= 0x6B:
		return Scale{Info: Pressure, Quantity: units.Pressure, Exponent: nn - 3}
	case code == 0x6C:
		return Scale{Info: Date}
	case code == 0x6D:
		return Scale{Info: DateTime}
	case code == 0x6E:
		return Scale{Info: HeatCostAllocation, Quantity: units.Counter}
	case code >= 0x70 && code <= 0x73:
		return Scale{Info: AveragingDuration, Quantity: units.Time, Factor: timeFactors[nn]}
	case code >= 0x74 && code <= 0x77:
		return Scale{Info: ActualityDuration, Quantity: units.Time, Factor: timeFactors[nn]}
	case code == 0x78:
		return Scale{Info: FabricationNo, Quantity: units.Counter}
	case code == 0x79:
		return Scale{Info: EnhancedIdentification, Quantity: units.Counter}
	case code == 0x7A:
		return Scale{Info: BusAddress, Quantity: units.Counter}
	case code == 0x7C:
		return Scale{Info: PlainText}
	case code == 0x7E:
		return Scale{Info: AnyVIF}
	case code == 0x7F:
		return Scale{Info: ManufacturerSpecific}
	default:
		return Scale{Info: Unknown}
	}
}

// extensionScaleFB covers the first extension table (VIF 0xFB).
func extensionScaleFB(code byte) Scale {
	n := int(code & 0x01)
	switch code {
	case 0x00, 0x01:
		return Scale{Info: EnergyWh, Quantity: units.Energy, Exponent: n + 2}
	case 0x08, 0x09:
		return Scale{Info: EnergyMJ, Quantity: units.Energy, Exponent: n + 2, Factor: 1 / 3.6}
	case 0x10, 0x11:
		return Scale{Info: Volume, Quantity: units.Volume, Exponent: n + 2}
	case 0x28, 0x29:
		return Scale{Info: PowerW, Quantity: units.Power, Exponent: n + 5, Signed: true}
	default:
		return Scale{Info: Unknown}
	}
}

// extensionScaleFD covers the second extension table (VIF 0xFD).
func extensionScaleFD(code byte) Scale {
	switch {
	case code == 0x08:
		return Scale{Info: AccessNumber, Quantity: units.Counter}
	case code == 0x17:
		return Scale{Info: ErrorFlags, Quantity: units.Counter}
	case code == 0x3A:
		return Scale{Info: Dimensionless, Quantity: units.Counter}
	case code >= 0x40 && code <= 0x4F:
		return Scale{Info: Voltage, Quantity: units.Voltage, Exponent: int(code&0x0F) - 9}
	case code >= 0x50 && code <= 0x5F:
		return Scale{Info: Current, Quantity: units.Current, Exponent: int(code&0x0F) - 12, Signed: true}
	case code == 0x74:
		return Scale{Info: RemainingBattery, Quantity: units.Time, Factor: 86400}
	default:
		return Scale{Info: Unknown}
	}
}

// ScaleFor resolves a VIF and its VIFE chain. For the 0xFB and 0xFD
// extension tables the first VIFE selects the entry; remaining VIFEs are
// combinable and only the multiplicative correction 0x70-0x77 changes the
// scale.
func ScaleFor(vif byte, vife []byte) Scale {
	var s Scale
	combinable := vife
	switch vif {
	case 0xFB, 0xFD:
		if len(vife) == 0 {
			return Scale{Info: Unknown}
		}
		if vif == 0xFB {
			s = extensionScaleFB(vife[0] & 0x7F)
		} else {
			s = extensionScaleFD(vife[0] & 0x7F)
		}
		combinable = vife[1:]
	default:
		s = primaryScale(vif & 0x7F)
	}
	for _, c := range combinable {
		if code := c & 0x7F; code >= 0x70 && code <= 0x77 {
			s.Exponent += int(code&0x07) - 6
		}
	}
	return s
}
