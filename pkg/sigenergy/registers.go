package sigenergy

import (
	"slices"
)

type DeviceKind int

const (
	KindPlant DeviceKind = iota
	KindInverter
	KindACCharger
	KindDCCharger
)

func (k DeviceKind) String() string {
	switch k {
	case KindPlant:
		return "plant"
	case KindInverter:
		return "inverter"
	case KindACCharger:
		return "ac_charger"
	case KindDCCharger:
		return "dc_charger"
	}
	return "unknown"
}

type DataType int

const (
	U16 DataType = iota
	S16
	U32
	S32
	U64
	String
)

// Table selects the Modbus function used to read a register.
type Table int

const (
	InputTable Table = iota
	HoldingTable
)

type Access int

const (
	ReadOnly Access = iota
	ReadWrite
	WriteOnly
)

// RegisterSpec is one candidate register of the catalog. Gain divides the raw
// integer to produce the engineering value (e.g. raw 5230 with gain 1000 is
// 5.23 kW). Min/Max bound the engineering value of writable registers; Enum
// enumerates the valid raw values of mode-like registers.
type RegisterSpec struct {
	Name    string
	Address uint16
	Words   uint16
	Type    DataType
	Gain    float64
	Unit    string
	Table   Table
	Access  Access
	Min     float64
	Max     float64
	HasMin  bool
	HasMax  bool
	Enum    map[uint16]string
}

func (r RegisterSpec) Readable() bool {
	return r.Access != WriteOnly
}

func (r RegisterSpec) Writable() bool {
	return r.Access != ReadOnly
}

func rangeOf(min, max float64) func(*RegisterSpec) {
	return func(r *RegisterSpec) {
		r.Min, r.HasMin = min, true
		r.Max, r.HasMax = max, true
	}
}

func enumOf(values map[uint16]string) func(*RegisterSpec) {
	return func(r *RegisterSpec) {
		r.Enum = values
	}
}

func reg(name string, addr uint16, words uint16, t DataType, gain float64, unit string, table Table, access Access, opts ...func(*RegisterSpec)) RegisterSpec {
	r := RegisterSpec{
		Name:    name,
		Address: addr,
		Words:   words,
		Type:    t,
		Gain:    gain,
		Unit:    unit,
		Table:   table,
		Access:  access,
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

var RemoteEMSControlModes = map[uint16]string{
	0: "PCS Remote Control",
	1: "Standby",
	2: "Maximum Self Consumption",
	3: "Command Charging (Grid First)",
	4: "Command Charging (PV First)",
	5: "Command Discharging (PV First)",
	6: "Command Discharging (ESS First)",
}

var runningStates = map[uint16]string{
	0: "Standby",
	1: "Running",
	2: "Fault",
	3: "Shutdown",
}

var onOff = map[uint16]string{
	0: "Off",
	1: "On",
}

// Plant running info. Input table, refreshed every poll cycle.
var plantRunningRegisters = []RegisterSpec{
	reg("plant_on_off_grid_status", 30003, 1, U16, 1, "", InputTable, ReadOnly,
		enumOf(map[uint16]string{0: "On Grid", 1: "Off Grid"})),
	reg("plant_grid_sensor_status", 30004, 1, U16, 1, "", InputTable, ReadOnly,
		enumOf(map[uint16]string{0: "Not Connected", 1: "Connected"})),
	reg("plant_grid_sensor_active_power", 30005, 2, S32, 1000, "kW", InputTable, ReadOnly),
	reg("plant_grid_sensor_reactive_power", 30007, 2, S32, 1000, "kVar", InputTable, ReadOnly),
	reg("plant_max_active_power", 30009, 2, U32, 1000, "kW", InputTable, ReadOnly),
	reg("plant_max_apparent_power", 30011, 2, U32, 1000, "kVA", InputTable, ReadOnly),
	reg("plant_ess_soc", 30014, 1, U16, 10, "%", InputTable, ReadOnly),
	reg("plant_phase_a_active_power", 30015, 2, S32, 1000, "kW", InputTable, ReadOnly),
	reg("plant_phase_b_active_power", 30017, 2, S32, 1000, "kW", InputTable, ReadOnly),
	reg("plant_phase_c_active_power", 30019, 2, S32, 1000, "kW", InputTable, ReadOnly),
	reg("plant_running_state", 30051, 1, U16, 1, "", InputTable, ReadOnly, enumOf(runningStates)),
	reg("plant_active_power", 30031, 2, S32, 1000, "kW", InputTable, ReadOnly),
	reg("plant_reactive_power", 30033, 2, S32, 1000, "kVar", InputTable, ReadOnly),
	reg("plant_photovoltaic_power", 30035, 2, S32, 1000, "kW", InputTable, ReadOnly),
	reg("plant_ess_power", 30037, 2, S32, 1000, "kW", InputTable, ReadOnly),
	reg("plant_ess_available_max_charging_power", 30039, 2, U32, 1000, "kW", InputTable, ReadOnly),
	reg("plant_ess_available_max_discharging_power", 30041, 2, U32, 1000, "kW", InputTable, ReadOnly),
	reg("plant_ess_rated_energy_capacity", 30083, 2, U32, 100, "kWh", InputTable, ReadOnly),
}

// Plant parameters. Holding table; the writable control surface of the plant.
var plantParameterRegisters = []RegisterSpec{
	reg("plant_start_stop", 40000, 1, U16, 1, "", HoldingTable, WriteOnly,
		enumOf(map[uint16]string{0: "Stop", 1: "Start"})),
	reg("plant_active_power_fixed_target", 40001, 2, S32, 1000, "kW", HoldingTable, ReadWrite, rangeOf(-100, 100)),
	reg("plant_reactive_power_fixed_target", 40003, 2, S32, 1000, "kVar", HoldingTable, ReadWrite, rangeOf(-100, 100)),
	reg("plant_active_power_percentage_target", 40005, 1, S16, 100, "%", HoldingTable, ReadWrite, rangeOf(-100, 100)),
	reg("plant_qs_ratio_target", 40006, 1, S16, 100, "%", HoldingTable, ReadWrite, rangeOf(-60, 60)),
	reg("plant_power_factor_target", 40007, 1, S16, 1000, "", HoldingTable, ReadWrite, rangeOf(-1, 1)),
	reg("plant_remote_ems_enable", 40029, 1, U16, 1, "", HoldingTable, ReadWrite, enumOf(onOff)),
	reg("plant_remote_ems_control_mode", 40031, 1, U16, 1, "", HoldingTable, ReadWrite, enumOf(RemoteEMSControlModes)),
	reg("plant_ess_max_charging_limit", 40032, 2, U32, 1000, "kW", HoldingTable, ReadWrite, rangeOf(0, 100)),
	reg("plant_ess_max_discharging_limit", 40034, 2, U32, 1000, "kW", HoldingTable, ReadWrite, rangeOf(0, 100)),
	reg("plant_pv_max_power_limit", 40036, 2, U32, 1000, "kW", HoldingTable, ReadWrite, rangeOf(0, 100)),
	reg("plant_grid_point_maximum_export_limitation", 40038, 2, U32, 1000, "kW", HoldingTable, ReadWrite, rangeOf(0, 100)),
	reg("plant_grid_maximum_import_limitation", 40040, 2, U32, 1000, "kW", HoldingTable, ReadWrite, rangeOf(0, 100)),
}

var inverterRunningRegisters = []RegisterSpec{
	reg("inverter_model_type", 30500, 15, String, 1, "", InputTable, ReadOnly),
	reg("inverter_serial_number", 30515, 10, String, 1, "", InputTable, ReadOnly),
	reg("inverter_firmware_version", 30525, 15, String, 1, "", InputTable, ReadOnly),
	reg("inverter_running_state", 30578, 1, U16, 1, "", InputTable, ReadOnly, enumOf(runningStates)),
	reg("inverter_max_active_power", 30579, 2, U32, 1000, "kW", InputTable, ReadOnly),
	reg("inverter_max_apparent_power", 30581, 2, U32, 1000, "kVA", InputTable, ReadOnly),
	reg("inverter_ess_battery_soc", 30583, 1, U16, 10, "%", InputTable, ReadOnly),
	reg("inverter_ess_battery_soh", 30584, 1, U16, 10, "%", InputTable, ReadOnly),
	reg("inverter_active_power", 30585, 2, S32, 1000, "kW", InputTable, ReadOnly),
	reg("inverter_reactive_power", 30587, 2, S32, 1000, "kVar", InputTable, ReadOnly),
	reg("inverter_ess_charge_discharge_power", 30589, 2, S32, 1000, "kW", InputTable, ReadOnly),
	reg("inverter_ess_rated_charge_power", 30591, 2, U32, 1000, "kW", InputTable, ReadOnly),
	reg("inverter_ess_rated_discharge_power", 30593, 2, U32, 1000, "kW", InputTable, ReadOnly),
	reg("inverter_daily_pv_energy", 30595, 2, U32, 100, "kWh", InputTable, ReadOnly),
	reg("inverter_total_pv_energy", 30597, 4, U64, 100, "kWh", InputTable, ReadOnly),
	reg("inverter_temperature", 30601, 1, S16, 10, "°C", InputTable, ReadOnly),
	reg("inverter_grid_frequency", 30602, 1, U16, 100, "Hz", InputTable, ReadOnly),
	reg("inverter_phase_a_voltage", 30603, 2, U32, 100, "V", InputTable, ReadOnly),
	reg("inverter_phase_b_voltage", 30605, 2, U32, 100, "V", InputTable, ReadOnly),
	reg("inverter_phase_c_voltage", 30607, 2, U32, 100, "V", InputTable, ReadOnly),
	reg("inverter_pv_string_count", 31025, 1, U16, 1, "", InputTable, ReadOnly),
	reg("inverter_pv1_voltage", 31027, 1, U16, 10, "V", InputTable, ReadOnly),
	reg("inverter_pv1_current", 31028, 1, S16, 100, "A", InputTable, ReadOnly),
	reg("inverter_pv2_voltage", 31029, 1, U16, 10, "V", InputTable, ReadOnly),
	reg("inverter_pv2_current", 31030, 1, S16, 100, "A", InputTable, ReadOnly),
}

var inverterParameterRegisters = []RegisterSpec{
	reg("inverter_start_stop", 40500, 1, U16, 1, "", HoldingTable, WriteOnly,
		enumOf(map[uint16]string{0: "Stop", 1: "Start"})),
	reg("inverter_active_power_fixed_adjustment", 41501, 2, S32, 1000, "kW", HoldingTable, ReadWrite, rangeOf(-100, 100)),
	reg("inverter_reactive_power_fixed_adjustment", 41503, 2, S32, 1000, "kVar", HoldingTable, ReadWrite, rangeOf(-100, 100)),
	reg("inverter_active_power_percentage_adjustment", 41505, 1, S16, 100, "%", HoldingTable, ReadWrite, rangeOf(-100, 100)),
	reg("inverter_power_factor_adjustment", 41507, 1, S16, 1000, "", HoldingTable, ReadWrite, rangeOf(-1, 1)),
	reg("inverter_grid_code", 41509, 1, U16, 1, "", HoldingTable, ReadWrite),
}

var acChargerRunningRegisters = []RegisterSpec{
	reg("ac_charger_system_state", 32000, 1, U16, 1, "", InputTable, ReadOnly,
		enumOf(map[uint16]string{
			0: "System Init",
			1: "A1/A2",
			2: "B1",
			3: "B2",
			4: "C1",
			5: "C2",
			6: "F",
			7: "E",
		})),
	reg("ac_charger_total_energy_consumed", 32001, 2, U32, 100, "kWh", InputTable, ReadOnly),
	reg("ac_charger_charging_power", 32003, 2, S32, 1000, "kW", InputTable, ReadOnly),
	reg("ac_charger_rated_power", 32005, 2, U32, 1000, "kW", InputTable, ReadOnly),
	reg("ac_charger_rated_current", 32007, 2, U32, 100, "A", InputTable, ReadOnly),
	reg("ac_charger_rated_voltage", 32009, 1, U16, 10, "V", InputTable, ReadOnly),
}

var acChargerParameterRegisters = []RegisterSpec{
	reg("ac_charger_start_stop", 42000, 1, U16, 1, "", HoldingTable, WriteOnly,
		enumOf(map[uint16]string{0: "Start", 1: "Stop"})),
	reg("ac_charger_output_current", 42001, 1, U16, 100, "A", HoldingTable, ReadWrite, rangeOf(6, 64)),
}

// DC charger registers live on the parent inverter's endpoint and slave id.
var dcChargerRunningRegisters = []RegisterSpec{
	reg("dc_charger_vehicle_battery_voltage", 31500, 1, U16, 10, "V", InputTable, ReadOnly),
	reg("dc_charger_charging_current", 31501, 1, U16, 10, "A", InputTable, ReadOnly),
	reg("dc_charger_output_power", 31502, 2, U32, 1000, "kW", InputTable, ReadOnly),
	reg("dc_charger_vehicle_soc", 31504, 1, U16, 10, "%", InputTable, ReadOnly),
	reg("dc_charger_current_charging_capacity", 31505, 2, U32, 100, "kWh", InputTable, ReadOnly),
	reg("dc_charger_current_charging_duration", 31507, 2, U32, 1, "s", InputTable, ReadOnly),
}

var dcChargerParameterRegisters = []RegisterSpec{
	reg("dc_charger_start_stop", 42500, 1, U16, 1, "", HoldingTable, WriteOnly,
		enumOf(map[uint16]string{0: "Start", 1: "Stop"})),
	reg("dc_charger_output_power_limit", 42501, 2, U32, 1000, "kW", HoldingTable, ReadWrite, rangeOf(0, 125)),
}

// RegistersFor returns the full candidate catalog for a device kind, running
// info first, then parameters, each group in ascending address order. The
// ordering is stable so that contiguous addresses can be batched.
func RegistersFor(kind DeviceKind) []RegisterSpec {
	var running, params []RegisterSpec
	switch kind {
	case KindPlant:
		running, params = plantRunningRegisters, plantParameterRegisters
	case KindInverter:
		running, params = inverterRunningRegisters, inverterParameterRegisters
	case KindACCharger:
		running, params = acChargerRunningRegisters, acChargerParameterRegisters
	case KindDCCharger:
		running, params = dcChargerRunningRegisters, dcChargerParameterRegisters
	default:
		return nil
	}
	out := make([]RegisterSpec, 0, len(running)+len(params))
	out = append(out, running...)
	out = append(out, params...)
	slices.SortStableFunc(out, func(a, b RegisterSpec) int {
		if a.Table != b.Table {
			return int(a.Table) - int(b.Table)
		}
		return int(a.Address) - int(b.Address)
	})
	return out
}

// LookupRegister finds a catalog entry by name within a kind's candidates.
func LookupRegister(kind DeviceKind, name string) (RegisterSpec, bool) {
	for _, r := range RegistersFor(kind) {
		if r.Name == name {
			return r, true
		}
	}
	return RegisterSpec{}, false
}
