package sigenergy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeExcludesUnimplementedRegisters(t *testing.T) {
	fake := NewFakeSession("10.0.0.5:502")
	fake.LoadKind(1, KindInverter, "inverter_ess_battery_soh", "inverter_pv2_voltage", "inverter_pv2_current")

	caps, err := Probe(fake, 1, KindInverter)
	require.NoError(t, err)

	assert.True(t, caps.Supports("inverter_active_power"))
	assert.True(t, caps.Supports("inverter_running_state"))
	assert.False(t, caps.Supports("inverter_ess_battery_soh"))
	assert.False(t, caps.Supports("inverter_pv2_voltage"))
}

// A probe is one sequential read per catalog candidate, so its budget must
// cover every candidate at the configured per-read bound. A slow but alive
// endpoint must never be killed by its own probe deadline.
func TestProbeBudgetCoversAllCandidates(t *testing.T) {
	for _, kind := range []DeviceKind{KindPlant, KindInverter, KindACCharger, KindDCCharger} {
		candidates := len(RegistersFor(kind))
		budget := ProbeBudget(kind, 1*time.Second)
		assert.Greater(t, budget, time.Duration(candidates)*time.Second, kind.String())
	}

	// sub-second per-read bounds still get a sane floor
	assert.GreaterOrEqual(t, ProbeBudget(KindPlant, 1*time.Millisecond), 10*time.Second)
	// an unset bound falls back to the default per-read second
	assert.Equal(t, ProbeBudget(KindInverter, 0), ProbeBudget(KindInverter, 1*time.Second))
}

func TestProbeAbortsOnConnectivityFailure(t *testing.T) {
	fake := NewFakeSession("10.0.0.5:502")
	fake.LoadKind(1, KindPlant)
	fake.FailWith(ErrUnreachable)

	_, err := Probe(fake, 1, KindPlant)
	assert.ErrorIs(t, err, ErrUnreachable)

	fake.FailWith(ErrTimeout)
	_, err = Probe(fake, 1, KindPlant)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestProbeIsIdempotent(t *testing.T) {
	fake := NewFakeSession("10.0.0.5:502")
	fake.LoadKind(2, KindACCharger, "ac_charger_rated_voltage")

	first, err := Probe(fake, 2, KindACCharger)
	require.NoError(t, err)
	second, err := Probe(fake, 2, KindACCharger)
	require.NoError(t, err)

	assert.Equal(t, first.Names(), second.Names())
}

func TestProbeExcludesZeroFilledStrings(t *testing.T) {
	fake := NewFakeSession("10.0.0.5:502")
	fake.LoadKind(1, KindInverter, "inverter_serial_number")
	spec, _ := LookupRegister(KindInverter, "inverter_serial_number")
	fake.SetRegister(1, spec, make([]uint16, spec.Words)...)

	caps, err := Probe(fake, 1, KindInverter)
	require.NoError(t, err)
	assert.False(t, caps.Supports("inverter_serial_number"))
	assert.True(t, caps.Supports("inverter_model_type"))
}

func TestProbeExcludesImplausibleValues(t *testing.T) {
	fake := NewFakeSession("10.0.0.5:502")
	fake.LoadKind(1, KindPlant)
	// 6553.5% state of charge is garbage, not support
	soc, _ := LookupRegister(KindPlant, "plant_ess_soc")
	fake.SetRegister(1, soc, 0xFFFF)

	caps, err := Probe(fake, 1, KindPlant)
	require.NoError(t, err)
	assert.False(t, caps.Supports("plant_ess_soc"))
}

func TestProbeAdmitsWriteOnlyWithParameterTable(t *testing.T) {
	fake := NewFakeSession("10.0.0.5:502")
	fake.LoadKind(1, KindPlant)

	caps, err := Probe(fake, 1, KindPlant)
	require.NoError(t, err)
	assert.True(t, caps.Supports("plant_start_stop"))

	// a unit with no holding registers at all gets no write-only entries
	empty := NewFakeSession("10.0.0.6:502")
	for _, spec := range plantRunningRegisters {
		words := make([]uint16, spec.Words)
		words[spec.Words-1] = 1
		empty.SetRegister(1, spec, words...)
	}
	caps, err = Probe(empty, 1, KindPlant)
	require.NoError(t, err)
	assert.False(t, caps.Supports("plant_start_stop"))
}

func TestCapabilitySetSpecsFollowCatalogOrder(t *testing.T) {
	fake := NewFakeSession("10.0.0.5:502")
	fake.LoadKind(3, KindDCCharger)

	caps, err := Probe(fake, 3, KindDCCharger)
	require.NoError(t, err)
	specs := caps.Specs()
	require.NotEmpty(t, specs)
	for i := 1; i < len(specs); i++ {
		if specs[i-1].Table == specs[i].Table {
			assert.Less(t, specs[i-1].Address, specs[i].Address)
		}
	}
}

func TestDetectKind(t *testing.T) {
	fake := NewFakeSession("10.0.0.5:502")
	fake.LoadKind(1, KindInverter)
	kind, err := DetectKind(fake, 1)
	require.NoError(t, err)
	assert.Equal(t, KindInverter, kind)

	fake.LoadKind(1, KindDCCharger)
	kind, err = DetectKind(fake, 1)
	require.NoError(t, err)
	assert.Equal(t, KindDCCharger, kind)

	_, err = DetectKind(fake, 9)
	assert.ErrorIs(t, err, ErrIllegalAddress)
}
