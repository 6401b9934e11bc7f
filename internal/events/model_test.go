package events

import (
	"testing"
	"time"

	"sigenbridge/internal/core/domain"
	"sigenbridge/pkg/sigenergy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plantState(readings map[string]sigenergy.Value) domain.DeviceState {
	state := domain.DeviceState{
		Device:    "plant",
		Kind:      sigenergy.KindPlant,
		Readings:  make(map[string]domain.RegisterReading),
		Health:    domain.HealthReachable,
		UpdatedAt: time.Now(),
	}
	for name, v := range readings {
		state.Readings[name] = domain.RegisterReading{Value: v}
	}
	return state
}

func eventById(events []domain.SensorUpdateEvent, id string) domain.SensorUpdateEvent {
	for _, e := range events {
		if e.SensorId() == id {
			return e
		}
	}
	return nil
}

func TestStateToEvents(t *testing.T) {

	assert := assert.New(t)

	caps := probedPlantCaps(t)
	state := plantState(map[string]sigenergy.Value{
		"plant_ess_soc":                 {Type: sigenergy.U16, Float: 72.5},
		"plant_photovoltaic_power":      {Type: sigenergy.S32, Float: 3.275},
		"plant_running_state":           {Type: sigenergy.U16, Float: 1},
		"plant_remote_ems_enable":       {Type: sigenergy.U16, Float: 1},
		"plant_remote_ems_control_mode": {Type: sigenergy.U16, Float: 2},
		"plant_ess_max_charging_limit":  {Type: sigenergy.U32, Float: 7.5},
	})

	events := StateToEvents(state, caps)

	soc, ok := eventById(events, "plant_ess_soc").(domain.FloatSensorUpdateEvent)
	require.True(t, ok)
	assert.Equal("plant", soc.SensorDevice())
	assert.Equal(72.5, soc.Value)
	assert.Equal(uint(1), soc.Decimals)

	pv, ok := eventById(events, "plant_photovoltaic_power").(domain.FloatSensorUpdateEvent)
	require.True(t, ok)
	assert.Equal(uint(3), pv.Decimals)

	running, ok := eventById(events, "plant_running_state").(domain.TextSensorUpdateEvent)
	require.True(t, ok)
	assert.Equal("Running", running.Value)

	ems, ok := eventById(events, "plant_remote_ems_enable").(domain.SwitchSensorUpdateEvent)
	require.True(t, ok)
	assert.True(ems.Value)

	mode, ok := eventById(events, "plant_remote_ems_control_mode").(domain.SelectSensorUpdateEvent)
	require.True(t, ok)
	assert.Equal("Maximum Self Consumption", mode.Value)

	limit, ok := eventById(events, "plant_ess_max_charging_limit").(domain.InputNumberSensorUpdateEvent)
	require.True(t, ok)
	assert.Equal(7.5, limit.Value)
	assert.Equal(uint(3), limit.Decimals)
}

func TestStateToEventsSkipsMissingReadings(t *testing.T) {

	assert := assert.New(t)

	caps := probedPlantCaps(t)
	state := plantState(map[string]sigenergy.Value{
		"plant_ess_soc": {Type: sigenergy.U16, Float: 50},
	})

	events := StateToEvents(state, caps)

	assert.Len(events, 1, "only present readings produce events")
	assert.Nil(eventById(events, "plant_photovoltaic_power"))
}

func TestStateToEventsNilCapabilities(t *testing.T) {
	assert.Nil(t, StateToEvents(plantState(nil), nil))
}

func TestAvailabilityEvent(t *testing.T) {

	assert := assert.New(t)

	ev := AvailabilityEvent("inv1", true)
	assert.Equal("inv1", ev.SensorDevice())
	assert.True(ev.Online)

	ev = AvailabilityEvent("inv1", false)
	assert.False(ev.Online)
}

func TestDecimals(t *testing.T) {
	assert.Equal(t, uint(0), decimals(1))
	assert.Equal(t, uint(1), decimals(10))
	assert.Equal(t, uint(2), decimals(100))
	assert.Equal(t, uint(3), decimals(1000))
}

func TestEnumLabelUnknownRaw(t *testing.T) {
	spec, ok := sigenergy.LookupRegister(sigenergy.KindPlant, "plant_running_state")
	require.True(t, ok)
	assert.Equal(t, "Unknown", enumLabel(spec, sigenergy.Value{Float: 99}))
}
