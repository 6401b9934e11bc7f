package events

import (
	"testing"

	"sigenbridge/internal/core/domain"
	"sigenbridge/pkg/sigenergy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func probedPlantCaps(t *testing.T) *sigenergy.CapabilitySet {
	t.Helper()
	fake := sigenergy.NewFakeSession("10.0.0.2:502")
	fake.LoadKind(247, sigenergy.KindPlant)
	caps, err := sigenergy.Probe(fake, 247, sigenergy.KindPlant)
	require.NoError(t, err)
	return &caps
}

func findSensor(sensors []domain.GenericSensor, id string) *domain.GenericSensor {
	for i := range sensors {
		if sensors[i].Id == id {
			return &sensors[i]
		}
	}
	return nil
}

func TestDeviceComponentsFromCapabilities(t *testing.T) {

	assert := assert.New(t)

	caps := probedPlantCaps(t)
	dev := FleetDevice(domain.DeviceRef{Kind: sigenergy.KindPlant, Name: "plant"}, "", BridgeDevice("sigen"))

	sensors, switches, numbers, selects := DeviceComponents(dev, caps)

	pv := findSensor(sensors, "plant_photovoltaic_power")
	require.NotNil(t, pv)
	assert.Equal(DEVICE_CLASS_POWER, pv.DeviceClass)
	assert.Equal(STATE_CLASS_MEASUREMENT, pv.StateClass)
	assert.Equal("kW", pv.UnitOfMeasurement)
	assert.Equal("Plant Photovoltaic Power", pv.Name)

	var switchIds []string
	for _, sw := range switches {
		switchIds = append(switchIds, sw.Id)
	}
	assert.Contains(switchIds, "plant_start_stop", "write-only register becomes a switch")
	assert.Contains(switchIds, "plant_remote_ems_enable", "on/off register becomes a switch")

	var numberIds []string
	for _, n := range numbers {
		numberIds = append(numberIds, n.Id)
		assert.Equal(dev.Id, n.Device.Id)
	}
	assert.Contains(numberIds, "plant_ess_max_charging_limit")

	require.Len(t, selects, 1)
	assert.Equal("plant_remote_ems_control_mode", selects[0].Id)
	assert.Equal([]string{
		"PCS Remote Control",
		"Standby",
		"Maximum Self Consumption",
		"Command Charging (Grid First)",
		"Command Charging (PV First)",
		"Command Discharging (PV First)",
		"Command Discharging (ESS First)",
	}, selects[0].Options, "options ordered by raw value")
}

func TestDeviceComponentsSkipUnprobedRegisters(t *testing.T) {

	assert := assert.New(t)

	fake := sigenergy.NewFakeSession("10.0.0.2:502")
	fake.LoadKind(1, sigenergy.KindInverter, "inverter_ess_battery_soh")
	caps, err := sigenergy.Probe(fake, 1, sigenergy.KindInverter)
	require.NoError(t, err)

	dev := FleetDevice(domain.DeviceRef{Kind: sigenergy.KindInverter, Name: "inv1"}, "", BridgeDevice("sigen"))
	sensors, _, _, _ := DeviceComponents(dev, &caps)

	assert.Nil(findSensor(sensors, "inverter_ess_battery_soh"), "unsupported register has no entity")
	assert.NotNil(findSensor(sensors, "inverter_running_state"))
}

func TestFleetDeviceModelAndVia(t *testing.T) {

	assert := assert.New(t)

	bridge := BridgeDevice("sigen")
	dev := FleetDevice(domain.DeviceRef{Kind: sigenergy.KindACCharger, Name: "ac_1"}, "V100R001C00", bridge)

	assert.Equal("ac_1", dev.Id, "device id doubles as topic segment")
	assert.Equal("AC Charger", dev.Model)
	assert.Equal("V100R001C00", dev.Version)
	assert.Equal(bridge.Id, dev.ViaDevice)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Plant Ess Soc", displayName("plant_ess_soc"))
}
