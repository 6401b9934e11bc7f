package events

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"sigenbridge/internal/core/domain"
	"sigenbridge/pkg/sigenergy"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE = "bridge"

	STATE_CLASS_MEASUREMENT      = "measurement"
	STATE_CLASS_TOTAL_INCREASING = "total_increasing"

	DEVICE_CLASS_APPARENT_POWER = "apparent_power"
	DEVICE_CLASS_BATTERY        = "battery"
	DEVICE_CLASS_CONNECTIVITY   = "connectivity"
	DEVICE_CLASS_CURRENT        = "current"
	DEVICE_CLASS_DURATION       = "duration"
	DEVICE_CLASS_ENERGY         = "energy"
	DEVICE_CLASS_FREQUENCY      = "frequency"
	DEVICE_CLASS_POWER          = "power"
	DEVICE_CLASS_REACTIVE_POWER = "reactive_power"
	DEVICE_CLASS_TEMPERATURE    = "temperature"
	DEVICE_CLASS_VOLTAGE        = "voltage"

	ENTITY_CLASS_DIAGNOSTIC = "diagnostic"
	ENTITY_CLASS_CONFIG     = "config"

	SENSOR_TYPE_SENSOR = "sensor"
	SENSOR_TYPE_BINARY = "binary_sensor"

	INPUT_NUMBER_MODE_BOX = "box"
)

func BridgeDevice(baseTopic string) domain.Device {
	return domain.Device{
		Id:           fmt.Sprintf("sigenbridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "Sigenergy",
		Model:        "SigenBridge",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("SigenBridge %s", md5HashShort(baseTopic)),
	}
}

// FleetDevice maps a topology entry to a Home Assistant device. The device
// id doubles as the MQTT topic segment, so it is the topology name as-is.
func FleetDevice(ref domain.DeviceRef, version string, via domain.Device) domain.Device {
	return domain.Device{
		Id:           ref.Name,
		Manufacturer: "Sigenergy",
		Model:        kindModel(ref.Kind),
		Version:      version,
		Name:         fmt.Sprintf("Sigenergy %s", displayName(ref.Name)),
		ViaDevice:    via.Id,
	}
}

func kindModel(kind sigenergy.DeviceKind) string {
	switch kind {
	case sigenergy.KindPlant:
		return "Energy Controller"
	case sigenergy.KindInverter:
		return "Hybrid Inverter"
	case sigenergy.KindACCharger:
		return "AC Charger"
	case sigenergy.KindDCCharger:
		return "DC Charger"
	default:
		return "Device"
	}
}

// DeviceComponents derives the entity set of a device from its probed
// capabilities. Only registers the unit actually implements become entities.
func DeviceComponents(dev domain.Device, caps *sigenergy.CapabilitySet) ([]domain.GenericSensor,
	[]domain.GenericSwitch, []domain.GenericInputNumber, []domain.GenericSelect) {

	var sensors []domain.GenericSensor
	var switches []domain.GenericSwitch
	var numbers []domain.GenericInputNumber
	var selects []domain.GenericSelect

	for _, spec := range caps.Specs() {
		switch {
		case !spec.Readable():
			// write-only single registers act as stateless switches
			if spec.Words == 1 {
				switches = append(switches, domain.GenericSwitch{
					Device:   dev,
					Id:       spec.Name,
					Name:     displayName(spec.Name),
					UniqueId: uniqueId(dev.Id, spec.Name),
				})
			}
		case spec.Writable() && isOnOffEnum(spec):
			switches = append(switches, domain.GenericSwitch{
				Device:   dev,
				Id:       spec.Name,
				Name:     displayName(spec.Name),
				UniqueId: uniqueId(dev.Id, spec.Name),
			})
		case spec.Writable() && len(spec.Enum) > 0:
			selects = append(selects, domain.GenericSelect{
				Device:   dev,
				Id:       spec.Name,
				Name:     displayName(spec.Name),
				UniqueId: uniqueId(dev.Id, spec.Name),
				Options:  EnumOptions(spec),
			})
		case spec.Writable():
			numbers = append(numbers, domain.GenericInputNumber{
				Device:   dev,
				Id:       spec.Name,
				Name:     displayName(spec.Name),
				UniqueId: uniqueId(dev.Id, spec.Name),
				Min:      spec.Min,
				Max:      spec.Max,
				Step:     1 / spec.Gain,
				Mode:     INPUT_NUMBER_MODE_BOX,
			})
		default:
			deviceClass, stateClass := unitMeta(spec.Unit)
			sensor := domain.GenericSensor{
				Device:            dev,
				Id:                spec.Name,
				SensorType:        SENSOR_TYPE_SENSOR,
				Name:              displayName(spec.Name),
				UniqueId:          uniqueId(dev.Id, spec.Name),
				UnitOfMeasurement: spec.Unit,
				StateClass:        stateClass,
				DeviceClass:       deviceClass,
			}
			// text and mode registers publish labels, not measurements
			if spec.Type == sigenergy.String || len(spec.Enum) > 0 {
				sensor.UnitOfMeasurement = ""
				sensor.StateClass = ""
				sensor.DeviceClass = ""
			}
			sensors = append(sensors, sensor)
		}
	}

	return sensors, switches, numbers, selects
}

func BridgeSensors(bridgeDevice domain.Device) []domain.GenericSensor {
	return []domain.GenericSensor{
		{
			Device:         bridgeDevice,
			Id:             SENSOR_ID_BRIDGE_STATE,
			SensorType:     SENSOR_TYPE_BINARY,
			Name:           "Bridge state",
			DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
			EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
			UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
		},
	}
}

// EnumOptions lists the labels of an enum register ordered by raw value.
func EnumOptions(spec sigenergy.RegisterSpec) []string {
	raws := make([]uint16, 0, len(spec.Enum))
	for raw := range spec.Enum {
		raws = append(raws, raw)
	}
	slices.Sort(raws)
	options := make([]string, 0, len(raws))
	for _, raw := range raws {
		options = append(options, spec.Enum[raw])
	}
	return options
}

func isOnOffEnum(spec sigenergy.RegisterSpec) bool {
	return len(spec.Enum) == 2 && spec.Enum[0] == "Off" && spec.Enum[1] == "On"
}

func unitMeta(unit string) (deviceClass string, stateClass string) {
	switch unit {
	case "kW":
		return DEVICE_CLASS_POWER, STATE_CLASS_MEASUREMENT
	case "kVA":
		return DEVICE_CLASS_APPARENT_POWER, STATE_CLASS_MEASUREMENT
	case "kVar":
		return DEVICE_CLASS_REACTIVE_POWER, STATE_CLASS_MEASUREMENT
	case "kWh":
		return DEVICE_CLASS_ENERGY, STATE_CLASS_TOTAL_INCREASING
	case "V":
		return DEVICE_CLASS_VOLTAGE, STATE_CLASS_MEASUREMENT
	case "A":
		return DEVICE_CLASS_CURRENT, STATE_CLASS_MEASUREMENT
	case "Hz":
		return DEVICE_CLASS_FREQUENCY, STATE_CLASS_MEASUREMENT
	case "°C":
		return DEVICE_CLASS_TEMPERATURE, STATE_CLASS_MEASUREMENT
	case "%":
		return DEVICE_CLASS_BATTERY, STATE_CLASS_MEASUREMENT
	case "s":
		return DEVICE_CLASS_DURATION, STATE_CLASS_MEASUREMENT
	default:
		return "", ""
	}
}

func displayName(id string) string {
	words := strings.Split(id, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}
