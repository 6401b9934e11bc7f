package util

import (
	"sigenbridge/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Fleet: config.FleetConfig{
			Plant: &config.PlantDeviceConfig{
				Name:    "plant",
				Host:    "-.-.-.-",
				Port:    502,
				SlaveId: 247,
			},
			Inverters: []config.ModbusDeviceConfig{
				{Name: "inverter_1", Host: "-.-.-.-", Port: 502, SlaveId: 1},
			},
			Poll: config.PollConfig{
				PlantIntervalMillis:    5000,
				InverterIntervalMillis: 5000,
				ChargerIntervalMillis:  10000,
				FailureThreshold:       3,
			},
		},
		Modbus: config.ModbusConfig{
			TimeoutMillis: 1000,
		},
		MQTT: config.MQTTConfig{
			Host: "localhost",
			Port: 1883,
		},
		Port: 8080,
	}
}
