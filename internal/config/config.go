package config

import (
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level
	Fleet    FleetConfig  `mapstructure:"fleet"`
	Modbus   ModbusConfig `mapstructure:"modbus"`
	MQTT     MQTTConfig   `mapstructure:"mqtt"`

	ReadOnly bool `mapstructure:"read_only"`
	Port     uint `mapstructure:"port"`
	HttpLog  bool `mapstructure:"http_log"`
}

type ModbusConfig struct {
	TimeoutMillis uint32 `mapstructure:"timeout_millis"`
}

// FleetConfig declares the devices behind the bridge. DC chargers name
// their parent inverter instead of carrying a Modbus identity.
type FleetConfig struct {
	Plant      *PlantDeviceConfig   `mapstructure:"plant"`
	Inverters  []ModbusDeviceConfig `mapstructure:"inverters"`
	ACChargers []ModbusDeviceConfig `mapstructure:"ac_chargers"`
	DCChargers []ChildDeviceConfig  `mapstructure:"dc_chargers"`
	Poll       PollConfig           `mapstructure:"poll"`
}

type PlantDeviceConfig struct {
	Name    string
	Host    string
	Port    uint16
	SlaveId uint8 `mapstructure:"slave_id"`
}

type ModbusDeviceConfig struct {
	Name    string
	Host    string
	Port    uint16
	SlaveId uint8 `mapstructure:"slave_id"`
}

type ChildDeviceConfig struct {
	Name     string
	Inverter string
}

type PollConfig struct {
	PlantIntervalMillis    uint32 `mapstructure:"plant_interval_millis"`
	InverterIntervalMillis uint32 `mapstructure:"inverter_interval_millis"`
	ChargerIntervalMillis  uint32 `mapstructure:"charger_interval_millis"`
	FailureThreshold       uint32 `mapstructure:"failure_threshold"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
