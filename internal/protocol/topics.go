package protocol

import (
	"fmt"
	"strings"
)

// TopicPrefixDevices is the base for all device bridge topics.
// Scheme: devices/{device_id}/{suffix}
const TopicPrefixDevices = "devices"

// Topics provides builders for device bridge MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := protocol.Topics{}
//	dataTopic := topics.SensorData("bridge-01", "temperature")
//	// Returns: "devices/bridge-01/sensors/temperature/data"
type Topics struct{}

// =============================================================================
// Outbound Topics
// =============================================================================

// Capabilities returns the retained device description topic.
//
// Example: devices/bridge-01/capabilities
func (Topics) Capabilities(deviceID string) string {
	return fmt.Sprintf("%s/%s/capabilities", TopicPrefixDevices, deviceID)
}

// Status returns the retained online/offline topic. The same topic
// carries the broker's last-will message on abrupt disconnect.
//
// Example: devices/bridge-01/status
func (Topics) Status(deviceID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixDevices, deviceID)
}

// SensorData returns the reading topic for one sensor type.
//
// Example: devices/bridge-01/sensors/temperature/data
func (Topics) SensorData(deviceID, sensorType string) string {
	return fmt.Sprintf("%s/%s/sensors/%s/data", TopicPrefixDevices, deviceID, sensorType)
}

// ActuatorStatus returns the state report topic for one actuator type.
//
// Example: devices/bridge-01/actuators/relay/status
func (Topics) ActuatorStatus(deviceID, actuatorType string) string {
	return fmt.Sprintf("%s/%s/actuators/%s/status", TopicPrefixDevices, deviceID, actuatorType)
}

// Error returns the error report topic.
//
// Example: devices/bridge-01/error
func (Topics) Error(deviceID string) string {
	return fmt.Sprintf("%s/%s/error", TopicPrefixDevices, deviceID)
}

// =============================================================================
// Inbound Topics
// =============================================================================

// ActuatorCommand returns the inbound command topic for one actuator type.
//
// Example: devices/bridge-01/actuators/relay/cmd
func (Topics) ActuatorCommand(deviceID, actuatorType string) string {
	return fmt.Sprintf("%s/%s/actuators/%s/cmd", TopicPrefixDevices, deviceID, actuatorType)
}

// AllActuatorCommands returns a pattern matching every command topic for
// one device.
//
// Pattern: devices/bridge-01/actuators/+/cmd
func (Topics) AllActuatorCommands(deviceID string) string {
	return fmt.Sprintf("%s/%s/actuators/+/cmd", TopicPrefixDevices, deviceID)
}

// =============================================================================
// Parsing
// =============================================================================

// commandTopicSegments is the segment count of an actuator command topic:
// devices/{id}/actuators/{type}/cmd.
const commandTopicSegments = 5

// ParseCommandTopic extracts the device ID and actuator type from an
// inbound command topic. Returns ok=false for anything that is not a
// well-formed command topic.
func ParseCommandTopic(topic string) (deviceID, actuatorType string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != commandTopicSegments {
		return "", "", false
	}
	if parts[0] != TopicPrefixDevices || parts[2] != "actuators" || parts[4] != "cmd" {
		return "", "", false
	}
	if parts[1] == "" || parts[3] == "" {
		return "", "", false
	}
	return parts[1], parts[3], true
}
