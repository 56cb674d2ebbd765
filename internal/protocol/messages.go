package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// =============================================================================
// Outbound Payloads
// =============================================================================

// SensorValue is the nested value object of a sensor data message.
// Quality is a 0-100 score; consumers treat anything below QualityGood
// as suspect.
type SensorValue struct {
	Reading float64 `json:"reading"`
	Unit    string  `json:"unit"`
	Quality int     `json:"quality"`
}

// Reading quality scores.
const (
	QualityGood = 100
	QualityBad  = 0
)

// RuntimeMetrics rides along with every sensor data message so consumers
// can track device health without a separate subscription.
type RuntimeMetrics struct {
	FreeHeap uint64 `json:"free_heap"`
	Uptime   int64  `json:"uptime"`
}

// SensorDataMessage is published to devices/{id}/sensors/{type}/data.
type SensorDataMessage struct {
	DeviceID  string         `json:"device_id"`
	Timestamp int64          `json:"timestamp"`
	Type      string         `json:"type"`
	Component string         `json:"component"`
	Action    string         `json:"action"`
	Value     SensorValue    `json:"value"`
	Metrics   RuntimeMetrics `json:"metrics"`
}

// NewSensorData builds a sensor data message for one reading.
//
// Parameters:
//   - deviceID: Bridge device identifier
//   - sensorType: Sensor type token used in the topic
//   - reading: Calibrated reading value
//   - unit: Unit string from the sensor metadata
//   - quality: Reading quality score, 0-100
//   - metrics: Current runtime metrics snapshot
func NewSensorData(deviceID, sensorType string, reading float64, unit string, quality int, metrics RuntimeMetrics) SensorDataMessage {
	return SensorDataMessage{
		DeviceID:  deviceID,
		Timestamp: time.Now().Unix(),
		Type:      "sensor",
		Component: sensorType,
		Action:    "read",
		Value: SensorValue{
			Reading: reading,
			Unit:    unit,
			Quality: quality,
		},
		Metrics: metrics,
	}
}

// StatusMessage is published retained to devices/{id}/status.
// Value is "online" or "offline".
type StatusMessage struct {
	DeviceID  string `json:"device_id"`
	Timestamp int64  `json:"timestamp"`
	Value     string `json:"value"`
}

// NewStatus builds a device status message.
func NewStatus(deviceID, status string) StatusMessage {
	return StatusMessage{
		DeviceID:  deviceID,
		Timestamp: time.Now().Unix(),
		Value:     status,
	}
}

// ActuatorStatusMessage is published to devices/{id}/actuators/{type}/status.
type ActuatorStatusMessage struct {
	DeviceID  string `json:"device_id"`
	Timestamp int64  `json:"timestamp"`
	Value     string `json:"value"`
}

// NewActuatorStatus builds an actuator state report.
func NewActuatorStatus(deviceID, status string) ActuatorStatusMessage {
	return ActuatorStatusMessage{
		DeviceID:  deviceID,
		Timestamp: time.Now().Unix(),
		Value:     status,
	}
}

// ErrorValue is the nested value object of an error message.
type ErrorValue struct {
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
	Severity  int    `json:"severity"`
}

// ErrorMessage is published to devices/{id}/error.
type ErrorMessage struct {
	DeviceID  string     `json:"device_id"`
	Timestamp int64      `json:"timestamp"`
	Value     ErrorValue `json:"value"`
}

// Error severity levels. Higher is worse.
const (
	SeverityWarning = 1
	SeverityError   = 2
)

// NewError builds an error report.
func NewError(deviceID, errorType, message string, severity int) ErrorMessage {
	return ErrorMessage{
		DeviceID:  deviceID,
		Timestamp: time.Now().Unix(),
		Value: ErrorValue{
			ErrorType: errorType,
			Message:   message,
			Severity:  severity,
		},
	}
}

// CapabilitySensor describes one registered sensor in the capabilities
// announcement.
type CapabilitySensor struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Unit string `json:"unit"`
}

// CapabilityActuator describes one registered actuator in the
// capabilities announcement.
type CapabilityActuator struct {
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	ValueType string   `json:"value_type"`
	Actions   []string `json:"actions"`
}

// CapabilitiesMessage is published retained to devices/{id}/capabilities
// whenever the transport comes up, so consumers always see the current
// device profile.
type CapabilitiesMessage struct {
	DeviceID        string               `json:"device_id"`
	FirmwareVersion string               `json:"firmware_version"`
	Sensors         []CapabilitySensor   `json:"sensors"`
	Actuators       []CapabilityActuator `json:"actuators"`
	Metadata        map[string]any       `json:"metadata"`
}

// =============================================================================
// Inbound Payloads
// =============================================================================

// Command is a parsed actuator command.
//
// Value is always text. Numeric and boolean JSON values are normalised
// during parsing so control callbacks see one representation.
type Command struct {
	Action string
	Value  string
}

// rawCommand matches the inbound JSON before value normalisation.
type rawCommand struct {
	Action string          `json:"action"`
	Value  json.RawMessage `json:"value"`
}

// ParseCommand decodes an inbound command payload.
//
// The action field is required. The value field is optional and may be
// a JSON string, number, or boolean; anything else is rejected.
//
// Returns:
//   - Command: Parsed command with normalised text value
//   - error: If the payload is not valid JSON or the action is missing
func ParseCommand(payload []byte) (Command, error) {
	var raw rawCommand
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Command{}, fmt.Errorf("parsing command payload: %w", err)
	}
	if raw.Action == "" {
		return Command{}, fmt.Errorf("parsing command payload: missing action")
	}

	cmd := Command{Action: raw.Action}

	if len(raw.Value) == 0 || string(raw.Value) == "null" {
		return cmd, nil
	}

	var s string
	if err := json.Unmarshal(raw.Value, &s); err == nil {
		cmd.Value = s
		return cmd, nil
	}

	var n float64
	if err := json.Unmarshal(raw.Value, &n); err == nil {
		cmd.Value = strconv.FormatFloat(n, 'g', -1, 64)
		return cmd, nil
	}

	var b bool
	if err := json.Unmarshal(raw.Value, &b); err == nil {
		cmd.Value = strconv.FormatBool(b)
		return cmd, nil
	}

	return Command{}, fmt.Errorf("parsing command payload: unsupported value type")
}
