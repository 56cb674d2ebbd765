package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names. One per bridge concern: readings, command
// outcomes, health samples.
const (
	measurementReadings = "sensor_readings"
	measurementCommands = "actuator_commands"
	measurementHealth   = "bridge_health"
)

// WriteSensorReading records one calibrated sensor reading.
//
// This is the bridge's hottest write path (every telemetry cycle and
// every streaming tick lands here), so it is non-blocking; points are
// batched and flushed asynchronously.
//
// Parameters:
//   - deviceID: Bridge device identifier
//   - sensorID: Registered sensor identifier
//   - sensorType: Sensor type token (tag, for charting by kind)
//   - value: Calibrated reading value
func (c *Client) WriteSensorReading(deviceID, sensorID, sensorType string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		measurementReadings,
		map[string]string{
			"device_id": deviceID,
			"sensor_id": sensorID,
			"type":      sensorType,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteActuatorCommand records the outcome of one dispatched command,
// so operators can chart command volume and failure rate per actuator.
//
// Parameters:
//   - deviceID: Bridge device identifier
//   - actuatorID: Resolved actuator identifier
//   - action: The command action that was executed
//   - ok: Whether the control callback succeeded
func (c *Client) WriteActuatorCommand(deviceID, actuatorID, action string, ok bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		measurementCommands,
		map[string]string{
			"device_id":   deviceID,
			"actuator_id": actuatorID,
			"action":      action,
		},
		map[string]interface{}{
			"success": ok,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteBridgeHealth records one health monitor sample.
//
// Parameters:
//   - deviceID: Bridge device identifier
//   - freeMemory: Free memory in bytes
//   - uptime: Bridge uptime in seconds
func (c *Client) WriteBridgeHealth(deviceID string, freeMemory uint64, uptime int64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		measurementHealth,
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"free_memory": float64(freeMemory),
			"uptime":      uptime,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
