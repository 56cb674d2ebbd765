// Package influxdb provides the optional telemetry history sink for the
// device bridge.
//
// It wraps the official influxdb-client-go v2 library behind three
// write helpers, one per measurement: sensor readings, actuator
// command outcomes, and health monitor samples.
//
// # Purpose
//
// MQTT delivers current readings; this package keeps their history.
// When enabled, every sensor reading the bridge publishes and every
// command it dispatches is also recorded as a time-series point, so
// operators can chart a device without standing up their own MQTT
// consumer.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // history disabled, bridge runs without it
//	}
//	defer client.Close()
//
//	client.WriteSensorReading("bridge-01", "temp-01", "temperature", 21.5)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via
// the SetOnError callback. Only Connect returns errors directly.
package influxdb
