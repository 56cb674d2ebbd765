// Package device implements the in-memory sensor and actuator registry
// for the bridge.
//
// The registry is the single source of truth for what the bridge can
// read and control. It is bounded (16 sensors and 16 actuators by
// default), validates metadata before admission, and survives bridge
// stop/start cycles. Entries are never removed; the device profile is
// static for the life of the process.
//
// # Key Types
//
//   - Registry: Bounded catalogue of sensors and actuators
//   - Sensor / Actuator: Registered entries with capability callbacks
//   - SensorMetadata / ActuatorMetadata: Validated descriptive data
//   - Calibration: Linear correction applied to raw readings
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use. Iteration helpers
// hold the registry lock for the duration of the callback, which keeps
// a telemetry cycle atomic with respect to registration.
//
// # Errors
//
// Registration failures are reported through sentinel errors
// (ErrAlreadyExists, ErrCapacityExceeded, ErrInvalidArgument) so
// callers can branch with errors.Is:
//
//	if errors.Is(err, device.ErrCapacityExceeded) {
//	    // registry full
//	}
package device
