package device

import "fmt"

// validateSensor checks a sensor registration before admission.
//
// Rules:
//   - ID and type are required
//   - A read callback is required
//   - MinRange must be strictly below MaxRange
func validateSensor(id, sensorType string, read ReadFunc, meta SensorMetadata) error {
	if id == "" {
		return fmt.Errorf("%w: sensor id is required", ErrInvalidArgument)
	}
	if sensorType == "" {
		return fmt.Errorf("%w: sensor type is required", ErrInvalidArgument)
	}
	if read == nil {
		return fmt.Errorf("%w: read callback is required", ErrInvalidArgument)
	}
	if meta.MinRange >= meta.MaxRange {
		return fmt.Errorf("%w: min_range %v must be below max_range %v",
			ErrInvalidArgument, meta.MinRange, meta.MaxRange)
	}
	return nil
}

// validateActuator checks an actuator registration before admission.
//
// Rules:
//   - ID and type are required
//   - A control callback is required
//   - ValueType is required
//   - At least one supported action is required
func validateActuator(id, actuatorType string, control ControlFunc, meta ActuatorMetadata) error {
	if id == "" {
		return fmt.Errorf("%w: actuator id is required", ErrInvalidArgument)
	}
	if actuatorType == "" {
		return fmt.Errorf("%w: actuator type is required", ErrInvalidArgument)
	}
	if control == nil {
		return fmt.Errorf("%w: control callback is required", ErrInvalidArgument)
	}
	if meta.ValueType == "" {
		return fmt.Errorf("%w: value_type is required", ErrInvalidArgument)
	}
	if len(meta.SupportedActions) == 0 {
		return fmt.Errorf("%w: at least one supported action is required", ErrInvalidArgument)
	}
	for _, action := range meta.SupportedActions {
		if action == "" {
			return fmt.Errorf("%w: supported actions must not be empty", ErrInvalidArgument)
		}
	}
	return nil
}
