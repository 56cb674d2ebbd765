package device

import (
	"fmt"
	"sync"
	"time"
)

// Registry is the bounded catalogue of sensors and actuators.
//
// Entries are stored in registration order in contiguous slices.
// The registry never shrinks; there is no unregister operation.
type Registry struct {
	mu sync.Mutex

	sensors   []*Sensor
	actuators []*Actuator

	maxSensors   int
	maxActuators int

	logger Logger
}

// NewRegistry creates an empty registry with the given capacities.
// Non-positive capacities fall back to the defaults.
func NewRegistry(maxSensors, maxActuators int) *Registry {
	if maxSensors <= 0 {
		maxSensors = DefaultMaxSensors
	}
	if maxActuators <= 0 {
		maxActuators = DefaultMaxActuators
	}
	return &Registry{
		sensors:      make([]*Sensor, 0, maxSensors),
		actuators:    make([]*Actuator, 0, maxActuators),
		maxSensors:   maxSensors,
		maxActuators: maxActuators,
		logger:       noopLogger{},
	}
}

// SetLogger installs a logger. Passing nil restores the noop logger.
func (r *Registry) SetLogger(logger Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if logger == nil {
		r.logger = noopLogger{}
		return
	}
	r.logger = logger
}

// RegisterSensor adds a sensor to the registry.
//
// The sensor starts with the identity calibration. Registration order
// is preserved for iteration and the capabilities announcement.
//
// Returns:
//   - error: ErrInvalidArgument, ErrAlreadyExists, or ErrCapacityExceeded
func (r *Registry) RegisterSensor(id, sensorType string, read ReadFunc, meta SensorMetadata) error {
	if err := validateSensor(id, sensorType, read, meta); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sensors {
		if s.ID == id {
			return fmt.Errorf("%w: sensor %q", ErrAlreadyExists, id)
		}
	}
	if len(r.sensors) >= r.maxSensors {
		return fmt.Errorf("%w: sensor limit %d reached", ErrCapacityExceeded, r.maxSensors)
	}

	r.sensors = append(r.sensors, &Sensor{
		ID:          id,
		Type:        sensorType,
		Read:        read,
		Metadata:    meta,
		Calibration: DefaultCalibration(),
	})

	r.logger.Info("sensor registered", "sensor_id", id, "type", sensorType)
	return nil
}

// RegisterActuator adds an actuator to the registry.
//
// Returns:
//   - error: ErrInvalidArgument, ErrAlreadyExists, or ErrCapacityExceeded
func (r *Registry) RegisterActuator(id, actuatorType string, control ControlFunc, meta ActuatorMetadata) error {
	if err := validateActuator(id, actuatorType, control, meta); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.actuators {
		if a.ID == id {
			return fmt.Errorf("%w: actuator %q", ErrAlreadyExists, id)
		}
	}
	if len(r.actuators) >= r.maxActuators {
		return fmt.Errorf("%w: actuator limit %d reached", ErrCapacityExceeded, r.maxActuators)
	}

	r.actuators = append(r.actuators, &Actuator{
		ID:       id,
		Type:     actuatorType,
		Control:  control,
		Metadata: meta,
	})

	r.logger.Info("actuator registered", "actuator_id", id, "type", actuatorType)
	return nil
}

// FindSensor returns a copy of the sensor with the given ID.
func (r *Registry) FindSensor(id string) (Sensor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sensors {
		if s.ID == id {
			return *s, true
		}
	}
	return Sensor{}, false
}

// FindActuator returns a copy of the actuator with the given ID.
func (r *Registry) FindActuator(id string) (Actuator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.actuators {
		if a.ID == id {
			return *a, true
		}
	}
	return Actuator{}, false
}

// ResolveActuator finds an actuator by ID first, then by type.
//
// Command topics carry the actuator type token, which equals the ID in
// the common single-actuator-per-type profile. The type fallback keeps
// commands routable when IDs and types diverge.
func (r *Registry) ResolveActuator(token string) (Actuator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.actuators {
		if a.ID == token {
			return *a, true
		}
	}
	for _, a := range r.actuators {
		if a.Type == token {
			return *a, true
		}
	}
	return Actuator{}, false
}

// ForEachSensor invokes fn for every sensor in registration order while
// holding the registry lock. The callback may mutate the entry; it must
// not call back into the registry.
func (r *Registry) ForEachSensor(fn func(s *Sensor)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sensors {
		fn(s)
	}
}

// ForEachActuator invokes fn for every actuator in registration order
// while holding the registry lock. Same contract as ForEachSensor.
func (r *Registry) ForEachActuator(fn func(a *Actuator)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.actuators {
		fn(a)
	}
}

// RecordSensorReading stores the latest calibrated reading for a sensor.
func (r *Registry) RecordSensorReading(id string, value float64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sensors {
		if s.ID == id {
			s.LastValue = value
			s.LastReadTime = at
			return nil
		}
	}
	return fmt.Errorf("%w: sensor %q", ErrNotFound, id)
}

// RecordActuatorStatus stores the latest reported state for an actuator.
func (r *Registry) RecordActuatorStatus(id, status string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.actuators {
		if a.ID == id {
			a.LastStatus = status
			a.LastStatusTime = at
			return nil
		}
	}
	return fmt.Errorf("%w: actuator %q", ErrNotFound, id)
}

// SetSensorStreaming toggles streaming mode for a sensor.
func (r *Registry) SetSensorStreaming(id string, enabled bool, interval time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sensors {
		if s.ID == id {
			s.Streaming = enabled
			s.StreamingInterval = interval
			return nil
		}
	}
	return fmt.Errorf("%w: sensor %q", ErrNotFound, id)
}

// SetSensorCalibration replaces a sensor's calibration.
func (r *Registry) SetSensorCalibration(id string, cal Calibration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sensors {
		if s.ID == id {
			s.Calibration = cal
			return nil
		}
	}
	return fmt.Errorf("%w: sensor %q", ErrNotFound, id)
}

// Sensors returns copies of all registered sensors in registration order.
func (r *Registry) Sensors() []Sensor {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Sensor, 0, len(r.sensors))
	for _, s := range r.sensors {
		out = append(out, *s)
	}
	return out
}

// Actuators returns copies of all registered actuators in registration order.
func (r *Registry) Actuators() []Actuator {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Actuator, 0, len(r.actuators))
	for _, a := range r.actuators {
		out = append(out, *a)
	}
	return out
}

// SensorCount returns the number of registered sensors.
func (r *Registry) SensorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sensors)
}

// ActuatorCount returns the number of registered actuators.
func (r *Registry) ActuatorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actuators)
}
