package device

import (
	"context"
	"time"
)

// Default registry capacities. Overridable through configuration.
const (
	DefaultMaxSensors   = 16
	DefaultMaxActuators = 16
)

// ReadFunc produces one raw reading from a sensor. The returned value
// is uncalibrated; the registry applies the sensor's calibration before
// the reading leaves the bridge.
type ReadFunc func(ctx context.Context) (value float64, err error)

// ControlFunc applies one command to an actuator. It must be safe to
// call from the dispatch goroutine and should respect ctx cancellation
// for slow hardware.
type ControlFunc func(ctx context.Context, action, value string) error

// SensorMetadata describes a sensor's measurement characteristics.
type SensorMetadata struct {
	MinRange float64
	MaxRange float64
	Unit     string
	Accuracy float64

	// UpdateInterval is advisory; the telemetry cycle decides the actual
	// publish rate. Zero means "use the bridge default".
	UpdateInterval time.Duration

	Description string

	// CalibrationRequired marks sensors whose readings are meaningless
	// without a valid calibration.
	CalibrationRequired bool

	// CalibrationInterval is how long a calibration stays fresh.
	// Zero means calibrations never expire.
	CalibrationInterval time.Duration
}

// ActuatorMetadata describes an actuator's control surface.
type ActuatorMetadata struct {
	// ValueType names the domain of the command value ("boolean",
	// "percentage", "float", ...). Required.
	ValueType string

	Description string

	// SupportedActions lists the accepted command actions. At least one
	// is required.
	SupportedActions []string

	MinValue float64
	MaxValue float64

	// ResponseTime is how long the hardware typically takes to settle.
	ResponseTime time.Duration

	// RequiresConfirmation marks actuators whose commands should be
	// verified by a follow-up status read.
	RequiresConfirmation bool
}

// Sensor is a registered sensor entry.
type Sensor struct {
	ID          string
	Type        string
	Read        ReadFunc
	Metadata    SensorMetadata
	Calibration Calibration

	// LastValue and LastReadTime record the most recent successful
	// (calibrated) reading.
	LastValue    float64
	LastReadTime time.Time

	// Streaming marks sensors with a dedicated high-rate publisher.
	Streaming         bool
	StreamingInterval time.Duration
}

// Actuator is a registered actuator entry.
type Actuator struct {
	ID       string
	Type     string
	Control  ControlFunc
	Metadata ActuatorMetadata

	// LastStatus records the most recent reported state.
	LastStatus     string
	LastStatusTime time.Time
}

// Logger is the minimal logging interface the registry depends on.
// Both logging.Logger and test doubles satisfy it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output. Used when no logger is configured.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
