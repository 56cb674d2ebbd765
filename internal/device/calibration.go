package device

import "time"

// Calibration is a linear correction applied to raw sensor readings.
//
// The corrected reading is raw*Scale + Offset. A zero-value Calibration
// is invalid; use DefaultCalibration for the identity transform.
type Calibration struct {
	Offset         float64
	Scale          float64
	LastCalibrated time.Time
	Valid          bool
}

// DefaultCalibration returns the identity calibration, valid as of now.
func DefaultCalibration() Calibration {
	return Calibration{
		Offset:         0,
		Scale:          1,
		LastCalibrated: time.Now(),
		Valid:          true,
	}
}

// Apply transforms a raw reading. Invalid calibrations pass the raw
// value through unchanged.
func (c Calibration) Apply(raw float64) float64 {
	if !c.Valid {
		return raw
	}
	return raw*c.Scale + c.Offset
}

// Expired reports whether the calibration is older than interval.
// A zero interval means calibrations never expire.
func (c Calibration) Expired(interval time.Duration) bool {
	if !c.Valid || interval <= 0 {
		return false
	}
	return time.Since(c.LastCalibrated) > interval
}
