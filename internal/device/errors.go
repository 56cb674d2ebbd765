package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrNotFound) {
//	    // handle not found case
//	}
var (
	// ErrNotFound is returned when a sensor or actuator ID does not exist.
	ErrNotFound = errors.New("device: not found")

	// ErrAlreadyExists is returned when registering an ID that is already taken.
	ErrAlreadyExists = errors.New("device: already exists")

	// ErrCapacityExceeded is returned when the registry is full.
	ErrCapacityExceeded = errors.New("device: capacity exceeded")

	// ErrInvalidArgument is returned when registration input fails validation.
	ErrInvalidArgument = errors.New("device: invalid argument")
)
