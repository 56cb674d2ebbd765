package bridge

import "errors"

// Domain errors for the bridge package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, bridge.ErrTransportUnavailable) {
//	    // broker unreachable, retry later
//	}
var (
	// ErrAlreadyInitialized is returned when a second Bridge is created
	// before the first is closed. The bridge owns process-wide resources
	// (broker session, device identity) and must be a singleton.
	ErrAlreadyInitialized = errors.New("bridge: already initialized")

	// ErrNotInitialized is returned for operations on a closed bridge.
	ErrNotInitialized = errors.New("bridge: not initialized")

	// ErrAlreadyRunning is returned when Start is called on a running bridge.
	ErrAlreadyRunning = errors.New("bridge: already running")

	// ErrNotRunning is returned when Stop is called on a stopped bridge.
	ErrNotRunning = errors.New("bridge: not running")

	// ErrInvalidArgument is returned when operation input fails validation.
	ErrInvalidArgument = errors.New("bridge: invalid argument")

	// ErrLinkFailed is returned when the network link cannot be brought
	// up within the configured retry budget.
	ErrLinkFailed = errors.New("bridge: link failed")

	// ErrTransportUnavailable is returned when an operation needs the
	// broker connection and it is down.
	ErrTransportUnavailable = errors.New("bridge: transport unavailable")
)
