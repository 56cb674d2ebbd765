package bridge

import (
	"time"
)

// EventKind discriminates the payload carried by an Event.
type EventKind int

// Event kinds emitted by the bridge.
const (
	// EventLinkConnected fires when the network link comes up.
	EventLinkConnected EventKind = iota

	// EventLinkDisconnected fires when the network link drops.
	EventLinkDisconnected

	// EventTransportConnected fires when the broker session is
	// established, on initial connect and every reconnect.
	EventTransportConnected

	// EventTransportDisconnected fires when the broker session drops.
	EventTransportDisconnected

	// EventCommandReceived fires for every well-formed inbound command,
	// whether or not it was accepted into the queue.
	EventCommandReceived

	// EventErrorOccurred fires when the bridge publishes an error report.
	EventErrorOccurred
)

// String returns the event kind name for logging.
func (k EventKind) String() string {
	switch k {
	case EventLinkConnected:
		return "link_connected"
	case EventLinkDisconnected:
		return "link_disconnected"
	case EventTransportConnected:
		return "transport_connected"
	case EventTransportDisconnected:
		return "transport_disconnected"
	case EventCommandReceived:
		return "command_received"
	case EventErrorOccurred:
		return "error_occurred"
	default:
		return "unknown"
	}
}

// CommandEvent carries the payload of an EventCommandReceived.
type CommandEvent struct {
	ActuatorID string
	Action     string
	Value      string
}

// ErrorEvent carries the payload of an EventErrorOccurred.
type ErrorEvent struct {
	ErrorType string
	Message   string
	Severity  int
}

// DisconnectEvent carries the payload of the disconnected event kinds.
type DisconnectEvent struct {
	Reason string
}

// Event is the tagged union delivered to the registered event handler.
// Exactly the payload field matching Kind is non-nil; the rest are nil.
type Event struct {
	Kind      EventKind
	Timestamp time.Time

	Command    *CommandEvent
	Error      *ErrorEvent
	Disconnect *DisconnectEvent
}

// EventHandler receives bridge events.
//
// The handler is invoked synchronously from bridge goroutines and must
// not block. At most one handler is registered at a time.
type EventHandler func(Event)

// emit delivers an event to the registered handler, if any.
func (b *Bridge) emit(event Event) {
	b.handlerMu.RLock()
	handler := b.eventHandler
	b.handlerMu.RUnlock()

	if handler != nil {
		event.Timestamp = time.Now()
		handler(event)
	}
}

// RegisterEventHandler installs the event handler, replacing any
// previous one. Passing nil removes the handler.
func (b *Bridge) RegisterEventHandler(handler EventHandler) {
	b.handlerMu.Lock()
	b.eventHandler = handler
	b.handlerMu.Unlock()
}
