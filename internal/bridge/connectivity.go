package bridge

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// ConnState is the bridge's connectivity state.
//
// The happy path walks Idle, LinkConnecting, LinkUp,
// TransportConnecting, TransportUp. LinkFailed is terminal for a Start
// attempt; TransportDown loops back through TransportConnecting via the
// transport's own reconnection.
type ConnState int32

// Connectivity states.
const (
	StateIdle ConnState = iota
	StateLinkConnecting
	StateLinkUp
	StateLinkFailed
	StateTransportConnecting
	StateTransportUp
	StateTransportDown
)

// String returns the state name for logging and the status API.
func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLinkConnecting:
		return "link_connecting"
	case StateLinkUp:
		return "link_up"
	case StateLinkFailed:
		return "link_failed"
	case StateTransportConnecting:
		return "transport_connecting"
	case StateTransportUp:
		return "transport_up"
	case StateTransportDown:
		return "transport_down"
	default:
		return "unknown"
	}
}

// Link abstracts the local network layer underneath the broker
// connection. The bridge brings the link up before the transport and
// treats link loss as transport loss.
type Link interface {
	// Up brings the link up or verifies it is up. Blocking; respects ctx.
	Up(ctx context.Context) error

	// Down releases the link. Safe to call when already down.
	Down() error

	// IsUp reports the last known link state.
	IsUp() bool
}

// setState records a connectivity transition and logs it.
func (b *Bridge) setState(next ConnState) {
	prev := ConnState(b.state.Swap(int32(next)))
	if prev != next {
		b.logger.Debug("connectivity state changed",
			"from", prev.String(),
			"to", next.String(),
		)
	}
}

// State returns the current connectivity state.
func (b *Bridge) State() ConnState {
	return ConnState(b.state.Load())
}

// connectLink walks the link through its retry budget.
//
// Each failed attempt waits the configured delay before the next try.
// Exhausting the budget moves the bridge to LinkFailed.
func (b *Bridge) connectLink(ctx context.Context) error {
	b.setState(StateLinkConnecting)

	maxRetries := b.config().Link.MaxRetries
	retryDelay := b.config().LinkRetryDelay()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			b.metrics.linkReconnects.Add(1)
			select {
			case <-ctx.Done():
				b.setState(StateLinkFailed)
				return fmt.Errorf("%w: %w", ErrLinkFailed, ctx.Err())
			case <-time.After(retryDelay):
			}
		}

		if err := b.link.Up(ctx); err != nil {
			lastErr = err
			b.logger.Warn("link attempt failed",
				"attempt", attempt+1,
				"max", maxRetries+1,
				"error", err,
			)
			continue
		}

		b.linkUp.Store(true)
		b.setState(StateLinkUp)
		b.emit(Event{Kind: EventLinkConnected})
		return nil
	}

	b.setState(StateLinkFailed)
	return fmt.Errorf("%w: %d attempts exhausted: %w", ErrLinkFailed, maxRetries+1, lastErr)
}

// handleTransportConnect runs on every broker connect, initial and
// reconnect alike. It restores the command subscriptions, re-announces
// the retained capabilities and online status, and only then marks the
// transport usable.
func (b *Bridge) handleTransportConnect() {
	first := !b.everConnected.Swap(true)
	if !first {
		b.metrics.transportReconnects.Add(1)
	}

	b.transportUp.Store(true)
	b.setState(StateTransportUp)

	if err := b.subscribeCommands(); err != nil {
		b.logger.Error("failed to subscribe command topics", "error", err)
	}
	if err := b.publishCapabilities(); err != nil {
		b.logger.Error("failed to publish capabilities", "error", err)
	}
	if err := b.PublishDeviceStatus("online"); err != nil {
		b.logger.Error("failed to publish online status", "error", err)
	}

	b.logger.Info("transport connected", "device_id", b.deviceID)
	b.emit(Event{Kind: EventTransportConnected})
}

// handleTransportDisconnect runs when the broker session drops. The
// transport owns reconnection; the bridge just flips state and tells
// the application.
func (b *Bridge) handleTransportDisconnect(err error) {
	b.transportUp.Store(false)
	b.setState(StateTransportDown)
	b.metrics.connectionFailures.Add(1)

	reason := ""
	if err != nil {
		reason = err.Error()
	}
	b.logger.Warn("transport disconnected", "reason", reason)
	b.emit(Event{
		Kind:       EventTransportDisconnected,
		Disconnect: &DisconnectEvent{Reason: reason},
	})
}

// Reconnect forces a reconnection attempt. Non-blocking; the work runs
// in a background goroutine and the call returns once the attempt is
// scheduled.
//
// Returns:
//   - error: ErrNotRunning when the bridge is stopped; nil when the
//     attempt is scheduled or one is already in flight
func (b *Bridge) Reconnect() error {
	if !b.isRunning() {
		return ErrNotRunning
	}
	if !b.reconnecting.CompareAndSwap(false, true) {
		return nil
	}

	go func() {
		defer b.reconnecting.Store(false)

		ctx := b.runContext()
		if ctx == nil {
			return
		}

		b.logger.Info("forced reconnect requested")

		b.transportUp.Store(false)
		if err := b.transport.Close(); err != nil {
			b.logger.Warn("transport close during reconnect", "error", err)
		}

		b.linkUp.Store(false)
		if err := b.link.Down(); err != nil {
			b.logger.Warn("link down during reconnect", "error", err)
		}
		b.emit(Event{Kind: EventLinkDisconnected})

		if err := b.connectLink(ctx); err != nil {
			b.logger.Error("reconnect: link failed", "error", err)
			return
		}

		b.setState(StateTransportConnecting)
		if err := b.transport.Connect(ctx); err != nil {
			b.metrics.connectionFailures.Add(1)
			b.setState(StateTransportDown)
			b.logger.Error("reconnect: transport failed", "error", err)
		}
	}()
	return nil
}

// =============================================================================
// Link implementations
// =============================================================================

// InterfaceLink gates the transport on a named network interface being
// up. It does not configure the interface; the host OS owns that.
type InterfaceLink struct {
	name string
	up   atomic.Bool
}

// NewInterfaceLink creates a link tied to the named interface.
func NewInterfaceLink(name string) *InterfaceLink {
	return &InterfaceLink{name: name}
}

// Up verifies the interface exists and has the "up" flag.
func (l *InterfaceLink) Up(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return fmt.Errorf("listing interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if iface.Name != l.name {
			continue
		}
		for _, flag := range iface.Flags {
			if flag == "up" {
				l.up.Store(true)
				return nil
			}
		}
		return fmt.Errorf("interface %s is down", l.name)
	}

	return fmt.Errorf("interface %s not found", l.name)
}

// Down forgets the cached state. The interface itself is left alone.
func (l *InterfaceLink) Down() error {
	l.up.Store(false)
	return nil
}

// IsUp reports the last verified state.
func (l *InterfaceLink) IsUp() bool {
	return l.up.Load()
}

// StaticLink is always up. Used when no interface is configured, for
// hosts where the network is managed entirely outside the bridge.
type StaticLink struct{}

// Up always succeeds.
func (StaticLink) Up(ctx context.Context) error { return ctx.Err() }

// Down always succeeds.
func (StaticLink) Down() error { return nil }

// IsUp always reports true.
func (StaticLink) IsUp() bool { return true }
