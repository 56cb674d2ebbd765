// Package bridge implements the MQTT device bridge core.
//
// This package connects locally registered sensors and actuators to an
// MQTT broker. Sensor readings flow out on a periodic telemetry cycle,
// actuator commands flow in through a bounded dispatch queue, and a
// health monitor watches the host while the bridge runs.
//
// # Architecture
//
// The bridge sits between the local device profile and the broker:
//
//	┌─────────────────┐          ┌─────────────────┐
//	│    Sensors /    │  calls   │     Bridge      │   MQTT
//	│    Actuators    │◄────────►│   (this pkg)    │◄────────► Broker
//	└─────────────────┘          └─────────────────┘
//
// # Key Responsibilities
//
//   - Bring the network link and broker transport up in order
//   - Publish sensor telemetry on a drift-free periodic schedule
//   - Subscribe to actuator command topics and dispatch commands
//   - Announce the retained device capabilities and online status
//   - Monitor host memory and report low-memory conditions
//   - Track counters and gauges for the status API
//
// # Lifecycle
//
// New and Close bracket the bridge's lifetime; Start and Stop toggle
// activity in between without losing registered devices. Only one live
// bridge may exist per process.
//
// Example:
//
//	b, err := bridge.New(cfg, bridge.Options{Transport: client})
//	if err != nil {
//	    return err
//	}
//	defer b.Close()
//
//	if err := b.RegisterSensor("temp-1", "temperature", readTemp, meta); err != nil {
//	    return err
//	}
//	if err := b.Start(ctx); err != nil {
//	    return err
//	}
//
// # Connectivity
//
// Startup walks Idle, LinkConnecting, LinkUp, TransportConnecting,
// TransportUp. The link gets a bounded retry budget; exhausting it
// fails the Start with ErrLinkFailed. Once up, broker reconnection is
// owned by the transport, and the bridge re-announces its retained
// messages on every reconnect.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use from multiple
// goroutines.
package bridge
