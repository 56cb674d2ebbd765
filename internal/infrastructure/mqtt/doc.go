// Package mqtt provides the broker connection for the device bridge.
//
// This package manages:
//   - Connection to the MQTT broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Lifecycle
//
// The client separates construction from connection so the bridge can
// stop and start without rebuilding its wiring:
//
//	client := mqtt.New(cfg.MQTT, will)
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close()
//
// After the initial Connect succeeds, the paho library owns reconnection
// (exponential backoff between reconnect.initial_delay and
// reconnect.max_delay). Subscriptions registered through Subscribe are
// restored automatically on every reconnect.
//
// # Security Considerations
//
//   - TLS is required for production deployments (mqtt.tls.enabled)
//   - Mutual TLS is supported via cert_file/key_file
//   - skip_verify is rejected by config validation outside development
//   - Message payloads are not encrypted beyond TLS transport
package mqtt
