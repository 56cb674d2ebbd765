package influxdb

import (
	"errors"
	"testing"

	"github.com/fernvale/devicebridge/internal/infrastructure/config"
)

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() with disabled config error = %v, want ErrDisabled", err)
	}
}

func TestClient_Writes_Disconnected(t *testing.T) {
	// A zero-value client must swallow writes without panicking.
	c := &Client{}

	c.WriteSensorReading("bridge-01", "temp-01", "temperature", 21.5)
	c.WriteActuatorCommand("bridge-01", "relay-01", "set", true)
	c.WriteBridgeHealth("bridge-01", 1024, 60)
}

func TestClient_Close_Idempotent(t *testing.T) {
	c := &Client{}

	if err := c.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
}
