package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fernvale/devicebridge/internal/bridge"
	"github.com/fernvale/devicebridge/internal/device"
	"github.com/fernvale/devicebridge/internal/infrastructure/config"
	"github.com/fernvale/devicebridge/internal/infrastructure/logging"
)

// fakeBridge implements Bridge for handler tests.
type fakeBridge struct {
	registry     *device.Registry
	metrics      bridge.MetricsSnapshot
	status       bridge.StatusSnapshot
	resetsCalled int
}

func (f *fakeBridge) DeviceID() string                { return "bridge-test" }
func (f *fakeBridge) Status() bridge.StatusSnapshot   { return f.status }
func (f *fakeBridge) Metrics() bridge.MetricsSnapshot { return f.metrics }
func (f *fakeBridge) ResetMetrics()                   { f.resetsCalled++ }
func (f *fakeBridge) Registry() *device.Registry      { return f.registry }

func newTestServer(t *testing.T) (*Server, *fakeBridge) {
	t.Helper()

	registry := device.NewRegistry(4, 4)
	err := registry.RegisterSensor("temp-1", "temperature",
		func(ctx context.Context) (float64, error) { return 21, nil },
		device.SensorMetadata{MinRange: -40, MaxRange: 85, Unit: "C"})
	if err != nil {
		t.Fatalf("RegisterSensor() error: %v", err)
	}
	err = registry.RegisterActuator("relay-1", "switch",
		func(ctx context.Context, action, value string) error { return nil },
		device.ActuatorMetadata{ValueType: "boolean", SupportedActions: []string{"set"}})
	if err != nil {
		t.Fatalf("RegisterActuator() error: %v", err)
	}

	fake := &fakeBridge{
		registry: registry,
		status: bridge.StatusSnapshot{
			DeviceID:    "bridge-test",
			State:       "transport_up",
			LinkUp:      true,
			TransportUp: true,
			Uptime:      42,
		},
		metrics: bridge.MetricsSnapshot{MessagesSent: 7, CommandsProcessed: 3},
	}

	cfg := config.Default()
	s, err := New(Deps{
		Config:  cfg.API,
		Logger:  logging.New(cfg.Logging, "test"),
		Bridge:  fake,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return s, fake
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.buildRouter().ServeHTTP(rec, req)
	return rec
}

func TestNew_RequiresDependencies(t *testing.T) {
	cfg := config.Default()
	logger := logging.New(cfg.Logging, "test")

	if _, err := New(Deps{Logger: logger}); err == nil {
		t.Error("New() without bridge should fail")
	}
	if _, err := New(Deps{Bridge: &fakeBridge{}}); err == nil {
		t.Error("New() without logger should fail")
	}
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/healthz")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
}

func TestHandleStatus(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/status")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got bridge.StatusSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.DeviceID != "bridge-test" || got.State != "transport_up" || got.Uptime != 42 {
		t.Errorf("snapshot = %+v", got)
	}
}

func TestHandleMetrics(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/metrics")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got bridge.MetricsSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.MessagesSent != 7 || got.CommandsProcessed != 3 {
		t.Errorf("metrics = %+v", got)
	}
}

func TestHandleResetMetrics(t *testing.T) {
	s, fake := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/metrics/reset")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if fake.resetsCalled != 1 {
		t.Errorf("ResetMetrics called %d times, want 1", fake.resetsCalled)
	}
}

func TestHandleDevices(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/devices")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		DeviceID string          `json:"device_id"`
		Devices  []deviceSummary `json:"devices"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.DeviceID != "bridge-test" {
		t.Errorf("device_id = %q", body.DeviceID)
	}
	if len(body.Devices) != 2 {
		t.Fatalf("devices = %d, want 2", len(body.Devices))
	}

	kinds := map[string]string{}
	for _, d := range body.Devices {
		kinds[d.ID] = d.Kind
	}
	if kinds["temp-1"] != "sensor" || kinds["relay-1"] != "actuator" {
		t.Errorf("kinds = %v", kinds)
	}
}

func TestRequestIDHeader(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/healthz")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/nope")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
