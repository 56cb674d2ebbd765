package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fernvale/devicebridge/internal/device"
	"github.com/fernvale/devicebridge/internal/infrastructure/config"
	"github.com/fernvale/devicebridge/internal/infrastructure/mqtt"
)

// MockTransport implements Transport for testing.
type MockTransport struct {
	mu           sync.Mutex
	connected    bool
	connectErr   error
	published    []mockPublish
	handlers     map[string]mqtt.MessageHandler
	onConnect    func()
	onDisconnect func(err error)
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockTransport() *MockTransport {
	return &MockTransport{
		handlers: make(map[string]mqtt.MessageHandler),
	}
}

func (m *MockTransport) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected = true
	return nil
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockTransport) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{
		Topic:    topic,
		Payload:  payload,
		QoS:      qos,
		Retained: retained,
	})
	return nil
}

func (m *MockTransport) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *MockTransport) SetOnConnect(callback func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnect = callback
}

func (m *MockTransport) SetOnDisconnect(callback func(err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDisconnect = callback
}

func (m *MockTransport) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mockPublish, len(m.published))
	copy(out, m.published)
	return out
}

func (m *MockTransport) ClearPublished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}

func (m *MockTransport) GetSubscribedTopics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	topics := make([]string, 0, len(m.handlers))
	for topic := range m.handlers {
		topics = append(topics, topic)
	}
	return topics
}

// SimulateMessage delivers an inbound message to the matching handler.
func (m *MockTransport) SimulateMessage(topic string, payload []byte) {
	m.mu.Lock()
	handler, ok := m.handlers[topic]
	m.mu.Unlock()
	if ok {
		_ = handler(topic, payload)
	}
}

// SimulateDisconnect fires the registered disconnect callback.
func (m *MockTransport) SimulateDisconnect(err error) {
	m.mu.Lock()
	m.connected = false
	callback := m.onDisconnect
	m.mu.Unlock()
	if callback != nil {
		callback(err)
	}
}

// MockLink implements Link for testing.
type MockLink struct {
	mu       sync.Mutex
	up       bool
	upCalls  int
	failures int // fail this many Up calls before succeeding
}

func (m *MockLink) Up(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upCalls++
	if m.upCalls <= m.failures {
		return errors.New("link unavailable")
	}
	m.up = true
	return nil
}

func (m *MockLink) Down() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.up = false
	return nil
}

func (m *MockLink) IsUp() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.up
}

func (m *MockLink) UpCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upCalls
}

// MockRecorder implements Recorder for testing.
type MockRecorder struct {
	mu       sync.Mutex
	readings []string
	commands []string
}

func (m *MockRecorder) WriteSensorReading(deviceID, sensorID, sensorType string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = append(m.readings, fmt.Sprintf("%s=%g", sensorID, value))
}

func (m *MockRecorder) WriteActuatorCommand(deviceID, actuatorID, action string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, fmt.Sprintf("%s/%s=%t", actuatorID, action, ok))
}

func (m *MockRecorder) WriteBridgeHealth(deviceID string, freeMemory uint64, uptime int64) {}

func (m *MockRecorder) GetReadings() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.readings))
	copy(out, m.readings)
	return out
}

func (m *MockRecorder) GetCommands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.commands))
	copy(out, m.commands)
	return out
}

// createTestConfig returns a config suitable for fast tests.
func createTestConfig() *config.Config {
	cfg := config.Default()
	cfg.Device.ID = "bridge-test"
	cfg.Device.Name = "test bridge"
	cfg.Link.RetryDelay = 0
	cfg.Telemetry.PublishInterval = 3600
	cfg.Watchdog.Enabled = false
	return cfg
}

// createTestBridge creates a bridge wired to mocks and registers cleanup.
func createTestBridge(t *testing.T, cfg *config.Config, transport *MockTransport, link Link) *Bridge {
	t.Helper()
	if link == nil {
		link = &MockLink{}
	}
	b, err := New(cfg, Options{
		Transport:   transport,
		Link:        link,
		MemoryProbe: func() (uint64, error) { return 1 << 30, nil },
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// startTestBridge creates and starts a bridge.
func startTestBridge(t *testing.T, cfg *config.Config, transport *MockTransport) *Bridge {
	t.Helper()
	b := createTestBridge(t, cfg, transport, nil)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	return b
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, desc string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func registerTestSensor(t *testing.T, b *Bridge, id string, value float64) {
	t.Helper()
	err := b.RegisterSensor(id, "temperature",
		func(ctx context.Context) (float64, error) { return value, nil },
		device.SensorMetadata{MinRange: -40, MaxRange: 85, Unit: "C"})
	if err != nil {
		t.Fatalf("RegisterSensor(%s) error: %v", id, err)
	}
}

func TestNew_RequiresConfigAndTransport(t *testing.T) {
	if _, err := New(nil, Options{Transport: NewMockTransport()}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("New(nil config) error = %v, want ErrInvalidArgument", err)
	}
	if _, err := New(createTestConfig(), Options{}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("New(no transport) error = %v, want ErrInvalidArgument", err)
	}
}

func TestNew_SingleInstance(t *testing.T) {
	cfg := createTestConfig()
	b := createTestBridge(t, cfg, NewMockTransport(), nil)

	if _, err := New(cfg, Options{Transport: NewMockTransport()}); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("second New() error = %v, want ErrAlreadyInitialized", err)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	b2, err := New(cfg, Options{Transport: NewMockTransport()})
	if err != nil {
		t.Fatalf("New() after Close error: %v", err)
	}
	_ = b2.Close()
}

func TestStartStop_Lifecycle(t *testing.T) {
	transport := NewMockTransport()
	cfg := createTestConfig()
	b := startTestBridge(t, cfg, transport)

	if got := b.State(); got != StateTransportUp {
		t.Errorf("State() after Start = %v, want %v", got, StateTransportUp)
	}

	// Initial connect announces capabilities and online status, retained.
	var sawCapabilities, sawOnline bool
	for _, p := range transport.GetPublished() {
		switch p.Topic {
		case "devices/bridge-test/capabilities":
			sawCapabilities = p.Retained
		case "devices/bridge-test/status":
			sawOnline = p.Retained && strings.Contains(string(p.Payload), "online")
		}
	}
	if !sawCapabilities {
		t.Error("capabilities not published retained on connect")
	}
	if !sawOnline {
		t.Error("online status not published retained on connect")
	}

	if err := b.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	transport.ClearPublished()
	if err := b.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if got := b.State(); got != StateIdle {
		t.Errorf("State() after Stop = %v, want %v", got, StateIdle)
	}

	// Clean shutdown publishes offline before the transport drops.
	var sawOffline bool
	for _, p := range transport.GetPublished() {
		if p.Topic == "devices/bridge-test/status" && strings.Contains(string(p.Payload), "offline") {
			sawOffline = true
		}
	}
	if !sawOffline {
		t.Error("offline status not published on Stop")
	}

	if err := b.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("second Stop() error = %v, want ErrNotRunning", err)
	}

	// Registrations survive Stop; Start works again.
	registerTestSensor(t, b, "temp-1", 21.5)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("restart error: %v", err)
	}
	if got := b.Registry().SensorCount(); got != 1 {
		t.Errorf("SensorCount() after restart = %d, want 1", got)
	}
}

func TestStart_AfterClose(t *testing.T) {
	b := createTestBridge(t, createTestConfig(), NewMockTransport(), nil)
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := b.Start(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Start() after Close error = %v, want ErrNotInitialized", err)
	}
}

func TestRegisterActuator_SubscribesWhileRunning(t *testing.T) {
	transport := NewMockTransport()
	b := startTestBridge(t, createTestConfig(), transport)

	err := b.RegisterActuator("relay-1", "switch",
		func(ctx context.Context, action, value string) error { return nil },
		device.ActuatorMetadata{ValueType: "boolean", SupportedActions: []string{"set"}})
	if err != nil {
		t.Fatalf("RegisterActuator() error: %v", err)
	}

	want := "devices/bridge-test/actuators/switch/cmd"
	var found bool
	for _, topic := range transport.GetSubscribedTopics() {
		if topic == want {
			found = true
		}
	}
	if !found {
		t.Errorf("command topic %q not subscribed after registration", want)
	}
}

func TestPublishSensorData(t *testing.T) {
	transport := NewMockTransport()
	b := startTestBridge(t, createTestConfig(), transport)
	registerTestSensor(t, b, "temp-1", 0)
	transport.ClearPublished()

	if err := b.PublishSensorData("temp-1", 22.5); err != nil {
		t.Fatalf("PublishSensorData() error: %v", err)
	}

	published := transport.GetPublished()
	if len(published) != 1 {
		t.Fatalf("published %d messages, want 1", len(published))
	}
	p := published[0]
	if p.Topic != "devices/bridge-test/sensors/temperature/data" {
		t.Errorf("topic = %q", p.Topic)
	}
	if p.QoS != 0 {
		t.Errorf("QoS = %d, want 0", p.QoS)
	}

	var msg map[string]any
	if err := json.Unmarshal(p.Payload, &msg); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
	if msg["device_id"] != "bridge-test" || msg["type"] != "sensor" || msg["action"] != "read" {
		t.Errorf("payload envelope wrong: %v", msg)
	}
	value, ok := msg["value"].(map[string]any)
	if !ok || value["reading"] != 22.5 || value["unit"] != "C" {
		t.Errorf("payload value wrong: %v", msg["value"])
	}
	if value["quality"] != float64(100) {
		t.Errorf("quality = %v (%T), want the number 100", value["quality"], value["quality"])
	}

	// Reading is recorded on the registry entry.
	s, ok := b.Registry().FindSensor("temp-1")
	if !ok || s.LastValue != 22.5 {
		t.Errorf("LastValue = %v, want 22.5", s.LastValue)
	}

	if err := b.PublishSensorData("missing", 1); !errors.Is(err, device.ErrNotFound) {
		t.Errorf("unknown sensor error = %v, want ErrNotFound", err)
	}
}

func TestPublishSensorData_TransportDown(t *testing.T) {
	transport := NewMockTransport()
	b := startTestBridge(t, createTestConfig(), transport)
	registerTestSensor(t, b, "temp-1", 0)

	transport.SimulateDisconnect(errors.New("broker gone"))

	if err := b.PublishSensorData("temp-1", 22.5); !errors.Is(err, ErrTransportUnavailable) {
		t.Errorf("error = %v, want ErrTransportUnavailable", err)
	}
}

func TestPublishSensorBatch(t *testing.T) {
	transport := NewMockTransport()
	b := startTestBridge(t, createTestConfig(), transport)
	registerTestSensor(t, b, "temp-1", 0)

	if err := b.PublishSensorBatch(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("empty batch error = %v, want ErrInvalidArgument", err)
	}

	transport.ClearPublished()
	readings := []SensorReading{{SensorID: "temp-1", Value: 20}, {SensorID: "temp-1", Value: 21}}
	if err := b.PublishSensorBatch(readings); err != nil {
		t.Fatalf("PublishSensorBatch() error: %v", err)
	}
	if got := len(transport.GetPublished()); got != 2 {
		t.Errorf("published %d messages, want 2", got)
	}

	transport.SimulateDisconnect(nil)
	if err := b.PublishSensorBatch(readings); !errors.Is(err, ErrTransportUnavailable) {
		t.Errorf("batch while down error = %v, want ErrTransportUnavailable", err)
	}
}

func TestPublishSensorBatch_ContinuesPastUnknownSensor(t *testing.T) {
	transport := NewMockTransport()
	b := startTestBridge(t, createTestConfig(), transport)
	registerTestSensor(t, b, "temp-1", 0)
	transport.ClearPublished()

	readings := []SensorReading{
		{SensorID: "temp-1", Value: 20},
		{SensorID: "missing", Value: 1},
		{SensorID: "temp-1", Value: 21},
	}

	err := b.PublishSensorBatch(readings)
	if !errors.Is(err, device.ErrNotFound) {
		t.Errorf("mixed batch error = %v, want ErrNotFound for the unknown entry", err)
	}

	// The readings around the bad entry still go out.
	if got := len(transport.GetPublished()); got != 2 {
		t.Errorf("published %d messages, want 2", got)
	}
	s, _ := b.Registry().FindSensor("temp-1")
	if s.LastValue != 21 {
		t.Errorf("LastValue = %v, want the last valid reading 21", s.LastValue)
	}
}

func TestRecorder_ReceivesReadingsAndCommandOutcomes(t *testing.T) {
	transport := NewMockTransport()
	recorder := &MockRecorder{}
	b, err := New(createTestConfig(), Options{
		Transport:   transport,
		Link:        &MockLink{},
		Recorder:    recorder,
		MemoryProbe: func() (uint64, error) { return 1 << 30, nil },
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	registerTestSensor(t, b, "temp-1", 0)
	if err := b.PublishSensorData("temp-1", 22.5); err != nil {
		t.Fatalf("PublishSensorData() error: %v", err)
	}

	readings := recorder.GetReadings()
	if len(readings) != 1 || readings[0] != "temp-1=22.5" {
		t.Errorf("recorded readings = %v, want [temp-1=22.5]", readings)
	}

	err = b.RegisterActuator("relay-1", "switch",
		func(ctx context.Context, action, value string) error { return nil },
		device.ActuatorMetadata{ValueType: "boolean", SupportedActions: []string{"set"}})
	if err != nil {
		t.Fatalf("RegisterActuator() error: %v", err)
	}
	transport.SimulateMessage("devices/bridge-test/actuators/switch/cmd",
		[]byte(`{"action":"set","value":true}`))

	waitFor(t, time.Second, func() bool {
		return len(recorder.GetCommands()) == 1
	}, "command outcome to be recorded")
	if got := recorder.GetCommands()[0]; got != "relay-1/set=true" {
		t.Errorf("recorded command = %q, want relay-1/set=true", got)
	}
}

func TestPublishDeviceStatus_Validation(t *testing.T) {
	b := startTestBridge(t, createTestConfig(), NewMockTransport())
	if err := b.PublishDeviceStatus("rebooting"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("error = %v, want ErrInvalidArgument", err)
	}
}

func TestStatusSnapshot(t *testing.T) {
	transport := NewMockTransport()
	b := startTestBridge(t, createTestConfig(), transport)

	got := b.Status()
	if got.DeviceID != "bridge-test" {
		t.Errorf("DeviceID = %q", got.DeviceID)
	}
	if got.State != "transport_up" || !got.LinkUp || !got.TransportUp {
		t.Errorf("snapshot = %+v, want transport_up with both flags set", got)
	}

	if err := b.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	got = b.Status()
	if got.State != "idle" || got.TransportUp || got.Uptime != 0 {
		t.Errorf("snapshot after Stop = %+v, want idle", got)
	}
}

func TestUpdateConfig(t *testing.T) {
	b := createTestBridge(t, createTestConfig(), NewMockTransport(), nil)

	if err := b.UpdateConfig(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("UpdateConfig(nil) error = %v, want ErrInvalidArgument", err)
	}

	bad := createTestConfig()
	bad.Telemetry.PublishInterval = 0
	if err := b.UpdateConfig(bad); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("UpdateConfig(invalid) error = %v, want ErrInvalidArgument", err)
	}

	updated := createTestConfig()
	updated.Telemetry.CommandTimeout = 9
	if err := b.UpdateConfig(updated); err != nil {
		t.Fatalf("UpdateConfig() error: %v", err)
	}
	if got := b.config().Telemetry.CommandTimeout; got != 9 {
		t.Errorf("CommandTimeout after update = %d, want 9", got)
	}
}

func TestResolveDeviceID_Configured(t *testing.T) {
	if got := ResolveDeviceID("bridge-custom"); got != "bridge-custom" {
		t.Errorf("ResolveDeviceID() = %q, want configured value", got)
	}
}

func TestResolveDeviceID_Generated(t *testing.T) {
	got := ResolveDeviceID("")
	if !strings.HasPrefix(got, "bridge-") {
		t.Errorf("ResolveDeviceID() = %q, want bridge- prefix", got)
	}
	if len(got) <= len("bridge-") {
		t.Errorf("ResolveDeviceID() = %q, want a suffix", got)
	}
}
