package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/fernvale/devicebridge/internal/device"
	"github.com/fernvale/devicebridge/internal/infrastructure/config"
	"github.com/fernvale/devicebridge/internal/infrastructure/mqtt"
	"github.com/fernvale/devicebridge/internal/protocol"
)

// Transport is the broker connection the bridge publishes through.
// *mqtt.Client satisfies it; tests substitute a mock.
type Transport interface {
	Connect(ctx context.Context) error
	Close() error
	IsConnected() bool
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	SetOnConnect(callback func())
	SetOnDisconnect(callback func(err error))
}

// Recorder receives a copy of published telemetry and command outcomes
// for history storage. *influxdb.Client satisfies it. Optional; nil
// disables recording.
type Recorder interface {
	WriteSensorReading(deviceID, sensorID, sensorType string, value float64)
	WriteActuatorCommand(deviceID, actuatorID, action string, ok bool)
	WriteBridgeHealth(deviceID string, freeMemory uint64, uptime int64)
}

// Logger is the minimal logging interface the bridge depends on.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options carries the bridge's collaborators.
type Options struct {
	// Transport is required.
	Transport Transport

	// Link is optional; nil means StaticLink (network managed by host).
	Link Link

	// Registry is optional; nil creates one sized from config.
	Registry *device.Registry

	// Recorder is optional; nil disables telemetry history.
	Recorder Recorder

	// Logger is optional; nil discards logs.
	Logger Logger

	// MemoryProbe overrides the free-memory sampler. Nil uses the
	// host's virtual memory statistics. Tests inject a fake.
	MemoryProbe func() (uint64, error)
}

// instanceActive enforces the one-live-bridge rule between New and Close.
var instanceActive atomic.Bool

// Bridge connects locally registered sensors and actuators to an MQTT
// broker: readings flow out on a periodic cycle, commands flow in
// through a bounded queue, and a health monitor watches the process.
//
// Construction (New) and destruction (Close) bracket the lifetime;
// Start and Stop toggle activity in between without losing the
// registry. Only one live Bridge may exist per process.
//
// Thread Safety: all exported methods are safe for concurrent use.
type Bridge struct {
	cfg   config.Config
	cfgMu sync.RWMutex

	deviceID string
	topics   protocol.Topics

	registry  *device.Registry
	transport Transport
	link      Link
	recorder  Recorder
	logger    Logger

	metrics metrics

	// Connectivity flags. Written by connectivity handlers, read
	// lock-free everywhere else.
	state         atomic.Int32
	linkUp        atomic.Bool
	transportUp   atomic.Bool
	everConnected atomic.Bool
	reconnecting  atomic.Bool

	// commands is the bounded inbound command queue. Created once in
	// New, never replaced, so the transport callback goroutine can
	// enqueue without touching runMu.
	commands chan queuedCommand

	// Run state, guarded by runMu.
	runMu     sync.Mutex
	running   bool
	closed    bool
	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup

	// startedAtNano is the Start timestamp in unix nanoseconds, zero
	// when stopped. Atomic so uptime reads never touch runMu (the
	// telemetry goroutines sample it while Stop holds the lock).
	startedAtNano atomic.Int64

	// streams maps sensor ID to the cancel func of its streaming
	// goroutine. Guarded by runMu.
	streams map[string]context.CancelFunc

	eventHandler EventHandler
	handlerMu    sync.RWMutex

	memProbe func() (uint64, error)
}

// New creates the bridge singleton.
//
// The device identity is resolved here: config wins, then the primary
// interface's hardware address, then a random suffix. The registry (and
// therefore the device profile) belongs to the Bridge and survives
// Stop/Start cycles.
//
// Returns:
//   - *Bridge: Ready to accept registrations; call Start to go live
//   - error: ErrAlreadyInitialized or ErrInvalidArgument
func New(cfg *config.Config, opts Options) (*Bridge, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidArgument)
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("%w: transport is required", ErrInvalidArgument)
	}

	if !instanceActive.CompareAndSwap(false, true) {
		return nil, ErrAlreadyInitialized
	}

	b := &Bridge{
		cfg:       *cfg,
		deviceID:  ResolveDeviceID(cfg.Device.ID),
		registry:  opts.Registry,
		transport: opts.Transport,
		link:      opts.Link,
		recorder:  opts.Recorder,
		logger:    opts.Logger,
		streams:   make(map[string]context.CancelFunc),
		memProbe:  opts.MemoryProbe,
	}

	if b.registry == nil {
		b.registry = device.NewRegistry(cfg.Device.MaxSensors, cfg.Device.MaxActuators)
	}
	if b.link == nil {
		if cfg.Link.Interface != "" {
			b.link = NewInterfaceLink(cfg.Link.Interface)
		} else {
			b.link = StaticLink{}
		}
	}
	if b.logger == nil {
		b.logger = noopLogger{}
	}
	if b.memProbe == nil {
		b.memProbe = hostFreeMemory
	}

	queueDepth := cfg.Telemetry.QueueDepth
	if queueDepth <= 0 {
		queueDepth = config.Default().Telemetry.QueueDepth
	}
	b.commands = make(chan queuedCommand, queueDepth)

	b.registry.SetLogger(b.logger)
	b.state.Store(int32(StateIdle))

	return b, nil
}

// ResolveDeviceID picks the bridge identity. The configured ID wins;
// otherwise one is derived from the primary interface's hardware
// address, falling back to a random suffix. Exposed so the caller can
// build the transport's last will with the same identity before the
// bridge exists.
func ResolveDeviceID(configured string) string {
	if configured != "" {
		return configured
	}

	// Derive from the first interface with a hardware address, the way
	// embedded devices name themselves from their MAC.
	if ifaces, err := net.Interfaces(); err == nil {
		for _, iface := range ifaces {
			hw := iface.HardwareAddr
			if len(hw) >= 3 && iface.Flags&net.FlagLoopback == 0 {
				tail := hw[len(hw)-3:]
				return fmt.Sprintf("bridge-%02x%02x%02x", tail[0], tail[1], tail[2])
			}
		}
	}

	return "bridge-" + uuid.NewString()[:8]
}

// DeviceID returns the resolved device identifier.
func (b *Bridge) DeviceID() string {
	return b.deviceID
}

// config returns a copy of the current configuration.
func (b *Bridge) config() config.Config {
	b.cfgMu.RLock()
	defer b.cfgMu.RUnlock()
	return b.cfg
}

// qos returns the configured QoS table.
func (b *Bridge) qos() config.QoSConfig {
	b.cfgMu.RLock()
	defer b.cfgMu.RUnlock()
	return b.cfg.MQTT.QoS
}

// Start brings the bridge online: link first, then transport, then the
// background loops (dispatch, telemetry, watchdog, streaming).
//
// Link failure within the retry budget aborts the start with
// ErrLinkFailed. A transport connect failure aborts with the transport
// error; nothing keeps running after a failed Start.
//
// Parameters:
//   - ctx: Bounds the connection attempts only, not the run lifetime
//
// Returns:
//   - error: nil once the bridge is live
func (b *Bridge) Start(ctx context.Context) error {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	if b.closed {
		return ErrNotInitialized
	}
	if b.running {
		return ErrAlreadyRunning
	}

	if err := b.connectLink(ctx); err != nil {
		return err
	}

	b.setState(StateTransportConnecting)
	b.transport.SetOnConnect(b.handleTransportConnect)
	b.transport.SetOnDisconnect(b.handleTransportDisconnect)
	if err := b.transport.Connect(ctx); err != nil {
		b.metrics.connectionFailures.Add(1)
		b.setState(StateTransportDown)
		return fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}

	// The paho connect callback may or may not have fired yet; make the
	// transport state authoritative here.
	if b.transport.IsConnected() && !b.transportUp.Load() {
		b.handleTransportConnect()
	}

	b.runCtx, b.runCancel = context.WithCancel(context.Background())
	b.startedAtNano.Store(time.Now().UnixNano())
	b.running = true

	b.wg.Add(2)
	go b.dispatchLoop(b.runCtx)
	go b.telemetryLoop(b.runCtx)

	if b.config().Watchdog.Enabled {
		b.wg.Add(1)
		go b.watchdogLoop(b.runCtx)
	}

	// Restore streaming publishers that survived a Stop.
	for _, s := range b.registry.Sensors() {
		if s.Streaming {
			b.startStreamLocked(s.ID, s.StreamingInterval)
		}
	}

	b.logger.Info("bridge started",
		"device_id", b.deviceID,
		"sensors", b.registry.SensorCount(),
		"actuators", b.registry.ActuatorCount(),
	)
	return nil
}

// Stop takes the bridge offline without destroying it.
//
// The retained offline status is published synchronously before the
// transport drops, so consumers see a clean shutdown rather than a
// last-will. Registrations survive; Start brings everything back.
//
// Returns:
//   - error: ErrNotRunning if the bridge is already stopped
func (b *Bridge) Stop() error {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	return b.stopLocked()
}

// stopLocked is Stop without the lock acquisition, shared with Close.
func (b *Bridge) stopLocked() error {
	if !b.running {
		return ErrNotRunning
	}

	// Graceful goodbye while the session is still alive.
	if b.transportUp.Load() {
		if err := b.PublishDeviceStatus("offline"); err != nil {
			b.logger.Warn("failed to publish offline status", "error", err)
		}
	}

	for id, cancel := range b.streams {
		cancel()
		delete(b.streams, id)
	}

	b.runCancel()
	b.wg.Wait()

	// Commands still queued when the dispatcher exits are dropped; a
	// restart begins with an empty queue.
drain:
	for {
		select {
		case cmd := <-b.commands:
			b.metrics.commandsDropped.Add(1)
			b.logger.Debug("dropping queued command on stop",
				"actuator", cmd.token,
				"action", cmd.action,
			)
		default:
			break drain
		}
	}

	if err := b.transport.Close(); err != nil {
		b.logger.Warn("transport close", "error", err)
	}
	b.transportUp.Store(false)

	if err := b.link.Down(); err != nil {
		b.logger.Warn("link down", "error", err)
	}
	b.linkUp.Store(false)
	b.emit(Event{Kind: EventLinkDisconnected})

	b.running = false
	b.startedAtNano.Store(0)
	b.setState(StateIdle)
	b.logger.Info("bridge stopped", "device_id", b.deviceID)
	return nil
}

// Close stops the bridge if needed and releases the singleton slot.
// The bridge is unusable afterwards; create a new one with New.
func (b *Bridge) Close() error {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	if b.closed {
		return nil
	}

	if err := b.stopLocked(); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}

	b.closed = true
	instanceActive.Store(false)
	return nil
}

// isRunning reports the run flag under the lock.
func (b *Bridge) isRunning() bool {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	return b.running
}

// runContext returns the current run context, or nil when stopped.
func (b *Bridge) runContext() context.Context {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if !b.running {
		return nil
	}
	return b.runCtx
}

// uptime returns time since the last successful Start, zero when stopped.
// Lock-free; safe from any goroutine.
func (b *Bridge) uptime() time.Duration {
	started := b.startedAtNano.Load()
	if started == 0 {
		return 0
	}
	return time.Since(time.Unix(0, started))
}

// =============================================================================
// Registration
// =============================================================================

// RegisterSensor adds a sensor to the device profile. Allowed before or
// after Start; the capabilities announcement refreshes on the next
// transport connect.
func (b *Bridge) RegisterSensor(id, sensorType string, read device.ReadFunc, meta device.SensorMetadata) error {
	return b.registry.RegisterSensor(id, sensorType, read, meta)
}

// RegisterActuator adds an actuator to the device profile. If the
// transport is already up, the command subscription is added
// immediately.
func (b *Bridge) RegisterActuator(id, actuatorType string, control device.ControlFunc, meta device.ActuatorMetadata) error {
	if err := b.registry.RegisterActuator(id, actuatorType, control, meta); err != nil {
		return err
	}

	if b.transportUp.Load() {
		topic := b.topics.ActuatorCommand(b.deviceID, actuatorType)
		if err := b.transport.Subscribe(topic, byte(b.qos().Actuator), b.handleCommandMessage); err != nil {
			b.logger.Error("failed to subscribe new actuator", "actuator_id", id, "error", err)
		}
	}
	return nil
}

// =============================================================================
// Publishing
// =============================================================================

// publish marshals a payload and sends it, counting the message.
func (b *Bridge) publish(topic string, payload any, qos byte, retained bool) error {
	if !b.transportUp.Load() {
		return ErrTransportUnavailable
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encoding payload: %w", ErrInvalidArgument, err)
	}

	if err := b.transport.Publish(topic, data, qos, retained); err != nil {
		return fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}

	b.metrics.messagesSent.Add(1)
	return nil
}

// PublishSensorData publishes one externally produced reading for a
// registered sensor, outside the periodic cycle. The value is taken as
// final (no calibration is applied) but still graded against the
// sensor's range for the payload quality score.
func (b *Bridge) PublishSensorData(sensorID string, value float64) error {
	s, ok := b.registry.FindSensor(sensorID)
	if !ok {
		return fmt.Errorf("%w: sensor %q", device.ErrNotFound, sensorID)
	}

	msg := protocol.NewSensorData(b.deviceID, s.Type, value, s.Metadata.Unit,
		readingQuality(value, s.Metadata), b.runtimeMetrics())
	if err := b.publish(b.topics.SensorData(b.deviceID, s.Type), msg, byte(b.qos().Sensor), false); err != nil {
		return err
	}

	if err := b.registry.RecordSensorReading(sensorID, value, time.Now()); err != nil {
		return err
	}
	if b.recorder != nil {
		b.recorder.WriteSensorReading(b.deviceID, s.ID, s.Type, value)
	}
	return nil
}

// SensorReading pairs a sensor ID with a reading for batch publishing.
type SensorReading struct {
	SensorID string
	Value    float64
}

// PublishSensorBatch publishes a set of readings.
//
// Each reading is formatted and published independently; an unknown
// sensor or a failed publish does not stop the rest of the batch. The
// batch is still all-or-nothing with respect to transport availability:
// if the transport is down, nothing is published.
//
// Returns:
//   - error: nil when every reading published, otherwise the joined
//     per-reading failures
func (b *Bridge) PublishSensorBatch(readings []SensorReading) error {
	if len(readings) == 0 {
		return fmt.Errorf("%w: empty batch", ErrInvalidArgument)
	}
	if !b.transportUp.Load() {
		return ErrTransportUnavailable
	}

	var errs []error
	for _, r := range readings {
		if err := b.PublishSensorData(r.SensorID, r.Value); err != nil {
			errs = append(errs, fmt.Errorf("sensor %q: %w", r.SensorID, err))
		}
	}
	return errors.Join(errs...)
}

// PublishActuatorStatus reports an actuator's current state.
func (b *Bridge) PublishActuatorStatus(actuatorID, status string) error {
	a, ok := b.registry.FindActuator(actuatorID)
	if !ok {
		return fmt.Errorf("%w: actuator %q", device.ErrNotFound, actuatorID)
	}

	msg := protocol.NewActuatorStatus(b.deviceID, status)
	if err := b.publish(b.topics.ActuatorStatus(b.deviceID, a.Type), msg, byte(b.qos().Actuator), false); err != nil {
		return err
	}

	return b.registry.RecordActuatorStatus(actuatorID, status, time.Now())
}

// PublishDeviceStatus publishes the retained online/offline status.
func (b *Bridge) PublishDeviceStatus(status string) error {
	if status != "online" && status != "offline" {
		return fmt.Errorf("%w: status must be online or offline", ErrInvalidArgument)
	}

	msg := protocol.NewStatus(b.deviceID, status)
	return b.publish(b.topics.Status(b.deviceID), msg, byte(b.qos().Status), true)
}

// PublishError publishes an error report and emits the matching event.
func (b *Bridge) PublishError(errorType, message string, severity int) error {
	if errorType == "" {
		return fmt.Errorf("%w: error type is required", ErrInvalidArgument)
	}

	b.emit(Event{
		Kind: EventErrorOccurred,
		Error: &ErrorEvent{
			ErrorType: errorType,
			Message:   message,
			Severity:  severity,
		},
	})

	msg := protocol.NewError(b.deviceID, errorType, message, severity)
	return b.publish(b.topics.Error(b.deviceID), msg, byte(b.qos().Error), false)
}

// publishCapabilities announces the retained device profile.
func (b *Bridge) publishCapabilities() error {
	cfg := b.config()

	msg := protocol.CapabilitiesMessage{
		DeviceID:        b.deviceID,
		FirmwareVersion: cfg.Device.FirmwareVersion,
		Sensors:         make([]protocol.CapabilitySensor, 0, b.registry.SensorCount()),
		Actuators:       make([]protocol.CapabilityActuator, 0, b.registry.ActuatorCount()),
		Metadata: map[string]any{
			"name": cfg.Device.Name,
		},
	}

	for _, s := range b.registry.Sensors() {
		msg.Sensors = append(msg.Sensors, protocol.CapabilitySensor{
			ID:   s.ID,
			Type: s.Type,
			Unit: s.Metadata.Unit,
		})
	}
	for _, a := range b.registry.Actuators() {
		msg.Actuators = append(msg.Actuators, protocol.CapabilityActuator{
			ID:        a.ID,
			Type:      a.Type,
			ValueType: a.Metadata.ValueType,
			Actions:   a.Metadata.SupportedActions,
		})
	}

	return b.publish(b.topics.Capabilities(b.deviceID), msg, byte(b.qos().Status), true)
}

// subscribeCommands subscribes every registered actuator's command topic.
func (b *Bridge) subscribeCommands() error {
	qos := byte(b.qos().Actuator)

	var firstErr error
	for _, a := range b.registry.Actuators() {
		topic := b.topics.ActuatorCommand(b.deviceID, a.Type)
		if err := b.transport.Subscribe(topic, qos, b.handleCommandMessage); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("subscribing %s: %w", topic, err)
		}
	}
	return firstErr
}

// runtimeMetrics samples the fields that ride along with sensor data.
func (b *Bridge) runtimeMetrics() protocol.RuntimeMetrics {
	return protocol.RuntimeMetrics{
		FreeHeap: b.metrics.freeMemory.Load(),
		Uptime:   int64(b.uptime().Seconds()),
	}
}

// =============================================================================
// Status and configuration
// =============================================================================

// StatusSnapshot describes the bridge's current connectivity.
type StatusSnapshot struct {
	DeviceID    string `json:"device_id"`
	State       string `json:"state"`
	LinkUp      bool   `json:"link_up"`
	TransportUp bool   `json:"transport_up"`
	Uptime      int64  `json:"uptime"`
}

// Status returns the current connectivity snapshot.
func (b *Bridge) Status() StatusSnapshot {
	return StatusSnapshot{
		DeviceID:    b.deviceID,
		State:       b.State().String(),
		LinkUp:      b.linkUp.Load(),
		TransportUp: b.transportUp.Load(),
		Uptime:      int64(b.uptime().Seconds()),
	}
}

// Registry exposes the device profile for read-only consumers (the
// status API). Mutation still goes through the bridge methods.
func (b *Bridge) Registry() *device.Registry {
	return b.registry
}

// UpdateConfig applies a new configuration.
//
// While running, only the hot-applicable fields take effect: telemetry
// interval, command timeout, the QoS table, and watchdog thresholds.
// Broker endpoint changes require Stop/Start; the command queue depth
// is fixed for the bridge's lifetime.
func (b *Bridge) UpdateConfig(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is required", ErrInvalidArgument)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	b.cfgMu.Lock()
	b.cfg = *cfg
	b.cfgMu.Unlock()

	b.logger.Info("configuration updated",
		"publish_interval", cfg.Telemetry.PublishInterval,
		"command_timeout", cfg.Telemetry.CommandTimeout,
	)
	return nil
}
