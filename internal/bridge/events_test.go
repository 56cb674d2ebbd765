package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestEventKind_String(t *testing.T) {
	tests := []struct {
		kind EventKind
		want string
	}{
		{EventLinkConnected, "link_connected"},
		{EventLinkDisconnected, "link_disconnected"},
		{EventTransportConnected, "transport_connected"},
		{EventTransportDisconnected, "transport_disconnected"},
		{EventCommandReceived, "command_received"},
		{EventErrorOccurred, "error_occurred"},
		{EventKind(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("EventKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

// eventRecorder collects events delivered by the bridge.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) handle(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *eventRecorder) byKind(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func TestEvents_LifecycleSequence(t *testing.T) {
	transport := NewMockTransport()
	b := createTestBridge(t, createTestConfig(), transport, nil)

	rec := &eventRecorder{}
	b.RegisterEventHandler(rec.handle)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if got := len(rec.byKind(EventLinkConnected)); got != 1 {
		t.Errorf("link connected events = %d, want 1", got)
	}
	if got := len(rec.byKind(EventTransportConnected)); got != 1 {
		t.Errorf("transport connected events = %d, want 1", got)
	}

	transport.SimulateDisconnect(errors.New("gone"))
	events := rec.byKind(EventTransportDisconnected)
	if len(events) != 1 {
		t.Fatalf("transport disconnected events = %d, want 1", len(events))
	}
	if events[0].Disconnect == nil || events[0].Disconnect.Reason != "gone" {
		t.Errorf("disconnect payload = %+v, want reason \"gone\"", events[0].Disconnect)
	}
	if events[0].Timestamp.IsZero() {
		t.Error("event timestamp not set")
	}
}

func TestEvents_CommandReceivedCarriesPayload(t *testing.T) {
	transport := NewMockTransport()
	b := startTestBridge(t, createTestConfig(), transport)
	registerSwitch(t, b, func(ctx context.Context, action, value string) error { return nil })

	rec := &eventRecorder{}
	b.RegisterEventHandler(rec.handle)

	transport.SimulateMessage(testCommandTopic, []byte(`{"action":"set","value":"on"}`))

	events := rec.byKind(EventCommandReceived)
	if len(events) != 1 {
		t.Fatalf("command events = %d, want 1", len(events))
	}
	cmd := events[0].Command
	if cmd == nil || cmd.ActuatorID != "switch" || cmd.Action != "set" || cmd.Value != "on" {
		t.Errorf("command payload = %+v", cmd)
	}
	if events[0].Error != nil || events[0].Disconnect != nil {
		t.Error("unrelated payload fields set on command event")
	}
}

func TestEvents_ErrorOccurredEvenWhenTransportDown(t *testing.T) {
	transport := NewMockTransport()
	b := startTestBridge(t, createTestConfig(), transport)

	rec := &eventRecorder{}
	b.RegisterEventHandler(rec.handle)

	transport.SimulateDisconnect(nil)

	// Publishing fails, but the application still hears about the error.
	if err := b.PublishError("sensor_failure", "probe offline", 1); !errors.Is(err, ErrTransportUnavailable) {
		t.Errorf("PublishError() error = %v, want ErrTransportUnavailable", err)
	}

	events := rec.byKind(EventErrorOccurred)
	if len(events) != 1 {
		t.Fatalf("error events = %d, want 1", len(events))
	}
	if events[0].Error.ErrorType != "sensor_failure" || events[0].Error.Severity != 1 {
		t.Errorf("error payload = %+v", events[0].Error)
	}
}

func TestRegisterEventHandler_NilRemoves(t *testing.T) {
	transport := NewMockTransport()
	b := startTestBridge(t, createTestConfig(), transport)

	rec := &eventRecorder{}
	b.RegisterEventHandler(rec.handle)
	b.RegisterEventHandler(nil)

	transport.SimulateDisconnect(nil)
	time.Sleep(10 * time.Millisecond)

	if got := len(rec.byKind(EventTransportDisconnected)); got != 0 {
		t.Errorf("removed handler still received %d events", got)
	}
}
