package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/metrics", s.handleMetrics)
		r.Post("/metrics/reset", s.handleResetMetrics)
		r.Get("/devices", s.handleDevices)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// handleStatus returns the bridge connectivity snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.bridge.Status())
}

// handleMetrics returns the bridge counters and gauges.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.bridge.Metrics())
}

// handleResetMetrics zeroes the bridge counters.
func (s *Server) handleResetMetrics(w http.ResponseWriter, _ *http.Request) {
	s.bridge.ResetMetrics()
	writeJSON(w, http.StatusOK, map[string]any{"status": "reset"})
}

// deviceSummary is one registered sensor or actuator in the devices listing.
type deviceSummary struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Kind      string `json:"kind"`
	Unit      string `json:"unit,omitempty"`
	ValueType string `json:"value_type,omitempty"`
	Streaming bool   `json:"streaming,omitempty"`
}

// handleDevices lists the registered device profile.
func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	registry := s.bridge.Registry()

	devices := make([]deviceSummary, 0, registry.SensorCount()+registry.ActuatorCount())
	for _, sensor := range registry.Sensors() {
		devices = append(devices, deviceSummary{
			ID:        sensor.ID,
			Type:      sensor.Type,
			Kind:      "sensor",
			Unit:      sensor.Metadata.Unit,
			Streaming: sensor.Streaming,
		})
	}
	for _, actuator := range registry.Actuators() {
		devices = append(devices, deviceSummary{
			ID:        actuator.ID,
			Type:      actuator.Type,
			Kind:      "actuator",
			ValueType: actuator.Metadata.ValueType,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": s.bridge.DeviceID(),
		"devices":   devices,
	})
}
