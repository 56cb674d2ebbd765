package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/fernvale/devicebridge/internal/device"
	"github.com/fernvale/devicebridge/internal/protocol"
)

// telemetryLoop drives the periodic sensor publishing cycle.
//
// The schedule is anchored to the previous wake time rather than the
// cycle's finish time, so publish latency does not accumulate drift. A
// cycle that overruns its slot skips ahead instead of bursting to catch
// up.
func (b *Bridge) telemetryLoop(ctx context.Context) {
	defer b.wg.Done()

	next := time.Now().Add(b.config().PublishInterval())
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if b.transportUp.Load() {
			b.publishCycle(ctx)
		} else {
			b.logger.Debug("telemetry cycle skipped, transport down")
		}

		interval := b.config().PublishInterval()
		next = next.Add(interval)
		if time.Until(next) <= 0 {
			next = time.Now().Add(interval)
		}
		timer.Reset(time.Until(next))
	}
}

// publishCycle reads and publishes every registered sensor once.
//
// The registry lock is held for the whole iteration, so the cycle sees
// a consistent profile. One failing sensor is counted and skipped; the
// rest of the cycle continues.
func (b *Bridge) publishCycle(ctx context.Context) {
	now := time.Now()

	b.registry.ForEachSensor(func(s *device.Sensor) {
		raw, err := s.Read(ctx)
		if err != nil {
			b.metrics.sensorReadErrors.Add(1)
			b.logger.Warn("sensor read failed", "sensor_id", s.ID, "error", err)
			return
		}

		value := s.Calibration.Apply(raw)
		s.LastValue = value
		s.LastReadTime = now

		msg := protocol.NewSensorData(b.deviceID, s.Type, value, s.Metadata.Unit,
			readingQuality(value, s.Metadata), b.runtimeMetrics())
		if err := b.publish(b.topics.SensorData(b.deviceID, s.Type), msg, byte(b.qos().Sensor), false); err != nil {
			b.metrics.sensorReadErrors.Add(1)
			b.logger.Warn("sensor publish failed", "sensor_id", s.ID, "error", err)
			return
		}

		if b.recorder != nil {
			b.recorder.WriteSensorReading(b.deviceID, s.ID, s.Type, value)
		}
	})
}

// readingQuality grades a calibrated reading against the sensor range,
// on the payload's 0-100 scale.
func readingQuality(value float64, meta device.SensorMetadata) int {
	if value < meta.MinRange || value > meta.MaxRange {
		return protocol.QualityBad
	}
	return protocol.QualityGood
}

// SetSensorStreaming enables or disables a dedicated high-rate
// publisher for one sensor.
//
// Streaming supplements the periodic cycle; the sensor keeps appearing
// in regular cycles as well. The setting survives Stop/Start.
//
// Parameters:
//   - sensorID: Registered sensor to stream
//   - enabled: Whether to stream
//   - interval: Publish period; must be positive when enabling
func (b *Bridge) SetSensorStreaming(sensorID string, enabled bool, interval time.Duration) error {
	if enabled && interval <= 0 {
		return fmt.Errorf("%w: streaming interval must be positive", ErrInvalidArgument)
	}

	if err := b.registry.SetSensorStreaming(sensorID, enabled, interval); err != nil {
		return err
	}

	b.runMu.Lock()
	defer b.runMu.Unlock()

	if cancel, ok := b.streams[sensorID]; ok {
		cancel()
		delete(b.streams, sensorID)
	}
	if enabled && b.running {
		b.startStreamLocked(sensorID, interval)
	}

	b.logger.Info("sensor streaming changed",
		"sensor_id", sensorID,
		"enabled", enabled,
		"interval", interval,
	)
	return nil
}

// startStreamLocked launches the streaming goroutine for one sensor.
// Caller holds runMu and has verified the bridge is running.
func (b *Bridge) startStreamLocked(sensorID string, interval time.Duration) {
	ctx, cancel := context.WithCancel(b.runCtx)
	b.streams[sensorID] = cancel

	b.wg.Add(1)
	go b.streamLoop(ctx, sensorID, interval)
}

// streamLoop publishes one sensor at its streaming interval.
func (b *Bridge) streamLoop(ctx context.Context, sensorID string, interval time.Duration) {
	defer b.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !b.transportUp.Load() {
			continue
		}

		s, ok := b.registry.FindSensor(sensorID)
		if !ok {
			return
		}

		raw, err := s.Read(ctx)
		if err != nil {
			b.metrics.sensorReadErrors.Add(1)
			b.logger.Warn("streaming read failed", "sensor_id", sensorID, "error", err)
			continue
		}

		value := s.Calibration.Apply(raw)
		if err := b.registry.RecordSensorReading(sensorID, value, time.Now()); err != nil {
			return
		}

		msg := protocol.NewSensorData(b.deviceID, s.Type, value, s.Metadata.Unit,
			readingQuality(value, s.Metadata), b.runtimeMetrics())
		if err := b.publish(b.topics.SensorData(b.deviceID, s.Type), msg, byte(b.qos().Sensor), false); err != nil {
			b.logger.Warn("streaming publish failed", "sensor_id", sensorID, "error", err)
			continue
		}

		if b.recorder != nil {
			b.recorder.WriteSensorReading(b.deviceID, s.ID, s.Type, value)
		}
	}
}
