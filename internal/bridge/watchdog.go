package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/fernvale/devicebridge/internal/protocol"
)

// hostFreeMemory samples the host's available memory in bytes.
func hostFreeMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, fmt.Errorf("sampling virtual memory: %w", err)
	}
	return vm.Available, nil
}

// watchdogLoop is the periodic health monitor.
//
// Every cycle it samples free memory, refreshes the gauges, and feeds
// the history recorder. A drop below the configured threshold reports a
// low-memory error exactly once per excursion; the report re-arms when
// memory recovers above the threshold.
//
// The watchdog observes and reports only. It never restarts components
// or mutates bridge state.
func (b *Bridge) watchdogLoop(ctx context.Context) {
	defer b.wg.Done()

	lowMemoryReported := false

	ticker := time.NewTicker(b.config().WatchdogInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		free, err := b.memProbe()
		if err != nil {
			b.logger.Warn("health monitor memory probe failed", "error", err)
			continue
		}

		b.metrics.freeMemory.Store(free)

		threshold := b.config().Watchdog.MemoryThreshold
		switch {
		case free < threshold && !lowMemoryReported:
			lowMemoryReported = true
			msg := fmt.Sprintf("Free memory %d bytes below threshold %d", free, threshold)
			b.logger.Warn("low memory detected", "free", free, "threshold", threshold)
			if err := b.PublishError("low_memory", msg, protocol.SeverityWarning); err != nil {
				b.logger.Warn("failed to publish low memory error", "error", err)
			}
		case free >= threshold && lowMemoryReported:
			lowMemoryReported = false
			b.logger.Info("memory recovered", "free", free)
		}

		b.logger.Debug("health monitor cycle",
			"free_memory", free,
			"link_up", b.linkUp.Load(),
			"transport_up", b.transportUp.Load(),
		)

		if b.recorder != nil {
			b.recorder.WriteBridgeHealth(b.deviceID, free, int64(b.uptime().Seconds()))
		}
	}
}
