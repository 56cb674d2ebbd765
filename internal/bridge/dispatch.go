package bridge

import (
	"context"
	"time"

	"github.com/fernvale/devicebridge/internal/protocol"
)

// queuedCommand is one accepted inbound command awaiting execution.
type queuedCommand struct {
	token    string // actuator ID or type from the topic
	action   string
	value    string
	received time.Time
}

// handleCommandMessage is the transport handler for inbound commands.
//
// The pipeline is deliberately forgiving of the outside world and
// strict about its own resources: malformed topics and payloads are
// dropped silently (debug-logged only), and a full queue drops the new
// command rather than blocking the transport goroutine.
func (b *Bridge) handleCommandMessage(topic string, payload []byte) error {
	deviceID, actuatorType, ok := protocol.ParseCommandTopic(topic)
	if !ok || deviceID != b.deviceID {
		b.logger.Debug("ignoring message on unexpected topic", "topic", topic)
		return nil
	}

	b.metrics.messagesReceived.Add(1)

	cmd, err := protocol.ParseCommand(payload)
	if err != nil {
		b.logger.Debug("dropping malformed command", "topic", topic, "error", err)
		return nil
	}

	queued := queuedCommand{
		token:    actuatorType,
		action:   cmd.Action,
		value:    cmd.Value,
		received: time.Now(),
	}

	select {
	case b.commands <- queued:
	default:
		b.metrics.commandsDropped.Add(1)
		b.logger.Warn("command queue full, dropping command",
			"actuator", actuatorType,
			"action", cmd.Action,
		)
	}

	// The application hears about every well-formed command, queued or
	// dropped, so it can observe pressure on the pipeline.
	b.emit(Event{
		Kind: EventCommandReceived,
		Command: &CommandEvent{
			ActuatorID: actuatorType,
			Action:     cmd.Action,
			Value:      cmd.Value,
		},
	})

	return nil
}

// dispatchLoop is the sole consumer of the command queue. One command
// executes at a time; a failing command reports and never blocks the
// next one.
func (b *Bridge) dispatchLoop(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-b.commands:
			b.executeCommand(ctx, cmd)
		}
	}
}

// executeCommand resolves and runs one command under the command timeout.
func (b *Bridge) executeCommand(ctx context.Context, cmd queuedCommand) {
	actuator, ok := b.registry.ResolveActuator(cmd.token)
	if !ok {
		b.logger.Warn("command for unknown actuator", "token", cmd.token, "action", cmd.action)
		return
	}

	cmdCtx, cancel := context.WithTimeout(ctx, b.config().CommandTimeout())
	defer cancel()

	start := time.Now()
	if err := actuator.Control(cmdCtx, cmd.action, cmd.value); err != nil {
		b.metrics.actuatorErrors.Add(1)
		b.logger.Error("actuator command failed",
			"actuator_id", actuator.ID,
			"action", cmd.action,
			"error", err,
		)
		if pubErr := b.PublishError("actuator_error", err.Error(), protocol.SeverityError); pubErr != nil {
			b.logger.Warn("failed to publish actuator error", "error", pubErr)
		}
		if b.recorder != nil {
			b.recorder.WriteActuatorCommand(b.deviceID, actuator.ID, cmd.action, false)
		}
		return
	}

	b.metrics.commandsProcessed.Add(1)
	if b.recorder != nil {
		b.recorder.WriteActuatorCommand(b.deviceID, actuator.ID, cmd.action, true)
	}
	b.logger.Debug("command executed",
		"actuator_id", actuator.ID,
		"action", cmd.action,
		"duration", time.Since(start),
		"queued_for", start.Sub(cmd.received),
	)
}
