package yarbo

import (
	"context"
	"strings"
	"time"

	"github.com/nerrad567/yarbo-bridge/internal/infrastructure/mqtt"
)

// recordTimeout bounds a command log write.
const recordTimeout = 2 * time.Second

// OnMessage classifies an inbound robot message and updates state.
//
// Topics are matched by substring, in this order: heart_beat,
// data_feedback, DeviceMSG, then /reply or /ack. Anything else is logged
// at debug level and otherwise ignored.
func (b *Bridge) OnMessage(msg mqtt.Message) {
	b.trackCommand(msg)
	b.traffic.RX(msg.Topic, msg.Raw)
	b.broadcast(ChannelMessage, map[string]any{
		"topic":   msg.Topic,
		"payload": msg.Payload,
	})

	switch topic := msg.Topic; {
	case strings.Contains(topic, "heart_beat"):
		b.state.heartbeat(msg.Payload)
		b.broadcastStatus()

	case strings.Contains(topic, "data_feedback"):
		b.handleFeedback(msg.Payload)

	case strings.Contains(topic, "DeviceMSG"):
		b.state.mergeDeviceMessage(msg.Payload)

	case strings.Contains(topic, "/reply"), strings.Contains(topic, "/ack"):
		if reqID, _ := msg.Payload["req_id"].(string); reqID != "" {
			b.state.resolve(reqID, msg.Payload)
		}

	default:
		b.logDebug("unhandled robot message", "topic", topic)
	}
}

// trackCommand records control commands seen on the app topics. The robot
// broker echoes the bridge's own commands as well as the phone app's.
func (b *Bridge) trackCommand(msg mqtt.Message) {
	levels := b.topics.Split(msg.Topic)
	if len(levels) != 2 || levels[0] != mqtt.LevelApp || !IsControlCommand(levels[1]) {
		return
	}

	entry := CommandEntry{
		Timestamp: b.now().UTC(),
		Command:   levels[1],
		Topic:     msg.Topic,
		Payload:   cloneMap(msg.Payload),
	}

	b.state.mu.Lock()
	b.state.history.add(entry)
	b.state.mu.Unlock()

	if b.commands == nil {
		return
	}
	ctx, cancel := context.WithTimeout(b.ctx, recordTimeout)
	defer cancel()
	if err := b.commands.RecordCommand(ctx, entry); err != nil {
		b.logError("failed to record command", err)
	}
}

// handleFeedback applies a data_feedback message and runs its side effects.
func (b *Bridge) handleFeedback(data map[string]any) {
	res := b.state.applyFeedback(data)

	if res.dropped {
		b.logWarn("dropping non-object feedback payload", "topic", res.topic)
		return
	}

	switch {
	case res.category != "":
		if b.telemetry != nil {
			b.telemetry.WriteTelemetry(b.serial, string(res.category), res.payload)
		}
		b.broadcastStatus()

	case res.topic == feedbackWiFiName && res.wifiIP != "":
		current := b.transport.Host()
		if res.wifiIP != current {
			b.logWarn("robot reports a different address; caching it for the next reconnect",
				"connected", current, "reported", res.wifiIP)
		} else {
			b.logInfo("robot confirmed its address", "address", res.wifiIP)
		}
		if b.store != nil {
			b.store.Save(res.wifiIP)
		}

	case res.topic == feedbackDeviceMsg:
		b.state.mu.Lock()
		active, points := b.state.trail.active, len(b.state.trail.points)
		b.state.mu.Unlock()
		if active != b.trailWasActive.Swap(active) {
			if active {
				b.logInfo("trail recording started")
			} else {
				b.logInfo("trail recording stopped", "points", points)
			}
		}

	case res.topic == feedbackPreviewPath:
		preview := ParsePreviewPath(res.payload)
		if !preview.OK {
			b.logWarn("plan path preview failed", "error", preview.Error)
		} else {
			b.logInfo("received plan path preview", "points", len(preview.Points))
		}
	}

	if res.resolved {
		b.logDebug("command reply received", "topic", res.topic)
	}
}

// PreviewPath is a decoded preview_plan_path reply.
type PreviewPath struct {
	OK     bool
	Error  string
	Points []any
}

// ParsePreviewPath interprets a preview_plan_path reply. A negative state
// is a robot-side failure described by msg; otherwise the points are read
// from data, falling back to path.
func ParsePreviewPath(data map[string]any) PreviewPath {
	if state, ok := toFloat(data["state"]); ok && state < 0 {
		msg, _ := data["msg"].(string)
		if msg == "" {
			msg = "Unknown error"
		}
		return PreviewPath{Error: msg}
	}

	points, ok := data["data"].([]any)
	if !ok {
		points, _ = data["path"].([]any)
	}
	if points == nil {
		points = []any{}
	}
	return PreviewPath{OK: true, Points: points}
}
