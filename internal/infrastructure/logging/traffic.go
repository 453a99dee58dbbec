package logging

import (
	"io"
	"log/slog"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nerrad567/yarbo-bridge/internal/infrastructure/config"
)

// defaultPreviewLen is the payload preview length when none is configured.
const defaultPreviewLen = 500

// Traffic records raw MQTT traffic to its own rotating file.
//
// Each line carries the direction (RX or TX), topic, payload size and a
// truncated payload preview. A nil *Traffic is valid and logs nothing.
type Traffic struct {
	logger  *slog.Logger
	closer  io.Closer
	preview int
	mu      sync.Mutex
}

// NewTraffic creates a traffic logger, or returns nil when disabled.
//
// Parameters:
//   - cfg: Traffic log configuration (path, rotation size and backups)
//
// Returns:
//   - *Traffic: Ready logger, or nil if cfg.Enabled is false
func NewTraffic(cfg config.TrafficLogConfig) *Traffic {
	if !cfg.Enabled {
		return nil
	}

	w := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
	}
	return newTraffic(w, w, cfg.Preview)
}

func newTraffic(w io.Writer, closer io.Closer, preview int) *Traffic {
	if preview <= 0 {
		preview = defaultPreviewLen
	}
	return &Traffic{
		logger:  slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})),
		closer:  closer,
		preview: preview,
	}
}

// RX logs an inbound message.
func (t *Traffic) RX(topic string, payload []byte) {
	t.log("RX", topic, payload)
}

// TX logs an outbound message.
func (t *Traffic) TX(topic string, payload []byte) {
	t.log("TX", topic, payload)
}

func (t *Traffic) log(direction, topic string, payload []byte) {
	if t == nil {
		return
	}

	preview := string(payload)
	if len(preview) > t.preview {
		preview = preview[:t.preview] + "..."
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.logger.Info(direction,
		"topic", topic,
		"bytes", len(payload),
		"payload", preview,
	)
}

// Close releases the underlying file.
func (t *Traffic) Close() error {
	if t == nil || t.closer == nil {
		return nil
	}
	return t.closer.Close()
}
