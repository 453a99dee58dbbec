package yarbo

import "time"

// maxCommandHistory caps the in-memory control command history.
const maxCommandHistory = 50

// CommandEntry is one observed control command.
type CommandEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Command   string         `json:"command"`
	Topic     string         `json:"topic"`
	Payload   map[string]any `json:"payload"`
}

// history is a bounded list of control commands, oldest first.
type history struct {
	entries []CommandEntry
	max     int
}

func newHistory(max int) history {
	return history{max: max}
}

func (h *history) add(e CommandEntry) {
	h.entries = append(h.entries, e)
	if over := len(h.entries) - h.max; over > 0 {
		h.entries = append(h.entries[:0], h.entries[over:]...)
	}
}

func (h *history) snapshot() []CommandEntry {
	out := make([]CommandEntry, len(h.entries))
	for i, e := range h.entries {
		e.Payload = cloneMap(e.Payload)
		out[i] = e
	}
	return out
}
