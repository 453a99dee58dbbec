package yarbo

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/yarbo-bridge/internal/infrastructure/mqtt"
)

// DefaultCommandTimeout bounds how long SendCommand waits for a reply.
const DefaultCommandTimeout = 5 * time.Second

// reqIDLen is the length of generated correlation identifiers.
const reqIDLen = 12

// pendingRequest is a command waiting for its data_feedback reply.
// done is closed exactly once, after reply is set.
type pendingRequest struct {
	done  chan struct{}
	reply map[string]any
}

// register adds a pending request under a fresh req_id.
func (s *store) register() (string, *pendingRequest) {
	p := &pendingRequest{done: make(chan struct{})}

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		id := newReqID()
		if _, taken := s.pending[id]; !taken {
			s.pending[id] = p
			return id, p
		}
	}
}

// cancel removes p if it is still registered under id.
func (s *store) cancel(id string, p *pendingRequest) {
	s.mu.Lock()
	if s.pending[id] == p {
		delete(s.pending, id)
	}
	s.mu.Unlock()
}

// resolveLocked completes the request registered under id. Replies for
// unknown or already resolved ids are ignored. Caller holds s.mu.
func (s *store) resolveLocked(id string, data map[string]any) bool {
	p, ok := s.pending[id]
	if !ok {
		return false
	}
	delete(s.pending, id)
	p.reply = cloneMap(data)
	close(p.done)
	return true
}

// resolve is resolveLocked for callers not holding the lock.
func (s *store) resolve(id string, data map[string]any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveLocked(id, data)
}

func (s *store) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func newReqID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])[:reqIDLen]
}

// SendCommand publishes a command to the robot's app topic.
//
// With wait set, a req_id is added to the payload and SendCommand blocks
// until the matching data_feedback reply arrives or timeout elapses. A
// timeout is not an error: it returns a nil reply. Concurrent waiters
// never receive each other's replies.
//
// Parameters:
//   - name: Command name, the last topic level (e.g. "get_map")
//   - payload: JSON object to send; copied, never modified. nil sends {}
//   - wait: Block for the correlated reply
//   - timeout: Wait bound; zero or negative uses DefaultCommandTimeout
//
// Returns:
//   - map[string]any: The full reply object, or nil without wait or on timeout
//   - error: ErrInvalidCommand, ErrNotConnected, or ErrPublishFailed
func (b *Bridge) SendCommand(name string, payload map[string]any, wait bool, timeout time.Duration) (map[string]any, error) {
	if name == "" {
		return nil, ErrInvalidCommand
	}
	if !b.transport.IsConnected() {
		return nil, ErrNotConnected
	}

	body := cloneMap(payload)
	if body == nil {
		body = make(map[string]any)
	}

	var (
		reqID string
		p     *pendingRequest
	)
	if wait {
		reqID, p = b.state.register()
		body["req_id"] = reqID
	}

	raw, err := json.Marshal(body)
	if err != nil {
		if p != nil {
			b.state.cancel(reqID, p)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	topic := b.topics.Command(name)
	if err := b.transport.Publish(topic, raw); err != nil {
		if p != nil {
			b.state.cancel(reqID, p)
		}
		if errors.Is(err, mqtt.ErrNotConnected) {
			return nil, ErrNotConnected
		}
		return nil, fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	b.traffic.TX(topic, raw)
	b.logInfo("sent command", "command", name, "topic", topic)

	if !wait {
		return nil, nil
	}

	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return p.reply, nil
	case <-timer.C:
	}

	b.state.cancel(reqID, p)
	// The reply may have landed between the timer firing and the cancel.
	select {
	case <-p.done:
		return p.reply, nil
	default:
		b.logDebug("command timed out", "command", name, "req_id", reqID)
		return nil, nil
	}
}
