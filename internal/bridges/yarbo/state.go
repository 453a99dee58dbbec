package yarbo

import (
	"encoding/json"
	"sync"
	"time"
)

// Snapshot is a point-in-time copy of the robot status.
//
// Telemetry holds one slot per Category, replaced wholesale by each update.
// Extra collects the flat stateInfo bag and any data_feedback topic the
// bridge does not recognise, so new firmware messages are kept rather than
// dropped.
type Snapshot struct {
	Connected        bool                        `json:"connected"`
	LastHeartbeat    *time.Time                  `json:"last_heartbeat"`
	LastDataFeedback *time.Time                  `json:"last_data_feedback"`
	State            string                      `json:"state"`
	StateCode        any                         `json:"state_code"`
	WorkingStateCode any                         `json:"working_state_code"`
	BatteryLevel     any                         `json:"battery_level"`
	RobotWiFiIP      string                      `json:"robot_wifi_ip,omitempty"`
	WiFiInfo         map[string]any              `json:"wifi_info,omitempty"`
	Telemetry        map[Category]map[string]any `json:"telemetry"`
	Extra            map[string]any              `json:"extra"`
}

// Flatten returns the snapshot as a single object with telemetry categories
// and extra fields at the top level, the shape home-automation clients
// consume. Named fields win over extra keys of the same name.
func (s Snapshot) Flatten() map[string]any {
	out := make(map[string]any, len(s.Telemetry)+len(s.Extra)+10)
	for k, v := range s.Extra {
		out[k] = v
	}
	for c, v := range s.Telemetry {
		out[string(c)] = v
	}
	out["connected"] = s.Connected
	out["last_heartbeat"] = s.LastHeartbeat
	out["last_data_feedback"] = s.LastDataFeedback
	out["state"] = s.State
	out["state_code"] = s.StateCode
	out["working_state_code"] = s.WorkingStateCode
	out["battery_level"] = s.BatteryLevel
	out["battery"] = s.Telemetry[CategoryBattery]
	if s.RobotWiFiIP != "" {
		out["robot_wifi_ip"] = s.RobotWiFiIP
	}
	if s.WiFiInfo != nil {
		out["wifi_info"] = s.WiFiInfo
	}
	return out
}

// feedbackResult describes what a data_feedback message changed.
type feedbackResult struct {
	// topic is the inner data_feedback topic.
	topic string

	// category is set for telemetry updates.
	category Category

	// payload is the validated object payload, if any.
	payload map[string]any

	// dropped is set when the payload failed validation.
	dropped bool

	// wifiIP is the robot's self-reported address.
	wifiIP string

	// resolved is set when a pending command was completed.
	resolved bool
}

// store holds all state written by the router. One mutex guards the
// snapshot, the live command-response stores, the trail, the command
// history and the pending request table.
type store struct {
	mu sync.Mutex

	snap Snapshot

	liveMap      any
	plans        any
	gpsRef       any
	schedules    any
	globalParams any
	deviceMsg    map[string]any
	previewPath  map[string]any

	trail   trail
	history history
	pending map[string]*pendingRequest

	now func() time.Time
}

func newStore(now func() time.Time) *store {
	if now == nil {
		now = time.Now
	}
	return &store{
		snap: Snapshot{
			State:     StateUnknown,
			Telemetry: make(map[Category]map[string]any),
			Extra:     make(map[string]any),
		},
		trail:   newTrail(maxTrailPoints),
		history: newHistory(maxCommandHistory),
		pending: make(map[string]*pendingRequest),
		now:     now,
	}
}

func (s *store) setConnected(connected bool) {
	s.mu.Lock()
	s.snap.Connected = connected
	s.mu.Unlock()
}

// heartbeat marks the robot alive and decodes its working state.
func (s *store) heartbeat(payload map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	s.snap.Connected = true
	s.snap.LastHeartbeat = &now

	if code, ok := payload["working_state"]; ok {
		s.snap.State = WorkingStateName(code)
		s.snap.WorkingStateCode = code
	}
}

// mergeDeviceMessage folds a real-time DeviceMSG into the device message.
func (s *store) mergeDeviceMessage(payload map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deviceMsg == nil {
		s.deviceMsg = make(map[string]any, len(payload))
	}
	mergeObject(s.deviceMsg, payload)
}

// applyFeedback routes a data_feedback message by its inner topic and
// resolves the pending request named by its req_id.
func (s *store) applyFeedback(data map[string]any) feedbackResult {
	topic, _ := data["topic"].(string)
	payload, ok := data["data"]
	if !ok {
		payload = data
	}
	obj, isObj := asObject(payload)

	res := feedbackResult{topic: topic}
	if isObj {
		res.payload = obj
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	s.snap.LastDataFeedback = &now

	if category, ok := categoryByFeedback[topic]; ok {
		res.category = category
		if !isObj {
			res.dropped = true
		} else {
			s.applyTelemetry(category, obj)
		}
	} else {
		switch topic {
		case feedbackStateInfo:
			if !isObj {
				res.dropped = true
				break
			}
			for k, v := range obj {
				s.snap.Extra[k] = cloneValue(v)
			}
		case feedbackWiFiName:
			if !isObj {
				res.dropped = true
				break
			}
			s.snap.WiFiInfo = cloneMap(obj)
			if ip, _ := obj["ip"].(string); ip != "" {
				s.snap.RobotWiFiIP = ip
				res.wifiIP = ip
			}
		case feedbackMap:
			s.liveMap = decodeNested(payload)
		case feedbackPlans:
			s.plans = cloneValue(payload)
		case feedbackGPSRef:
			s.gpsRef = cloneValue(payload)
		case feedbackSchedules:
			s.schedules = cloneValue(payload)
		case feedbackParams:
			s.globalParams = cloneValue(payload)
		case feedbackDeviceMsg:
			if !isObj {
				res.dropped = true
				break
			}
			s.deviceMsg = cloneMap(obj)
			s.trail.observe(obj, now)
		case feedbackPreviewPath:
			if !isObj {
				res.dropped = true
				break
			}
			s.previewPath = cloneMap(obj)
		default:
			if topic != "" {
				s.snap.Extra[topic] = cloneValue(payload)
			}
		}
	}

	if reqID, _ := data["req_id"].(string); reqID != "" {
		res.resolved = s.resolveLocked(reqID, data)
	}
	return res
}

// applyTelemetry replaces one category slot. Caller holds s.mu.
func (s *store) applyTelemetry(category Category, obj map[string]any) {
	s.snap.Telemetry[category] = cloneMap(obj)

	switch category {
	case CategoryBattery:
		if v, ok := obj["level"]; ok {
			s.snap.BatteryLevel = v
		} else if v, ok := obj["battery_level"]; ok {
			s.snap.BatteryLevel = v
		}
	case CategoryRunningStatus:
		code, ok := obj["state"]
		if !ok {
			code, ok = obj["robot_state"]
		}
		if ok && code != nil {
			s.snap.StateCode = code
			s.snap.State = runningStateName(code)
		}
	}
}

// decodeNested decodes a map that arrived double-encoded as a JSON string.
func decodeNested(payload any) any {
	str, ok := payload.(string)
	if !ok {
		return cloneValue(payload)
	}
	var decoded any
	if err := json.Unmarshal([]byte(str), &decoded); err != nil {
		return str
	}
	return decoded
}

// snapshot returns a copy whose maps are not shared with the store.
func (s *store) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.snap
	out.Telemetry = make(map[Category]map[string]any, len(s.snap.Telemetry))
	for c, v := range s.snap.Telemetry {
		out.Telemetry[c] = cloneMap(v)
	}
	out.Extra = cloneMap(s.snap.Extra)
	out.WiFiInfo = cloneMap(s.snap.WiFiInfo)
	if s.snap.LastHeartbeat != nil {
		t := *s.snap.LastHeartbeat
		out.LastHeartbeat = &t
	}
	if s.snap.LastDataFeedback != nil {
		t := *s.snap.LastDataFeedback
		out.LastDataFeedback = &t
	}
	return out
}

// read copies a live store under the lock.
func (s *store) read(get func() any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneValue(get())
}

func (s *store) clearPreviewPath() {
	s.mu.Lock()
	s.previewPath = nil
	s.mu.Unlock()
}
