package api

import (
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/nerrad567/yarbo-bridge/internal/bridges/yarbo"
)

// =============================================================================
// Live Data Tests
// =============================================================================

func TestLive_MissingData(t *testing.T) {
	srv := testServer(t, newMockRobot(), nil, nil)

	for _, path := range []string{"/api/v1/live/map", "/api/v1/live/plans", "/api/v1/live/device_msg"} {
		w, resp := do(t, srv, http.MethodGet, path, "")
		if w.Code != http.StatusNotFound || resp["code"] != ErrCodeNotFound {
			t.Errorf("%s: got %d %v, want 404", path, w.Code, resp)
		}
	}
}

func TestLive_RefreshAsksRobot(t *testing.T) {
	robot := newMockRobot()
	robot.onSend = func(m *mockRobot, name string) {
		if name == "get_map" {
			m.mu.Lock()
			m.liveMap = map[string]any{"areas": []any{}}
			m.mu.Unlock()
		}
	}
	srv := testServer(t, robot, nil, nil)

	w, _ := do(t, srv, http.MethodGet, "/api/v1/live/map", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("without refresh: status = %d, want 404", w.Code)
	}
	if len(robot.sent) != 0 {
		t.Fatal("cached read should not send a command")
	}

	w, resp := do(t, srv, http.MethodGet, "/api/v1/live/map?refresh=true", "")
	if w.Code != http.StatusOK {
		t.Fatalf("with refresh: status = %d, want 200", w.Code)
	}
	if _, ok := resp["areas"]; !ok {
		t.Errorf("map = %v", resp)
	}
	if sent := robot.lastSent(t); sent.name != "get_map" || !sent.wait {
		t.Errorf("sent = %+v", sent)
	}
}

func TestLive_ParamsRefreshPayload(t *testing.T) {
	robot := newMockRobot()
	srv := testServer(t, robot, nil, nil)

	w, _ := do(t, srv, http.MethodGet, "/api/v1/live/params?refresh=true", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if sent := robot.lastSent(t); sent.name != "read_global_params" || sent.payload["id"] != 1 {
		t.Errorf("sent = %+v", sent)
	}
}

func TestLive_RefreshNotConnected(t *testing.T) {
	robot := newMockRobot()
	robot.sendErr = yarbo.ErrNotConnected
	srv := testServer(t, robot, nil, nil)

	w, _ := do(t, srv, http.MethodGet, "/api/v1/live/schedules?refresh=true", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

// =============================================================================
// Trail Tests
// =============================================================================

func TestTrail_LocalCoordinates(t *testing.T) {
	robot := newMockRobot()
	robot.trail = []yarbo.TrailPoint{{X: 1, Y: 2}, {X: 3, Y: 4}}
	robot.active = true
	srv := testServer(t, robot, nil, nil)

	_, resp := do(t, srv, http.MethodGet, "/api/v1/live/trail", "")
	if resp["active"] != true || resp["count"] != 2.0 {
		t.Fatalf("trail = %v", resp)
	}
	points, _ := resp["points"].([]any)
	first, _ := points[0].([]any)
	if first[0] != 1.0 || first[1] != 2.0 {
		t.Errorf("first point = %v, want [1 2]", first)
	}
}

func TestTrail_GPSCoordinates(t *testing.T) {
	robot := newMockRobot()
	robot.trail = []yarbo.TrailPoint{{X: 0, Y: 0}}
	srv := testServer(t, robot, newMockCloud(), nil)

	_, resp := do(t, srv, http.MethodGet, "/api/v1/live/trail", "")
	points, _ := resp["points"].([]any)
	if len(points) != 1 {
		t.Fatalf("points = %v", resp["points"])
	}
	first, _ := points[0].([]any)
	if first[0] != testRefLat || first[1] != testRefLon {
		t.Errorf("point = %v, want reference", first)
	}
}

func TestTrail_Empty(t *testing.T) {
	srv := testServer(t, newMockRobot(), nil, nil)

	w := httptestBody(t, srv, http.MethodGet, "/api/v1/live/trail")
	if w != `{"active":false,"count":0,"points":[]}` {
		t.Errorf("body = %s", w)
	}
}

func TestTrail_Clear(t *testing.T) {
	robot := newMockRobot()
	srv := testServer(t, robot, nil, nil)

	w, resp := do(t, srv, http.MethodPost, "/api/v1/live/trail/clear", "")
	if w.Code != http.StatusOK || resp["message"] != "Trail cleared" || !robot.trailCleared {
		t.Errorf("clear = %d %v", w.Code, resp)
	}
}

// =============================================================================
// Preview Path Tests
// =============================================================================

func previewReply(data map[string]any) func(*mockRobot, string) {
	return func(m *mockRobot, name string) {
		if name != "preview_plan_path" {
			return
		}
		m.mu.Lock()
		m.preview = data
		m.mu.Unlock()
	}
}

func TestPreviewPath(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		reply      map[string]any
		cloud      bool
		wantStatus int
		check      func(t *testing.T, resp map[string]any)
	}{
		{
			name:       "missing plan id",
			query:      "",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "no reply",
			query:      "?plan_id=2",
			wantStatus: http.StatusGatewayTimeout,
			check: func(t *testing.T, resp map[string]any) {
				if resp["message"] != "No response from robot (timeout)" {
					t.Errorf("message = %v", resp["message"])
				}
			},
		},
		{
			name:       "robot error",
			query:      "?plan_id=2",
			reply:      map[string]any{"state": -1.0, "msg": "not in area"},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, resp map[string]any) {
				if resp["ok"] != false || resp["error"] != "not in area" {
					t.Errorf("resp = %v", resp)
				}
			},
		},
		{
			name:       "raw points",
			query:      "?plan_id=2",
			reply:      map[string]any{"state": 0.0, "data": []any{map[string]any{"x": 1.0, "y": 1.0}}},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, resp map[string]any) {
				if resp["ok"] != true || resp["raw"] != true || resp["count"] != 1.0 {
					t.Errorf("resp = %v", resp)
				}
			},
		},
		{
			name:       "gps points",
			query:      "?plan_id=2",
			reply:      map[string]any{"path": []any{[]any{0.0, 0.0}, "bogus", map[string]any{"x": 0.0, "y": 0.0}}},
			cloud:      true,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, resp map[string]any) {
				if resp["count"] != 2.0 || resp["raw"] != nil {
					t.Errorf("resp = %v", resp)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			robot := newMockRobot()
			robot.preview = map[string]any{"stale": true}
			if tt.reply != nil {
				robot.onSend = previewReply(tt.reply)
			}
			var cloud Cloud
			if tt.cloud {
				cloud = newMockCloud()
			}
			srv := testServer(t, robot, cloud, nil)

			w, resp := do(t, srv, http.MethodPost, "/api/v1/live/preview_path"+tt.query, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus == http.StatusBadRequest {
				return
			}
			if !robot.previewCleared {
				t.Error("stale preview was not cleared")
			}
			sent := robot.lastSent(t)
			if sent.payload["id"] != 2 || sent.timeout != previewTimeout {
				t.Errorf("sent = %+v", sent)
			}
			if tt.check != nil {
				tt.check(t, resp)
			}
		})
	}
}

// =============================================================================
// Command History Tests
// =============================================================================

func TestCommandHistory(t *testing.T) {
	robot := newMockRobot()
	robot.history = []yarbo.CommandEntry{
		{Timestamp: time.Now(), Command: "cmd_vel", Payload: map[string]any{"vel": 0.5, "rev": 0.0}},
		{Timestamp: time.Now(), Command: "start_plan", Payload: map[string]any{"id": 1.0}},
	}
	srv := testServer(t, robot, nil, nil)

	_, resp := do(t, srv, http.MethodGet, "/api/v1/commands", "")
	if resp["count"] != 2.0 || resp["last_updated"] == nil {
		t.Fatalf("resp = %v", resp)
	}
	cmds, _ := resp["commands"].([]any)
	first, _ := cmds[0].(map[string]any)
	if first["description"] != "Forward 0.5 m/s" {
		t.Errorf("description = %v", first["description"])
	}
}

func TestDescribeCommand(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    string
	}{
		{"cmd_vel", map[string]any{"vel": 0.0, "rev": 0.0}, "Stop"},
		{"cmd_vel", map[string]any{"vel": 0.3, "rev": 0.0}, "Forward 0.3 m/s"},
		{"cmd_vel", map[string]any{"vel": -0.2, "rev": 0.5}, "Backward 0.2 m/s, turn right"},
		{"cmd_vel", map[string]any{"vel": 0.0, "rev": -0.5}, "turn left"},
		{"cmd_roller", map[string]any{"vel": 1500.0}, "Roller speed: 1500 RPM"},
		{"set_working_state", map[string]any{"state": 2.0}, "Change state to: Working"},
		{"set_working_state", map[string]any{"state": 42.0}, "Change state to: Unknown"},
		{"set_plan_roller", map[string]any{"state": 1.0}, "Enable roller for plan (state: 1)"},
		{"read_all_plan", nil, "Read All Plan"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := describeCommand(tt.name, tt.payload); got != tt.want {
				t.Errorf("describeCommand(%s) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Command Log Tests
// =============================================================================

func TestCommandLog_Disabled(t *testing.T) {
	srv := testServer(t, newMockRobot(), nil, nil)

	w, _ := do(t, srv, http.MethodGet, "/api/v1/commands/log", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestCommandLog_Filter(t *testing.T) {
	log := &mockLog{}
	srv := testServer(t, newMockRobot(), nil, log)

	w, resp := do(t, srv, http.MethodGet, "/api/v1/commands/log?command=stop&since=2026-05-01T10:00:00Z&limit=10&offset=20", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if resp["total"] != 1.0 {
		t.Errorf("resp = %v", resp)
	}
	want := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	if log.filter.Command != "stop" || !log.filter.Since.Equal(want) || log.filter.Limit != 10 || log.filter.Offset != 20 {
		t.Errorf("filter = %+v", log.filter)
	}
}

func TestCommandLog_BadQuery(t *testing.T) {
	srv := testServer(t, newMockRobot(), nil, &mockLog{})

	for _, q := range []string{"?since=yesterday", "?limit=ten", "?offset=x"} {
		w, _ := do(t, srv, http.MethodGet, "/api/v1/commands/log"+q, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, w.Code)
		}
	}
}

func TestCommandLog_ListError(t *testing.T) {
	srv := testServer(t, newMockRobot(), nil, &mockLog{err: errBoom})

	w, _ := do(t, srv, http.MethodGet, "/api/v1/commands/log", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// =============================================================================
// Geo Tests
// =============================================================================

func TestLocalToGPS(t *testing.T) {
	tests := []struct {
		name    string
		x, y    float64
		wantLat float64
		wantLon float64
	}{
		{"origin", 0, 0, 51.5, -0.1},
		{"north", 0, 111.32, 51.501, -0.1},
		{"west", 111.32 * math.Cos(51.5*math.Pi/180), 0, 51.5, -0.101},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lat, lon := localToGPS(tt.x, tt.y, 51.5, -0.1)
			if math.Abs(lat-tt.wantLat) > 1e-9 || math.Abs(lon-tt.wantLon) > 1e-9 {
				t.Errorf("localToGPS = (%v, %v), want (%v, %v)", lat, lon, tt.wantLat, tt.wantLon)
			}
		})
	}
}

func TestPointXY(t *testing.T) {
	tests := []struct {
		in     any
		x, y   float64
		wantOK bool
	}{
		{map[string]any{"x": 1.5, "y": -2.0}, 1.5, -2, true},
		{[]any{3.0, 4.0}, 3, 4, true},
		{[]any{3.0}, 0, 0, false},
		{[]any{"a", 4.0}, 0, 4, false},
		{"bogus", 0, 0, false},
	}

	for _, tt := range tests {
		x, y, ok := pointXY(tt.in)
		if ok != tt.wantOK || (ok && (x != tt.x || y != tt.y)) {
			t.Errorf("pointXY(%v) = %v, %v, %v", tt.in, x, y, ok)
		}
	}
}
