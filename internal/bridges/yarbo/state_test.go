package yarbo

import (
	"bytes"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/nerrad567/yarbo-bridge/internal/infrastructure/mqtt"
)

func TestHeartbeat_SetsWorkingState(t *testing.T) {
	tests := []struct {
		code any
		want string
	}{
		{float64(2), "working"},
		{float64(0), "standby"},
		{float64(7), "paused"},
		{float64(99), StateUnknown},
		{"x", StateUnknown},
	}

	for _, tt := range tests {
		b, _ := newTestBridge(t, Options{})
		b.OnMessage(mqtt.Message{
			Topic:   topic("device", "heart_beat"),
			Payload: map[string]any{"working_state": tt.code},
		})

		snap := b.Snapshot()
		if !snap.Connected {
			t.Errorf("code %v: Connected = false", tt.code)
		}
		if snap.State != tt.want {
			t.Errorf("code %v: State = %q, want %q", tt.code, snap.State, tt.want)
		}
		if snap.LastHeartbeat == nil {
			t.Errorf("code %v: LastHeartbeat not set", tt.code)
		}
	}
}

func TestFeedback_GzipBatteryFrame(t *testing.T) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write([]byte(`{"topic":"batteryInfo","data":{"level":42}}`)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	payload, raw, err := mqtt.DecodePayload(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}

	b, _ := newTestBridge(t, Options{})
	b.OnMessage(mqtt.Message{Topic: topic("device", "data_feedback"), Payload: payload, Raw: raw})

	snap := b.Snapshot()
	battery := snap.Telemetry[CategoryBattery]
	if len(battery) != 1 || battery["level"] != float64(42) {
		t.Errorf("battery = %v, want {level:42}", battery)
	}
	if snap.BatteryLevel != float64(42) {
		t.Errorf("BatteryLevel = %v, want 42", snap.BatteryLevel)
	}
	if snap.LastDataFeedback == nil {
		t.Error("LastDataFeedback not set")
	}
}

func TestFeedback_TelemetryCategories(t *testing.T) {
	b, _ := newTestBridge(t, Options{})

	for inner, category := range categoryByFeedback {
		feedback(b, inner, map[string]any{"src": inner}, "")
		got := b.Snapshot().Telemetry[category]
		if got["src"] != inner {
			t.Errorf("%s: category %s = %v", inner, category, got)
		}
	}

	// Each update replaces the slot.
	feedback(b, "motorInfo", map[string]any{"rpm": 10}, "")
	if got := b.Snapshot().Telemetry[CategoryMotorInfo]; len(got) != 1 {
		t.Errorf("motor_info = %v, want replaced", got)
	}
}

func TestFeedback_RunningStatus(t *testing.T) {
	tests := []struct {
		name     string
		data     map[string]any
		want     string
		wantCode any
	}{
		{"state", map[string]any{"state": float64(3)}, "charging", float64(3)},
		{"robot_state", map[string]any{"robot_state": float64(5)}, "docking", float64(5)},
		{"unknown code", map[string]any{"state": float64(42)}, "unknown_42", float64(42)},
		{"no code", map[string]any{"speed": 1}, StateUnknown, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBridge(t, Options{})
			feedback(b, "runningStatus", tt.data, "")

			snap := b.Snapshot()
			if snap.State != tt.want {
				t.Errorf("State = %q, want %q", snap.State, tt.want)
			}
			if snap.StateCode != tt.wantCode {
				t.Errorf("StateCode = %v, want %v", snap.StateCode, tt.wantCode)
			}
		})
	}
}

func TestFeedback_NonObjectTelemetryDropped(t *testing.T) {
	b, _ := newTestBridge(t, Options{})

	feedback(b, "batteryInfo", map[string]any{"level": 10}, "")
	feedback(b, "batteryInfo", "garbage", "")
	feedback(b, "batteryInfo", []any{1, 2}, "")

	if got := b.Snapshot().Telemetry[CategoryBattery]; got["level"] != 10 {
		t.Errorf("battery = %v, want previous value kept", got)
	}
}

func TestFeedback_StateInfoAndUnknownTopics(t *testing.T) {
	b, _ := newTestBridge(t, Options{})

	feedback(b, "stateInfo", map[string]any{"on_going_recharging": 1, "error_code": 0}, "")
	feedback(b, "futureTopic", map[string]any{"v": 2}, "")

	snap := b.Snapshot()
	if snap.Extra["on_going_recharging"] != 1 || snap.Extra["error_code"] != 0 {
		t.Errorf("stateInfo not merged: %v", snap.Extra)
	}
	if v, ok := snap.Extra["futureTopic"].(map[string]any); !ok || v["v"] != 2 {
		t.Errorf("unknown topic not kept: %v", snap.Extra)
	}

	flat := snap.Flatten()
	if flat["on_going_recharging"] != 1 || flat["connected"] != false {
		t.Errorf("Flatten() = %v", flat)
	}
}

func TestFeedback_WiFiReport(t *testing.T) {
	store := &memStore{}
	b, _ := newTestBridge(t, Options{Store: store})

	feedback(b, "get_connect_wifi_name", map[string]any{"ip": "192.168.68.140", "name": "home"}, "")

	snap := b.Snapshot()
	if snap.RobotWiFiIP != "192.168.68.140" {
		t.Errorf("RobotWiFiIP = %q", snap.RobotWiFiIP)
	}
	if snap.WiFiInfo["name"] != "home" {
		t.Errorf("WiFiInfo = %v", snap.WiFiInfo)
	}
	if store.Load() != "192.168.68.140" {
		t.Errorf("stored = %q, want reported address", store.Load())
	}
	// Reporting is not a reconnect.
	if b.Address() != "192.168.68.102" {
		t.Errorf("Address() = %q, want unchanged", b.Address())
	}
}

func TestFeedback_MapDoubleEncoded(t *testing.T) {
	b, _ := newTestBridge(t, Options{})

	feedback(b, "get_map", `{"areas":[{"id":1}]}`, "")
	m, ok := b.LiveMap().(map[string]any)
	if !ok {
		t.Fatalf("LiveMap() = %T, want decoded object", b.LiveMap())
	}
	if _, ok := m["areas"].([]any); !ok {
		t.Errorf("map = %v", m)
	}

	feedback(b, "get_map", "not json", "")
	if b.LiveMap() != "not json" {
		t.Errorf("LiveMap() = %v, want raw string kept", b.LiveMap())
	}
}

func TestFeedback_LiveStores(t *testing.T) {
	b, _ := newTestBridge(t, Options{})

	feedback(b, "read_all_plan", []any{"p"}, "")
	feedback(b, "read_gps_ref", map[string]any{"latitude": 1.5}, "")
	feedback(b, "read_schedules", []any{}, "")
	feedback(b, "read_global_params", map[string]any{"id": 1}, "")
	feedback(b, "preview_plan_path", map[string]any{"state": 0, "data": []any{[]any{1, 2}}}, "")

	checks := map[string]any{
		"plans":         b.Plans(),
		"gps_ref":       b.GPSRef(),
		"schedules":     b.Schedules(),
		"global_params": b.GlobalParams(),
	}
	for name, v := range checks {
		if v == nil {
			t.Errorf("%s not stored", name)
		}
	}

	preview := ParsePreviewPath(b.PreviewPath())
	if !preview.OK || len(preview.Points) != 1 {
		t.Errorf("preview = %+v", preview)
	}
	b.ClearPreviewPath()
	if b.PreviewPath() != nil {
		t.Error("preview not cleared")
	}
}

func TestParsePreviewPath(t *testing.T) {
	tests := []struct {
		name       string
		data       map[string]any
		wantOK     bool
		wantErr    string
		wantPoints int
	}{
		{"data points", map[string]any{"data": []any{1, 2, 3}}, true, "", 3},
		{"path fallback", map[string]any{"path": []any{1}}, true, "", 1},
		{"no points", map[string]any{}, true, "", 0},
		{"robot error", map[string]any{"state": float64(-1), "msg": "not in area"}, false, "not in area", 0},
		{"robot error no msg", map[string]any{"state": float64(-2)}, false, "Unknown error", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePreviewPath(tt.data)
			if got.OK != tt.wantOK || got.Error != tt.wantErr || len(got.Points) != tt.wantPoints {
				t.Errorf("ParsePreviewPath() = %+v", got)
			}
		})
	}
}

func TestDeviceMSG_MergesOneLevelDeep(t *testing.T) {
	b, _ := newTestBridge(t, Options{})

	feedback(b, "get_device_msg", map[string]any{
		"BatteryMSG": map[string]any{"capacity": 80, "voltage": 25000},
		"name":       "snowbot",
	}, "")
	b.OnMessage(mqtt.Message{
		Topic: topic("device", "DeviceMSG"),
		Payload: map[string]any{
			"BatteryMSG": map[string]any{"capacity": 79},
			"RTKMSG":     map[string]any{"status": 4},
			"name":       "renamed",
		},
	})

	msg := b.DeviceMessage()
	battery, _ := msg["BatteryMSG"].(map[string]any)
	if battery["capacity"] != 79 || battery["voltage"] != 25000 {
		t.Errorf("BatteryMSG = %v, want merged", battery)
	}
	if rtk, _ := msg["RTKMSG"].(map[string]any); rtk["status"] != 4 {
		t.Errorf("RTKMSG = %v", msg["RTKMSG"])
	}
	if msg["name"] != "renamed" {
		t.Errorf("name = %v", msg["name"])
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	b, _ := newTestBridge(t, Options{})
	feedback(b, "batteryInfo", map[string]any{"level": 50}, "")

	snap := b.Snapshot()
	snap.Telemetry[CategoryBattery]["level"] = 1
	snap.Extra["x"] = true

	again := b.Snapshot()
	if again.Telemetry[CategoryBattery]["level"] != 50 {
		t.Error("snapshot shares telemetry maps")
	}
	if _, ok := again.Extra["x"]; ok {
		t.Error("snapshot shares extra map")
	}
}

// ============================================================================
// Trail
// ============================================================================

func deviceMsg(planning bool, x, y float64) map[string]any {
	flag := 0
	if planning {
		flag = 1
	}
	return map[string]any{
		"StateMSG":     map[string]any{"on_going_planning": flag},
		"CombinedOdom": map[string]any{"x": x, "y": y, "timestamp": 1700000000.5},
	}
}

func TestTrail_StopKeepsPoints(t *testing.T) {
	b, _ := newTestBridge(t, Options{})

	for i := 0; i < 5; i++ {
		feedback(b, "get_device_msg", deviceMsg(true, float64(i), float64(-i)), "")
	}
	points, active := b.Trail()
	if !active || len(points) != 5 {
		t.Fatalf("trail = %d points, active %v; want 5, true", len(points), active)
	}

	feedback(b, "get_device_msg", deviceMsg(false, 99, 99), "")
	points, active = b.Trail()
	if active {
		t.Error("trail still active after job ended")
	}
	if len(points) != 5 || points[4].X != 4 || points[4].Y != -4 {
		t.Errorf("points = %v, want the 5 recorded points", points)
	}
	if points[0].Timestamp != 1700000000.5 {
		t.Errorf("timestamp = %v", points[0].Timestamp)
	}

	b.ClearTrail()
	if points, _ := b.Trail(); len(points) != 0 {
		t.Errorf("points after clear = %d, want 0", len(points))
	}
}

func TestTrail_RestartClears(t *testing.T) {
	b, _ := newTestBridge(t, Options{})

	feedback(b, "get_device_msg", deviceMsg(true, 1, 1), "")
	feedback(b, "get_device_msg", deviceMsg(false, 0, 0), "")
	feedback(b, "get_device_msg", deviceMsg(true, 2, 2), "")

	points, _ := b.Trail()
	if len(points) != 1 || points[0].X != 2 {
		t.Errorf("points = %v, want only the new job", points)
	}
}

func TestTrail_Bounded(t *testing.T) {
	tr := newTrail(maxTrailPoints)
	now := time.Now()

	total := maxTrailPoints + 37
	for i := 0; i < total; i++ {
		tr.observe(deviceMsg(true, float64(i), 0), now)
	}

	points := tr.snapshot()
	if len(points) != maxTrailPoints {
		t.Fatalf("len = %d, want %d", len(points), maxTrailPoints)
	}
	for i, p := range points {
		if want := float64(total - maxTrailPoints + i); p.X != want {
			t.Fatalf("points[%d].X = %v, want %v", i, p.X, want)
		}
	}
}

func TestTrail_MissingOdomIgnored(t *testing.T) {
	tr := newTrail(10)
	now := time.Unix(1700000000, 0)

	tr.observe(map[string]any{"StateMSG": map[string]any{"on_going_planning": true}}, now)
	tr.observe(map[string]any{
		"StateMSG":     map[string]any{"on_going_planning": true},
		"CombinedOdom": map[string]any{"x": 1.0},
	}, now)
	tr.observe(map[string]any{
		"StateMSG":     map[string]any{"on_going_planning": true},
		"CombinedOdom": map[string]any{"x": 1.0, "y": 2.0},
	}, now)

	points := tr.snapshot()
	if !tr.active || len(points) != 1 {
		t.Fatalf("active %v, %d points; want true, 1", tr.active, len(points))
	}
	if points[0].Timestamp != 1700000000 {
		t.Errorf("Timestamp = %v, want receive time", points[0].Timestamp)
	}
}
