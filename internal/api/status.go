package api

import (
	"fmt"
	"net/http"

	"github.com/nerrad567/yarbo-bridge/internal/bridges/yarbo"
)

// handleStatus returns the robot snapshot with fields derived from the
// device message: battery figures, activity, charging and job flags, and
// a GPS position when the map reference is known.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	result := s.robot.Snapshot().Flatten()

	if msg := s.robot.DeviceMessage(); len(msg) > 0 {
		deriveBattery(result, msg)
		deriveActivity(result, msg)

		if odom, ok := msg["CombinedOdom"].(map[string]any); ok {
			if refLat, refLon, ok := s.mapReference(r.Context()); ok {
				x, _ := number(odom["x"])
				y, _ := number(odom["y"])
				result["latitude"], result["longitude"] = localToGPS(x, y, refLat, refLon)
			}
		}
	}

	result["mqtt_connected"] = s.robot.IsConnected()
	writeJSON(w, http.StatusOK, result)
}

func deriveBattery(result, msg map[string]any) {
	bat, _ := msg["BatteryMSG"].(map[string]any)

	level := result["battery_level"]
	if level == nil && bat["capacity"] != nil {
		level = bat["capacity"]
	}
	result["battery_percent"] = level

	result["battery_voltage"] = nil
	if mv, ok := number(bat["voltage"]); ok && mv != 0 {
		result["battery_voltage"] = round1(mv / 1000)
	}
	result["battery_health"] = bat["health"]

	var sum float64
	var n int
	for i := 1; i <= 6; i++ {
		if t, ok := number(bat[fmt.Sprintf("temperature%d", i)]); ok {
			sum += t
			n++
		}
	}
	result["battery_temp"] = nil
	if n > 0 {
		result["battery_temp"] = round1(sum / float64(n))
	}
}

// deriveActivity names what the robot is doing. A running state reported
// by the robot wins over the StateMSG working_state code.
func deriveActivity(result, msg map[string]any) {
	state, _ := msg["StateMSG"].(map[string]any)

	current, _ := result["state"].(string)
	if current == "" {
		current = yarbo.StateUnknown
	}

	activity := current
	if activity == yarbo.StateUnknown {
		if name := yarbo.WorkingStateName(state["working_state"]); name != yarbo.StateUnknown {
			activity = name
		}
	}
	result["activity"] = activity

	charging, _ := number(state["charging_status"])
	result["charging"] = charging > 0
	result["on_going_planning"] = flag(state["on_going_planning"])
	result["planning_paused"] = flag(state["planning_paused"])
}

func flag(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	n, _ := number(v)
	return n != 0
}
