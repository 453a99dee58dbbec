package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/yarbo-bridge/internal/bridges/yarbo"
	"github.com/nerrad567/yarbo-bridge/internal/commandlog"
)

// previewTimeout is how long preview_plan_path may take; the robot plans
// the path before answering.
const previewTimeout = 8 * time.Second

// liveHandler serves the last reply to cmd. ?refresh=true asks the robot
// again first and waits for the answer.
func (s *Server) liveHandler(cmd string, payload map[string]any, get func() any, missing string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		refresh, err := queryBool(r, "refresh", false)
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		if refresh {
			if _, err := s.robot.SendCommand(cmd, payload, true, commandTimeout); err != nil {
				writeCommandError(w, err)
				return
			}
		}

		data := get()
		if data == nil {
			writeNotFound(w, missing)
			return
		}
		writeJSON(w, http.StatusOK, data)
	}
}

// deviceMessage adapts DeviceMessage for liveHandler so a nil map reads
// as missing.
func (s *Server) deviceMessage() any {
	if m := s.robot.DeviceMessage(); m != nil {
		return m
	}
	return nil
}

// handleTrail returns the recorded job path, in GPS coordinates when the
// map reference is known and robot-local x/y otherwise.
func (s *Server) handleTrail(w http.ResponseWriter, r *http.Request) {
	trail, active := s.robot.Trail()
	refLat, refLon, geo := s.mapReference(r.Context())

	points := make([][2]float64, 0, len(trail))
	for _, p := range trail {
		if geo {
			lat, lon := localToGPS(p.X, p.Y, refLat, refLon)
			points = append(points, [2]float64{lat, lon})
		} else {
			points = append(points, [2]float64{p.X, p.Y})
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"active": active,
		"count":  len(points),
		"points": points,
	})
}

func (s *Server) handleClearTrail(w http.ResponseWriter, _ *http.Request) {
	s.robot.ClearTrail()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "Trail cleared"})
}

// handlePreviewPath asks the robot for the path of plan ?plan_id=.
// The robot must be inside the plan's area to answer.
func (s *Server) handlePreviewPath(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("plan_id") == "" {
		writeBadRequest(w, "plan_id is required")
		return
	}
	planID, err := queryInt(r, "plan_id", 0)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	s.robot.ClearPreviewPath()
	if _, err := s.robot.SendCommand("preview_plan_path", map[string]any{"id": planID}, true, previewTimeout); err != nil {
		writeCommandError(w, err)
		return
	}

	data := s.robot.PreviewPath()
	if data == nil {
		writeTimeout(w, "No response from robot (timeout)")
		return
	}

	preview := yarbo.ParsePreviewPath(data)
	if !preview.OK {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": preview.Error, "data": data})
		return
	}

	refLat, refLon, geo := s.mapReference(r.Context())
	if !geo {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":     true,
			"count":  len(preview.Points),
			"points": preview.Points,
			"raw":    true,
		})
		return
	}

	points := make([][2]float64, 0, len(preview.Points))
	for _, p := range preview.Points {
		x, y, ok := pointXY(p)
		if !ok {
			continue
		}
		lat, lon := localToGPS(x, y, refLat, refLon)
		points = append(points, [2]float64{lat, lon})
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "count": len(points), "points": points})
}

// commandView is a history entry with a human-readable description.
type commandView struct {
	Timestamp   time.Time      `json:"timestamp"`
	Command     string         `json:"command"`
	Description string         `json:"description"`
	Payload     map[string]any `json:"payload"`
}

// handleCommandHistory returns the recent control commands seen on the
// robot's command topic, from any client.
func (s *Server) handleCommandHistory(w http.ResponseWriter, _ *http.Request) {
	entries := s.robot.CommandHistory()
	views := make([]commandView, 0, len(entries))
	for _, e := range entries {
		views = append(views, commandView{
			Timestamp:   e.Timestamp,
			Command:     e.Command,
			Description: describeCommand(e.Command, e.Payload),
			Payload:     e.Payload,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"commands":     views,
		"count":        len(views),
		"last_updated": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleCommandLog pages through the persisted command log.
// Query: command, since (RFC 3339), limit, offset.
func (s *Server) handleCommandLog(w http.ResponseWriter, r *http.Request) {
	if s.log == nil {
		writeUnavailable(w, "command log is disabled")
		return
	}

	filter := commandlog.Filter{Command: r.URL.Query().Get("command")}
	if v := r.URL.Query().Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = since
	}
	var err error
	if filter.Limit, err = queryInt(r, "limit", 0); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if filter.Offset, err = queryInt(r, "offset", 0); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	res, err := s.log.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing command log failed", "error", err)
		writeInternalError(w, "failed to list command log")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// workingStateLabels names set_working_state targets for descriptions.
var workingStateLabels = map[int]string{
	0: "Standby", 1: "Idle", 2: "Working", 3: "Charging",
	4: "Docking", 5: "Error", 6: "Returning", 7: "Paused",
}

// describeCommand renders a control command for display.
func describeCommand(name string, payload map[string]any) string {
	switch name {
	case "cmd_vel":
		vel, _ := number(payload["vel"])
		rev, _ := number(payload["rev"])
		var desc string
		switch {
		case vel == 0 && rev == 0:
			return "Stop"
		case vel > 0:
			desc = fmt.Sprintf("Forward %g m/s", vel)
		case vel < 0:
			desc = fmt.Sprintf("Backward %g m/s", -vel)
		}
		if rev != 0 {
			dir := "left"
			if rev > 0 {
				dir = "right"
			}
			if desc != "" {
				desc += ", "
			}
			desc += "turn " + dir
		}
		return desc
	case "cmd_roller":
		vel, _ := number(payload["vel"])
		return fmt.Sprintf("Roller speed: %g RPM", vel)
	case "set_working_state":
		st, _ := number(payload["state"])
		label, ok := workingStateLabels[int(st)]
		if !ok {
			label = "Unknown"
		}
		return "Change state to: " + label
	case "set_plan_roller":
		st, _ := number(payload["state"])
		return fmt.Sprintf("Enable roller for plan (state: %g)", st)
	default:
		words := strings.Split(name, "_")
		for i, w := range words {
			if w != "" {
				words[i] = strings.ToUpper(w[:1]) + w[1:]
			}
		}
		return strings.Join(words, " ")
	}
}
