package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	// commandTimeout is the default wait for a command reply.
	commandTimeout = 5 * time.Second

	// maxCommandTimeout caps the ?timeout= a caller may ask for.
	maxCommandTimeout = 60 * time.Second
)

// handleMQTTInfo returns the robot session details.
func (s *Server) handleMQTTInfo(w http.ResponseWriter, _ *http.Request) {
	snap := s.robot.Snapshot()
	robot := s.robot.Robot()

	var wifiIP any
	if snap.RobotWiFiIP != "" {
		wifiIP = snap.RobotWiFiIP
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"connected":     s.robot.IsConnected(),
		"robot_ip":      s.robot.Address(),
		"robot_wifi_ip": wifiIP,
		"robot_port":    robot.Port,
		"robot_tls":     robot.TLS,
		"robot_serial":  s.robot.Serial(),
		"wifi_info":     snap.WiFiInfo,
		"supervisor":    s.robot.SupervisorStatus(),
		"status":        snap.Flatten(),
	})
}

func (s *Server) handleReconnect(w http.ResponseWriter, _ *http.Request) {
	if err := s.robot.Reconnect(); err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "MQTT reconnection initiated"})
}

// handleDiscover scans for the robot and reconnects if it moved.
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.robot.Rediscover(r.Context()))
}

// handleCommand sends an arbitrary command. The optional body is the JSON
// payload; ?wait=false returns without waiting for the reply.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	wait, err := queryBool(r, "wait", true)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	secs, err := queryFloat(r, "timeout", commandTimeout.Seconds())
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	timeout := time.Duration(secs * float64(time.Second))
	if timeout > maxCommandTimeout {
		timeout = maxCommandTimeout
	}

	payload := map[string]any{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "payload must be a JSON object")
		return
	}

	resp, err := s.robot.SendCommand(name, payload, wait, timeout)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "command": name, "response": resp})
}

// fireAndForget returns a handler that sends a fixed command without
// waiting for the reply.
func (s *Server) fireAndForget(name string, payload map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if _, err := s.robot.SendCommand(name, payload, false, 0); err != nil {
			writeCommandError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "command": name})
	}
}

// handleStartPlan starts plan ?plan_id= at ?percent= and waits for the reply.
func (s *Server) handleStartPlan(w http.ResponseWriter, r *http.Request) {
	planID, err := queryInt(r, "plan_id", 1)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	percent, err := queryInt(r, "percent", 0)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	resp, err := s.robot.SendCommand("start_plan", map[string]any{"id": planID, "percent": percent}, true, commandTimeout)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "command": "start_plan", "plan_id": planID, "response": resp})
}

// handleDrive sends one velocity command: ?vel= metres per second
// (negative reverses) and ?rev= turn rate.
func (s *Server) handleDrive(w http.ResponseWriter, r *http.Request) {
	vel, err := queryFloat(r, "vel", 0)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	rev, err := queryFloat(r, "rev", 0)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if _, err := s.robot.SendCommand("cmd_vel", map[string]any{"vel": vel, "rev": rev}, false, 0); err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "command": "cmd_vel", "vel": vel, "rev": rev})
}

// lightChannels maps query parameters to light_ctrl payload keys.
var lightChannels = []struct{ param, key string }{
	{"head", "led_head"},
	{"left", "led_left_w"},
	{"right", "led_right_w"},
	{"body_left", "body_left_r"},
	{"body_right", "body_right_r"},
	{"tail_left", "tail_left_r"},
	{"tail_right", "tail_right_r"},
}

// handleLights sets the seven LED channels (0-255); missing ones are off.
func (s *Server) handleLights(w http.ResponseWriter, r *http.Request) {
	payload := make(map[string]any, len(lightChannels))
	for _, ch := range lightChannels {
		v, err := queryInt(r, ch.param, 0)
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		if v < 0 || v > 255 {
			writeBadRequest(w, ch.param+" must be between 0 and 255")
			return
		}
		payload[ch.key] = v
	}

	if _, err := s.robot.SendCommand("light_ctrl", payload, false, 0); err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "command": "light_ctrl", "payload": payload})
}

func (s *Server) handleSound(w http.ResponseWriter, r *http.Request) {
	enable, err := queryBool(r, "enable", true)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	vol, err := queryFloat(r, "vol", 0.2)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	mode, err := queryInt(r, "mode", 0)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	payload := map[string]any{"enable": enable, "vol": vol, "mode": mode}
	if _, err := s.robot.SendCommand("set_sound_param", payload, false, 0); err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "command": "set_sound_param"})
}

// Query parameter helpers. A missing parameter yields the default; a
// malformed one is an error naming the parameter.

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return n, nil
}

func queryFloat(r *http.Request, key string, def float64) (float64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errors.New(key + " must be a number")
	}
	return f, nil
}

func queryBool(r *http.Request, key string, def bool) (bool, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.New(key + " must be true or false")
	}
	return b, nil
}
