package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)

		r.Route("/mqtt", func(r chi.Router) {
			r.Get("/", s.handleMQTTInfo)
			r.Post("/reconnect", s.handleReconnect)
			r.Post("/discover", s.handleDiscover)
		})

		r.Post("/command/{name}", s.handleCommand)

		r.Route("/robot", func(r chi.Router) {
			r.Post("/stop", s.fireAndForget("stop", nil))
			r.Post("/pause", s.fireAndForget("pause", nil))
			r.Post("/resume", s.fireAndForget("resume", nil))
			r.Post("/dock", s.fireAndForget("cmd_recharge", map[string]any{"cmd": 2}))
			r.Post("/shutdown", s.fireAndForget("shutdown", nil))
			r.Post("/start_plan", s.handleStartPlan)
			r.Post("/drive", s.handleDrive)
			r.Post("/lights", s.handleLights)
			r.Post("/sound", s.handleSound)
		})

		r.Route("/live", func(r chi.Router) {
			r.Get("/map", s.liveHandler("get_map", nil, s.robot.LiveMap, "No live map data yet; robot may not be connected"))
			r.Get("/plans", s.liveHandler("read_all_plan", nil, s.robot.Plans, "No live plan data yet"))
			r.Get("/gps_ref", s.liveHandler("read_gps_ref", nil, s.robot.GPSRef, "No live GPS ref data yet"))
			r.Get("/schedules", s.liveHandler("read_schedules", nil, s.robot.Schedules, "No schedule data yet"))
			r.Get("/params", s.liveHandler("read_global_params", map[string]any{"id": 1}, s.robot.GlobalParams, "No params data yet"))
			r.Get("/device_msg", s.liveHandler("get_device_msg", nil, s.deviceMessage, "No device message yet"))
			r.Get("/trail", s.handleTrail)
			r.Post("/trail/clear", s.handleClearTrail)
			r.Post("/preview_path", s.handlePreviewPath)
		})

		r.Get("/commands", s.handleCommandHistory)
		r.Get("/commands/log", s.handleCommandLog)

		r.Route("/cloud", func(r chi.Router) {
			r.Get("/devices", s.handleCloudDevices)
			r.Get("/map", s.handleCloudMap)
			r.Get("/raster", s.handleCloudRaster)
			r.Get("/messages", s.handleCloudMessages)
			r.Get("/firmware", s.handleCloudFirmware)
			r.Post("/cache/clear", s.handleCloudCacheClear)
		})

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.version,
		"mqtt_connected": s.robot.IsConnected(),
	})
}
