package api

import (
	"net/http"
)

const cloudUnavailable = "cloud account not configured"

// serialParam returns ?sn=, defaulting to the connected robot.
func (s *Server) serialParam(r *http.Request) string {
	if sn := r.URL.Query().Get("sn"); sn != "" {
		return sn
	}
	return s.robot.Serial()
}

func (s *Server) handleCloudDevices(w http.ResponseWriter, r *http.Request) {
	if s.cloud == nil {
		writeUnavailable(w, cloudUnavailable)
		return
	}
	devices, err := s.cloud.GetDevices(r.Context())
	if err != nil {
		writeCloudError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleCloudMap(w http.ResponseWriter, r *http.Request) {
	if s.cloud == nil {
		writeUnavailable(w, cloudUnavailable)
		return
	}
	m, err := s.cloud.GetMap(r.Context(), s.serialParam(r))
	if err != nil {
		writeCloudError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleCloudRaster(w http.ResponseWriter, r *http.Request) {
	if s.cloud == nil {
		writeUnavailable(w, cloudUnavailable)
		return
	}
	raster, err := s.cloud.GetRasterBackground(r.Context(), s.serialParam(r))
	if err != nil {
		writeCloudError(w, err)
		return
	}
	if raster == nil {
		writeNotFound(w, "no map background")
		return
	}
	writeJSON(w, http.StatusOK, raster)
}

func (s *Server) handleCloudMessages(w http.ResponseWriter, r *http.Request) {
	if s.cloud == nil {
		writeUnavailable(w, cloudUnavailable)
		return
	}
	msgs, err := s.cloud.GetMessages(r.Context(), s.serialParam(r))
	if err != nil {
		writeCloudError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleCloudFirmware(w http.ResponseWriter, r *http.Request) {
	if s.cloud == nil {
		writeUnavailable(w, cloudUnavailable)
		return
	}
	fw, err := s.cloud.GetFirmware(r.Context())
	if err != nil {
		writeCloudError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fw)
}

func (s *Server) handleCloudCacheClear(w http.ResponseWriter, _ *http.Request) {
	if s.cloud == nil {
		writeUnavailable(w, cloudUnavailable)
		return
	}
	s.cloud.Invalidate()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "Cache cleared"})
}
