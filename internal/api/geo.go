package api

import (
	"context"
	"math"
)

// metresPerDegree is the length of one degree of latitude.
const metresPerDegree = 111320.0

// localToGPS converts robot-local coordinates in metres to latitude and
// longitude. The robot frame has +x pointing west and +y north of the
// reference point.
func localToGPS(x, y, refLat, refLon float64) (lat, lon float64) {
	lat = refLat + y/metresPerDegree
	lon = refLon - x/(metresPerDegree*math.Cos(refLat*math.Pi/180))
	return lat, lon
}

// mapReference returns the GPS reference point of the robot's cloud map.
// ok is false without a cloud account or when the map has no reference.
func (s *Server) mapReference(ctx context.Context) (lat, lon float64, ok bool) {
	if s.cloud == nil {
		return 0, 0, false
	}
	m, err := s.cloud.GetMap(ctx, s.robot.Serial())
	if err != nil {
		s.logger.Debug("map reference unavailable", "error", err)
		return 0, 0, false
	}

	outer, _ := m["ref"].(map[string]any)
	ref, _ := outer["ref"].(map[string]any)
	lat, okLat := number(ref["latitude"])
	lon, okLon := number(ref["longitude"])
	if !okLat || !okLon || lat == 0 || lon == 0 {
		return 0, 0, false
	}
	return lat, lon, true
}

// pointXY reads a path point given as {"x":..,"y":..} or [x, y].
func pointXY(p any) (x, y float64, ok bool) {
	switch v := p.(type) {
	case map[string]any:
		x, _ = number(v["x"])
		y, _ = number(v["y"])
		return x, y, true
	case []any:
		if len(v) < 2 {
			return 0, 0, false
		}
		x, okX := number(v[0])
		y, okY := number(v[1])
		return x, y, okX && okY
	default:
		return 0, 0, false
	}
}

// number converts a decoded JSON number.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// round1 rounds to one decimal place.
func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
