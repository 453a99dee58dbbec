package yarbo

import "time"

// maxTrailPoints caps the recorded job path.
const maxTrailPoints = 2000

// TrailPoint is one recorded robot position.
type TrailPoint struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Timestamp float64 `json:"ts"`
}

// trail records positions while a planned job is running.
//
// Recording starts, clearing earlier points, when on_going_planning flips
// to true and stops when it flips back. Points are kept after a job ends so
// the finished path can still be shown. Not safe for concurrent use; the
// store serialises access.
type trail struct {
	points []TrailPoint
	max    int
	active bool
}

func newTrail(max int) trail {
	return trail{max: max}
}

// observe updates recording from a full get_device_msg payload.
func (t *trail) observe(msg map[string]any, now time.Time) {
	planning := false
	if state, ok := asObject(msg["StateMSG"]); ok {
		planning = truthy(state["on_going_planning"])
	}

	switch {
	case planning && !t.active:
		t.active = true
		t.points = t.points[:0]
	case !planning && t.active:
		t.active = false
	}

	if !t.active {
		return
	}

	odom, ok := asObject(msg["CombinedOdom"])
	if !ok {
		return
	}
	x, okX := toFloat(odom["x"])
	y, okY := toFloat(odom["y"])
	if !okX || !okY {
		return
	}

	ts, ok := toFloat(odom["timestamp"])
	if !ok {
		ts = float64(now.UnixMilli()) / 1000
	}

	t.points = append(t.points, TrailPoint{X: x, Y: y, Timestamp: ts})
	if over := len(t.points) - t.max; over > 0 {
		t.points = append(t.points[:0], t.points[over:]...)
	}
}

func (t *trail) clear() {
	t.points = nil
}

func (t *trail) snapshot() []TrailPoint {
	out := make([]TrailPoint, len(t.points))
	copy(out, t.points)
	return out
}
