package influxdb

import (
	"encoding/json"
	"sort"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementTelemetry is the measurement every telemetry point is written to.
const MeasurementTelemetry = "yarbo_telemetry"

// maxFieldDepth bounds how deep nested payload objects are flattened.
const maxFieldDepth = 4

// WriteTelemetry records one telemetry payload as a point tagged with the
// robot serial and the payload category. Numeric and boolean leaves become
// fields, nested keys joined with "_"; a payload without any is skipped.
//
// The write is non-blocking and batched.
//
// Example:
//
//	client.WriteTelemetry("24400102L8HO5227", "BatteryMSG", map[string]any{"capacity": 87.0})
func (c *Client) WriteTelemetry(serial, category string, payload map[string]any) {
	if !c.IsConnected() {
		return
	}

	fields := TelemetryFields(payload)
	if len(fields) == 0 {
		return
	}

	point := write.NewPoint(MeasurementTelemetry,
		map[string]string{
			"serial":   serial,
			"category": category,
		},
		fields,
		c.now(),
	)
	c.writeAPI.WritePoint(point)
}

// TelemetryFields flattens the numeric and boolean leaves of payload into
// InfluxDB fields. Integers are written as floats so a field keeps one
// type whatever the robot sends.
func TelemetryFields(payload map[string]any) map[string]any {
	fields := make(map[string]any)
	flattenInto(fields, "", payload, 0)
	return fields
}

func flattenInto(fields map[string]any, prefix string, m map[string]any, depth int) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		name := k
		if prefix != "" {
			name = prefix + "_" + k
		}

		switch v := m[k].(type) {
		case bool:
			fields[name] = v
		case float64:
			fields[name] = v
		case float32:
			fields[name] = float64(v)
		case int:
			fields[name] = float64(v)
		case int64:
			fields[name] = float64(v)
		case json.Number:
			if f, err := v.Float64(); err == nil {
				fields[name] = f
			}
		case map[string]any:
			if depth < maxFieldDepth {
				flattenInto(fields, name, v, depth+1)
			}
		}
	}
}
