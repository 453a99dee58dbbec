// Package influxdb stores robot telemetry history in InfluxDB v2.
//
// Every telemetry frame the bridge classifies (battery, body, GPS, odometry
// and the rest) is written as a point in the yarbo_telemetry measurement,
// tagged with serial and category. Only numeric and boolean values are
// kept; strings and arrays stay in the live snapshot.
//
// The package is optional. With influxdb.enabled false, Connect returns
// ErrDisabled and the bridge runs without a history sink.
package influxdb
