// Package logging sets up the bridge's two logs.
//
// The application log is log/slog behind a thin Logger type. Every entry
// carries service and version attributes; format (json or text), level
// and destination come from the logging section of the config. The file
// destination rotates through lumberjack.
//
//	log := logging.New(cfg.Logging, version)
//	mqttLog := log.With("component", "mqtt")
//	mqttLog.Info("connected", "broker", addr)
//
// The traffic log is optional and separate: one line per MQTT message in
// either direction, with a truncated payload preview, written to its own
// rotating file. A nil *Traffic discards everything, so callers never
// check whether it is enabled.
//
//	traffic := logging.NewTraffic(cfg.MQTT.TrafficLog)
//	traffic.RX(topic, payload)
//
// Cloud passwords and tokens must never be logged.
package logging
