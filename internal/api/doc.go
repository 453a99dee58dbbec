// Package api serves the bridge's HTTP API and WebSocket event stream.
//
// All routes live under /api/v1:
//   - status, health and MQTT session control (reconnect, discover)
//   - robot commands, both raw (/command/{name}) and named (/robot/...)
//   - live data replies cached by the bridge (/live/...), the job trail
//     and plan path previews
//   - the in-memory and persisted command history
//   - a read-through view of the cloud account (/cloud/...)
//
// Robot events reach WebSocket clients on /ws through the Hub, which the
// bridge publishes to. Clients pick channels with ?channels= or
// subscribe/unsubscribe messages.
//
// The server has no authentication; it is meant for a trusted LAN next
// to the robot, typically consumed by Home Assistant.
package api
