// Package mqtt maintains the session with a Yarbo robot's on-board MQTT broker.
//
// This package manages:
//   - Connection to the robot broker over TLS with auto-reconnect
//   - A single wildcard subscription covering every topic of the robot
//   - Payload decoding (gzip, zlib or plain JSON)
//   - Publishing commands at QoS 0
//
// # Sessions
//
// Every Start creates a fresh paho client with a new client ID. Callbacks
// belonging to a stopped session are discarded, so a Stop/Start cycle
// (for example after the robot changes address) never delivers stale
// connect, disconnect or message events.
//
// Disconnect events cover both a dropped connection and each failed
// connection attempt after the first, so a listener counting consecutive
// failures sees the robot being unreachable even before it ever connected.
//
// # Security Considerations
//
//   - The robot presents a self-signed certificate; verification is disabled
//   - The broker is only reachable on the local network
//
// # Usage
//
//	client := mqtt.New(cfg.Robot, cfg.MQTT)
//	client.SetListener(bridge)
//	if err := client.Start(); err != nil {
//	    return err
//	}
//	defer client.Stop()
//
//	topic := client.Topics().Command("get_device_msg")
//	err := client.Publish(topic, []byte(`{}`))
package mqtt
