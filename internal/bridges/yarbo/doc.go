// Package yarbo implements the local bridge to a Yarbo robot.
//
// The robot runs an MQTT broker on the local network. Everything it reports
// and everything it accepts travels under one topic prefix:
//
//	snowbot/<serial>/device/heart_beat      liveness and working state
//	snowbot/<serial>/device/data_feedback   telemetry and command replies
//	snowbot/<serial>/device/DeviceMSG       partial real-time telemetry
//	snowbot/<serial>/app/<command>          commands
//
// # Architecture
//
//	┌──────────────┐  MQTT/TLS  ┌──────────────┐   Snapshot, SendCommand
//	│ Robot broker │◄──────────►│    Bridge    │◄──────────────────────► API
//	└──────────────┘            └──────┬───────┘
//	                                   │ failures, health probe
//	                            ┌──────▼───────┐
//	                            │  Supervisor  │──► discovery.Resolver
//	                            └──────────────┘
//
// # Key Responsibilities
//
//   - Classify inbound messages and aggregate them into a Snapshot
//   - Keep the latest reply of each data request (map, plans, schedules)
//   - Record the job trail while a plan is running
//   - Send commands and correlate replies by req_id
//   - Re-resolve the broker address after repeated failures
//
// # Usage
//
//	b, err := yarbo.NewBridge(yarbo.Options{
//	    Robot:     cfg.Robot,
//	    Transport: mqtt.New(cfg.Robot, cfg.MQTT),
//	    Resolver:  resolver,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := b.Start(ctx); err != nil {
//	    return err
//	}
//	defer b.Stop()
//
//	reply, err := b.SendCommand("read_all_plan", nil, true, 5*time.Second)
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package yarbo
