package mqtt

import "strings"

// Topic levels used by the robot firmware.
//
// All robot topics follow {namespace}/{serial}/{kind}[/{name}], e.g.
//
//	snowbot/24400102L8HO5227/app/get_device_msg       (command)
//	snowbot/24400102L8HO5227/device/data_feedback     (reply)
//	snowbot/24400102L8HO5227/device/DeviceMSG         (telemetry)
const (
	// LevelApp is the level under which the bridge publishes commands.
	LevelApp = "app"

	// LevelDevice is the level under which the robot publishes telemetry.
	LevelDevice = "device"

	// DefaultNamespace is the firmware's topic namespace.
	DefaultNamespace = "snowbot"
)

// Topics builds topics for one robot.
//
//	topics := mqtt.Topics{Namespace: "snowbot", Serial: sn}
//	topics.Command("get_device_msg") // "snowbot/<sn>/app/get_device_msg"
type Topics struct {
	Namespace string
	Serial    string
}

func (t Topics) namespace() string {
	if t.Namespace == "" {
		return DefaultNamespace
	}
	return t.Namespace
}

// Prefix returns "{namespace}/{serial}".
func (t Topics) Prefix() string {
	return t.namespace() + "/" + t.Serial
}

// All returns the wildcard subscription for every topic of the robot.
func (t Topics) All() string {
	return t.Prefix() + "/#"
}

// Command returns the topic a named command is published on.
func (t Topics) Command(name string) string {
	return t.Prefix() + "/" + LevelApp + "/" + name
}

// Device returns the topic of a device-level message.
func (t Topics) Device(name string) string {
	return t.Prefix() + "/" + LevelDevice + "/" + name
}

// Split returns the levels of topic after the robot prefix, or nil if the
// topic does not belong to this robot.
//
// Example: Split("snowbot/SN/device/DeviceMSG") returns ["device", "DeviceMSG"].
func (t Topics) Split(topic string) []string {
	rest, ok := strings.CutPrefix(topic, t.Prefix()+"/")
	if !ok || rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}
