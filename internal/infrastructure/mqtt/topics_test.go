package mqtt

import (
	"reflect"
	"testing"
)

func TestTopics(t *testing.T) {
	topics := Topics{Namespace: "snowbot", Serial: "SN1"}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"prefix", topics.Prefix(), "snowbot/SN1"},
		{"all", topics.All(), "snowbot/SN1/#"},
		{"command", topics.Command("get_device_msg"), "snowbot/SN1/app/get_device_msg"},
		{"device", topics.Device("heart_beat"), "snowbot/SN1/device/heart_beat"},
		{"default namespace", Topics{Serial: "SN1"}.Command("stop"), "snowbot/SN1/app/stop"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestTopics_Split(t *testing.T) {
	topics := Topics{Namespace: "snowbot", Serial: "SN1"}

	tests := []struct {
		topic string
		want  []string
	}{
		{"snowbot/SN1/app/cmd_vel", []string{"app", "cmd_vel"}},
		{"snowbot/SN1/device/DeviceMSG", []string{"device", "DeviceMSG"}},
		{"snowbot/SN2/app/cmd_vel", nil},
		{"snowbot/SN1", nil},
		{"snowbot/SN1/", nil},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			if got := topics.Split(tt.topic); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Split(%q) = %v, want %v", tt.topic, got, tt.want)
			}
		})
	}
}
