package mqttsurface

import "testing"

func TestTopicShapes(t *testing.T) {
	prefix, component, uid, entity := "homeassistant", "alarm_control_panel", "qolsys_panel", "main"

	cases := map[string]string{
		"config":       configTopic(prefix, component, uid, entity),
		"state":        stateTopic(prefix, component, uid, entity),
		"attributes":   attributesTopic(prefix, component, uid, entity),
		"availability": availabilityTopic(prefix, component, uid, entity),
		"set":          commandTopic(prefix, component, uid, entity),
	}
	want := map[string]string{
		"config":       "homeassistant/alarm_control_panel/qolsys_panel/main/config",
		"state":        "homeassistant/alarm_control_panel/qolsys_panel/main/state",
		"attributes":   "homeassistant/alarm_control_panel/qolsys_panel/main/attributes",
		"availability": "homeassistant/alarm_control_panel/qolsys_panel/main/availability",
		"set":          "homeassistant/alarm_control_panel/qolsys_panel/main/set",
	}
	for suffix, got := range cases {
		if got != want[suffix] {
			t.Errorf("%s topic: got %q, want %q", suffix, got, want[suffix])
		}
	}
}

func TestDeviceAvailabilityTopic(t *testing.T) {
	got := deviceAvailabilityTopic("homeassistant", "qolsys_panel")
	want := "homeassistant/device/qolsys_panel/availability"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
