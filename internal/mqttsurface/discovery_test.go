package mqttsurface

import (
	"testing"

	"github.com/qolsys/qolsys2mqtt/internal/model"
)

func TestPartitionHAState(t *testing.T) {
	cases := map[model.PartitionStatus]string{
		model.StatusDisarm:     "disarmed",
		model.StatusArmStay:    "armed_home",
		model.StatusArmAway:    "armed_away",
		model.StatusEntryDelay: "pending",
		model.StatusExitDelay:  "arming",
		model.StatusAlarm:      "triggered",
	}
	for status, want := range cases {
		if got := partitionHAState(status); got != want {
			t.Errorf("partitionHAState(%v) = %q, want %q", status, got, want)
		}
	}
}

func TestSensorPayloadsDeviceClasses(t *testing.T) {
	on, off, class := sensorPayloads(model.ClassDoorWindow)
	if on != "ON" || off != "OFF" || class != "door" {
		t.Errorf("DoorWindow: got on=%q off=%q class=%q", on, off, class)
	}

	on, off, class = sensorPayloads(model.ClassSmoke)
	if on != "ON" || off != "OFF" || class != "smoke" {
		t.Errorf("Smoke: got on=%q off=%q class=%q", on, off, class)
	}

	_, _, class = sensorPayloads(model.ClassGeneric)
	if class != "" {
		t.Errorf("Generic should have no device_class, got %q", class)
	}
}
