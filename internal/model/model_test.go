package model

import (
	"testing"

	"github.com/qolsys/qolsys2mqtt/internal/codec"
)

func TestApplyInfoSummaryCreatesEntities(t *testing.T) {
	r := New("panel-1", "Home")
	var changes []Change
	r.Observe(func(c Change) { changes = append(changes, c) })

	r.Apply(codec.InfoSummary{
		DeviceName:      "Home",
		SoftwareVersion: "1.0",
		Partitions: []codec.PartitionData{
			{
				ID:     0,
				Name:   "Main",
				Status: "DISARM",
				Zones: []codec.ZoneData{
					{ZoneID: 1, Name: "Front Door", ZoneType: "DoorWindow", PartitionID: 0, Status: "CLOSED"},
				},
			},
		},
	})

	p, ok := r.Partition(0)
	if !ok {
		t.Fatalf("expected partition 0 to exist")
	}
	if p.Status != StatusDisarm || !p.Available {
		t.Errorf("unexpected partition state: %+v", p)
	}

	sensors := r.Sensors()
	if len(sensors) != 1 || sensors[0].Status != SensorClosed {
		t.Fatalf("unexpected sensors: %+v", sensors)
	}
	if len(changes) == 0 {
		t.Errorf("expected at least one Change notification")
	}
}

func TestApplyInfoSummaryMarksMissingEntitiesUnavailableNotDeleted(t *testing.T) {
	r := New("panel-1", "Home")

	r.Apply(codec.InfoSummary{
		Partitions: []codec.PartitionData{
			{
				ID:     0,
				Status: "DISARM",
				Zones: []codec.ZoneData{
					{ZoneID: 1, ZoneType: "DoorWindow", PartitionID: 0, Status: "CLOSED"},
					{ZoneID: 2, ZoneType: "Motion", PartitionID: 0, Status: "IDLE"},
				},
			},
			{ID: 1, Status: "DISARM"},
		},
	})

	// A second summary that omits partition 1 and zone 2 entirely.
	r.Apply(codec.InfoSummary{
		Partitions: []codec.PartitionData{
			{
				ID:     0,
				Status: "DISARM",
				Zones: []codec.ZoneData{
					{ZoneID: 1, ZoneType: "DoorWindow", PartitionID: 0, Status: "OPEN"},
				},
			},
		},
	})

	if _, ok := r.Partition(1); !ok {
		t.Fatalf("partition 1 must still exist in the registry, only marked unavailable")
	}
	p1, _ := r.Partition(1)
	if p1.Available {
		t.Errorf("partition 1 should have been marked unavailable, got %+v", p1)
	}

	var zone2 *SensorSnapshot
	for _, s := range r.Sensors() {
		if s.ID == 2 {
			sCopy := s
			zone2 = &sCopy
		}
	}
	if zone2 == nil {
		t.Fatalf("zone 2 must still exist in the registry, only marked unavailable")
	}
	if zone2.Available {
		t.Errorf("zone 2 should have been marked unavailable, got %+v", zone2)
	}
}

func TestApplyZoneEventUpdatesExistingSensor(t *testing.T) {
	r := New("panel-1", "Home")
	r.Apply(codec.InfoSummary{
		Partitions: []codec.PartitionData{
			{ID: 0, Status: "DISARM", Zones: []codec.ZoneData{
				{ZoneID: 1, ZoneType: "DoorWindow", PartitionID: 0, Status: "CLOSED"},
			}},
		},
	})

	r.Apply(codec.ZoneEvent{Zone: codec.ZoneData{ZoneID: 1, ZoneType: "DoorWindow", PartitionID: 0, Status: "OPEN"}})

	sensors := r.Sensors()
	if len(sensors) != 1 || sensors[0].Status != SensorOpen {
		t.Fatalf("expected zone 1 open, got %+v", sensors)
	}
}

func TestApplyArmingResetsAlarmOnDisarm(t *testing.T) {
	r := New("panel-1", "Home")
	r.Apply(codec.Alarm{PartitionID: 0, AlarmType: "POLICE"})
	p, _ := r.Partition(0)
	if p.Status != StatusAlarm || p.AlarmType != AlarmPolice {
		t.Fatalf("expected alarm state, got %+v", p)
	}

	r.Apply(codec.Arming{PartitionID: 0, Status: "DISARM"})
	p, _ = r.Partition(0)
	if p.Status != StatusDisarm || p.AlarmType != "" || p.DisarmFailed {
		t.Errorf("expected clean disarm state, got %+v", p)
	}
}

func TestApplyErrorScopedToPartitionSetsDisarmFailed(t *testing.T) {
	r := New("panel-1", "Home")
	partitionID := 0
	r.Apply(codec.ErrorReport{ErrorType: "DISARM_FAILED", Description: "bad code", PartitionID: &partitionID})

	p, ok := r.Partition(0)
	if !ok {
		t.Fatalf("expected partition 0 to be created by the error")
	}
	if !p.DisarmFailed {
		t.Errorf("expected DisarmFailed=true, got %+v", p)
	}
	if p.LastErrorType != "DISARM_FAILED" {
		t.Errorf("expected LastErrorType to be recorded, got %+v", p)
	}
}

func TestApplyErrorWithoutPartitionUpdatesPanel(t *testing.T) {
	r := New("panel-1", "Home")
	r.Apply(codec.ErrorReport{ErrorType: "BAD_TOKEN", Description: "rejected"})

	panel := r.Panel()
	if panel.LastError == nil || panel.LastError.ErrorType != "BAD_TOKEN" {
		t.Fatalf("expected panel.LastError to be set, got %+v", panel.LastError)
	}
}

func TestClassForUnknownZoneTypeDefaultsGeneric(t *testing.T) {
	if got := ClassFor("SomeFutureZoneType"); got != ClassGeneric {
		t.Errorf("expected ClassGeneric fallback, got %v", got)
	}
	if got := ClassFor("Motion"); got != ClassMotion {
		t.Errorf("expected ClassMotion, got %v", got)
	}
}

func TestObserverSeesSnapshotNotLiveState(t *testing.T) {
	r := New("panel-1", "Home")
	var captured *PartitionSnapshot
	r.Observe(func(c Change) {
		if c.Partition != nil && captured == nil {
			captured = c.Partition
		}
	})

	r.Apply(codec.Arming{PartitionID: 0, Status: "ARM_STAY"})
	if captured == nil || captured.Status != StatusArmStay {
		t.Fatalf("expected snapshot to reflect ARM_STAY, got %+v", captured)
	}

	// Mutating registry state afterward must not retroactively change the
	// snapshot already handed to the observer.
	r.Apply(codec.Arming{PartitionID: 0, Status: "DISARM"})
	if captured.Status != StatusArmStay {
		t.Errorf("snapshot was mutated after the fact: %+v", captured)
	}
}
