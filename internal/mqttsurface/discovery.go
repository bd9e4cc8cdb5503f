package mqttsurface

import (
	"time"

	"github.com/qolsys/qolsys2mqtt/internal/model"
)

// device is the HA discovery "device" block every entity's config
// payload links to, so HA groups all partitions and sensors under one
// device card for the panel.
type device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model,omitempty"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// alarmPanelConfig is the HA discovery config payload for an
// alarm_control_panel entity, one per partition.
type alarmPanelConfig struct {
	Name                string   `json:"name"`
	UniqueID            string   `json:"unique_id"`
	StateTopic          string   `json:"state_topic"`
	CommandTopic        string   `json:"command_topic"`
	AvailabilityTopic   string   `json:"availability_topic"`
	JSONAttributesTopic string   `json:"json_attributes_topic"`
	PayloadAvailable    string   `json:"payload_available"`
	PayloadNotAvailable string   `json:"payload_not_available"`
	CommandTemplate     string   `json:"command_template"`
	Code                string   `json:"code,omitempty"`
	CodeArmRequired     bool     `json:"code_arm_required"`
	CodeDisarmRequired  bool     `json:"code_disarm_required"`
	CodeTriggerRequired bool     `json:"code_trigger_required"`
	SupportedFeatures   []string `json:"supported_features"`
	Device              device   `json:"device"`
}

// partitionAttributes is the payload published to a partition's
// json_attributes_topic: the diagnostic fields a partition accumulates
// from panel ERROR reports, which have no place on the alarm_control_
// panel entity's own state string.
type partitionAttributes struct {
	LastErrorType        string `json:"last_error_type,omitempty"`
	LastErrorDescription string `json:"last_error_description,omitempty"`
	LastErrorAt          string `json:"last_error_at,omitempty"`
	DisarmFailed         bool   `json:"disarm_failed"`
}

// partitionAttributesOf builds the json_attributes_topic payload from a
// partition's diagnostic fields, formatting LastErrorAt as RFC3339 so it
// survives the MQTT round trip as plain text.
func partitionAttributesOf(p model.PartitionSnapshot) partitionAttributes {
	a := partitionAttributes{
		LastErrorType:        p.LastErrorType,
		LastErrorDescription: p.LastErrorDescription,
		DisarmFailed:         p.DisarmFailed,
	}
	if p.LastErrorAt != nil {
		a.LastErrorAt = p.LastErrorAt.Format(time.RFC3339)
	}
	return a
}

// binarySensorConfig is the HA discovery config payload for a
// binary_sensor entity, one per zone.
type binarySensorConfig struct {
	Name                string `json:"name"`
	UniqueID            string `json:"unique_id"`
	StateTopic          string `json:"state_topic"`
	AvailabilityTopic   string `json:"availability_topic"`
	PayloadAvailable    string `json:"payload_available"`
	PayloadNotAvailable string `json:"payload_not_available"`
	PayloadOn           string `json:"payload_on"`
	PayloadOff          string `json:"payload_off"`
	DeviceClass         string `json:"device_class,omitempty"`
	Device              device `json:"device"`
}

// partitionHAState maps the panel-native PartitionStatus onto the
// state string HA's alarm_control_panel component expects. Grounded on
// the original gateway's QOLSYS_TO_HA_STATUS table.
func partitionHAState(status model.PartitionStatus) string {
	switch status {
	case model.StatusDisarm:
		return "disarmed"
	case model.StatusArmStay:
		return "armed_home"
	case model.StatusArmAway:
		return "armed_away"
	case model.StatusEntryDelay:
		return "pending"
	case model.StatusExitDelay:
		return "arming"
	case model.StatusAlarm:
		return "triggered"
	default:
		return "disarmed"
	}
}

// sensorPayloads returns the payload_on/payload_off pair and HA
// device_class for a sensor's class. Every binary_sensor uses the
// literal HA convention "ON"/"OFF" (spec §6 examples S1/S2 publish
// state as `OFF`/`ON`, not the panel's own OPEN/CLOSED/ACTIVE/IDLE
// vocabulary) — sensorHAState is what translates a sensor's raw status
// into one of these two payloads. Open question in the distilled spec
// (exact HA device_class per zone subtype isn't specified); resolved
// here by following the original's per-subclass device-class table,
// collapsed into one lookup since Go has no class hierarchy to hang it
// on.
func sensorPayloads(class model.SensorClass) (on, off, deviceClass string) {
	const (
		payloadOn  = "ON"
		payloadOff = "OFF"
	)
	switch class {
	case model.ClassDoorWindow, model.ClassTilt:
		return payloadOn, payloadOff, "door"
	case model.ClassMotion:
		return payloadOn, payloadOff, "motion"
	case model.ClassGlassBreak:
		return payloadOn, payloadOff, "safety"
	case model.ClassSmoke:
		return payloadOn, payloadOff, "smoke"
	case model.ClassCO:
		return payloadOn, payloadOff, "gas"
	case model.ClassWater:
		return payloadOn, payloadOff, "moisture"
	case model.ClassHeat:
		return payloadOn, payloadOff, "heat"
	case model.ClassFreeze:
		return payloadOn, payloadOff, "cold"
	default:
		return payloadOn, payloadOff, ""
	}
}

// sensorHAState maps a sensor's raw panel status onto the "ON"/"OFF"
// payload its binary_sensor discovery config declares via
// payload_on/payload_off.
func sensorHAState(status model.SensorStatus) string {
	switch status {
	case model.SensorOpen, model.SensorActive, model.SensorTamper:
		return "ON"
	default:
		return "OFF"
	}
}
