// Package mqttsurface projects the bridge's domain model onto Home
// Assistant's MQTT discovery protocol. It owns every topic string the
// bridge publishes or subscribes to; nothing outside this package knows
// the wire shape of a topic.
//
// Grounded on the original gateway's mqtt/updater.py (MqttWrapper /
// MqttWrapperQolsysPartition / MqttWrapperQolsysSensor), re-architected
// from a per-component class hierarchy into one publish function per
// entity kind (publishPartition, publishSensor), the way the teacher's
// internal/homeassistant flattens HA discovery into plain functions
// instead of subclasses.
package mqttsurface

import "fmt"

const (
	componentAlarmPanel   = "alarm_control_panel"
	componentBinarySensor = "binary_sensor"
)

func baseTopic(prefix, component, uniqueID, entityID string) string {
	return fmt.Sprintf("%s/%s/%s/%s", prefix, component, uniqueID, entityID)
}

func configTopic(prefix, component, uniqueID, entityID string) string {
	return baseTopic(prefix, component, uniqueID, entityID) + "/config"
}

func stateTopic(prefix, component, uniqueID, entityID string) string {
	return baseTopic(prefix, component, uniqueID, entityID) + "/state"
}

func attributesTopic(prefix, component, uniqueID, entityID string) string {
	return baseTopic(prefix, component, uniqueID, entityID) + "/attributes"
}

func availabilityTopic(prefix, component, uniqueID, entityID string) string {
	return baseTopic(prefix, component, uniqueID, entityID) + "/availability"
}

func commandTopic(prefix, component, uniqueID, entityID string) string {
	return baseTopic(prefix, component, uniqueID, entityID) + "/set"
}

// deviceAvailabilityTopic is the single instance-wide availability topic
// (the bridge's own LWT). Entity discovery configs and their "device"
// block do not reference it; each entity's availability_topic is its
// own per-entity topic.
func deviceAvailabilityTopic(prefix, uniqueID string) string {
	return fmt.Sprintf("%s/device/%s/availability", prefix, uniqueID)
}
