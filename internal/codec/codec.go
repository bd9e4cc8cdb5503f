// Package codec is the pure, side-effect-free translation layer between
// the panel's line-delimited JSON wire format and typed Go records. It
// performs no I/O: PanelLink feeds it raw frames and sends the result
// onward; nothing in this package blocks or retains state across calls.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/qolsys/qolsys2mqtt/internal/errs"
)

// Inbound is the sealed set of message variants the panel can send.
// Decode always returns one of these, including Unrecognized for any
// tag combination it doesn't know — an unrecognized frame is never an
// error, only information the caller may choose to log.
type Inbound interface {
	inbound()
}

// ZoneData is the panel's view of one zone, as carried inside an
// InfoSummary or a zone event.
type ZoneData struct {
	ZoneID      int
	Name        string
	ZoneType    string
	PartitionID int
	// Status is normalized to the bridge's canonical uppercase
	// vocabulary (OPEN/CLOSED/ACTIVE/IDLE/TAMPER); internal/model casts
	// it directly to model.SensorStatus.
	Status string
}

// PartitionData is the panel's view of one partition, as carried inside
// an InfoSummary.
type PartitionData struct {
	ID        int
	Name      string
	Status    string
	SecureArm bool
	Zones     []ZoneData
}

// InfoSummary is the panel's full-state dump, sent on connect and on
// request.
type InfoSummary struct {
	DeviceName      string
	SoftwareVersion string
	MAC             string
	Partitions      []PartitionData
}

func (InfoSummary) inbound() {}

// ZoneEvent is a targeted update to a single zone's status, distinct
// from the membership/attribute changes carried by ZoneAdd/ZoneUpdate.
type ZoneEvent struct {
	Zone ZoneData
}

func (ZoneEvent) inbound() {}

// ZoneAdd announces a zone the caller has not seen before.
type ZoneAdd struct {
	Zone ZoneData
}

func (ZoneAdd) inbound() {}

// ZoneUpdate carries a change to a zone's attributes (name, type,
// partition) rather than just its status.
type ZoneUpdate struct {
	Zone ZoneData
}

func (ZoneUpdate) inbound() {}

// Arming reports a partition's arming state transition, optionally with
// the exit delay the panel is counting down.
type Arming struct {
	PartitionID int
	Status      string
	ExitDelay   *int
}

func (Arming) inbound() {}

// Alarm reports a partition entering alarm, with the alarm's cause.
type Alarm struct {
	PartitionID int
	AlarmType   string
}

func (Alarm) inbound() {}

// SecureArm reports a partition's secure-arm (no entry delay) flag.
type SecureArm struct {
	PartitionID int
	Value       bool
}

func (SecureArm) inbound() {}

// ErrorReport carries a panel-reported error, optionally scoped to a
// partition (e.g. a failed disarm attempt).
type ErrorReport struct {
	ErrorType   string
	Description string
	PartitionID *int
}

func (ErrorReport) inbound() {}

// Ack is the panel's acknowledgement of a command frame. It carries no
// data and requires no state change.
type Ack struct{}

func (Ack) inbound() {}

// Unrecognized wraps any frame whose tag combination Decode doesn't
// know. Apply treats it as a no-op; callers may log it for diagnosis.
type Unrecognized struct {
	Raw map[string]any
}

func (Unrecognized) inbound() {}

// Decode parses one line-delimited frame into an Inbound variant.
//
// The panel dialect tags a frame with one of several field names of
// varying specificity; Decode routes on the most specific one present,
// in precedence order event_type > event > info_type > action_type (the
// panel's "event" field is the de facto primary tag in every sample
// frame observed; "event_type" takes precedence on the rare frame that
// carries both). A frame that fails to parse as JSON is ErrProtocol; a
// frame that parses but matches no known tag is Unrecognized, not an
// error.
func Decode(raw []byte) (Inbound, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrProtocol, err)
	}

	tag, _ := primaryTag(m)
	switch tag {
	case "INFO":
		if infoType, _ := m["info_type"].(string); infoType == "SUMMARY" || infoType == "" {
			return decodeInfoSummary(m), nil
		}
		return Unrecognized{Raw: m}, nil
	case "ZONE_EVENT":
		return decodeZoneEvent(m), nil
	case "ZONE_ADD":
		return ZoneAdd{Zone: decodeZone(m["zone"])}, nil
	case "ZONE_UPDATE":
		return ZoneUpdate{Zone: decodeZone(m["zone"])}, nil
	case "ARMING":
		return decodeArming(m), nil
	case "ALARM":
		return Alarm{
			PartitionID: intField(m, "partition_id"),
			AlarmType:   stringField(m, "alarm_type"),
		}, nil
	case "SECURE_ARM":
		return SecureArm{
			PartitionID: intField(m, "partition_id"),
			Value:       boolField(m, "secure_arm"),
		}, nil
	case "ERROR":
		return decodeError(m), nil
	case "ACK":
		return Ack{}, nil
	default:
		return Unrecognized{Raw: m}, nil
	}
}

func primaryTag(m map[string]any) (string, string) {
	for _, field := range []string{"event_type", "event", "info_type", "action_type"} {
		if v, ok := m[field].(string); ok && v != "" {
			return v, field
		}
	}
	return "", ""
}

func decodeInfoSummary(m map[string]any) InfoSummary {
	out := InfoSummary{
		DeviceName:      stringField(m, "device_name"),
		SoftwareVersion: stringField(m, "software_version"),
		MAC:             stringField(m, "mac"),
	}
	rawPartitions, _ := m["partition_list"].([]any)
	for _, rp := range rawPartitions {
		pm, ok := rp.(map[string]any)
		if !ok {
			continue
		}
		pd := PartitionData{
			ID:        intField(pm, "partition_id"),
			Name:      stringField(pm, "name"),
			Status:    stringField(pm, "status"),
			SecureArm: boolField(pm, "secure_arm"),
		}
		rawZones, _ := pm["zone_list"].([]any)
		for _, rz := range rawZones {
			pd.Zones = append(pd.Zones, decodeZone(rz))
		}
		out.Partitions = append(out.Partitions, pd)
	}
	return out
}

func decodeZoneEvent(m map[string]any) Inbound {
	zone := decodeZone(m["zone"])
	switch stringField(m, "zone_event_type") {
	case "ZONE_ADD":
		return ZoneAdd{Zone: zone}
	case "ZONE_UPDATE":
		return ZoneUpdate{Zone: zone}
	default:
		return ZoneEvent{Zone: zone}
	}
}

func decodeZone(raw any) ZoneData {
	zm, _ := raw.(map[string]any)
	return ZoneData{
		ZoneID:      intField(zm, "zone_id"),
		Name:        stringField(zm, "name"),
		ZoneType:    stringField(zm, "zone_type"),
		PartitionID: intField(zm, "partition_id"),
		Status:      normalizeStatus(stringField(zm, "status")),
	}
}

func decodeArming(m map[string]any) Arming {
	a := Arming{
		PartitionID: intField(m, "partition_id"),
		Status:      stringField(m, "arming_type"),
	}
	if v, ok := m["exit_delay"]; ok {
		d := intField(map[string]any{"exit_delay": v}, "exit_delay")
		a.ExitDelay = &d
	}
	return a
}

func decodeError(m map[string]any) ErrorReport {
	e := ErrorReport{
		ErrorType:   normalizeErrorType(stringField(m, "error_type")),
		Description: stringField(m, "description"),
	}
	if v, ok := m["partition_id"]; ok {
		id := intField(map[string]any{"partition_id": v}, "partition_id")
		e.PartitionID = &id
	}
	return e
}

// normalizeStatus maps the panel's mixed-case status strings ("Open",
// "Closed", "Active") onto the bridge's canonical uppercase vocabulary,
// matching internal/model's SensorStatus constants so model.Apply can
// cast this string directly.
func normalizeStatus(raw string) string {
	switch raw {
	case "Open", "OPEN":
		return "OPEN"
	case "Closed", "CLOSED":
		return "CLOSED"
	case "Active", "ACTIVE":
		return "ACTIVE"
	case "Tamper", "TAMPER":
		return "TAMPER"
	case "Idle", "IDLE", "":
		return "IDLE"
	default:
		return raw
	}
}

// normalizeErrorType maps the panel's mixed-case error_type strings
// (e.g. "DisarmFailed") onto the bridge's canonical upper-snake
// vocabulary, matching internal/model's comparisons against
// ErrorReport.ErrorType (e.g. "DISARM_FAILED"). Unrecognized values pass
// through unchanged so a diagnostic error_type still reaches
// LastErrorType even if this bridge has no special handling for it.
func normalizeErrorType(raw string) string {
	switch raw {
	case "DisarmFailed", "DISARM_FAILED":
		return "DISARM_FAILED"
	default:
		return raw
	}
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func boolField(m map[string]any, key string) bool {
	if m == nil {
		return false
	}
	b, _ := m[key].(bool)
	return b
}

func intField(m map[string]any, key string) int {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		var n int
		_, _ = fmt.Sscanf(v, "%d", &n)
		return n
	default:
		return 0
	}
}
