// Package model holds the bridge's authoritative domain state: a Panel
// containing Partitions containing Sensors. It is mutated exclusively by
// the goroutine that consumes PanelLink's inbound stream (see Apply), and
// observed by everyone else through immutable snapshots handed to
// registered Observers from inside that single critical section.
package model

import "time"

// PartitionStatus mirrors the panel's arming state machine for a
// partition.
type PartitionStatus string

const (
	StatusDisarm     PartitionStatus = "DISARM"
	StatusArmStay    PartitionStatus = "ARM_STAY"
	StatusArmAway    PartitionStatus = "ARM_AWAY"
	StatusEntryDelay PartitionStatus = "ENTRY_DELAY"
	StatusExitDelay  PartitionStatus = "EXIT_DELAY"
	StatusAlarm      PartitionStatus = "ALARM"
)

// AlarmType identifies what kind of alarm a partition is in.
type AlarmType string

const (
	AlarmPolice    AlarmType = "POLICE"
	AlarmFire      AlarmType = "FIRE"
	AlarmAuxiliary AlarmType = "AUXILIARY"
	AlarmAuto      AlarmType = "AUTO"
)

// SensorStatus is the normalized status of a zone/sensor.
type SensorStatus string

const (
	SensorOpen   SensorStatus = "OPEN"
	SensorClosed SensorStatus = "CLOSED"
	SensorActive SensorStatus = "ACTIVE"
	SensorIdle   SensorStatus = "IDLE"
	SensorTamper SensorStatus = "TAMPER"
)

// SensorClass is the derived, HA-device-class-relevant category of a
// sensor, inferred from the panel's zone_type string.
type SensorClass string

const (
	ClassDoorWindow SensorClass = "DoorWindow"
	ClassMotion     SensorClass = "Motion"
	ClassGlassBreak SensorClass = "GlassBreak"
	ClassSmoke      SensorClass = "Smoke"
	ClassCO         SensorClass = "CO"
	ClassWater      SensorClass = "Water"
	ClassHeat       SensorClass = "Heat"
	ClassTilt       SensorClass = "Tilt"
	ClassFreeze     SensorClass = "Freeze"
	ClassPanel      SensorClass = "Panel"
	ClassKeypad     SensorClass = "Keypad"
	ClassSiren      SensorClass = "Siren"
	ClassAuxiliary  SensorClass = "Auxiliary"
	ClassTranslator SensorClass = "Translator"
	ClassBluetooth  SensorClass = "BluetoothSensor"
	ClassGeneric    SensorClass = "Generic"
)

// zoneTypeClass maps the panel's raw zone_type string onto a SensorClass.
// Grounded on the original gateway's per-sensor-subclass-to-device-class
// table (qolsys/sensors.py / mqtt/updater.py), collapsed into one table
// since Go has no subclass dispatch to hang the mapping on.
var zoneTypeClass = map[string]SensorClass{
	"DoorWindow":      ClassDoorWindow,
	"Motion":          ClassMotion,
	"GlassBreak":      ClassGlassBreak,
	"Smoke":           ClassSmoke,
	"CO":              ClassCO,
	"Water":           ClassWater,
	"Heat":            ClassHeat,
	"Tilt":            ClassTilt,
	"Freeze":          ClassFreeze,
	"Panel":           ClassPanel,
	"Keypad":          ClassKeypad,
	"Siren":           ClassSiren,
	"Auxiliary":       ClassAuxiliary,
	"Translator":      ClassTranslator,
	"BluetoothSensor": ClassBluetooth,
}

// ClassFor derives a SensorClass from a panel zone_type string, defaulting
// to ClassGeneric for anything unrecognized rather than failing.
func ClassFor(zoneType string) SensorClass {
	if c, ok := zoneTypeClass[zoneType]; ok {
		return c
	}
	return ClassGeneric
}

// Sensor is a single zone on the panel.
type Sensor struct {
	ID          int
	PartitionID int
	Name        string
	ZoneType    string
	Class       SensorClass
	Status      SensorStatus
	BatteryLow  bool
	Tampered    bool
	LastSeen    *time.Time
	Available   bool
}

func (s Sensor) snapshot() SensorSnapshot {
	return SensorSnapshot(s)
}

// SensorSnapshot is an immutable copy of a Sensor handed to observers.
type SensorSnapshot Sensor

// Partition is a logical arming zone of the panel.
type Partition struct {
	ID        int
	Name      string
	Status    PartitionStatus
	SecureArm bool
	AlarmType AlarmType
	Available bool

	LastErrorType        string
	LastErrorDescription string
	LastErrorAt          *time.Time
	DisarmFailed         bool

	Sensors map[int]*Sensor
}

func newPartition(id int) *Partition {
	return &Partition{ID: id, Status: StatusDisarm, Available: true, Sensors: map[int]*Sensor{}}
}

func (p *Partition) snapshot() PartitionSnapshot {
	return PartitionSnapshot{
		ID:                   p.ID,
		Name:                 p.Name,
		Status:               p.Status,
		SecureArm:            p.SecureArm,
		AlarmType:            p.AlarmType,
		Available:            p.Available,
		LastErrorType:        p.LastErrorType,
		LastErrorDescription: p.LastErrorDescription,
		LastErrorAt:          p.LastErrorAt,
		DisarmFailed:         p.DisarmFailed,
	}
}

// PartitionSnapshot is an immutable copy of a Partition, without its
// sensor map (sensors are notified individually).
type PartitionSnapshot struct {
	ID        int
	Name      string
	Status    PartitionStatus
	SecureArm bool
	AlarmType AlarmType
	Available bool

	LastErrorType        string
	LastErrorDescription string
	LastErrorAt          *time.Time
	DisarmFailed         bool
}

// PanelError is the most recent panel-reported error not tied to a
// specific partition.
type PanelError struct {
	ErrorType   string
	Description string
	At          time.Time
}

// Panel is the single top-level entity owned by this process.
type Panel struct {
	UniqueID        string
	DeviceName      string
	MAC             string
	SoftwareVersion string
	SessionToken    string
	LastError       *PanelError
	Available       bool
}

func (p Panel) snapshot() PanelSnapshot {
	return PanelSnapshot(p)
}

// PanelSnapshot is an immutable copy of the Panel's scalar attributes.
type PanelSnapshot Panel
