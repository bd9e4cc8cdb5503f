package model

import (
	"sync"
	"time"
)

// ChangeKind classifies a Change delivered to an Observer.
type ChangeKind string

const (
	PanelUpdated     ChangeKind = "PANEL_UPDATED"
	PartitionCreated ChangeKind = "PARTITION_CREATED"
	PartitionUpdated ChangeKind = "PARTITION_UPDATED"
	SensorCreated    ChangeKind = "SENSOR_CREATED"
	SensorUpdated    ChangeKind = "SENSOR_UPDATED"
	SensorRemoved    ChangeKind = "SENSOR_REMOVED"
)

// Change is the immutable notification handed to every Observer.
// Partition is populated for partition and sensor changes, Sensor only
// for sensor changes; PanelUpdated populates neither.
type Change struct {
	Kind      ChangeKind
	Panel     PanelSnapshot
	Partition *PartitionSnapshot
	Sensor    *SensorSnapshot
}

// Observer is called synchronously, from inside Registry's single
// critical section, for every Change produced by Apply. It must not
// block or call back into the Registry.
type Observer func(Change)

// Registry is the mutex-guarded holder of a Panel and its Partitions and
// Sensors, and the fan-out point for Observers. It is the only mutable
// shared state in the bridge; everything downstream of it only ever
// sees snapshots.
type Registry struct {
	mu         sync.Mutex
	panel      Panel
	partitions map[int]*Partition
	observers  []Observer
}

// New constructs an empty Registry for the given panel identity.
func New(uniqueID, deviceName string) *Registry {
	return &Registry{
		panel: Panel{
			UniqueID:   uniqueID,
			DeviceName: deviceName,
		},
		partitions: map[int]*Partition{},
	}
}

// Observe registers an Observer. It takes the Registry's mutex, so it
// waits for an Apply in progress; Changes emitted before registration
// are not replayed to the new Observer.
func (r *Registry) Observe(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

func (r *Registry) notify(c Change) {
	for _, o := range r.observers {
		o(c)
	}
}

// Panel returns a snapshot of the panel's scalar attributes.
func (r *Registry) Panel() PanelSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.panel.snapshot()
}

// Partition returns a snapshot of a single partition, if known.
func (r *Registry) Partition(id int) (PartitionSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.partitions[id]
	if !ok {
		return PartitionSnapshot{}, false
	}
	return p.snapshot(), true
}

// Partitions returns a snapshot of every known partition, ordered by ID.
func (r *Registry) Partitions() []PartitionSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PartitionSnapshot, 0, len(r.partitions))
	for _, p := range sortedPartitions(r.partitions) {
		out = append(out, p.snapshot())
	}
	return out
}

// Sensors returns a snapshot of every known sensor across all
// partitions, ordered by partition then sensor ID.
func (r *Registry) Sensors() []SensorSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []SensorSnapshot
	for _, p := range sortedPartitions(r.partitions) {
		for _, s := range sortedSensors(p.Sensors) {
			out = append(out, s.snapshot())
		}
	}
	return out
}

func (r *Registry) partition(id int) *Partition {
	p, ok := r.partitions[id]
	if !ok {
		p = newPartition(id)
		r.partitions[id] = p
	}
	return p
}

func sortedPartitions(m map[int]*Partition) []*Partition {
	out := make([]*Partition, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].ID > out[j].ID; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func sortedSensors(m map[int]*Sensor) []*Sensor {
	out := make([]*Sensor, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].ID > out[j].ID; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func now() time.Time { return time.Now() }
