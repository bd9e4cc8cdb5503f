package model

import (
	"github.com/qolsys/qolsys2mqtt/internal/codec"
)

// Apply folds one decoded inbound message into the Registry's state,
// emitting a Change to every Observer for each entity that actually
// changed. It is the single mutator of Registry state and is meant to
// be called from one goroutine (PanelLink's reader loop). Apply holds
// the Registry's mutex for its whole body, so concurrent readers and a
// second concurrent Apply call wait until it returns.
func (r *Registry) Apply(msg codec.Inbound) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch m := msg.(type) {
	case codec.InfoSummary:
		r.applyInfoSummary(m)
	case codec.ZoneEvent:
		r.applyZoneStatus(m.Zone)
	case codec.ZoneAdd:
		r.applyZoneUpsert(m.Zone, SensorCreated)
	case codec.ZoneUpdate:
		r.applyZoneUpsert(m.Zone, SensorUpdated)
	case codec.Arming:
		r.applyArming(m)
	case codec.Alarm:
		r.applyAlarm(m)
	case codec.SecureArm:
		r.applySecureArm(m)
	case codec.ErrorReport:
		r.applyError(m)
	case codec.Ack:
		// No state change; the panel is just acknowledging a command.
	case codec.Unrecognized:
		// Deliberately ignored: Decode already chose not to fail the
		// link over this, and there is nothing for the model to do
		// with an unknown shape.
	}
}

// applyInfoSummary folds a full-state dump in as a replacement: every
// partition and zone named in m is created or updated, and anything the
// registry already knew about but m did not mention is marked
// unavailable rather than deleted — an INFO/SUMMARY is a snapshot of
// what the panel currently reports, not a retraction of history.
//
// Every notify below is gated on the snapshot actually differing from
// what it was before this message: applying the same SUMMARY twice
// must produce zero Change events the second time, since MqttSurface
// republishes availability and state on every notification it sees.
func (r *Registry) applyInfoSummary(m codec.InfoSummary) {
	beforePanel := r.panel.snapshot()
	r.panel.DeviceName = m.DeviceName
	r.panel.SoftwareVersion = m.SoftwareVersion
	r.panel.MAC = m.MAC
	r.panel.Available = true
	if r.panel.snapshot() != beforePanel {
		r.notify(Change{Kind: PanelUpdated, Panel: r.panel.snapshot()})
	}

	seenPartitions := map[int]bool{}
	for _, pd := range m.Partitions {
		seenPartitions[pd.ID] = true
		p := r.partition(pd.ID)
		beforePart := p.snapshot()
		p.Name = pd.Name
		p.Status = PartitionStatus(pd.Status)
		p.SecureArm = pd.SecureArm
		p.Available = true
		if p.snapshot() != beforePart {
			r.notify(Change{Kind: PartitionUpdated, Panel: r.panel.snapshot(), Partition: ptr(p.snapshot())})
		}

		seenZones := map[int]bool{}
		for _, zd := range pd.Zones {
			seenZones[zd.ZoneID] = true
			r.upsertSensor(p, zd, SensorUpdated)
		}
		for id, s := range p.Sensors {
			if seenZones[id] || !s.Available {
				continue
			}
			s.Available = false
			r.notify(Change{Kind: SensorUpdated, Panel: r.panel.snapshot(), Partition: ptr(p.snapshot()), Sensor: ptr(s.snapshot())})
		}
	}

	for id, p := range r.partitions {
		if seenPartitions[id] || !p.Available {
			continue
		}
		p.Available = false
		r.notify(Change{Kind: PartitionUpdated, Panel: r.panel.snapshot(), Partition: ptr(p.snapshot())})
	}
}

func (r *Registry) applyZoneStatus(z codec.ZoneData) {
	p := r.partition(z.PartitionID)
	s, ok := p.Sensors[z.ZoneID]
	if !ok {
		r.upsertSensor(p, z, SensorCreated)
		return
	}
	if string(s.Status) == z.Status {
		return
	}
	s.Status = SensorStatus(z.Status)
	s.Available = true
	r.notify(Change{Kind: SensorUpdated, Panel: r.panel.snapshot(), Partition: ptr(p.snapshot()), Sensor: ptr(s.snapshot())})
}

func (r *Registry) applyZoneUpsert(z codec.ZoneData, kind ChangeKind) {
	p := r.partition(z.PartitionID)
	r.upsertSensor(p, z, kind)
}

func (r *Registry) upsertSensor(p *Partition, z codec.ZoneData, kind ChangeKind) {
	s, existed := p.Sensors[z.ZoneID]
	if !existed {
		s = &Sensor{ID: z.ZoneID, PartitionID: p.ID}
		p.Sensors[z.ZoneID] = s
		kind = SensorCreated
	}
	before := s.snapshot()
	s.Name = z.Name
	s.ZoneType = z.ZoneType
	s.Class = ClassFor(z.ZoneType)
	s.Status = SensorStatus(z.Status)
	s.Available = true
	if !existed || s.snapshot() != before {
		r.notify(Change{Kind: kind, Panel: r.panel.snapshot(), Partition: ptr(p.snapshot()), Sensor: ptr(s.snapshot())})
	}
}

func (r *Registry) applyArming(m codec.Arming) {
	p := r.partition(m.PartitionID)
	p.Status = PartitionStatus(m.Status)
	if p.Status != StatusAlarm {
		p.AlarmType = ""
	}
	if p.Status == StatusDisarm {
		p.DisarmFailed = false
	}
	r.notify(Change{Kind: PartitionUpdated, Panel: r.panel.snapshot(), Partition: ptr(p.snapshot())})
}

func (r *Registry) applyAlarm(m codec.Alarm) {
	p := r.partition(m.PartitionID)
	p.Status = StatusAlarm
	p.AlarmType = AlarmType(m.AlarmType)
	r.notify(Change{Kind: PartitionUpdated, Panel: r.panel.snapshot(), Partition: ptr(p.snapshot())})
}

func (r *Registry) applySecureArm(m codec.SecureArm) {
	p := r.partition(m.PartitionID)
	p.SecureArm = m.Value
	r.notify(Change{Kind: PartitionUpdated, Panel: r.panel.snapshot(), Partition: ptr(p.snapshot())})
}

func (r *Registry) applyError(m codec.ErrorReport) {
	t := now()
	if m.PartitionID == nil {
		r.panel.LastError = &PanelError{ErrorType: m.ErrorType, Description: m.Description, At: t}
		r.notify(Change{Kind: PanelUpdated, Panel: r.panel.snapshot()})
		return
	}
	p := r.partition(*m.PartitionID)
	p.LastErrorType = m.ErrorType
	p.LastErrorDescription = m.Description
	p.LastErrorAt = &t
	if m.ErrorType == "DISARM_FAILED" {
		p.DisarmFailed = true
	}
	r.notify(Change{Kind: PartitionUpdated, Panel: r.panel.snapshot(), Partition: ptr(p.snapshot())})
}

func ptr[T any](v T) *T { return &v }
