package mqttsurface

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/qolsys/qolsys2mqtt/internal/config"
	"github.com/qolsys/qolsys2mqtt/internal/log"
	"github.com/qolsys/qolsys2mqtt/internal/model"
	"github.com/qolsys/qolsys2mqtt/internal/mqtt"
	"github.com/qolsys/qolsys2mqtt/internal/util"
)

const (
	payloadAvailable    = "online"
	payloadNotAvailable = "offline"

	// rediscoverDebounce is how long Surface waits after Home Assistant's
	// birth message before republishing discovery, collapsing a burst of
	// HA restarts into one rediscovery pass.
	rediscoverDebounce = 5 * time.Second
)

// CommandHandler is invoked when a "set" message arrives on a
// partition's command topic. raw is the untouched MQTT payload; the
// caller (internal/control) is responsible for parsing and validating
// it.
type CommandHandler func(partitionID int, raw []byte)

// Surface projects model.Change notifications onto HA MQTT discovery,
// availability and state topics, and forwards inbound command messages
// to a CommandHandler. It decouples from model.Registry's critical
// section with a bounded queue: Observer never blocks on network I/O.
type Surface struct {
	transport    mqtt.Transport
	log          *log.Logger
	cfg          config.HAConfig
	retainState  bool
	uniqueID     string
	deviceName   string
	swVersion    string
	sessionToken func() string
	onRediscover func()
	onCommand    CommandHandler
	registry     *model.Registry

	queue chan model.Change

	mu              sync.Mutex
	publishedPart   map[int]bool
	publishedZone   map[int]bool
	partMeta        map[int]partitionMeta
	zoneMeta        map[int]zoneMeta
	rediscoverTimer *time.Timer
}

// partitionMeta and zoneMeta are the subset of a partition's/sensor's
// attributes that feed into its discovery config payload. Surface
// tracks the last-published value of each so it can tell an
// availability/state-only update (no discovery republish needed) apart
// from a change to discovery-relevant metadata (name, zone_type/class),
// which per spec must republish discovery before state.
type partitionMeta struct {
	name string
}

type zoneMeta struct {
	name  string
	class model.SensorClass
}

// New constructs a Surface. sessionToken is called fresh every time a
// command_template is (re)published, so a control.Plane.RotateToken
// mid-run is picked up by the next discovery publish without Surface
// needing to know that happened. onRediscover, if non-nil, is called
// once per debounced HA restart, before republishing every known
// entity's discovery from registry — wire it to control.Plane.RotateToken.
// retainState mirrors the configured MQTT_RETAIN flag: the State topic
// is documented as retained, QoS 1 (spec §4.4), so a fresh HA restart
// gets the panel's last known state without waiting on a live event.
func New(transport mqtt.Transport, logger *log.Logger, cfg config.HAConfig, retainState bool, registry *model.Registry, uniqueID, deviceName, swVersion string, sessionToken func() string, onRediscover func(), onCommand CommandHandler) *Surface {
	return &Surface{
		transport:     transport,
		log:           logger,
		cfg:           cfg,
		retainState:   retainState,
		registry:      registry,
		uniqueID:      uniqueID,
		deviceName:    deviceName,
		swVersion:     swVersion,
		onRediscover:  onRediscover,
		sessionToken:  sessionToken,
		onCommand:     onCommand,
		queue:         make(chan model.Change, 256),
		publishedPart: map[int]bool{},
		publishedZone: map[int]bool{},
		partMeta:      map[int]partitionMeta{},
		zoneMeta:      map[int]zoneMeta{},
	}
}

// Observer returns the model.Observer this Surface should be registered
// with. When the queue is full the incoming change is dropped with a
// warning; the next change for that entity republishes its latest
// snapshot.
func (s *Surface) Observer() model.Observer {
	return func(c model.Change) {
		select {
		case s.queue <- c:
		default:
			s.log.Warn("mqttsurface queue full, dropping change for partition=%v", partitionIDOf(c))
		}
	}
}

func partitionIDOf(c model.Change) int {
	if c.Partition != nil {
		return c.Partition.ID
	}
	return -1
}

// Run drains the change queue and publishes to the transport until stop
// is closed. It also subscribes to HA's birth/status topic to trigger
// debounced rediscovery after an HA restart.
func (s *Surface) Run(stop <-chan struct{}) error {
	if s.cfg.StatusTopic != "" {
		if err := s.transport.Subscribe(s.cfg.StatusTopic, s.handleHAStatus); err != nil {
			s.log.Warn("failed to subscribe to ha status topic: %v", err)
		}
	}

	for {
		select {
		case c := <-s.queue:
			s.handle(c)
		case <-stop:
			return nil
		}
	}
}

func (s *Surface) handleHAStatus(_ string, payload []byte) {
	if string(payload) != s.cfg.StatusOnlinePayload {
		return
	}
	s.mu.Lock()
	if s.rediscoverTimer != nil {
		s.rediscoverTimer.Stop()
	}
	s.rediscoverTimer = time.AfterFunc(rediscoverDebounce, s.rediscoverAll)
	s.mu.Unlock()
}

func (s *Surface) rediscoverAll() {
	if s.onRediscover != nil {
		s.onRediscover()
	}
	s.log.Info("home assistant restart detected, rotating session token and republishing discovery")
	s.republishAll()
}

// RediscoverAll republishes discovery, availability, and state for every
// entity the registry currently knows about, without rotating the
// session token. Wire this to the MQTT transport's reconnect callback:
// a broker that restarted without persistence may have lost every
// retained message this bridge published before the drop, and Home
// Assistant has no other way to learn they're gone.
func (s *Surface) RediscoverAll() {
	s.log.Info("mqtt transport reconnected, republishing discovery")
	s.republishAll()
}

func (s *Surface) republishAll() {
	s.mu.Lock()
	s.publishedPart = map[int]bool{}
	s.publishedZone = map[int]bool{}
	s.partMeta = map[int]partitionMeta{}
	s.zoneMeta = map[int]zoneMeta{}
	s.mu.Unlock()

	if s.registry == nil {
		return
	}
	for _, p := range s.registry.Partitions() {
		s.publishPartition(p)
	}
	for _, sn := range s.registry.Sensors() {
		s.publishSensor(sn)
	}
}

func (s *Surface) handle(c model.Change) {
	switch c.Kind {
	case model.PanelUpdated:
		s.mu.Lock()
		s.swVersion = c.Panel.SoftwareVersion
		s.mu.Unlock()
		s.publishDeviceAvailability(c.Panel.Available)
	case model.PartitionCreated, model.PartitionUpdated:
		if c.Partition != nil {
			s.publishPartition(*c.Partition)
		}
	case model.SensorCreated, model.SensorUpdated:
		if c.Sensor != nil {
			s.publishSensor(*c.Sensor)
		}
	case model.SensorRemoved:
		if c.Sensor != nil {
			s.unpublishSensor(*c.Sensor)
		}
	}
}

func (s *Surface) publishDeviceAvailability(available bool) {
	payload := payloadAvailable
	if !available {
		payload = payloadNotAvailable
	}
	topic := deviceAvailabilityTopic(s.cfg.DiscoveryPrefix, s.uniqueID)
	if err := s.transport.Publish(topic, []byte(payload), true); err != nil {
		s.log.Error("publish device availability: %v", err)
	}
}

func (s *Surface) entityID(name string, id int) string {
	if name == "" {
		return util.Slugify(fmt.Sprintf("entity-%d", id))
	}
	return util.Slugify(name)
}

func (s *Surface) publishPartition(p model.PartitionSnapshot) {
	entityID := s.entityID(p.Name, p.ID)
	prefix := s.cfg.DiscoveryPrefix

	meta := partitionMeta{name: p.Name}
	s.mu.Lock()
	firstTime := !s.publishedPart[p.ID]
	metaChanged := !firstTime && s.partMeta[p.ID] != meta
	s.publishedPart[p.ID] = true
	s.partMeta[p.ID] = meta
	s.mu.Unlock()

	if firstTime || metaChanged {
		code := ""
		if s.cfg.CheckUserCode {
			code = s.cfg.UserCode
		}
		cfgPayload := alarmPanelConfig{
			Name:                p.Name,
			UniqueID:            fmt.Sprintf("%s_partition_%d", s.uniqueID, p.ID),
			StateTopic:          stateTopic(prefix, componentAlarmPanel, s.uniqueID, entityID),
			CommandTopic:        commandTopic(prefix, componentAlarmPanel, s.uniqueID, entityID),
			AvailabilityTopic:   availabilityTopic(prefix, componentAlarmPanel, s.uniqueID, entityID),
			JSONAttributesTopic: attributesTopic(prefix, componentAlarmPanel, s.uniqueID, entityID),
			PayloadAvailable:    payloadAvailable,
			PayloadNotAvailable: payloadNotAvailable,
			CommandTemplate:     s.commandTemplate(),
			Code:                code,
			CodeArmRequired:     s.cfg.CodeArmRequired,
			CodeDisarmRequired:  s.cfg.CodeDisarmRequired,
			CodeTriggerRequired: s.cfg.CodeTriggerRequired,
			SupportedFeatures:   []string{"arm_home", "arm_away", "trigger"},
			Device:              s.device(),
		}
		s.publishJSON(configTopic(prefix, componentAlarmPanel, s.uniqueID, entityID), cfgPayload, true)
		_ = s.transport.Subscribe(commandTopic(prefix, componentAlarmPanel, s.uniqueID, entityID), func(_ string, raw []byte) {
			if s.onCommand != nil {
				s.onCommand(p.ID, raw)
			}
		})
	}

	s.publishTextAvailability(availabilityTopic(prefix, componentAlarmPanel, s.uniqueID, entityID), p.Available)
	_ = s.transport.Publish(stateTopic(prefix, componentAlarmPanel, s.uniqueID, entityID), []byte(partitionHAState(p.Status)), s.retainState)
	s.publishJSON(attributesTopic(prefix, componentAlarmPanel, s.uniqueID, entityID), partitionAttributesOf(p), s.retainState)
}

func (s *Surface) commandTemplate() string {
	return fmt.Sprintf(`{"action":"{{ action }}","code":"{{ code }}","session_token":"%s"}`, s.sessionToken())
}

func (s *Surface) publishSensor(sn model.SensorSnapshot) {
	entityID := s.entityID(sn.Name, sn.ID)
	prefix := s.cfg.DiscoveryPrefix

	meta := zoneMeta{name: sn.Name, class: sn.Class}
	s.mu.Lock()
	firstTime := !s.publishedZone[sn.ID]
	metaChanged := !firstTime && s.zoneMeta[sn.ID] != meta
	s.publishedZone[sn.ID] = true
	s.zoneMeta[sn.ID] = meta
	s.mu.Unlock()

	on, off, deviceClass := sensorPayloads(sn.Class)

	if firstTime || metaChanged {
		cfgPayload := binarySensorConfig{
			Name:                sn.Name,
			UniqueID:            fmt.Sprintf("%s_zone_%d", s.uniqueID, sn.ID),
			StateTopic:          stateTopic(prefix, componentBinarySensor, s.uniqueID, entityID),
			AvailabilityTopic:   availabilityTopic(prefix, componentBinarySensor, s.uniqueID, entityID),
			PayloadAvailable:    payloadAvailable,
			PayloadNotAvailable: payloadNotAvailable,
			PayloadOn:           on,
			PayloadOff:          off,
			DeviceClass:         deviceClass,
			Device:              s.device(),
		}
		s.publishJSON(configTopic(prefix, componentBinarySensor, s.uniqueID, entityID), cfgPayload, true)
	}

	s.publishTextAvailability(availabilityTopic(prefix, componentBinarySensor, s.uniqueID, entityID), sn.Available)
	_ = s.transport.Publish(stateTopic(prefix, componentBinarySensor, s.uniqueID, entityID), []byte(sensorHAState(sn.Status)), s.retainState)
}

func (s *Surface) unpublishSensor(sn model.SensorSnapshot) {
	entityID := s.entityID(sn.Name, sn.ID)
	prefix := s.cfg.DiscoveryPrefix
	// Empty retained payload clears a previously-published discovery
	// config, the documented way to remove an HA MQTT entity.
	_ = s.transport.Publish(configTopic(prefix, componentBinarySensor, s.uniqueID, entityID), []byte{}, true)
	s.publishTextAvailability(availabilityTopic(prefix, componentBinarySensor, s.uniqueID, entityID), false)

	s.mu.Lock()
	delete(s.publishedZone, sn.ID)
	delete(s.zoneMeta, sn.ID)
	s.mu.Unlock()
}

func (s *Surface) publishTextAvailability(topic string, available bool) {
	payload := payloadAvailable
	if !available {
		payload = payloadNotAvailable
	}
	if err := s.transport.Publish(topic, []byte(payload), true); err != nil {
		s.log.Error("publish availability to %s: %v", topic, err)
	}
}

func (s *Surface) publishJSON(topic string, v any, retain bool) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Error("marshal discovery payload for %s: %v", topic, err)
		return
	}
	if err := s.transport.Publish(topic, b, retain); err != nil {
		s.log.Error("publish discovery to %s: %v", topic, err)
	}
}

func (s *Surface) device() device {
	s.mu.Lock()
	sw := s.swVersion
	s.mu.Unlock()
	return device{
		Identifiers:  []string{s.uniqueID},
		Name:         s.deviceName,
		Manufacturer: "Qolsys",
		SWVersion:    sw,
	}
}
