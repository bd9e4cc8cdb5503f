// Package control is the ControlPlane: it admits only validated
// commands arriving from MQTT onto PanelLink. It owns session-token
// generation and the user-code decision table, and never touches MQTT
// or panel I/O directly — internal/mqttsurface feeds it raw command
// payloads, internal/codec turns its Action results into wire frames.
//
// Grounded on the original gateway's mqtt_control_callback (session
// token comparison, control.check()/control.action()); the original's
// per-command-kind Control subclasses collapse here into one Validate
// switch, since Go has no class hierarchy to hang them on (see §9).
package control

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/qolsys/qolsys2mqtt/internal/codec"
	"github.com/qolsys/qolsys2mqtt/internal/config"
	"github.com/qolsys/qolsys2mqtt/internal/errs"
)

// Kind is the command verb Home Assistant sent.
type Kind string

const (
	KindArmStay Kind = "ARM_STAY"
	KindArmAway Kind = "ARM_AWAY"
	KindDisarm  Kind = "DISARM"
	KindTrigger Kind = "TRIGGER"
)

// Command is a parsed, not-yet-validated MQTT command.
type Command struct {
	PartitionID  int
	Kind         Kind
	Code         string
	SessionToken string
	AlarmType    string // only meaningful for KindTrigger; optional override
	ExitDelay    *int   // only meaningful for arm kinds; optional override
	Bypass       *bool  // only meaningful for arm kinds; optional override
}

// wireCommand is the JSON shape published to a partition's command
// topic, matching the command_template baked into discovery by
// internal/mqttsurface.
type wireCommand struct {
	Action       string `json:"action"`
	Code         string `json:"code"`
	SessionToken string `json:"session_token"`
	AlarmType    string `json:"alarm_type,omitempty"`
	ExitDelay    *int   `json:"exit_delay,omitempty"`
	Bypass       *bool  `json:"bypass,omitempty"`
}

// ParseCommand decodes a raw MQTT payload into a Command for the given
// partition (the partition id comes from the topic, not the payload).
func ParseCommand(partitionID int, raw []byte) (Command, error) {
	var w wireCommand
	if err := json.Unmarshal(raw, &w); err != nil {
		return Command{}, fmt.Errorf("%w: %v", errs.ErrProtocol, err)
	}
	return Command{
		PartitionID:  partitionID,
		Kind:         Kind(w.Action),
		Code:         w.Code,
		SessionToken: w.SessionToken,
		AlarmType:    w.AlarmType,
		ExitDelay:    w.ExitDelay,
		Bypass:       w.Bypass,
	}, nil
}

// Plane is the ControlPlane. One instance per process.
type Plane struct {
	cfg config.Config

	mu           sync.Mutex
	sessionToken string
	rejected     int64
}

// New generates a fresh 128-bit session token and returns a ready
// Plane.
func New(cfg config.Config) *Plane {
	return &Plane{
		cfg:          cfg,
		sessionToken: uuid.New().String(),
	}
}

// SessionToken returns the token HA must echo back in every command.
func (p *Plane) SessionToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionToken
}

// RotateToken generates a new session token, invalidating the old one.
// Called on a recovered config change or HA-restart rediscovery.
func (p *Plane) RotateToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionToken = uuid.New().String()
	return p.sessionToken
}

// Rejected returns the count of commands rejected by validation
// (bad session token, bad code, bad code format).
func (p *Plane) Rejected() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rejected
}

func (p *Plane) reject() {
	p.mu.Lock()
	p.rejected++
	p.mu.Unlock()
}

// Validate checks a Command's session token and user code, and if it
// passes, produces the codec.Outbound action to submit to PanelLink.
func (p *Plane) Validate(cmd Command) (codec.Outbound, error) {
	if cmd.SessionToken != p.SessionToken() {
		p.reject()
		return nil, fmt.Errorf("%w", errs.ErrBadSessionToken)
	}

	code, err := p.resolveCode(cmd)
	if err != nil {
		p.reject()
		return nil, err
	}

	switch cmd.Kind {
	case KindArmStay, KindArmAway:
		return p.armAction(cmd, code), nil
	case KindDisarm:
		return codec.DisarmAction{PartitionID: cmd.PartitionID, UserCode: code}, nil
	case KindTrigger:
		return codec.TriggerAction{PartitionID: cmd.PartitionID, AlarmType: p.resolveAlarmType(cmd)}, nil
	default:
		p.reject()
		return nil, fmt.Errorf("%w: unknown command kind %q", errs.ErrProtocol, cmd.Kind)
	}
}

// resolveCode implements the §4.5 user-code decision table for the
// command kind K carried by cmd.
func (p *Plane) resolveCode(cmd Command) (string, error) {
	required := p.codeRequired(cmd.Kind)
	checkAgainstHA := p.cfg.HA.CheckUserCode

	switch {
	case !required:
		// Case 1 (and the unlisted !required && checkAgainstHA
		// combination, which behaves identically: nothing to check).
		return p.panelFallbackCode(), nil
	case required && checkAgainstHA:
		// Case 2: compare against ha_user_code, falling back to
		// panel_user_code, on mismatch reject with BadCode.
		want := p.cfg.HA.UserCode
		if want == "" {
			want = p.cfg.Panel.UserCode
		}
		if err := validateCodeFormat(cmd.Code); err != nil {
			return "", err
		}
		if want != "" && cmd.Code != want {
			return "", fmt.Errorf("%w", errs.ErrBadCode)
		}
		return cmd.Code, nil
	default:
		// Case 3: required && !checkAgainstHA — forward verbatim, the
		// panel is the one that validates it.
		if err := validateCodeFormat(cmd.Code); err != nil {
			return "", err
		}
		return cmd.Code, nil
	}
}

func (p *Plane) panelFallbackCode() string {
	return p.cfg.Panel.UserCode
}

func (p *Plane) codeRequired(k Kind) bool {
	switch k {
	case KindArmStay, KindArmAway:
		return p.cfg.HA.CodeArmRequired
	case KindDisarm:
		return p.cfg.HA.CodeDisarmRequired
	case KindTrigger:
		return p.cfg.HA.CodeTriggerRequired
	default:
		return false
	}
}

func validateCodeFormat(code string) error {
	if code == "" {
		return nil
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w", errs.ErrBadCodeFormat)
		}
	}
	if len(code) != 4 && len(code) != 6 {
		return fmt.Errorf("%w", errs.ErrBadCodeFormat)
	}
	return nil
}

func (p *Plane) armAction(cmd Command, code string) codec.ArmingAction {
	mode := codec.ArmStay
	if cmd.Kind == KindArmAway {
		mode = codec.ArmAway
	}

	a := codec.ArmingAction{PartitionID: cmd.PartitionID, Mode: mode, UserCode: code}

	exitDelay := p.defaultExitDelay(mode)
	bypass := p.defaultBypass(mode)
	if cmd.ExitDelay != nil {
		exitDelay = *cmd.ExitDelay
	}
	if cmd.Bypass != nil {
		bypass = *cmd.Bypass
	}
	a.ExitDelay = &exitDelay
	a.Bypass = &bypass
	return a
}

func (p *Plane) defaultExitDelay(mode codec.ArmMode) int {
	if mode == codec.ArmAway {
		return p.cfg.Arming.AwayExitDelay
	}
	return p.cfg.Arming.StayExitDelay
}

func (p *Plane) defaultBypass(mode codec.ArmMode) bool {
	if mode == codec.ArmAway {
		return p.cfg.Arming.AwayBypass
	}
	return p.cfg.Arming.StayBypass
}

// resolveAlarmType maps a TRIGGER command's optional explicit alarm
// type, or falls back to the configured default. codec.TriggerAction's
// AlarmType must be one of the wire vocabulary {POLICE, FIRE,
// AUXILIARY}; config.TriggerCommand is a distinct four-value enum
// (it also has the bare TRIGGER value), so QOLSYS_TRIGGER_DEFAULT_COMMAND
// is translated here rather than forwarded verbatim. Bare TRIGGER (no
// panel-specific alarm sub-type configured) resolves to AUXILIARY, the
// generic panic type.
func (p *Plane) resolveAlarmType(cmd Command) string {
	switch cmd.AlarmType {
	case "POLICE", "FIRE", "AUXILIARY":
		return cmd.AlarmType
	}
	switch p.cfg.Trigger.DefaultCommand {
	case config.TriggerFire:
		return "FIRE"
	case config.TriggerPolice:
		return "POLICE"
	default:
		return "AUXILIARY"
	}
}
