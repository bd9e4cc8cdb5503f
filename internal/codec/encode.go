package codec

import (
	"encoding/json"

	"github.com/google/uuid"
)

// ArmMode selects which arming state an ArmingAction requests.
type ArmMode string

const (
	ArmStay ArmMode = "ARM_STAY"
	ArmAway ArmMode = "ARM_AWAY"
)

// Outbound is the sealed set of commands the bridge can send to the
// panel. Encode accepts any of these.
type Outbound interface {
	outbound() string
}

type ArmingAction struct {
	PartitionID int
	Mode        ArmMode
	UserCode    string
	ExitDelay   *int
	Bypass      *bool
}

func (ArmingAction) outbound() string { return "ARMING" }

type DisarmAction struct {
	PartitionID int
	UserCode    string
}

func (DisarmAction) outbound() string { return "DISARM" }

type TriggerAction struct {
	PartitionID int
	AlarmType   string
}

func (TriggerAction) outbound() string { return "TRIGGER" }

type InfoRequest struct{}

func (InfoRequest) outbound() string { return "INFO" }

// wireOutbound is the canonical on-the-wire shape. Its field order is
// the frame's field order: encoding/json marshals struct fields in
// declaration order, so this struct IS the canonical field order
// (nonce, action, token, version, source, then the action's payload).
type wireOutbound struct {
	Nonce       string `json:"nonce"`
	Action      string `json:"action"`
	Token       string `json:"token"`
	Version     string `json:"version"`
	Source      string `json:"source"`
	PartitionID *int   `json:"partition_id,omitempty"`
	UserCode    string `json:"user_code,omitempty"`
	ArmType     string `json:"arming_type,omitempty"`
	ExitDelay   *int   `json:"exit_delay,omitempty"`
	Bypass      *bool  `json:"bypass,omitempty"`
	AlarmType   string `json:"alarm_type,omitempty"`
}

const wireVersion = "0"
const wireSource = "C4"

// Encode renders an Outbound as the canonical JSON frame sent to the
// panel, generating a fresh nonce for every call.
func Encode(action Outbound, token string) ([]byte, error) {
	w := toWire(action, token, newNonce())
	return json.Marshal(w)
}

func toWire(action Outbound, token, nonce string) wireOutbound {
	w := wireOutbound{
		Nonce:   nonce,
		Action:  action.outbound(),
		Token:   token,
		Version: wireVersion,
		Source:  wireSource,
	}
	switch a := action.(type) {
	case ArmingAction:
		w.PartitionID = &a.PartitionID
		w.UserCode = a.UserCode
		w.ArmType = string(a.Mode)
		w.ExitDelay = a.ExitDelay
		w.Bypass = a.Bypass
	case DisarmAction:
		w.PartitionID = &a.PartitionID
		w.UserCode = a.UserCode
	case TriggerAction:
		w.PartitionID = &a.PartitionID
		w.AlarmType = a.AlarmType
	case InfoRequest:
	}
	return w
}

// newNonce mints a fresh per-frame nonce. Grounded on the control
// plane's session-token generation (internal/control), which also uses
// google/uuid for an unguessable 128-bit value.
func newNonce() string {
	return uuid.NewString()
}

// Debug renders an Outbound the same way Encode does, except any
// user_code is masked to a fixed-width placeholder. Used for log lines;
// never for the wire.
func Debug(action Outbound, token string) string {
	w := toWire(action, token, "<nonce>")
	if w.UserCode != "" {
		w.UserCode = "****"
	}
	if w.Token != "" {
		w.Token = "****"
	}
	b, err := json.Marshal(w)
	if err != nil {
		return "<unencodable>"
	}
	return string(b)
}
