package control

import (
	"github.com/qolsys/qolsys2mqtt/internal/codec"
)

// Submitter is the subset of panellink.Link the dispatcher needs: enough
// to hand it an already-encoded outbound frame.
type Submitter interface {
	Send(frame []byte)
}

// Dispatch validates cmd and, if it passes, encodes and hands the
// resulting frame to sub. Callers wanting the per-partition ordering
// guarantee should go through a Router rather than calling Dispatch
// directly from multiple goroutines.
//
// A command whose validation succeeds but whose frame sub.Send silently
// discards (PanelLink's send queue was full) surfaces only as an
// increment to the link's own Dropped counter; MQTT commands are
// fire-and-forget, so Dispatch never reports that back to the caller.
func (p *Plane) Dispatch(cmd Command, sub Submitter) error {
	action, err := p.Validate(cmd)
	if err != nil {
		return err
	}

	frame, err := codec.Encode(action, p.cfg.Panel.Token)
	if err != nil {
		return err
	}

	sub.Send(frame)
	return nil
}
