// Package panellink owns the TLS connection to the panel: dialing,
// the newline-delimited JSON frame protocol, keep-alive and dead-man
// timers, and reconnect backoff. It is the only package that touches a
// net.Conn.
//
// Grounded on the teacher's internal/texecom (Connect/Login/readLoop/
// keepalive/reconnect lifecycle shape); the teacher's binary CRC8
// framing is not reused, only its goroutine and state-machine shape —
// framing here is line-delimited JSON via internal/codec.
package panellink

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/qolsys/qolsys2mqtt/internal/codec"
	"github.com/qolsys/qolsys2mqtt/internal/config"
	"github.com/qolsys/qolsys2mqtt/internal/errs"
	"github.com/qolsys/qolsys2mqtt/internal/log"
)

// State is the connection lifecycle state, surfaced for diagnostics and
// tests; nothing outside this package branches on it.
type State string

const (
	StateIdle        State = "IDLE"
	StateDialing     State = "DIALING"
	StateHandshaking State = "HANDSHAKING"
	StateConnected   State = "CONNECTED"
	StateDraining    State = "DRAINING"
)

const (
	maxFrameSize   = 1 << 20 // 1 MiB
	keepAlive      = 240 * time.Second
	deadMan        = 360 * time.Second
	sendQueueDepth = 16

	backoffBase   = time.Second
	backoffFactor = 2
	backoffCap    = 60 * time.Second
	backoffJitter = 0.25
	stableAfter   = 30 * time.Second

	// degradedThreshold is the number of consecutive transient link
	// failures (dial/handshake/read/write) tolerated; the next one flips
	// the logger's degraded-health gauge.
	degradedThreshold = 5
)

// Link manages one panel connection at a time, reconnecting with
// backoff on every transient failure until its context is canceled.
type Link struct {
	cfg config.PanelConfig
	log *log.Logger

	mu    sync.Mutex
	state State

	inbound chan codec.Inbound
	send    chan []byte
	dropped int64

	consecutiveFailures int
}

// New constructs a Link. Call Run to start connecting; read Inbound()
// for decoded frames.
func New(cfg config.PanelConfig, logger *log.Logger) *Link {
	return &Link{
		cfg:     cfg,
		log:     logger,
		state:   StateIdle,
		inbound: make(chan codec.Inbound, 64),
		send:    make(chan []byte, sendQueueDepth),
	}
}

// Inbound is the stream of decoded panel messages. Closed when Run
// returns.
func (l *Link) Inbound() <-chan codec.Inbound {
	return l.inbound
}

// State reports the current connection state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Link) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Send enqueues a raw outbound frame. If the queue is full, the oldest
// queued frame is dropped to make room — a stuck link must not back up
// command senders indefinitely.
func (l *Link) Send(frame []byte) {
	for {
		select {
		case l.send <- frame:
			return
		default:
		}
		select {
		case <-l.send:
			l.mu.Lock()
			l.dropped++
			l.mu.Unlock()
		default:
			return
		}
	}
}

// Dropped returns the number of outbound frames discarded for queue
// overflow since startup.
func (l *Link) Dropped() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Run dials, maintains, and redials the panel connection until ctx is
// canceled, at which point it closes the connection and returns nil.
// Frames still queued by Send are not flushed before the close.
func (l *Link) Run(ctx context.Context) error {
	defer close(l.inbound)

	attempt := 0
	for {
		if ctx.Err() != nil {
			l.setState(StateIdle)
			return nil
		}

		connectedAt := time.Now()
		err := l.runOnce(ctx)
		if ctx.Err() != nil {
			l.setState(StateIdle)
			return nil
		}

		stable := time.Since(connectedAt) >= stableAfter
		if stable {
			attempt = 0
		} else {
			attempt++
		}
		l.noteOutcome(stable, err)

		wait := backoff(attempt)
		l.log.Info("reconnecting to panel in %s", wait)

		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			l.setState(StateIdle)
			return nil
		}
	}
}

// noteOutcome updates the consecutive-failure count and the logger's
// degraded gauge after a dropped connection. A connection that stayed
// up past stableAfter resets the count; otherwise a transient link
// error (dial/handshake/read/write) that pushes the count past
// degradedThreshold is logged at ERROR and flips the gauge on.
func (l *Link) noteOutcome(stable bool, err error) {
	if stable {
		l.consecutiveFailures = 0
		l.log.Degraded(false)
		l.log.Warn("panel link dropped: %v", err)
		return
	}
	if !errors.Is(err, errs.ErrTransientLink) {
		l.log.Warn("panel link dropped: %v", err)
		return
	}
	l.consecutiveFailures++
	if l.consecutiveFailures > degradedThreshold {
		l.log.Degraded(true)
		l.log.Error("panel link failed %d consecutive times: %v", l.consecutiveFailures, err)
		return
	}
	l.log.Warn("panel link dropped: %v", err)
}

func (l *Link) runOnce(ctx context.Context) error {
	l.setState(StateDialing)

	dialer := &net.Dialer{Timeout: 15 * time.Second}
	rawConn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", l.cfg.Host, l.cfg.Port))
	if err != nil {
		return fmt.Errorf("%w: dial: %v", errs.ErrTransientLink, err)
	}

	tlsConn := tls.Client(rawConn, &tls.Config{InsecureSkipVerify: !l.cfg.VerifyTLS})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return fmt.Errorf("%w: tls handshake: %v", errs.ErrTransientLink, err)
	}
	defer tlsConn.Close()

	l.setState(StateHandshaking)
	l.setState(StateConnected)
	l.log.Info("panel link connected to %s:%d", l.cfg.Host, l.cfg.Port)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go l.readLoop(runCtx, tlsConn, errCh)
	go l.writeLoop(runCtx, tlsConn, errCh)

	// Every fresh session, first connect or reconnect alike, starts by
	// asking the panel to refresh state: a reconnect after a drop must
	// not wait on the keep-alive interval to learn what changed while
	// disconnected.
	if frame, err := codec.Encode(codec.InfoRequest{}, l.cfg.Token); err == nil {
		l.Send(frame)
	}

	select {
	case err := <-errCh:
		l.setState(StateDraining)
		return err
	case <-ctx.Done():
		l.setState(StateDraining)
		return nil
	}
}

func (l *Link) readLoop(ctx context.Context, conn net.Conn, errCh chan<- error) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxFrameSize)
	scanner.Split(scanLinesCR)

	deadline := time.NewTimer(deadMan)
	defer deadline.Stop()

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		for scanner.Scan() {
			buf := make([]byte, len(scanner.Bytes()))
			copy(buf, scanner.Bytes())
			lines <- buf
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			errCh <- fmt.Errorf("%w: no data for %s", errs.ErrTransientLink, deadMan)
			return
		case err := <-scanErr:
			switch {
			case err == nil:
				err = fmt.Errorf("%w: connection closed by panel", errs.ErrTransientLink)
			case errors.Is(err, bufio.ErrTooLong):
				err = fmt.Errorf("%w: frame exceeded %d bytes", errs.ErrProtocol, maxFrameSize)
			default:
				err = fmt.Errorf("%w: read: %v", errs.ErrTransientLink, err)
			}
			errCh <- err
			return
		case line := <-lines:
			deadline.Reset(deadMan)
			if len(line) == 0 {
				continue
			}
			msg, err := codec.Decode(line)
			if err != nil {
				l.log.Warn("discarding unparseable frame: %v", err)
				continue
			}
			select {
			case l.inbound <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (l *Link) writeLoop(ctx context.Context, conn net.Conn, errCh chan<- error) {
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	write := func(frame []byte) bool {
		frame = append(frame, '\n')
		if _, err := conn.Write(frame); err != nil {
			errCh <- fmt.Errorf("%w: write: %v", errs.ErrTransientLink, err)
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-l.send:
			ticker.Reset(keepAlive)
			if !write(frame) {
				return
			}
		case <-ticker.C:
			keepAliveFrame, err := codec.Encode(codec.InfoRequest{}, l.cfg.Token)
			if err != nil {
				continue
			}
			if !write(keepAliveFrame) {
				return
			}
		}
	}
}

// backoff computes the delay before reconnect attempt n (1-indexed),
// exponential with base backoffBase and factor backoffFactor, capped at
// backoffCap, with +/-25% jitter.
func backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(backoffBase)
	for i := 1; i < attempt; i++ {
		d *= backoffFactor
		if d > float64(backoffCap) {
			d = float64(backoffCap)
			break
		}
	}
	jitter := 1 + (rand.Float64()*2-1)*backoffJitter
	d *= jitter
	if d > float64(backoffCap) {
		d = float64(backoffCap)
	}
	return time.Duration(d)
}

// scanLinesCR splits the panel stream into frames via dropCRScan, which
// drops a \r before the \n the way some panel firmware emits CRLF.
func scanLinesCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	advance, token, err = dropCRScan(data, atEOF)
	return
}
