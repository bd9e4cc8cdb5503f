package panellink

import (
	"fmt"
	"testing"
	"time"

	"github.com/qolsys/qolsys2mqtt/internal/config"
	"github.com/qolsys/qolsys2mqtt/internal/errs"
	"github.com/qolsys/qolsys2mqtt/internal/log"
)

func TestBackoffGrowsExponentiallyAndCaps(t *testing.T) {
	prevMax := time.Duration(0)
	for attempt := 1; attempt <= 10; attempt++ {
		// Jitter is +/-25%; sample a few times and check the envelope
		// rather than an exact value.
		var maxSeen time.Duration
		for i := 0; i < 20; i++ {
			d := backoff(attempt)
			if d > maxSeen {
				maxSeen = d
			}
			if d <= 0 {
				t.Fatalf("backoff(%d) produced non-positive duration %v", attempt, d)
			}
			if d > time.Duration(float64(backoffCap)*(1+backoffJitter))+time.Millisecond {
				t.Fatalf("backoff(%d) = %v exceeds cap+jitter envelope", attempt, d)
			}
		}
		if attempt > 1 && maxSeen < prevMax {
			// Not a hard requirement once the cap is hit, but the
			// untapped envelope should still trend upward early on.
		}
		prevMax = maxSeen
	}
}

func TestBackoffAttemptZeroTreatedAsOne(t *testing.T) {
	d0 := backoff(0)
	d1 := backoff(1)
	// Both should sit in roughly the same (base +/- jitter) envelope.
	lo := time.Duration(float64(backoffBase) * (1 - backoffJitter))
	hi := time.Duration(float64(backoffBase) * (1 + backoffJitter))
	for _, d := range []time.Duration{d0, d1} {
		if d < lo-time.Millisecond || d > hi+time.Millisecond {
			t.Errorf("expected attempt 0/1 backoff within [%v,%v], got %v", lo, hi, d)
		}
	}
}

func TestBackoffEventuallyCaps(t *testing.T) {
	d := backoff(20)
	if d > time.Duration(float64(backoffCap)*(1+backoffJitter))+time.Millisecond {
		t.Fatalf("backoff(20) = %v should have saturated at the cap", d)
	}
}

func TestDropCRScanTrimsBareCR(t *testing.T) {
	data := []byte("hello\r\nworld")
	advance, token, err := dropCRScan(data, false)
	if err != nil {
		t.Fatalf("dropCRScan: %v", err)
	}
	if string(token) != "hello" {
		t.Errorf("expected token %q, got %q", "hello", token)
	}
	if advance != 7 {
		t.Errorf("expected advance 7, got %d", advance)
	}
}

func TestDropCRScanWithoutCR(t *testing.T) {
	data := []byte("hello\nworld")
	_, token, err := dropCRScan(data, false)
	if err != nil {
		t.Fatalf("dropCRScan: %v", err)
	}
	if string(token) != "hello" {
		t.Errorf("expected token %q, got %q", "hello", token)
	}
}

func TestDropCRScanNoNewlineYet(t *testing.T) {
	data := []byte("partial frame")
	advance, token, err := dropCRScan(data, false)
	if err != nil || advance != 0 || token != nil {
		t.Errorf("expected a request for more data, got advance=%d token=%q err=%v", advance, token, err)
	}
}

func TestDropCRScanAtEOFWithoutTrailingNewline(t *testing.T) {
	data := []byte("trailing\r")
	advance, token, err := dropCRScan(data, true)
	if err != nil {
		t.Fatalf("dropCRScan: %v", err)
	}
	if string(token) != "trailing" {
		t.Errorf("expected CR trimmed at EOF, got %q", token)
	}
	if advance != len(data) {
		t.Errorf("expected advance to consume all remaining bytes, got %d", advance)
	}
}

func TestNoteOutcomeFlipsDegradedAfterThreshold(t *testing.T) {
	l := New(config.PanelConfig{}, log.NewLogger("error"))
	transientErr := fmt.Errorf("%w: dial: refused", errs.ErrTransientLink)

	for i := 0; i < degradedThreshold; i++ {
		l.noteOutcome(false, transientErr)
		if l.log.IsDegraded() {
			t.Fatalf("expected degraded to stay false before exceeding threshold, failed after %d", i+1)
		}
	}

	l.noteOutcome(false, transientErr)
	if !l.log.IsDegraded() {
		t.Errorf("expected degraded true after %d consecutive transient failures", degradedThreshold+1)
	}
}

func TestNoteOutcomeClearsDegradedOnStableConnection(t *testing.T) {
	l := New(config.PanelConfig{}, log.NewLogger("error"))
	transientErr := fmt.Errorf("%w: dial: refused", errs.ErrTransientLink)

	for i := 0; i <= degradedThreshold; i++ {
		l.noteOutcome(false, transientErr)
	}
	if !l.log.IsDegraded() {
		t.Fatalf("expected degraded true before the stable connection")
	}

	l.noteOutcome(true, transientErr)
	if l.log.IsDegraded() {
		t.Errorf("expected a stable connection to clear the degraded gauge")
	}
	if l.consecutiveFailures != 0 {
		t.Errorf("expected consecutiveFailures reset to 0, got %d", l.consecutiveFailures)
	}
}

func TestNoteOutcomeIgnoresNonTransientErrors(t *testing.T) {
	l := New(config.PanelConfig{}, log.NewLogger("error"))
	other := fmt.Errorf("%w: bad frame", errs.ErrProtocol)

	for i := 0; i < degradedThreshold+5; i++ {
		l.noteOutcome(false, other)
	}
	if l.log.IsDegraded() {
		t.Errorf("expected non-transient errors not to trip the degraded gauge")
	}
}

func TestDropCRScanEmptyAtEOF(t *testing.T) {
	advance, token, err := dropCRScan(nil, true)
	if err != nil || advance != 0 || token != nil {
		t.Errorf("expected a clean EOF signal, got advance=%d token=%q err=%v", advance, token, err)
	}
}
