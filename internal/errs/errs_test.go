package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelsAreDistinguishableAfterWrapping(t *testing.T) {
	wrapped := fmt.Errorf("dial tcp: %w", ErrTransientLink)
	if !errors.Is(wrapped, ErrTransientLink) {
		t.Fatalf("expected errors.Is to see through %%w wrapping")
	}
	if errors.Is(wrapped, ErrProtocol) {
		t.Fatalf("ErrTransientLink must not match ErrProtocol")
	}
}

func TestEverySentinelHasDistinctMessage(t *testing.T) {
	all := []error{ErrConfig, ErrTransientLink, ErrProtocol, ErrBadCode, ErrBadCodeFormat, ErrBadSessionToken, ErrMqttTransient, ErrBug}
	seen := map[string]bool{}
	for _, e := range all {
		if seen[e.Error()] {
			t.Errorf("duplicate sentinel message: %q", e.Error())
		}
		seen[e.Error()] = true
	}
}
