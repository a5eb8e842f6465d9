package errs

import (
	"errors"
	"fmt"
	"log/slog"
	"testing"
)

func TestWrapKeepsChain(t *testing.T) {
	root := errors.New("disk full")
	err := Wrapf(Wrap(root, "write row"), "reconcile %s", "evt-1")

	if !errors.Is(err, root) {
		t.Fatalf("errors.Is() = false for wrapped root")
	}
	if got := err.Error(); got != "reconcile evt-1: write row: disk full" {
		t.Fatalf("Error() = %q", got)
	}
	if chain := ErrorChainStrings(err); len(chain) != 3 {
		t.Fatalf("ErrorChainStrings() = %v", chain)
	}
	if Wrap(nil, "x") != nil || Wrapf(nil, "x %d", 1) != nil {
		t.Fatalf("Wrap(nil) must stay nil")
	}
}

func TestPermanent(t *testing.T) {
	root := errors.New("bad payload")
	err := fmt.Errorf("decode: %w", Permanent(root))

	if !IsPermanent(err) {
		t.Fatalf("IsPermanent() = false for wrapped permanent error")
	}
	if !errors.Is(err, root) {
		t.Fatalf("errors.Is() = false through permanent marker")
	}
	if IsPermanent(root) {
		t.Fatalf("IsPermanent() = true for plain error")
	}
	if Permanent(nil) != nil {
		t.Fatalf("Permanent(nil) must stay nil")
	}
}

func TestLoggableIncludesStack(t *testing.T) {
	value := Loggable(Wrap(WithStack(errors.New("boom")), "tick")).LogValue()
	if value.Kind() != slog.KindGroup {
		t.Fatalf("LogValue() kind = %v", value.Kind())
	}

	keys := map[string]bool{}
	for _, attr := range value.Group() {
		keys[attr.Key] = true
	}
	if !keys["message"] || !keys["chain"] || !keys["stack"] {
		t.Fatalf("LogValue() keys = %v", keys)
	}
}
