package hints_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/paulschiretz/recall/pkg/hints"
)

var errUnsupported = errors.New("unsupported")

func TestHints(t *testing.T) {
	testCases := []struct {
		name       string
		err        error
		wantHint   bool
		wantIsBase bool
	}{
		{"nil", nil, false, false},
		{"plain error", errUnsupported, false, false},
		{"wrapped base", hints.Wrap(errUnsupported), true, true},
		{"newf with %w", hints.Newf("snapshot: %w", errUnsupported), true, true},
		{"hint wrapped again by fmt", fmt.Errorf("engine: %w", hints.Wrap(errUnsupported)), true, true},
		{"new without base", hints.New("nothing to do"), true, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := hints.IsHint(tc.err); got != tc.wantHint {
				t.Errorf("IsHint() = %v, want %v", got, tc.wantHint)
			}
			if got := hints.Is(tc.err, errUnsupported); got != tc.wantIsBase {
				t.Errorf("Is(err, errUnsupported) = %v, want %v", got, tc.wantIsBase)
			}
		})
	}
}

func TestWrapNil(t *testing.T) {
	if hints.Wrap(nil) != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestMessagePreserved(t *testing.T) {
	err := hints.Newf("volume %s has no shadow copy support", "/")
	if err.Error() != "volume / has no shadow copy support" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
