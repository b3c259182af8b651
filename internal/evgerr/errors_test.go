package evgerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesKind(t *testing.T) {
	err := Wrap(KindLifecycleFailure, "svcA", "run exited 1", fmt.Errorf("exit status 1"))
	if !errors.Is(err, LifecycleFailure) {
		t.Fatal("expected errors.Is to match LifecycleFailure sentinel")
	}
	if errors.Is(err, InvalidConfig) {
		t.Fatal("did not expect match against a different kind")
	}
}

func TestAsUnwrapsCause(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := Wrap(KindInternal, "merger", "panic recovered", cause)

	var typed *Error
	if !errors.As(err, &typed) {
		t.Fatal("expected errors.As to extract *Error")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected Unwrap to expose cause")
	}
}
