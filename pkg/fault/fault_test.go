package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	err := New(KindStorageUnavailable, "boom")
	if KindOf(err) != KindStorageUnavailable {
		t.Fatalf("expected storage_unavailable, got %s", KindOf(err))
	}

	wrapped := fmt.Errorf("outer: %w", err)
	if KindOf(wrapped) != KindStorageUnavailable {
		t.Fatalf("kind must survive wrapping, got %s", KindOf(wrapped))
	}

	if KindOf(errors.New("plain")) != KindUnknown {
		t.Fatalf("foreign errors must classify as unknown")
	}
}

func TestSentinelMatching(t *testing.T) {
	err := Wrap(KindConcurrencyConflict, ErrConcurrencyConflict, "aggregate a at 3, expected 2")
	if !errors.Is(err, ErrConcurrencyConflict) {
		t.Fatalf("wrapped conflict must match the sentinel")
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		kind Kind
		want bool
	}{
		{KindStorageUnavailable, true},
		{KindBrokerUnavailable, true},
		{KindCircuitOpen, true},
		{KindConcurrencyConflict, false},
		{KindDomainViolation, false},
		{KindEncodingFailed, false},
		{KindInvalidInput, false},
		{KindDlqInsertFailed, false},
	}
	for _, tc := range cases {
		if got := IsTransient(New(tc.kind, "x")); got != tc.want {
			t.Errorf("IsTransient(%s) = %v, want %v", tc.kind, got, tc.want)
		}
	}
	if IsTransient(errors.New("plain")) {
		t.Errorf("foreign errors are not transient")
	}
	if IsTransient(nil) {
		t.Errorf("nil is not transient")
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindBrokerUnavailable, cause, "publish to orders")
	want := "publish to orders: connection refused"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause must stay in the chain")
	}
}
