package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestAppErrorFormatting(t *testing.T) {
	err := New(ErrQuotaExceeded, "daily limit reached")
	want := "[QUOTA_EXCEEDED] daily limit reached"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	wrapped := Wrap(ErrSyncFailed, "push failed", stderrors.New("connection refused"))
	if wrapped.Error() != "[SYNC_FAILED] push failed: connection refused" {
		t.Errorf("unexpected wrapped message: %q", wrapped.Error())
	}
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(ErrPersistence, "snapshot write failed", cause)

	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(New(ErrSyncTimeout, "timed out")); got != ErrSyncTimeout {
		t.Errorf("CodeOf = %s, want %s", got, ErrSyncTimeout)
	}

	// Code survives further fmt wrapping.
	outer := fmt.Errorf("drain: %w", New(ErrSyncTimeout, "timed out"))
	if got := CodeOf(outer); got != ErrSyncTimeout {
		t.Errorf("CodeOf(wrapped) = %s, want %s", got, ErrSyncTimeout)
	}

	if got := CodeOf(stderrors.New("plain")); got != ErrInternal {
		t.Errorf("CodeOf(plain) = %s, want %s", got, ErrInternal)
	}
}

func TestClassification(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		transient bool
		permanent bool
		exhausted bool
		conflict  bool
	}{
		{"timeout", New(ErrSyncTimeout, "t"), true, false, false, false},
		{"transport", New(ErrSyncFailed, "t"), true, false, false, false},
		{"validation", New(ErrValidation, "v"), false, true, false, false},
		{"quota", New(ErrQuotaExceeded, "q"), false, true, false, false},
		{"exhausted", New(ErrSyncRetryExhausted, "e"), false, false, true, false},
		{"conflict", New(ErrSyncConflict, "c"), false, false, false, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if IsTransient(tc.err) != tc.transient {
				t.Errorf("IsTransient = %v, want %v", IsTransient(tc.err), tc.transient)
			}
			if IsPermanent(tc.err) != tc.permanent {
				t.Errorf("IsPermanent = %v, want %v", IsPermanent(tc.err), tc.permanent)
			}
			if IsExhausted(tc.err) != tc.exhausted {
				t.Errorf("IsExhausted = %v, want %v", IsExhausted(tc.err), tc.exhausted)
			}
			if IsConflict(tc.err) != tc.conflict {
				t.Errorf("IsConflict = %v, want %v", IsConflict(tc.err), tc.conflict)
			}
		})
	}

	if IsPermanent(nil) {
		t.Error("nil must not classify as permanent")
	}
}
