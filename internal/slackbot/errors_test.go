package slackbot

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	plain := NewError(ErrCodeConfig, "missing token", nil)
	if got := plain.Error(); got != "CONFIG: missing token" {
		t.Errorf("Error() = %q", got)
	}

	wrapped := NewError(ErrCodeUpstream, "posting card", errors.New("channel_not_found"))
	if got := wrapped.Error(); got != "UPSTREAM: posting card: channel_not_found" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(wrapped, wrapped.Err) {
		t.Error("wrapped cause should unwrap")
	}
}

func TestErrorCode(t *testing.T) {
	upstream := NewError(ErrCodeUpstream, "posting card", errors.New("boom"))
	if got := ErrorCode(upstream); got != ErrCodeUpstream {
		t.Errorf("ErrorCode = %q", got)
	}

	rewrapped := fmt.Errorf("handling action: %w", upstream)
	if got := ErrorCode(rewrapped); got != ErrCodeUpstream {
		t.Errorf("ErrorCode through wrap = %q", got)
	}

	if got := ErrorCode(errors.New("plain")); got != ErrCodeInternal {
		t.Errorf("ErrorCode for plain error = %q", got)
	}
}

func TestErrorWithContext(t *testing.T) {
	err := NewError(ErrCodeUpstream, "posting card", nil).
		WithContext("destination", "CAPPROVALS").
		WithContext("card_ts", "1.2")
	if err.Context["destination"] != "CAPPROVALS" || err.Context["card_ts"] != "1.2" {
		t.Errorf("context not recorded: %+v", err.Context)
	}
}
