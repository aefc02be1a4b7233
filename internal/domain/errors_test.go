package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestNetworkError(t *testing.T) {
	baseErr := errors.New("connection refused")

	t.Run("retriable error", func(t *testing.T) {
		err := NewNetworkError("connect", baseErr)

		if !err.IsRetriable() {
			t.Error("Expected error to be retriable")
		}

		if err.Error() != "connect: connection refused" {
			t.Errorf("Error message = %q, want %q", err.Error(), "connect: connection refused")
		}

		if !errors.Is(err, baseErr) {
			t.Error("Expected error to wrap baseErr")
		}
	})

	t.Run("fatal error", func(t *testing.T) {
		err := NewFatalNetworkError("auth", baseErr)

		if err.IsRetriable() {
			t.Error("Expected error to not be retriable")
		}
	})

	t.Run("IsRetriable helper", func(t *testing.T) {
		retriable := NewNetworkError("dial", baseErr)
		fatal := NewFatalNetworkError("auth", baseErr)
		plain := errors.New("plain error")

		if !IsRetriable(retriable) {
			t.Error("IsRetriable should return true for retriable error")
		}

		if IsRetriable(fatal) {
			t.Error("IsRetriable should return false for fatal error")
		}

		if IsRetriable(plain) {
			t.Error("IsRetriable should return false for plain error")
		}
	})
}

func TestFeedError(t *testing.T) {
	baseErr := errors.New("unexpected EOF")

	t.Run("message and unwrap", func(t *testing.T) {
		err := NewFeedError("okx", "read", baseErr)

		want := "feed okx read: unexpected EOF"
		if err.Error() != want {
			t.Errorf("Error message = %q, want %q", err.Error(), want)
		}
		if !errors.Is(err, baseErr) {
			t.Error("Expected FeedError to wrap baseErr")
		}
		if !IsRetriable(fmt.Errorf("cycle: %w", err)) {
			t.Error("Wrapped FeedError should stay retriable")
		}
	})

	t.Run("AsFeedError keeps existing", func(t *testing.T) {
		orig := NewFeedError("bybit", "decode", baseErr)
		got := AsFeedError("other", "read", fmt.Errorf("wrapped: %w", orig))
		if got != orig {
			t.Errorf("Expected original FeedError, got %v", got)
		}
	})

	t.Run("AsFeedError wraps plain errors", func(t *testing.T) {
		got := AsFeedError("bitget", "read", baseErr)
		if got.Venue != "bitget" || got.Op != "read" {
			t.Errorf("Unexpected wrap: %+v", got)
		}
		if !got.Retriable {
			t.Error("Plain errors should be wrapped as retriable")
		}
	})

	t.Run("AsFeedError keeps config errors fatal", func(t *testing.T) {
		got := AsFeedError("bitget", "subscribe", &ConfigError{Field: "ws_url", Err: baseErr})
		if got.Retriable {
			t.Error("Config errors should not become retriable")
		}
	})
}

func TestConfigError(t *testing.T) {
	baseErr := errors.New("missing value")
	err := &ConfigError{Field: "venues", Err: baseErr}

	if err.IsRetriable() {
		t.Error("ConfigError should never be retriable")
	}

	expected := "config error [venues]: missing value"
	if err.Error() != expected {
		t.Errorf("Error message = %q, want %q", err.Error(), expected)
	}
}
