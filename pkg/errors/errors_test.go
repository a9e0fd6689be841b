package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestUserMessageServiceErrorVerbatim(t *testing.T) {
	err := NewServiceError("Spotify session expired. Reconnect to continue.", "spotify", "create_playlist", 401)
	if got := UserMessage(err); got != "Spotify session expired. Reconnect to continue." {
		t.Fatalf("expected verbatim service message, got %q", got)
	}
}

func TestUserMessageServiceErrorNotReadable(t *testing.T) {
	err := NewServiceError(`{"detail":"internal"}`, "backend", "daily_alignment", 422)
	if got := UserMessage(err); got != GenericUserMessage {
		t.Fatalf("expected generic fallback, got %q", got)
	}
}

func TestUserMessageTransportWrapped(t *testing.T) {
	base := NewTransportError("request failed", "daily_alignment", fmt.Errorf("dial tcp: i/o timeout"))
	wrapped := fmt.Errorf("load daily_alignment: %w", base)

	if !IsTransport(wrapped) {
		t.Fatalf("expected wrapped transport error to be detected")
	}
	if IsService(wrapped) {
		t.Fatalf("transport error must not be reported as service error")
	}
	if got := UserMessage(wrapped); got == "" || got == GenericUserMessage {
		t.Fatalf("expected transport-specific message, got %q", got)
	}
}

func TestTransportErrorUnwrapsCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := NewTransportError("request failed", "seasonal_guidance", cause)
	if !stderrors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable through Unwrap")
	}
}

func TestUserMessageNil(t *testing.T) {
	if got := UserMessage(nil); got != "" {
		t.Fatalf("expected empty message for nil error, got %q", got)
	}
}
