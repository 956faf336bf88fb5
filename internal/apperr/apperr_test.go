package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOfWrappedChain(t *testing.T) {
	base := NotFound("reservation %d not found", 42)
	wrapped := fmt.Errorf("handling request: %w", base)

	if got := KindOf(wrapped); got != KindNotFound {
		t.Fatalf("KindOf = %v, want KindNotFound", got)
	}
	if !Is(wrapped, KindNotFound) {
		t.Fatal("Is(wrapped, KindNotFound) = false")
	}
}

func TestKindOfPlainError(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindUnknown {
		t.Fatalf("KindOf = %v, want KindUnknown", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NotFound("missing"), http.StatusNotFound},
		{Validation("bad window"), http.StatusBadRequest},
		{StateTransition("cancelled is terminal"), http.StatusBadRequest},
		{Conflict("overlapping booking"), http.StatusConflict},
		{RemoteUnavailable("court service", errors.New("timeout")), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := RemoteUnavailable("club service unreachable", cause)
	if !errors.Is(err, cause) {
		t.Fatal("errors.Is(err, cause) = false")
	}
}
