package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		BadRequest:  http.StatusBadRequest,
		NotFound:    http.StatusNotFound,
		Conflict:    http.StatusConflict,
		Unavailable: http.StatusServiceUnavailable,
		Internal:    http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := New(code, "x").HTTPStatus(); got != want {
			t.Errorf("%s: expected %d, got %d", code, want, got)
		}
	}
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("list bars: %w", Wrap(Unavailable, "store unavailable", cause))

	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable with errors.Is")
	}
	ae, ok := From(err)
	if !ok {
		t.Fatal("expected AppError in chain")
	}
	if ae.Message() != "store unavailable" {
		t.Errorf("expected client message, got %q", ae.Message())
	}
	if ae.Code() != Unavailable {
		t.Errorf("expected UNAVAILABLE, got %s", ae.Code())
	}
}
