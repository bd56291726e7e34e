package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestFromUnwrapsWrappedErrors(t *testing.T) {
	base := errors.New("thread is busy")
	err := fmt.Errorf("send: %w", New(http.StatusConflict, "thread_busy", base))

	status, code := From(err)
	if status != http.StatusConflict || code != "thread_busy" {
		t.Fatalf("From: got status=%d code=%q", status, code)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped base error to be reachable")
	}
}

func TestFromDefaultsToInternal(t *testing.T) {
	status, code := From(errors.New("boom"))
	if status != http.StatusInternalServerError || code != "internal" {
		t.Fatalf("From: got status=%d code=%q", status, code)
	}
}
