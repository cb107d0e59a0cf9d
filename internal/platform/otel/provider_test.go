package otel

import (
	"context"
	"testing"
)

func TestSetupNoopWithoutEndpoint(t *testing.T) {
	t.Setenv("REFERRALPRO_OTEL_ENDPOINT", "")

	shutdown, err := Setup(context.Background(), "api")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if shutdown == nil {
		t.Fatal("expected shutdown function")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("noop shutdown: %v", err)
	}
}

func TestSetupNoopWhenDisabled(t *testing.T) {
	t.Setenv("REFERRALPRO_OTEL_ENDPOINT", "http://localhost:4318")
	t.Setenv("REFERRALPRO_OTEL_ENABLED", "false")

	shutdown, err := Setup(context.Background(), "bot")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("noop shutdown: %v", err)
	}
}
