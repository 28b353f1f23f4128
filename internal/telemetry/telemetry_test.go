package telemetry

import (
	"context"
	"testing"
)

func TestDisabledByDefault(t *testing.T) {
	t.Setenv("LATTICE_OTEL_ENABLED", "")
	if Enabled() {
		t.Fatal("Enabled() = true with no env set")
	}
	if err := Init(context.Background(), "lattice", "test"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if len(shutdownFns) != 0 {
		t.Errorf("disabled init registered %d shutdown fn(s)", len(shutdownFns))
	}
	Shutdown(context.Background())
}

func TestInitAndShutdownWhenEnabled(t *testing.T) {
	t.Setenv("LATTICE_OTEL_ENABLED", "true")
	t.Setenv("LATTICE_OTEL_STDOUT", "")

	if err := Init(context.Background(), "lattice", "test"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if len(shutdownFns) != 1 {
		t.Fatalf("expected 1 shutdown fn, got %d", len(shutdownFns))
	}
	Shutdown(context.Background())
	if len(shutdownFns) != 0 {
		t.Errorf("Shutdown left %d fn(s) registered", len(shutdownFns))
	}
}
