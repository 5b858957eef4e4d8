package registry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

const healthTestPrefix = "registry:health_test"

type fakeLiveness bool

func (f fakeLiveness) IsConnected() bool { return bool(f) }

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestHealth_NoChecksConfigured_ReturnsHealthy(t *testing.T) {
	reg := NewRegistry(NewRegistryParams{Config: DefaultConfig()})
	ctx := context.Background()

	out := reg.Health(ctx)

	if out.Status != "healthy" {
		t.Errorf("%s - Status = %q, want healthy", healthTestPrefix, out.Status)
	}
	if !out.Checks.Transport {
		t.Errorf("%s - expected Transport check true without liveness", healthTestPrefix)
	}
	if out.Checks.Database != nil {
		t.Errorf("%s - expected Database check omitted when no pinger", healthTestPrefix)
	}
	if _, err := time.Parse(time.RFC3339, out.Timestamp); err != nil {
		t.Errorf("%s - Timestamp not RFC3339: %v", healthTestPrefix, err)
	}
}

func TestHealth_Transitions(t *testing.T) {
	tests := []struct {
		name     string
		liveness fakeLiveness
		pinger   Pinger
		want     string
	}{
		{"connected no db", true, nil, "healthy"},
		{"connected db ok", true, fakePinger{}, "healthy"},
		{"connected db down", true, fakePinger{err: errors.New("refused")}, "degraded"},
		{"disconnected", false, fakePinger{}, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry(NewRegistryParams{Liveness: tt.liveness, Pinger: tt.pinger})
			out := reg.Health(context.Background())
			if out.Status != tt.want {
				t.Errorf("%s - Status = %q, want %q", healthTestPrefix, out.Status, tt.want)
			}
		})
	}
}

func TestHealth_OutputShape(t *testing.T) {
	reg := NewRegistry(NewRegistryParams{Pinger: fakePinger{}})
	if _, err := reg.Register(RegistrationEvent{Name: "servo1"}); err != nil {
		t.Fatalf("%s - register failed: %v", healthTestPrefix, err)
	}

	out := reg.Health(context.Background())

	data, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("%s - marshal failed: %v", healthTestPrefix, err)
	}
	var decoded HealthOutput
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("%s - unmarshal failed: %v", healthTestPrefix, err)
	}
	if decoded.Services != 1 {
		t.Errorf("%s - Services = %d, want 1", healthTestPrefix, decoded.Services)
	}
	if decoded.Checks.Database == nil || !*decoded.Checks.Database {
		t.Errorf("%s - round-trip Database = %v, want true", healthTestPrefix, decoded.Checks.Database)
	}
}
