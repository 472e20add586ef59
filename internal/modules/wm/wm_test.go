package wm

import (
	"context"
	"errors"
	"testing"

	"hwshim/internal/binder"
	"hwshim/internal/core"
	hal "hwshim/internal/wm"
)

type recorder struct {
	events []string
}

func (r *recorder) InjectKey(ctx context.Context, code int32, down bool) error {
	state := "up"
	if down {
		state = "down"
	}
	r.events = append(r.events, state)
	return nil
}

func TestTap(t *testing.T) {
	rec := &recorder{}
	sm := binder.NewLocalManager()
	if err := sm.AddService(hal.ServiceName, hal.NewStub(rec, nil)); err != nil {
		t.Fatal(err)
	}
	m := New(sm)
	resp, err := m.Execute(context.Background(), "tap", []string{"66"})
	if err != nil || resp.Status != core.StatusOK {
		t.Fatalf("tap: %v %v", resp, err)
	}
	if len(rec.events) != 2 || rec.events[0] != "down" || rec.events[1] != "up" {
		t.Fatalf("events = %v", rec.events)
	}
}

func TestPressValidation(t *testing.T) {
	m := New(binder.NewLocalManager())
	for _, args := range [][]string{{"66"}, {"x", "down"}, {"66", "sideways"}, {"-1", "up"}} {
		if _, err := m.Execute(context.Background(), "press", args); !errors.Is(err, core.ErrInvalidArguments) {
			t.Fatalf("args %v: expected ErrInvalidArguments, got %v", args, err)
		}
	}
	resp, err := m.Execute(context.Background(), "press", []string{"66", "down"})
	if err == nil || resp.ErrorCode != "service_unavailable" {
		t.Fatalf("expected missing service, got %v %v", resp, err)
	}
}
