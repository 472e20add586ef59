package wm

import (
	"context"
	"errors"
	"testing"

	"hwshim/internal/atfwd"
	"hwshim/internal/binder"
)

type keyEvent struct {
	code int32
	down bool
}

func newClient(t *testing.T, inj KeyInjector) *Client {
	t.Helper()
	sm := binder.NewLocalManager()
	if err := sm.AddService(ServiceName, NewStub(inj, nil)); err != nil {
		t.Fatal(err)
	}
	c, err := Lookup(context.Background(), sm)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	return c
}

func TestPressKeyDelivered(t *testing.T) {
	var events []keyEvent
	c := newClient(t, KeyInjectorFunc(func(ctx context.Context, code int32, down bool) error {
		events = append(events, keyEvent{code, down})
		return nil
	}))

	for _, down := range []bool{true, false} {
		ok, err := c.PressKey(context.Background(), 26, down)
		if err != nil || !ok {
			t.Fatalf("press down=%v: ok=%v err=%v", down, ok, err)
		}
	}
	if len(events) != 2 || events[0] != (keyEvent{26, true}) || events[1] != (keyEvent{26, false}) {
		t.Fatalf("events = %v", events)
	}
}

func TestPressKeyExceptions(t *testing.T) {
	c := newClient(t, KeyInjectorFunc(func(ctx context.Context, code int32, down bool) error {
		if code == 1 {
			return &atfwd.RemoteException{Code: binder.ExSecurity, Message: "no INJECT_EVENTS"}
		}
		return errors.New("input queue full")
	}))

	_, err := c.PressKey(context.Background(), 1, true)
	var exc *atfwd.RemoteException
	if !errors.As(err, &exc) || exc.Code != binder.ExSecurity {
		t.Fatalf("expected security exception, got %v", err)
	}
	_, err = c.PressKey(context.Background(), 2, true)
	if !errors.As(err, &exc) || exc.Code != binder.ExIllegalState {
		t.Fatalf("expected illegal state, got %v", err)
	}
	_, err = c.PressKey(context.Background(), -4, true)
	if !errors.As(err, &exc) || exc.Code != binder.ExIllegalArgument {
		t.Fatalf("expected illegal argument, got %v", err)
	}
}

func TestPressKeyMissingService(t *testing.T) {
	_, err := Lookup(context.Background(), binder.NewLocalManager())
	if binder.StatusOf(err) != binder.NameNotFound {
		t.Fatalf("expected NameNotFound, got %v", err)
	}
}
