package wm

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"hwshim/internal/atfwd"
	"hwshim/internal/binder"
	"hwshim/internal/core"
	hal "hwshim/internal/wm"
)

// Module отправляет события клавиш сервису окна.
type Module struct {
	sm binder.ServiceManager
}

func New(sm binder.ServiceManager) *Module {
	return &Module{sm: sm}
}

func (m *Module) Name() string { return "wm" }

func (m *Module) Init(ctx context.Context) error {
	if m.sm == nil {
		return errors.New("service manager is nil")
	}
	return nil
}

func (m *Module) Commands() []string { return []string{"press", "tap"} }

func (m *Module) Execute(ctx context.Context, cmd string, args []string) (core.Response, error) {
	switch cmd {
	case "press":
		if len(args) != 2 {
			return core.Fail("invalid_args"), fmt.Errorf("expected <keycode> down|up: %w", core.ErrInvalidArguments)
		}
		code, err := parseKeycode(args[0])
		if err != nil {
			return core.Fail("invalid_args"), err
		}
		var down bool
		switch args[1] {
		case "down":
			down = true
		case "up":
		default:
			return core.Fail("invalid_args"), fmt.Errorf("expected down|up, got %q: %w", args[1], core.ErrInvalidArguments)
		}
		return m.press(ctx, code, down)
	case "tap":
		if len(args) != 1 {
			return core.Fail("invalid_args"), fmt.Errorf("expected <keycode>: %w", core.ErrInvalidArguments)
		}
		code, err := parseKeycode(args[0])
		if err != nil {
			return core.Fail("invalid_args"), err
		}
		if resp, err := m.press(ctx, code, true); err != nil {
			return resp, err
		}
		return m.press(ctx, code, false)
	default:
		return core.Fail("unknown_command"), fmt.Errorf("command %s: %w", cmd, core.ErrUnknownCommand)
	}
}

func (m *Module) press(ctx context.Context, code int32, down bool) (core.Response, error) {
	client, err := hal.Lookup(ctx, m.sm)
	if err != nil {
		return core.Fail("service_unavailable"), err
	}
	ok, err := client.PressKey(ctx, code, down)
	if err != nil {
		if errors.Is(err, atfwd.ErrRemoteException) {
			return core.Fail("remote_exception"), err
		}
		return core.Fail("transport_failed"), err
	}
	return core.OK(map[string]any{"keycode": code, "down": down, "delivered": ok}), nil
}

func parseKeycode(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("keycode %q: %w", s, core.ErrInvalidArguments)
	}
	return int32(v), nil
}
