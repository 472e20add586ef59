// Package power публикует управление питанием как модуль команд.
package power

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"hwshim/internal/core"
	hal "hwshim/internal/power"
)

// Module публикует команды над hal.Controller.
type Module struct {
	ctl *hal.Controller
}

func New(ctl *hal.Controller) *Module {
	return &Module{ctl: ctl}
}

func (m *Module) Name() string { return "power" }

func (m *Module) Init(ctx context.Context) error {
	if m.ctl == nil {
		return errors.New("power controller is nil")
	}
	return nil
}

func (m *Module) Commands() []string {
	return []string{
		"status", "wakelocks", "wakelock-acquire", "wakelock-release",
		"screen", "activity-timeout", "ebi1-sr", "ebi1-dpd",
	}
}

func (m *Module) Execute(ctx context.Context, cmd string, args []string) (core.Response, error) {
	switch cmd {
	case "status":
		return core.OK(m.ctl.Status()), nil
	case "wakelocks":
		return core.OK(m.ctl.HeldWakeLocks()), nil
	case "wakelock-acquire":
		id, resp, err := oneArg(args, "<id>")
		if err != nil {
			return resp, err
		}
		if err := m.ctl.AcquireWakeLock(ctx, hal.PartialWakeLock, id); err != nil {
			return failure("wakelock_acquire_failed", err)
		}
		return core.OK(map[string]any{"id": id, "held": true}), nil
	case "wakelock-release":
		id, resp, err := oneArg(args, "<id>")
		if err != nil {
			return resp, err
		}
		if err := m.ctl.ReleaseWakeLock(ctx, id); err != nil {
			return failure("wakelock_release_failed", err)
		}
		return core.OK(map[string]any{"id": id, "held": false}), nil
	case "screen":
		on, resp, err := onOff(args)
		if err != nil {
			return resp, err
		}
		if err := m.ctl.SetScreenState(ctx, on); err != nil {
			return failure("screen_failed", err)
		}
		return core.OK(map[string]any{"screen_on": on}), nil
	case "activity-timeout":
		raw, resp, err := oneArg(args, "<delay>")
		if err != nil {
			return resp, err
		}
		delay, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return core.Fail("invalid_args"), fmt.Errorf("delay %q: %w", raw, core.ErrInvalidArguments)
		}
		if err := m.ctl.SetLastUserActivityTimeout(ctx, delay); err != nil {
			return failure("activity_timeout_failed", err)
		}
		return core.OK(map[string]any{"delay": delay}), nil
	case "ebi1-sr":
		on, resp, err := onOff(args)
		if err != nil {
			return resp, err
		}
		if err := m.ctl.SetEBI1SelfRefresh(ctx, on); err != nil {
			return failure("ebi1_failed", err)
		}
		return core.OK(map[string]any{"self_refresh": on}), nil
	case "ebi1-dpd":
		on, resp, err := onOff(args)
		if err != nil {
			return resp, err
		}
		if err := m.ctl.SetEBI1DeepPowerDown(ctx, on); err != nil {
			return failure("ebi1_failed", err)
		}
		return core.OK(map[string]any{"deep_power_down": on}), nil
	default:
		return core.Fail("unknown_command"), fmt.Errorf("command %s: %w", cmd, core.ErrUnknownCommand)
	}
}

// failure выбирает код ответа по типу ошибки контроллера.
func failure(code string, err error) (core.Response, error) {
	switch {
	case errors.Is(err, hal.ErrUnavailable):
		code = "power_unavailable"
	case errors.Is(err, hal.ErrNotHeld):
		code = "wakelock_not_held"
	case errors.Is(err, hal.ErrEmptyID), errors.Is(err, hal.ErrUnsupportedLock):
		code = "invalid_args"
	}
	return core.Fail(code), err
}

func oneArg(args []string, usage string) (string, core.Response, error) {
	if len(args) != 1 {
		return "", core.Fail("invalid_args"), fmt.Errorf("expected %s: %w", usage, core.ErrInvalidArguments)
	}
	return args[0], core.Response{}, nil
}

func onOff(args []string) (bool, core.Response, error) {
	v, resp, err := oneArg(args, "on|off")
	if err != nil {
		return false, resp, err
	}
	switch v {
	case "on", "1", "true":
		return true, resp, nil
	case "off", "0", "false":
		return false, resp, nil
	}
	return false, core.Fail("invalid_args"), fmt.Errorf("expected on|off, got %q: %w", v, core.ErrInvalidArguments)
}
