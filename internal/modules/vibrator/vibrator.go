package vibrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"hwshim/internal/core"
	hal "hwshim/internal/vibrator"
)

// Module управляет вибромотором командами on/off.
type Module struct {
	vib *hal.Vibrator
}

func New(vib *hal.Vibrator) *Module {
	return &Module{vib: vib}
}

func (m *Module) Name() string { return "vibrator" }

func (m *Module) Init(ctx context.Context) error {
	if m.vib == nil {
		return errors.New("vibrator is nil")
	}
	return nil
}

func (m *Module) Commands() []string { return []string{"on", "off"} }

func (m *Module) Execute(ctx context.Context, cmd string, args []string) (core.Response, error) {
	switch cmd {
	case "on":
		if len(args) != 1 {
			return core.Fail("invalid_args"), fmt.Errorf("expected <ms>: %w", core.ErrInvalidArguments)
		}
		ms, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return core.Fail("invalid_args"), fmt.Errorf("duration %q: %w", args[0], core.ErrInvalidArguments)
		}
		if err := m.vib.On(ctx, time.Duration(ms)*time.Millisecond); err != nil {
			return core.Fail("vibrator_failed"), err
		}
		return core.OK(map[string]any{"on": true, "duration_ms": ms}), nil
	case "off":
		if err := m.vib.Off(ctx); err != nil {
			return core.Fail("vibrator_failed"), err
		}
		return core.OK(map[string]any{"on": false}), nil
	default:
		return core.Fail("unknown_command"), fmt.Errorf("command %s: %w", cmd, core.ErrUnknownCommand)
	}
}
