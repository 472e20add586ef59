// Package atfwd отправляет AT-команды сервису пересылки из командных транспортов.
package atfwd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"hwshim/internal/atfwd"
	"hwshim/internal/binder"
	"hwshim/internal/core"
)

// Module работает как клиент IAtCmdFwd. Сервис ищется при каждом вызове:
// он может появиться или перезапуститься позже модуля.
type Module struct {
	sm     binder.ServiceManager
	logger *slog.Logger
}

func New(sm binder.ServiceManager, logger *slog.Logger) *Module {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Module{sm: sm, logger: logger}
}

func (m *Module) Name() string { return "atfwd" }

func (m *Module) Init(ctx context.Context) error {
	if m.sm == nil {
		return errors.New("service manager is nil")
	}
	return nil
}

func (m *Module) Commands() []string { return []string{"send", "process", "services"} }

func (m *Module) Execute(ctx context.Context, cmd string, args []string) (core.Response, error) {
	switch cmd {
	case "send":
		return m.send(ctx, args)
	case "process":
		return m.process(ctx, args)
	case "services":
		return core.OK(m.sm.ListServices()), nil
	default:
		return core.Fail("unknown_command"), fmt.Errorf("command %s: %w", cmd, core.ErrUnknownCommand)
	}
}

// send возвращает подробную ошибку relay.
func (m *Module) send(ctx context.Context, args []string) (core.Response, error) {
	atCmd, err := parseCommand(args)
	if err != nil {
		return core.Fail("invalid_args"), err
	}
	proxy, err := atfwd.Lookup(ctx, m.sm, m.logger)
	if err != nil {
		return core.Fail("service_unavailable"), err
	}
	resp, err := proxy.Dispatch(ctx, atCmd)
	if err != nil {
		return core.Fail(errorCode(err)), err
	}
	return core.OK(resp), nil
}

// process следует контракту processCommand: любой сбой дает пустой результат.
func (m *Module) process(ctx context.Context, args []string) (core.Response, error) {
	atCmd, err := parseCommand(args)
	if err != nil {
		return core.Fail("invalid_args"), err
	}
	proxy, err := atfwd.Lookup(ctx, m.sm, m.logger)
	if err != nil {
		return core.Fail("service_unavailable"), err
	}
	return core.OK(map[string]any{"response": proxy.ProcessCommand(ctx, atCmd)}), nil
}

func parseCommand(args []string) (*atfwd.Command, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("expected <opcode> <name> [tokens...]: %w", core.ErrInvalidArguments)
	}
	opcode, err := strconv.ParseInt(args[0], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("opcode %q: %w", args[0], core.ErrInvalidArguments)
	}
	cmd := &atfwd.Command{Opcode: int32(opcode), Name: args[1]}
	if len(args) > 2 {
		cmd.Tokens = append([]string(nil), args[2:]...)
	}
	return cmd, nil
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, atfwd.ErrInvalidCommand):
		return "invalid_command"
	case errors.Is(err, atfwd.ErrTransport):
		return "transport_failed"
	case errors.Is(err, atfwd.ErrRemoteException):
		return "remote_exception"
	case errors.Is(err, atfwd.ErrNoResult):
		return "no_result"
	case errors.Is(err, atfwd.ErrMalformedReply):
		return "malformed_reply"
	}
	return "relay_failed"
}
