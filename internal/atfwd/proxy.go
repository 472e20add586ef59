package atfwd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"hwshim/internal/binder"
)

// Proxy вызывает IAtCmdFwd на удаленной стороне. Состояния между вызовами нет.
type Proxy struct {
	remote binder.Binder
	logger *slog.Logger
}

// NewProxy создает прокси поверх удаленного объекта.
func NewProxy(remote binder.Binder, logger *slog.Logger) *Proxy {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Proxy{remote: remote, logger: logger}
}

// Lookup находит сервис AtCmdFwd и возвращает прокси к нему.
func Lookup(ctx context.Context, sm binder.ServiceManager, logger *slog.Logger) (*Proxy, error) {
	b, err := sm.GetService(ctx, ServiceName)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", ServiceName, err)
	}
	return NewProxy(b, logger), nil
}

// Dispatch отправляет команду и возвращает ответ или ошибку с видом отказа.
// Команда не изменяется; таймаут задает только ctx транспорта.
func (p *Proxy) Dispatch(ctx context.Context, cmd *Command) (*Response, error) {
	if cmd == nil {
		return nil, fmt.Errorf("nil command: %w", ErrInvalidCommand)
	}
	if cmd.Opcode < 0 {
		return nil, fmt.Errorf("opcode %d: %w", cmd.Opcode, ErrInvalidCommand)
	}
	data, err := encodeRequest(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode: %v: %w", err, ErrInvalidCommand)
	}

	reply, err := p.remote.Transact(ctx, TransactionProcessCommand, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return decodeReply(reply)
}

// ProcessCommand не возвращает ошибку: любой отказ дает nil и запись в лог.
func (p *Proxy) ProcessCommand(ctx context.Context, cmd *Command) *Response {
	resp, err := p.Dispatch(ctx, cmd)
	if err == nil {
		p.logger.Debug("at command processed", "command", cmd.Name, "result", resp.Result, "response", resp.Message)
		return resp
	}

	name := ""
	if cmd != nil {
		name = cmd.Name
	}
	var exc *RemoteException
	switch {
	case errors.As(err, &exc):
		p.logger.Info("exception occurred", "command", name, "code", exc.Code, "message", exc.Message)
	case errors.Is(err, ErrNoResult):
		p.logger.Debug("at command returned no result", "command", name)
	case errors.Is(err, ErrTransport):
		p.logger.Error("rpc call to AtCmdFwd service failed", "command", name, "status", int32(binder.StatusOf(err)), "err", err)
	default:
		p.logger.Error("at command failed", "command", name, "err", err)
	}
	return nil
}
