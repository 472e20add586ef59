package atfwd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"hwshim/internal/binder"
	"hwshim/internal/parcel"
)

// Handler выполняет AT-команду на стороне сервиса. nil без ошибки
// передается клиенту как "нет результата".
type Handler interface {
	HandleCommand(ctx context.Context, cmd *Command) (*Response, error)
}

// HandlerFunc адаптирует функцию к Handler.
type HandlerFunc func(ctx context.Context, cmd *Command) (*Response, error)

func (f HandlerFunc) HandleCommand(ctx context.Context, cmd *Command) (*Response, error) {
	return f(ctx, cmd)
}

// Stub публикует Handler как binder.Stub.
type Stub struct {
	handler Handler
	logger  *slog.Logger
}

// NewStub создает серверную сторону IAtCmdFwd.
func NewStub(h Handler, logger *slog.Logger) *Stub {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Stub{handler: h, logger: logger}
}

func (s *Stub) Descriptor() string { return Descriptor }

func (s *Stub) OnTransact(ctx context.Context, code uint32, data *parcel.Reader, reply *parcel.Writer) error {
	if code != TransactionProcessCommand {
		return binder.UnknownTransaction
	}
	if err := binder.EnforceInterface(data, Descriptor); err != nil {
		return err
	}
	cmd, err := decodeCommand(data)
	if err != nil {
		s.logger.Warn("bad at command parcel", "err", err)
		return writeException(reply, binder.ExBadParcelable, err.Error())
	}
	if cmd == nil {
		return writeException(reply, binder.ExNullPointer, "command is null")
	}

	resp, err := s.handler.HandleCommand(ctx, cmd)
	if err != nil {
		var exc *RemoteException
		if errors.As(err, &exc) {
			return writeException(reply, exc.Code, exc.Message)
		}
		s.logger.Warn("at command handler failed", "command", cmd.Name, "err", err)
		return writeException(reply, binder.ExIllegalState, err.Error())
	}
	if err := writeResult(reply, resp); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}
