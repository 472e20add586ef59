// Package wm реализует вызов pressKey интерфейса оконного менеджера.
package wm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"hwshim/internal/atfwd"
	"hwshim/internal/binder"
	"hwshim/internal/parcel"
)

const (
	Descriptor  = "android.view.IWindowManager"
	ServiceName = "window"

	TransactionPressKey = binder.FirstCallTransaction
)

var ErrMalformedReply = errors.New("malformed window manager reply")

// Client вызывает IWindowManager на удаленной стороне.
type Client struct {
	remote binder.Binder
}

func NewClient(remote binder.Binder) *Client {
	return &Client{remote: remote}
}

// Lookup находит сервис окна в менеджере сервисов.
func Lookup(ctx context.Context, sm binder.ServiceManager) (*Client, error) {
	b, err := sm.GetService(ctx, ServiceName)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", ServiceName, err)
	}
	return NewClient(b), nil
}

// PressKey отправляет нажатие (down) или отпускание клавиши.
func (c *Client) PressKey(ctx context.Context, keycode int32, down bool) (bool, error) {
	w := parcel.NewWriter()
	if err := w.WriteInterfaceToken(Descriptor); err != nil {
		return false, err
	}
	w.WriteInt32(keycode)
	w.WriteBool(down)

	data, err := c.remote.Transact(ctx, TransactionPressKey, w.Bytes())
	if err != nil {
		return false, fmt.Errorf("press key: %w", err)
	}

	r := parcel.NewReader(data)
	code, err := r.ReadInt32()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if code != binder.ExNone {
		msg, _, err := r.ReadString16()
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrMalformedReply, err)
		}
		return false, &atfwd.RemoteException{Code: code, Message: msg}
	}
	ok, err := r.ReadBool()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	return ok, nil
}

// KeyInjector доставляет события клавиш.
type KeyInjector interface {
	InjectKey(ctx context.Context, keycode int32, down bool) error
}

type KeyInjectorFunc func(ctx context.Context, keycode int32, down bool) error

func (f KeyInjectorFunc) InjectKey(ctx context.Context, keycode int32, down bool) error {
	return f(ctx, keycode, down)
}

// Stub публикует KeyInjector как сервис окна.
type Stub struct {
	injector KeyInjector
	logger   *slog.Logger
}

func NewStub(injector KeyInjector, logger *slog.Logger) *Stub {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Stub{injector: injector, logger: logger}
}

func (s *Stub) Descriptor() string { return Descriptor }

func (s *Stub) OnTransact(ctx context.Context, code uint32, data *parcel.Reader, reply *parcel.Writer) error {
	if code != TransactionPressKey {
		return binder.UnknownTransaction
	}
	if err := binder.EnforceInterface(data, Descriptor); err != nil {
		return err
	}
	keycode, err := data.ReadInt32()
	if err != nil {
		return writeException(reply, binder.ExBadParcelable, err.Error())
	}
	down, err := data.ReadBool()
	if err != nil {
		return writeException(reply, binder.ExBadParcelable, err.Error())
	}
	if keycode < 0 {
		return writeException(reply, binder.ExIllegalArgument, fmt.Sprintf("bad keycode %d", keycode))
	}

	if err := s.injector.InjectKey(ctx, keycode, down); err != nil {
		var exc *atfwd.RemoteException
		if errors.As(err, &exc) {
			return writeException(reply, exc.Code, exc.Message)
		}
		s.logger.Warn("key injection failed", "keycode", keycode, "down", down, "err", err)
		return writeException(reply, binder.ExIllegalState, err.Error())
	}
	reply.WriteInt32(binder.ExNone)
	reply.WriteBool(true)
	return nil
}

func writeException(w *parcel.Writer, code int32, msg string) error {
	w.WriteInt32(code)
	return w.WriteString16(msg)
}
