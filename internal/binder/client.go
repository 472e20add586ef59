package binder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"slices"
	"time"
)

// DialTimeout ограничивает только установку соединения.
const DialTimeout = 2 * time.Second

// Client реализует ServiceManager поверх сокета сервера Server.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial подключается к сокету binder-сервера.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %v: %w", path, err, DeadObject)
	}
	return &Client{conn: conn, client: rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))}, nil
}

// Close закрывает соединение.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// GetService проверяет наличие сервиса и возвращает его прокси.
func (c *Client) GetService(ctx context.Context, name string) (Binder, error) {
	var reply ListReply
	if err := c.call(ctx, "Binder.List", ListArgs{}, &reply); err != nil {
		return nil, err
	}
	if !slices.Contains(reply.Services, name) {
		return nil, fmt.Errorf("service %s: %w", name, NameNotFound)
	}
	return &remoteBinder{client: c, service: name}, nil
}

// AddService не поддерживается на стороне клиента.
func (c *Client) AddService(name string, _ Stub) error {
	return fmt.Errorf("add service %s via client: %w", name, InvalidOperation)
}

// ListServices возвращает nil при ошибке связи.
func (c *Client) ListServices() []string {
	var reply ListReply
	if err := c.call(context.Background(), "Binder.List", ListArgs{}, &reply); err != nil {
		return nil
	}
	return reply.Services
}

// call ожидает ответ RPC или отмену контекста; собственного таймаута нет.
func (c *Client) call(ctx context.Context, method string, args, reply any) error {
	call := c.client.Go(method, args, reply, make(chan *rpc.Call, 1))
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %v: %w", method, ctx.Err(), TimedOut)
	case done := <-call.Done:
		if done.Error == nil {
			return nil
		}
		var serverErr rpc.ServerError
		if errors.As(done.Error, &serverErr) {
			return fmt.Errorf("%s: %v: %w", method, done.Error, FailedTransaction)
		}
		// Любая ошибка соединения означает, что удаленная сторона недоступна.
		return fmt.Errorf("%s: %v: %w", method, done.Error, DeadObject)
	}
}

type remoteBinder struct {
	client  *Client
	service string
}

func (b *remoteBinder) Transact(ctx context.Context, code uint32, data []byte) ([]byte, error) {
	var reply TransactReply
	args := TransactArgs{Service: b.service, Code: code, Data: data}
	if err := b.client.call(ctx, "Binder.Transact", args, &reply); err != nil {
		return nil, err
	}
	if st := Status(reply.Status); st != OK {
		return nil, fmt.Errorf("%s: %w", b.service, st)
	}
	return reply.Data, nil
}
