package core

import "context"

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Response описывает унифицированный результат выполнения команды.
type Response struct {
	Status    string `json:"status"`
	Data      any    `json:"data,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// OK оборачивает данные успешного ответа.
func OK(data any) Response {
	return Response{Status: StatusOK, Data: data}
}

// Fail возвращает ответ с кодом ошибки в snake_case.
func Fail(code string) Response {
	return Response{Status: StatusError, ErrorCode: code}
}

// CommandProvider определяет контракт для модулей.
type CommandProvider interface {
	Name() string
	Init(ctx context.Context) error
	Execute(ctx context.Context, cmd string, args []string) (Response, error)
}

// CommandLister может реализовать модуль, чтобы перечислить свои команды.
type CommandLister interface {
	Commands() []string
}
