package atfwd

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCommand: команда отсутствует или opcode отрицательный.
	ErrInvalidCommand = errors.New("invalid command")
	// ErrTransport: транзакция не выполнена, статус binder обернут в ошибку.
	ErrTransport = errors.New("transport failure")
	// ErrRemoteException: обработчик сообщил об исключении.
	ErrRemoteException = errors.New("remote exception")
	// ErrNoResult: обработчик выполнил команду без результата.
	ErrNoResult = errors.New("no result")
	// ErrMalformedReply: ответ не удалось разобрать.
	ErrMalformedReply = errors.New("malformed reply")
)

// RemoteException переносит исключение, переданное обработчиком в ответе.
type RemoteException struct {
	Code    int32
	Message string
}

func (e *RemoteException) Error() string {
	return fmt.Sprintf("remote exception %d: %s", e.Code, e.Message)
}

// Unwrap позволяет проверять errors.Is(err, ErrRemoteException).
func (e *RemoteException) Unwrap() error { return ErrRemoteException }
