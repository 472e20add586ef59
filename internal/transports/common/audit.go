package common

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// NewRequestID возвращает идентификатор запроса для аудита и логов.
func NewRequestID() string {
	return uuid.NewString()
}

// WithRequestID сохраняет идентификатор запроса в контексте.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID достает идентификатор из контекста или создает новый.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return NewRequestID()
}

func buildAuditPayload(module, command string, args []string, errorCode string) []byte {
	body := map[string]any{
		"module":  module,
		"command": command,
		"args":    args,
	}
	if errorCode != "" {
		body["error_code"] = errorCode
	}
	payload, _ := json.Marshal(body)
	return payload
}
