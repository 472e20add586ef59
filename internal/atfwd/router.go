package atfwd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var errRouteExists = errors.New("route already registered")

// Router направляет команды обработчикам по имени без учета регистра.
type Router struct {
	mu     sync.RWMutex
	routes map[string]Handler
}

// NewRouter создает пустой маршрутизатор.
func NewRouter() *Router {
	return &Router{routes: make(map[string]Handler)}
}

// Handle регистрирует обработчик для имени команды ("+CKPD").
func (r *Router) Handle(name string, h Handler) error {
	key := normalizeName(name)
	if key == "" || h == nil {
		return fmt.Errorf("route %q: %w", name, ErrInvalidCommand)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.routes[key]; exists {
		return fmt.Errorf("%s: %w", key, errRouteExists)
	}
	r.routes[key] = h
	return nil
}

// Names возвращает зарегистрированные имена.
func (r *Router) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.routes))
	for name := range r.routes {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// HandleCommand реализует Handler; неизвестная команда дает ResultError.
func (r *Router) HandleCommand(ctx context.Context, cmd *Command) (*Response, error) {
	if cmd == nil {
		return nil, fmt.Errorf("nil command: %w", ErrInvalidCommand)
	}
	r.mu.RLock()
	h, ok := r.routes[normalizeName(cmd.Name)]
	r.mu.RUnlock()
	if !ok {
		return &Response{Result: ResultError, Message: "unsupported command"}, nil
	}
	return h.HandleCommand(ctx, cmd)
}

// normalizeName приводит "at+ckpd" и "+ckpd" к "+CKPD".
func normalizeName(name string) string {
	n := strings.ToUpper(strings.TrimSpace(name))
	return strings.TrimPrefix(n, "AT")
}
