package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrUnknownProvider  = errors.New("unknown provider")
	ErrUnknownCommand   = errors.New("unknown command")
	ErrInvalidArguments = errors.New("invalid arguments")

	errProviderExists = errors.New("provider already registered")
)

// Registry хранит зарегистрированные модули и выполняет команды.
// Безопасен для вызова из нескольких транспортов одновременно.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]CommandProvider
}

// NewRegistry создает пустой реестр модулей.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]CommandProvider)}
}

// Register добавляет модуль; имя должно быть уникальным.
func (r *Registry) Register(ctx context.Context, provider CommandProvider) error {
	if provider == nil {
		return fmt.Errorf("provider is nil: %w", ErrInvalidArguments)
	}
	name := provider.Name()
	if name == "" {
		return fmt.Errorf("provider name is empty: %w", ErrInvalidArguments)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("%s: %w", name, errProviderExists)
	}
	if err := provider.Init(ctx); err != nil {
		return fmt.Errorf("init %s: %w", name, err)
	}
	r.providers[name] = provider
	return nil
}

// Execute вызывает модуль по имени.
func (r *Registry) Execute(ctx context.Context, module, cmd string, args []string) (Response, error) {
	r.mu.RLock()
	prov, ok := r.providers[module]
	r.mu.RUnlock()
	if !ok {
		return Fail("module_not_found"), fmt.Errorf("%s: %w", module, ErrUnknownProvider)
	}
	return prov.Execute(ctx, cmd, args)
}

// Providers возвращает отсортированный список зарегистрированных модулей.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Commands возвращает команды модуля, если он их перечисляет.
func (r *Registry) Commands(module string) ([]string, error) {
	r.mu.RLock()
	prov, ok := r.providers[module]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", module, ErrUnknownProvider)
	}
	lister, ok := prov.(CommandLister)
	if !ok {
		return nil, nil
	}
	return lister.Commands(), nil
}
