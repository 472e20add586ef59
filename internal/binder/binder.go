// Package binder описывает транспорт request/reply между процессами и его
// реализации: внутри процесса (LocalManager) и через unix-сокет (Server/Client).
package binder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"hwshim/internal/parcel"
)

// FirstCallTransaction задает код первой пользовательской транзакции интерфейса.
const FirstCallTransaction uint32 = 1

// Binder принимает одну блокирующую транзакцию удаленного объекта.
type Binder interface {
	Transact(ctx context.Context, code uint32, data []byte) ([]byte, error)
}

// Stub обслуживает интерфейс на серверной стороне.
type Stub interface {
	Descriptor() string
	OnTransact(ctx context.Context, code uint32, data *parcel.Reader, reply *parcel.Writer) error
}

// ServiceManager находит сервисы по имени.
type ServiceManager interface {
	GetService(ctx context.Context, name string) (Binder, error)
	AddService(name string, stub Stub) error
	ListServices() []string
}

var errServiceExists = errors.New("service already registered")

// EnforceInterface проверяет заголовок запроса.
func EnforceInterface(r *parcel.Reader, descriptor string) error {
	got, err := r.ReadInterfaceToken()
	if err != nil {
		return fmt.Errorf("read interface token: %w", BadValue)
	}
	if got != descriptor {
		return fmt.Errorf("interface %q, want %q: %w", got, descriptor, BadType)
	}
	return nil
}

// LocalManager реализует ServiceManager внутри процесса.
type LocalManager struct {
	mu    sync.RWMutex
	stubs map[string]Stub
}

// NewLocalManager создает пустой менеджер сервисов.
func NewLocalManager() *LocalManager {
	return &LocalManager{stubs: make(map[string]Stub)}
}

// AddService публикует stub под именем; имена уникальны.
func (m *LocalManager) AddService(name string, stub Stub) error {
	if name == "" || stub == nil {
		return fmt.Errorf("add service %q: %w", name, BadValue)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.stubs[name]; exists {
		return fmt.Errorf("%s: %w", name, errServiceExists)
	}
	m.stubs[name] = stub
	return nil
}

func (m *LocalManager) GetService(ctx context.Context, name string) (Binder, error) {
	m.mu.RLock()
	stub, ok := m.stubs[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("service %s: %w", name, NameNotFound)
	}
	return &localBinder{stub: stub}, nil
}

func (m *LocalManager) ListServices() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.stubs))
	for name := range m.stubs {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)
	return names
}

// transact выполняет транзакцию сервиса по имени; используется сокет-сервером.
func (m *LocalManager) transact(ctx context.Context, name string, code uint32, data []byte) ([]byte, error) {
	b, err := m.GetService(ctx, name)
	if err != nil {
		return nil, err
	}
	return b.Transact(ctx, code, data)
}

type localBinder struct {
	stub Stub
}

func (b *localBinder) Transact(ctx context.Context, code uint32, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, TimedOut)
	}
	reply := parcel.NewWriter()
	if err := b.stub.OnTransact(ctx, code, parcel.NewReader(data), reply); err != nil {
		var st Status
		if errors.As(err, &st) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %v: %w", b.stub.Descriptor(), err, FailedTransaction)
	}
	return reply.Bytes(), nil
}
