// Package ipc публикует сервисы пересылки AT-команд и оконного менеджера
// в binder.LocalManager и, если задан сокет, открывает их другим процессам.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"hwshim/internal/atfwd"
	"hwshim/internal/binder"
	"hwshim/internal/config"
	"hwshim/internal/storage"
	"hwshim/internal/transports/common"
	"hwshim/internal/wm"
)

// Subject задает ID, под которым AT-маршруты проходят allowlist.
const Subject = "atfwd"

// Adapter реализует core.TransportAdapter.
type Adapter struct {
	socketPath string
	manager    *binder.LocalManager
	svc        *common.Service
	logger     *slog.Logger

	mu     sync.Mutex
	server *binder.Server
}

// NewAdapter строит маршрутизатор AT-команд из routes ("+CKPD" -> "wm press")
// и публикует сервисы в manager. Пустой socketPath оставляет их только внутри процесса.
func NewAdapter(socketPath string, manager *binder.LocalManager, svc *common.Service, routes map[string]string, logger *slog.Logger) (*Adapter, error) {
	if manager == nil || svc == nil {
		return nil, errors.New("ipc transport requires service manager and command service")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	a := &Adapter{socketPath: socketPath, manager: manager, svc: svc, logger: logger}

	router := atfwd.NewRouter()
	for name, target := range routes {
		module, command, err := config.ParseRoute(target)
		if err != nil {
			return nil, fmt.Errorf("atfwd route %s: %w", name, err)
		}
		if err := router.Handle(name, a.route(module, command)); err != nil {
			return nil, err
		}
	}
	if err := manager.AddService(atfwd.ServiceName, atfwd.NewStub(router, logger)); err != nil {
		return nil, fmt.Errorf("publish %s: %w", atfwd.ServiceName, err)
	}
	if err := manager.AddService(wm.ServiceName, wm.NewStub(wm.KeyInjectorFunc(a.injectKey), logger)); err != nil {
		return nil, fmt.Errorf("publish %s: %w", wm.ServiceName, err)
	}
	logger.Debug("ipc services published", "services", manager.ListServices(), "routes", router.Names())
	return a, nil
}

func (a *Adapter) Name() string { return "ipc" }

func (a *Adapter) Start(ctx context.Context) error {
	if a.socketPath == "" {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		return errors.New("ipc transport already started")
	}
	srv, err := binder.NewServer(ctx, a.socketPath, a.manager, a.logger)
	if err != nil {
		return err
	}
	srv.Serve()
	a.server = srv
	a.logger.Info("ipc transport started", "socket", a.socketPath)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	srv := a.server
	a.server = nil
	a.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Close()
}

// route исполняет AT-команду как команду модуля; токены становятся аргументами.
func (a *Adapter) route(module, command string) atfwd.Handler {
	return atfwd.HandlerFunc(func(ctx context.Context, cmd *atfwd.Command) (*atfwd.Response, error) {
		resp, err := a.svc.Execute(ctx, Subject, module, command, cmd.Tokens)
		if err != nil {
			return &atfwd.Response{Result: atfwd.ResultError, Message: err.Error()}, nil
		}
		msg := ""
		if resp.Data != nil {
			data, mErr := json.Marshal(resp.Data)
			if mErr != nil {
				return nil, fmt.Errorf("encode %s %s result: %w", module, command, mErr)
			}
			msg = string(data)
		}
		return &atfwd.Response{Result: atfwd.ResultOK, Message: msg}, nil
	})
}

// injectKey фиксирует событие клавиши в аудите; источника ввода у демона нет.
func (a *Adapter) injectKey(ctx context.Context, keycode int32, down bool) error {
	a.logger.Debug("key event", "keycode", keycode, "down", down)
	if a.svc.AuditSink == nil {
		return nil
	}
	payload, _ := json.Marshal(map[string]any{"keycode": keycode, "down": down})
	return a.svc.AuditSink.Write(ctx, storage.AuditEvent{
		Subject:   wm.ServiceName,
		Action:    "wm:key",
		Source:    a.Name(),
		Status:    "ok",
		RequestID: common.RequestID(ctx),
		Payload:   payload,
	})
}
