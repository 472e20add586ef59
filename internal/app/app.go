package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"hwshim/internal/binder"
	"hwshim/internal/config"
	"hwshim/internal/core"
	atfwdmod "hwshim/internal/modules/atfwd"
	"hwshim/internal/modules/device"
	powermod "hwshim/internal/modules/power"
	vibratormod "hwshim/internal/modules/vibrator"
	wmmod "hwshim/internal/modules/wm"
	"hwshim/internal/power"
	"hwshim/internal/storage"
	"hwshim/internal/storage/sqlite"
	"hwshim/internal/sysfs"
	"hwshim/internal/sysprop"
	"hwshim/internal/transports/common"
	"hwshim/internal/transports/console"
	"hwshim/internal/transports/ipc"
	"hwshim/internal/transports/uevent"
	"hwshim/internal/transports/web"
	"hwshim/internal/vibrator"
	"hwshim/pkg/logger"
)

// App агрегирует зависимости ядра.
type App struct {
	Registry   *core.Registry
	Transports *core.TransportManager
	Authorizer core.Authorizer
	Store      storage.Store
	Config     config.Config
	Logger     *slog.Logger

	// Services указывает на локальный менеджер либо клиент удаленного демона.
	Services binder.ServiceManager
	Power    *power.Controller

	device  *device.Module
	limiter *common.RateLimiter
	remote  *binder.Client
	ipc     *ipc.Adapter
}

// NewApp строит приложение: HAL, реестр модулей, хранилище и сервисы binder.
func NewApp(ctx context.Context, cfg config.Config, lg *slog.Logger) (*App, error) {
	if lg == nil {
		lg = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	a := &App{
		Registry:   core.NewRegistry(),
		Transports: core.NewTransportManager(),
		Authorizer: core.NewAllowlistAuthorizer(cfg.Security.AuthAllowlist),
		Config:     cfg,
		Logger:     lg,
		device:     &device.Module{},
	}
	if cfg.Security.RateLimit.Tokens > 0 {
		a.limiter = common.NewRateLimiter(cfg.Security.RateLimit.Tokens,
			time.Duration(cfg.Security.RateLimit.IntervalSeconds)*time.Second)
	}

	props, err := sysprop.Load(cfg.Properties.Files...)
	if err != nil {
		return nil, fmt.Errorf("load properties: %w", err)
	}
	fs := sysfs.FS{Root: cfg.Sysfs.Root}
	a.Power = power.New(fs, props, logger.Component(lg, "power"))
	vib := vibrator.New(fs, cfg.Vibrator.LEDDir, logger.Component(lg, "vibrator"))

	var local *binder.LocalManager
	if cfg.IPC.RemoteSocket != "" {
		client, err := binder.Dial(cfg.IPC.RemoteSocket)
		if err != nil {
			return nil, fmt.Errorf("connect to %s: %w", cfg.IPC.RemoteSocket, err)
		}
		a.remote = client
		a.Services = client
	} else {
		local = binder.NewLocalManager()
		a.Services = local
	}

	st, err := sqlite.Open(cfg.SQLite.Path)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.Store = st

	providers := []core.CommandProvider{
		a.device,
		powermod.New(a.Power),
		vibratormod.New(vib),
		atfwdmod.New(a.Services, logger.Component(lg, "atfwd")),
		wmmod.New(a.Services),
	}
	for _, p := range providers {
		if err := a.Registry.Register(ctx, p); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("register %s module: %w", p.Name(), err)
		}
	}

	// Сервисы публикуются сразу: модули atfwd и wm вызывают их и без сокета.
	// Сокет открывается только в Serve.
	if local != nil {
		a.ipc, err = ipc.NewAdapter(cfg.IPC.SocketPath, local, a.Service("ipc"), cfg.AtFwd.Routes, logger.Component(lg, "ipc"))
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("publish ipc services: %w", err)
		}
	}
	return a, nil
}

// Service возвращает пайплайн команд для транспорта source.
func (a *App) Service(source string) *common.Service {
	return &common.Service{
		Source:      source,
		Registry:    a.Registry,
		Authorizer:  a.Authorizer,
		RateLimiter: a.limiter,
		AuditSink:   a.Store,
		Logger:      logger.Component(a.Logger, source),
	}
}

// Close высвобождает ресурсы приложения.
func (a *App) Close() error {
	var errs []error
	if a.remote != nil {
		errs = append(errs, a.remote.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}

// Serve запускает транспорты и периодические задачи до отмены контекста.
func (a *App) Serve(ctx context.Context) error {
	lock, err := a.lock()
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	if a.ipc != nil {
		if err := a.Transports.Register(a.ipc); err != nil {
			return fmt.Errorf("register ipc transport: %w", err)
		}
	}
	if a.Config.UEvent.Enabled {
		mon := uevent.New(a.Store, a.Config.UEvent.Subsystems, logger.Component(a.Logger, "uevent"))
		if err := a.Transports.Register(mon); err != nil {
			return fmt.Errorf("register uevent monitor: %w", err)
		}
	}
	if a.Config.Web.Enabled {
		cfg := a.Config.Web
		webAdapter := web.NewAdapter(a.Service("web"), a.Store, web.Config{
			ListenAddr:         cfg.ListenAddr,
			ReadTimeout:        time.Duration(cfg.ReadTimeoutMS) * time.Millisecond,
			WriteTimeout:       time.Duration(cfg.WriteTimeoutMS) * time.Millisecond,
			RequestTimeout:     time.Duration(cfg.RequestTimeoutMS) * time.Millisecond,
			ShutdownTimeout:    time.Duration(cfg.ShutdownTimeoutS) * time.Second,
			MaxRequestBody:     cfg.MaxBodyBytes,
			AllowSubjectHeader: cfg.AllowSubjectHeader,
			Tokens:             cfg.Tokens,
		}, logger.Component(a.Logger, "web"))
		if err := a.Transports.Register(webAdapter); err != nil {
			return fmt.Errorf("register web transport: %w", err)
		}
	}

	if err := a.Transports.StartAll(ctx); err != nil {
		return fmt.Errorf("start transports: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Transports.StopAll(stopCtx); err != nil {
			a.Logger.Warn("stop transports", "error", err)
		}
	}()
	a.Logger.Info("hwshim serving", "services", a.Services.ListServices(), "modules", a.Registry.Providers())

	sched := core.NewScheduler(time.Duration(a.Config.Scheduler.IntervalSeconds)*time.Second, logger.Component(a.Logger, "scheduler"))
	sched.Add("snapshot", a.Snapshot)
	if a.Config.SQLite.RetentionDays > 0 {
		sched.Add("retention", a.prune)
	}
	if a.limiter != nil {
		sched.Add("limiter-sweep", func(context.Context) error {
			a.limiter.Sweep(time.Now())
			return nil
		})
	}
	sched.Start(ctx)
	return nil
}

// RunConsole читает команды из in до конца ввода или отмены контекста.
func (a *App) RunConsole(ctx context.Context, in io.Reader, out io.Writer) error {
	tr := console.NewAdapter(a.Service("console"), a.Config.Agent.Operator, in, out)
	if err := tr.Start(ctx); err != nil {
		return err
	}
	select {
	case <-tr.Done():
	case <-ctx.Done():
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return tr.Stop(stopCtx)
}

// Snapshot сохраняет состояние устройства и питания как метрики.
func (a *App) Snapshot(ctx context.Context) error {
	runCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	dev, err := a.device.Snapshot(runCtx)
	if err != nil {
		return fmt.Errorf("device snapshot: %w", err)
	}
	records := map[string]any{"device": dev, "power": a.Power.Status()}
	for module, data := range records {
		payload, err := sqlite.MarshalPayload(data)
		if err != nil {
			return err
		}
		if err := a.Store.SaveMetric(ctx, storage.MetricRecord{Module: module, Payload: payload}); err != nil {
			return fmt.Errorf("save %s metric: %w", module, err)
		}
	}
	return nil
}

func (a *App) prune(ctx context.Context) error {
	before := time.Now().AddDate(0, 0, -a.Config.SQLite.RetentionDays)
	n, err := a.Store.PruneBefore(ctx, before)
	if err != nil {
		return err
	}
	if n > 0 {
		a.Logger.Info("retention pruned rows", "rows", n, "before", before)
	}
	return nil
}

func (a *App) lock() (*flock.Flock, error) {
	path := a.Config.IPC.LockPath
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, errors.New("another hwshim daemon instance is already running")
	}
	return lock, nil
}
