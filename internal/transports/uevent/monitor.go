// Package uevent записывает события ядра (hotplug памяти, power_supply) в аудит.
package uevent

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"hwshim/internal/storage"
)

// Source записывается в поле Source событий аудита.
const Source = "uevent"

// Monitor реализует core.TransportAdapter поверх netlink-сокета uevent.
type Monitor struct {
	sink       storage.AuditSink
	subsystems []string
	logger     *slog.Logger

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// New создает монитор для перечисленных подсистем.
func New(sink storage.AuditSink, subsystems []string, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Monitor{sink: sink, subsystems: subsystems, logger: logger}
}

func (m *Monitor) Name() string { return Source }

// Start подключается к netlink. Без доступа к сокету монитор не работает,
// но демон продолжает запуск.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running || len(m.subsystems) == 0 {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.KernelEvent); err != nil {
		m.logger.Warn("netlink connect failed, uevents will not be recorded", "error", err)
		return nil
	}
	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	go m.loop(ctx, conn, m.quit)
	m.logger.Info("uevent monitor started", "subsystems", m.subsystems)
	return nil
}

func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	close(m.quit)
	m.quit = nil
	err := m.conn.Close()
	m.conn = nil
	m.running = false
	return err
}

func (m *Monitor) loop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, m.matcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case ev := <-queue:
			m.handleEvent(ctx, ev)
		case err := <-errs:
			m.logger.Warn("uevent monitor error", "error", err)
		}
	}
}

func (m *Monitor) matcher() netlink.Matcher {
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Env: map[string]string{"SUBSYSTEM": subsystemPattern(m.subsystems)},
	})
	return rules
}

// subsystemPattern строит регулярное выражение, совпадающее только с именами из списка.
func subsystemPattern(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = regexp.QuoteMeta(n)
	}
	return "^(" + strings.Join(quoted, "|") + ")$"
}

func (m *Monitor) handleEvent(ctx context.Context, ev netlink.UEvent) {
	subsystem := ev.Env["SUBSYSTEM"]
	if !slices.Contains(m.subsystems, subsystem) {
		m.logger.Debug("ignoring uevent", "subsystem", subsystem, "kobj", ev.KObj)
		return
	}
	device := ev.Env["DEVPATH"]
	if device == "" {
		device = ev.KObj
	}
	m.logger.Info("uevent", "action", string(ev.Action), "subsystem", subsystem, "device", device)
	if m.sink == nil {
		return
	}

	payload, _ := json.Marshal(ev.Env)
	err := m.sink.Write(ctx, storage.AuditEvent{
		Subject: device,
		Action:  subsystem + ":" + string(ev.Action),
		Source:  Source,
		Status:  "ok",
		Payload: payload,
	})
	if err != nil {
		m.logger.Warn("audit write failed", "device", device, "error", err)
	}
}
