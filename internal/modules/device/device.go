// Package device отдает сведения об устройстве, на котором работает демон.
package device

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"hwshim/internal/core"
)

// Module предоставляет базовые метрики устройства.
type Module struct{}

func (m *Module) Name() string { return "device" }

func (m *Module) Init(ctx context.Context) error { //nolint:revive // инициализация пока тривиальна
	return nil
}

func (m *Module) Commands() []string { return []string{"status", "uptime"} }

func (m *Module) Execute(ctx context.Context, cmd string, args []string) (core.Response, error) {
	switch cmd {
	case "status":
		return m.status(ctx)
	case "uptime":
		up, err := host.UptimeWithContext(ctx)
		if err != nil {
			return core.Fail("host_info_failed"), fmt.Errorf("uptime: %w", err)
		}
		return core.OK(map[string]any{"uptime_sec": up}), nil
	default:
		return core.Fail("unknown_command"), fmt.Errorf("command %s: %w", cmd, core.ErrUnknownCommand)
	}
}

// Snapshot собирает состояние для периодического сохранения.
func (m *Module) Snapshot(ctx context.Context) (map[string]any, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("memory info: %w", err)
	}
	ld, err := load.AvgWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("load info: %w", err)
	}
	return map[string]any{
		"mem_used_pct": vm.UsedPercent,
		"load1":        ld.Load1,
	}, nil
}

func (m *Module) status(ctx context.Context) (core.Response, error) {
	hInfo, err := host.InfoWithContext(ctx)
	if err != nil {
		return core.Fail("host_info_failed"), fmt.Errorf("host info: %w", err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return core.Fail("mem_info_failed"), fmt.Errorf("memory info: %w", err)
	}
	ld, err := load.AvgWithContext(ctx)
	if err != nil {
		return core.Fail("load_info_failed"), fmt.Errorf("load info: %w", err)
	}
	return core.OK(map[string]any{
		"hostname":     hInfo.Hostname,
		"platform":     hInfo.Platform,
		"kernel":       hInfo.KernelVersion,
		"kernel_arch":  hInfo.KernelArch,
		"uptime_sec":   hInfo.Uptime,
		"boot_time":    time.Unix(int64(hInfo.BootTime), 0).UTC().Format(time.RFC3339),
		"mem_total":    vm.Total,
		"mem_used_pct": vm.UsedPercent,
		"load1":        ld.Load1,
		"load5":        ld.Load5,
		"load15":       ld.Load15,
	}), nil
}
