package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hwshim/internal/atfwd"
	"hwshim/internal/config"
	"hwshim/internal/core"
	"hwshim/internal/storage"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "root")
	for _, n := range []string{"/sys/power/wake_lock", "/sys/power/wake_unlock", "/sys/power/state"} {
		p := filepath.Join(root, n)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := config.Default()
	cfg.Sysfs.Root = root
	cfg.SQLite.Path = filepath.Join(dir, "state.db")
	cfg.Properties.Files = nil
	cfg.IPC.SocketPath = ""
	cfg.Security.RateLimit.Tokens = 0

	a, err := NewApp(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNewAppWiring(t *testing.T) {
	a := newTestApp(t)
	want := "atfwd,device,power,vibrator,wm"
	if got := strings.Join(a.Registry.Providers(), ","); got != want {
		t.Fatalf("modules = %s, want %s", got, want)
	}
	if got := strings.Join(a.Services.ListServices(), ","); got != atfwd.ServiceName+",window" {
		t.Fatalf("services = %s", got)
	}
}

func TestConsoleRoutesATCommandToWindowManager(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	resp, err := a.Service("console").Execute(ctx, "operator", "atfwd", "send", []string{"0", "+CKPD", "26"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	at, ok := resp.Data.(*atfwd.Response)
	if !ok || at.Result != atfwd.ResultOK {
		t.Fatalf("response = %#v", resp.Data)
	}

	events, err := a.Store.QueryAudit(ctx, storage.AuditQuery{Source: "ipc", Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("ipc audit events = %d", len(events))
	}
}

func TestConsoleDeniesUnknownOperator(t *testing.T) {
	a := newTestApp(t)
	if _, err := a.Service("console").Execute(context.Background(), "guest", "power", "status", nil); err == nil {
		t.Fatal("expected denial")
	}
}

func TestSnapshotStoresMetrics(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	if err := a.Snapshot(ctx); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	rec, err := a.Store.LatestMetric(ctx, "power")
	if err != nil {
		t.Fatalf("latest power metric: %v", err)
	}
	if !strings.Contains(string(rec.Payload), `"path_set"`) {
		t.Fatalf("payload = %s", rec.Payload)
	}
	if _, err := a.Registry.Execute(ctx, "power", "status", nil); err != nil {
		t.Fatalf("power status: %v", err)
	}
	if _, err := a.Registry.Execute(ctx, "camera", "status", nil); err == nil || !strings.Contains(err.Error(), core.ErrUnknownProvider.Error()) {
		t.Fatalf("expected unknown provider, got %v", err)
	}
}
