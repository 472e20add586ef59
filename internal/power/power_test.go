package power

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"hwshim/internal/sysfs"
	"hwshim/internal/sysprop"
)

func mkNodes(t *testing.T, root string, nodes ...string) {
	t.Helper()
	for _, n := range nodes {
		p := filepath.Join(root, n)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func readNode(t *testing.T, root, node string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, node))
	if err != nil {
		t.Fatalf("read %s: %v", node, err)
	}
	return string(data)
}

func newPathsRoot(t *testing.T) string {
	root := t.TempDir()
	mkNodes(t, root, newPaths.wakeLock, newPaths.wakeUnlock, newPaths.state)
	return root
}

func TestWakeLockLifecycle(t *testing.T) {
	root := newPathsRoot(t)
	c := New(sysfs.FS{Root: root}, nil, nil)
	ctx := context.Background()

	if err := c.AcquireWakeLock(ctx, PartialWakeLock, "radio"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if got := readNode(t, root, newPaths.wakeLock); got != "radio" {
		t.Fatalf("wake_lock = %q", got)
	}
	// Повторный захват не пишет в узел.
	if err := os.WriteFile(filepath.Join(root, newPaths.wakeLock), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.AcquireWakeLock(ctx, PartialWakeLock, "radio"); err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	if got := readNode(t, root, newPaths.wakeLock); got != "" {
		t.Fatalf("re-acquire wrote %q", got)
	}

	if err := c.AcquireWakeLock(ctx, PartialWakeLock, "audio"); err != nil {
		t.Fatalf("acquire audio: %v", err)
	}
	if got := c.HeldWakeLocks(); !reflect.DeepEqual(got, []string{"audio", "radio"}) {
		t.Fatalf("held = %v", got)
	}

	if err := c.ReleaseWakeLock(ctx, "radio"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got := readNode(t, root, newPaths.wakeUnlock); got != "radio" {
		t.Fatalf("wake_unlock = %q", got)
	}
	if err := c.ReleaseWakeLock(ctx, "radio"); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("expected ErrNotHeld, got %v", err)
	}
}

func TestAcquireRejectsFullLock(t *testing.T) {
	c := New(sysfs.FS{Root: newPathsRoot(t)}, nil, nil)
	if err := c.AcquireWakeLock(context.Background(), FullWakeLock, "x"); !errors.Is(err, ErrUnsupportedLock) {
		t.Fatalf("expected ErrUnsupportedLock, got %v", err)
	}
	if err := c.AcquireWakeLock(context.Background(), PartialWakeLock, ""); !errors.Is(err, ErrEmptyID) {
		t.Fatalf("expected ErrEmptyID, got %v", err)
	}
}

func TestScreenStateNewPaths(t *testing.T) {
	root := newPathsRoot(t)
	c := New(sysfs.FS{Root: root}, nil, nil)
	if err := c.SetScreenState(context.Background(), false); err != nil {
		t.Fatalf("screen off: %v", err)
	}
	if got := readNode(t, root, newPaths.state); got != "mem" {
		t.Fatalf("state = %q", got)
	}
	if err := c.SetScreenState(context.Background(), true); err != nil {
		t.Fatalf("screen on: %v", err)
	}
	if got := readNode(t, root, newPaths.state); got != "on" {
		t.Fatalf("state = %q", got)
	}
	st := c.Status()
	if st.PathSet != "new" || st.ScreenOn == nil || !*st.ScreenOn {
		t.Fatalf("status = %+v", st)
	}
}

func TestFallbackToOldPaths(t *testing.T) {
	root := t.TempDir()
	mkNodes(t, root, oldPaths.wakeLock, oldPaths.wakeUnlock, oldPaths.state)
	c := New(sysfs.FS{Root: root}, nil, nil)

	if err := c.SetScreenState(context.Background(), false); err != nil {
		t.Fatalf("screen off: %v", err)
	}
	if got := readNode(t, root, oldPaths.state); got != "standby" {
		t.Fatalf("state = %q", got)
	}
	if err := c.AcquireWakeLock(context.Background(), PartialWakeLock, "gps"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if got := readNode(t, root, oldPaths.wakeLock); got != "gps" {
		t.Fatalf("acquire node = %q", got)
	}
	if st := c.Status(); st.PathSet != "old" {
		t.Fatalf("path set = %q", st.PathSet)
	}
}

func TestUnavailableIsSticky(t *testing.T) {
	root := t.TempDir()
	c := New(sysfs.FS{Root: root}, nil, nil)
	if err := c.SetScreenState(context.Background(), true); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	// Узлы появились позже, но выбор уже сделан.
	mkNodes(t, root, newPaths.wakeLock, newPaths.wakeUnlock, newPaths.state)
	if err := c.AcquireWakeLock(context.Background(), PartialWakeLock, "x"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected sticky ErrUnavailable, got %v", err)
	}
	if st := c.Status(); st.Error == "" {
		t.Fatal("status should report init error")
	}
}

func TestActivityTimeoutTruncates(t *testing.T) {
	root := t.TempDir()
	mkNodes(t, root, autoOffTimeoutPath)
	c := New(sysfs.FS{Root: root}, nil, nil)
	if err := c.SetLastUserActivityTimeout(context.Background(), 1<<32+15); err != nil {
		t.Fatalf("timeout: %v", err)
	}
	if got := readNode(t, root, autoOffTimeoutPath); got != "15" {
		t.Fatalf("auto_off_timeout = %q", got)
	}
}

func dmmProps() *sysprop.Store {
	s := sysprop.New()
	s.Set("ro.dev.dmm.sr.start_address", "0x30000000")
	s.Set("ro.dev.dmm.dpd.start_address", "0x38000000")
	s.Set("ro.dev.dmm.dpd.block", "7")
	return s
}

func TestEBI1SelfRefresh(t *testing.T) {
	root := t.TempDir()
	mkNodes(t, root, memoryDir+"/low_power", memoryDir+"/active")
	c := New(sysfs.FS{Root: root}, dmmProps(), nil)

	if err := c.SetEBI1SelfRefresh(context.Background(), true); err != nil {
		t.Fatalf("sr on: %v", err)
	}
	if got := readNode(t, root, memoryDir+"/low_power"); got != "0x30000000" {
		t.Fatalf("low_power = %q", got)
	}
	if err := c.SetEBI1SelfRefresh(context.Background(), false); err != nil {
		t.Fatalf("sr off: %v", err)
	}
	if got := readNode(t, root, memoryDir+"/active"); got != "0x30000000" {
		t.Fatalf("active = %q", got)
	}
}

func TestEBI1DeepPowerDownHotplug(t *testing.T) {
	root := t.TempDir()
	state := memoryDir + "/memory7/state"
	mkNodes(t, root, state, memoryDir+"/remove", memoryDir+"/probe")
	c := New(sysfs.FS{Root: root}, dmmProps(), nil)
	ctx := context.Background()

	if err := c.SetEBI1DeepPowerDown(ctx, true); err != nil {
		t.Fatalf("dpd on: %v", err)
	}
	if got := readNode(t, root, state); got != "offline" {
		t.Fatalf("state = %q", got)
	}
	if got := readNode(t, root, memoryDir+"/remove"); got != "0x38000000" {
		t.Fatalf("remove = %q", got)
	}

	if err := c.SetEBI1DeepPowerDown(ctx, false); err != nil {
		t.Fatalf("dpd off: %v", err)
	}
	if got := readNode(t, root, memoryDir+"/probe"); got != "0x38000000" {
		t.Fatalf("probe = %q", got)
	}
	if got := readNode(t, root, state); got != "online" {
		t.Fatalf("state = %q", got)
	}
}

func TestEBI1DeepPowerDownMissingBlock(t *testing.T) {
	root := t.TempDir()
	mkNodes(t, root, memoryDir+"/low_power", memoryDir+"/active")
	c := New(sysfs.FS{Root: root}, dmmProps(), nil)

	err := c.SetEBI1DeepPowerDown(context.Background(), true)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected missing state node error, got %v", err)
	}
	if got := readNode(t, root, memoryDir+"/low_power"); got != "" {
		t.Fatalf("low_power touched: %q", got)
	}
	if c.Status().LowPower {
		t.Fatal("low power flag must stay clear")
	}
}

func TestEBI1DeepPowerDownFallsBackToSelfRefresh(t *testing.T) {
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("/dev/full unavailable")
	}
	root := t.TempDir()
	mkNodes(t, root, memoryDir+"/low_power", memoryDir+"/active")
	// Запись в /dev/full всегда завершается ENOSPC: узел есть, но offline не принимается.
	state := filepath.Join(root, memoryDir, "memory7", "state")
	if err := os.MkdirAll(filepath.Dir(state), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("/dev/full", state); err != nil {
		t.Fatal(err)
	}
	c := New(sysfs.FS{Root: root}, dmmProps(), nil)
	ctx := context.Background()

	if err := c.SetEBI1DeepPowerDown(ctx, true); err != nil {
		t.Fatalf("dpd on: %v", err)
	}
	if got := readNode(t, root, memoryDir+"/low_power"); got != "0x38000000" {
		t.Fatalf("low_power = %q", got)
	}
	if !c.Status().LowPower {
		t.Fatal("expected low power flag")
	}

	if err := c.SetEBI1DeepPowerDown(ctx, false); err != nil {
		t.Fatalf("dpd off: %v", err)
	}
	if got := readNode(t, root, memoryDir+"/active"); got != "0x38000000" {
		t.Fatalf("active = %q", got)
	}
	if c.Status().LowPower {
		t.Fatal("expected low power flag cleared")
	}
}
