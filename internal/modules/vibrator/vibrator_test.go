package vibrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"hwshim/internal/core"
	"hwshim/internal/sysfs"
	hal "hwshim/internal/vibrator"
)

func TestOnOff(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "leds")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"state", "duration", "activate"} {
		if err := os.WriteFile(filepath.Join(dir, f), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	m := New(hal.New(sysfs.FS{Root: root}, "/leds", nil))
	ctx := context.Background()

	if _, err := m.Execute(ctx, "on", []string{"250"}); err != nil {
		t.Fatalf("on: %v", err)
	}
	got, _ := os.ReadFile(filepath.Join(dir, "duration"))
	if string(got) != "250\n\x00" {
		t.Fatalf("duration = %q", got)
	}
	if _, err := m.Execute(ctx, "off", nil); err != nil {
		t.Fatalf("off: %v", err)
	}
	got, _ = os.ReadFile(filepath.Join(dir, "activate"))
	if string(got) != "0\x00" {
		t.Fatalf("activate = %q", got)
	}
}

func TestBadDuration(t *testing.T) {
	m := New(hal.New(sysfs.FS{Root: t.TempDir()}, "", nil))
	for _, args := range [][]string{nil, {"-5"}, {"long"}} {
		resp, err := m.Execute(context.Background(), "on", args)
		if !errors.Is(err, core.ErrInvalidArguments) || resp.ErrorCode != "invalid_args" {
			t.Fatalf("args %v: %v %v", args, resp, err)
		}
	}
}

func TestMissingDevice(t *testing.T) {
	m := New(hal.New(sysfs.FS{Root: t.TempDir()}, "", nil))
	resp, err := m.Execute(context.Background(), "off", nil)
	if err == nil || resp.ErrorCode != "vibrator_failed" {
		t.Fatalf("expected failure, got %v %v", resp, err)
	}
}
