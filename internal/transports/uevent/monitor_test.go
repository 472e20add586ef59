package uevent

import (
	"context"
	"regexp"
	"sync"
	"testing"

	"github.com/pilebones/go-udev/netlink"

	"hwshim/internal/storage"
)

type memorySink struct {
	mu     sync.Mutex
	events []storage.AuditEvent
}

func (m *memorySink) Write(ctx context.Context, ev storage.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func TestHandleEventRecordsWatchedSubsystems(t *testing.T) {
	sink := &memorySink{}
	m := New(sink, []string{"memory", "power_supply"}, nil)
	ctx := context.Background()

	m.handleEvent(ctx, netlink.UEvent{
		Action: netlink.REMOVE,
		KObj:   "/devices/system/memory/memory3",
		Env: map[string]string{
			"SUBSYSTEM": "memory",
			"DEVPATH":   "/devices/system/memory/memory3",
		},
	})
	m.handleEvent(ctx, netlink.UEvent{
		Action: netlink.CHANGE,
		KObj:   "/devices/platform/battery/power_supply/battery",
		Env:    map[string]string{"SUBSYSTEM": "power_supply"},
	})
	m.handleEvent(ctx, netlink.UEvent{
		Action: netlink.ADD,
		KObj:   "/devices/virtual/block/loop0",
		Env:    map[string]string{"SUBSYSTEM": "block"},
	})

	if len(sink.events) != 2 {
		t.Fatalf("events = %d, want 2", len(sink.events))
	}
	first := sink.events[0]
	if first.Action != "memory:remove" || first.Subject != "/devices/system/memory/memory3" || first.Source != Source {
		t.Fatalf("first = %+v", first)
	}
	if second := sink.events[1]; second.Subject != "/devices/platform/battery/power_supply/battery" {
		t.Fatalf("second subject = %q", second.Subject)
	}
}

func TestStartWithoutSubsystemsIsNoop(t *testing.T) {
	m := New(nil, nil, nil)
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestSubsystemPatternQuotesNames(t *testing.T) {
	re := regexp.MustCompile(subsystemPattern([]string{"power_supply", "usb.gadget", "c++"}))
	cases := map[string]bool{
		"power_supply":  true,
		"usb.gadget":    true,
		"c++":           true,
		"usbxgadget":    false,
		"cc":            false,
		"power_supply2": false,
	}
	for name, want := range cases {
		if got := re.MatchString(name); got != want {
			t.Fatalf("%q matched=%v, want %v", name, got, want)
		}
	}
}
