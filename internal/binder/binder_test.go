package binder

import (
	"context"
	"errors"
	"io"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hwshim/internal/parcel"
)

const echoDescriptor = "test.IEcho"

// echoStub возвращает полученную строку; код 2 завершается ошибкой.
type echoStub struct{}

func (echoStub) Descriptor() string { return echoDescriptor }

func (echoStub) OnTransact(ctx context.Context, code uint32, data *parcel.Reader, reply *parcel.Writer) error {
	switch code {
	case FirstCallTransaction:
		if err := EnforceInterface(data, echoDescriptor); err != nil {
			return err
		}
		s, _, err := data.ReadString16()
		if err != nil {
			return BadValue
		}
		reply.WriteInt32(ExNone)
		return reply.WriteString16(s)
	case FirstCallTransaction + 1:
		return errors.New("boom")
	default:
		return UnknownTransaction
	}
}

func echoRequest(t *testing.T, descriptor, s string) []byte {
	t.Helper()
	w := parcel.NewWriter()
	if err := w.WriteInterfaceToken(descriptor); err != nil {
		t.Fatalf("token: %v", err)
	}
	if err := w.WriteString16(s); err != nil {
		t.Fatalf("string: %v", err)
	}
	return w.Bytes()
}

func readEcho(t *testing.T, reply []byte) string {
	t.Helper()
	r := parcel.NewReader(reply)
	if code, err := r.ReadInt32(); err != nil || code != ExNone {
		t.Fatalf("exception code = %d err=%v", code, err)
	}
	s, _, err := r.ReadString16()
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	return s
}

func TestLocalManagerTransact(t *testing.T) {
	m := NewLocalManager()
	if err := m.AddService("echo", echoStub{}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := m.AddService("echo", echoStub{}); err == nil {
		t.Fatal("expected duplicate error")
	}
	ctx := context.Background()
	b, err := m.GetService(ctx, "echo")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	reply, err := b.Transact(ctx, FirstCallTransaction, echoRequest(t, echoDescriptor, "AT"))
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
	if got := readEcho(t, reply); got != "AT" {
		t.Fatalf("echo = %q", got)
	}
}

func TestLocalManagerStatuses(t *testing.T) {
	m := NewLocalManager()
	_ = m.AddService("echo", echoStub{})
	ctx := context.Background()

	if _, err := m.GetService(ctx, "missing"); StatusOf(err) != NameNotFound {
		t.Fatalf("expected NameNotFound, got %v", err)
	}

	b, _ := m.GetService(ctx, "echo")
	if _, err := b.Transact(ctx, FirstCallTransaction, echoRequest(t, "other.IFace", "x")); StatusOf(err) != BadType {
		t.Fatalf("expected BadType, got %v", err)
	}
	if _, err := b.Transact(ctx, FirstCallTransaction+1, nil); StatusOf(err) != FailedTransaction {
		t.Fatalf("expected FailedTransaction, got %v", err)
	}
	if _, err := b.Transact(ctx, 99, nil); StatusOf(err) != UnknownTransaction {
		t.Fatalf("expected UnknownTransaction, got %v", err)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := b.Transact(canceled, FirstCallTransaction, echoRequest(t, echoDescriptor, "x")); StatusOf(err) != TimedOut {
		t.Fatalf("expected TimedOut, got %v", err)
	}
}

func TestStatusError(t *testing.T) {
	if StatusOf(nil) != OK {
		t.Fatal("nil error must be OK")
	}
	if StatusOf(errors.New("x")) != UnknownError {
		t.Fatal("plain error must be UnknownError")
	}
	if !strings.Contains(DeadObject.Error(), "DEAD_OBJECT") {
		t.Fatalf("unexpected text: %s", DeadObject.Error())
	}
	if DeadObject != -32 {
		t.Fatalf("DeadObject = %d, want -32", int32(DeadObject))
	}
}

func TestSocketServerClient(t *testing.T) {
	m := NewLocalManager()
	_ = m.AddService("echo", echoStub{})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	socket := filepath.Join(t.TempDir(), "binder.sock")
	srv, err := NewServer(ctx, socket, m, nil)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping socket test: %v", err)
		}
		t.Fatalf("NewServer: %v", err)
	}
	srv.Serve()

	client, err := Dial(socket)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	if got := client.ListServices(); len(got) != 1 || got[0] != "echo" {
		t.Fatalf("services = %v", got)
	}
	if _, err := client.GetService(ctx, "missing"); StatusOf(err) != NameNotFound {
		t.Fatalf("expected NameNotFound, got %v", err)
	}
	if err := client.AddService("x", echoStub{}); StatusOf(err) != InvalidOperation {
		t.Fatalf("expected InvalidOperation, got %v", err)
	}

	b, err := client.GetService(ctx, "echo")
	if err != nil {
		t.Fatalf("GetService: %v", err)
	}
	callCtx, callCancel := context.WithTimeout(ctx, 5*time.Second)
	defer callCancel()
	reply, err := b.Transact(callCtx, FirstCallTransaction, echoRequest(t, echoDescriptor, "ключ"))
	if err != nil {
		t.Fatalf("Transact: %v", err)
	}
	if got := readEcho(t, reply); got != "ключ" {
		t.Fatalf("echo = %q", got)
	}
	if _, err := b.Transact(callCtx, 99, nil); StatusOf(err) != UnknownTransaction {
		t.Fatalf("expected UnknownTransaction over socket, got %v", err)
	}

	if err := srv.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := b.Transact(callCtx, FirstCallTransaction, echoRequest(t, echoDescriptor, "x")); StatusOf(err) != DeadObject {
		t.Fatalf("expected DeadObject after close, got %v", err)
	}
}

func TestServerRejectsConnAfterClose(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "binder.sock")
	srv, err := NewServer(context.Background(), socket, NewLocalManager(), nil)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping socket test: %v", err)
		}
		t.Fatalf("NewServer: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	local, remote := net.Pipe()
	defer remote.Close()
	if srv.track(local, true) {
		t.Fatal("connection accepted after Close must not be tracked")
	}
	if _, err := local.Read(make([]byte, 1)); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("late connection left open: %v", err)
	}
	if len(srv.conns) != 0 {
		t.Fatalf("conns = %d", len(srv.conns))
	}
}
