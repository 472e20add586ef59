// Package console принимает текстовые команды построчно, например из stdin или pipe.
package console

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"hwshim/internal/core"
	"hwshim/internal/transports/common"
)

// Adapter читает команды вида "/module command args" и пишет ответы JSON-строками.
type Adapter struct {
	svc     *common.Service
	subject string
	in      io.Reader
	out     io.Writer

	mu      sync.Mutex
	outMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewAdapter создает консольный адаптер; subject задает ID оператора для allowlist.
func NewAdapter(svc *common.Service, subject string, in io.Reader, out io.Writer) *Adapter {
	return &Adapter{svc: svc, subject: subject, in: in, out: out}
}

func (a *Adapter) Name() string { return "console" }

func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return errors.New("console transport already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.running = true
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.loop(runCtx, a.done)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.cancel()
	done := a.done
	a.mu.Unlock()

	// Чтение из stdin не прерывается; ждем только до дедлайна.
	select {
	case <-done:
	case <-ctx.Done():
	}
	return nil
}

// Done закрывается, когда вход исчерпан или транспорт остановлен.
func (a *Adapter) Done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.done
}

func (a *Adapter) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	sc := bufio.NewScanner(a.in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		a.reply(a.handleLine(ctx, line))
	}
}

func (a *Adapter) handleLine(ctx context.Context, line string) any {
	if line == "/help" || line == "help" {
		mods := map[string][]string{}
		for _, name := range a.svc.Registry.Providers() {
			cmds, _ := a.svc.Registry.Commands(name)
			mods[name] = cmds
		}
		return map[string]any{"status": core.StatusOK, "data": mods}
	}
	resp, err := a.HandleCommand(ctx, a.subject, line)
	out := map[string]any{"status": resp.Status, "data": resp.Data, "error_code": resp.ErrorCode}
	if err != nil {
		out["status"] = core.StatusError
		out["message"] = err.Error()
	}
	return out
}

func (a *Adapter) reply(v any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"status":"error","message":%q}`, err.Error()))
	}
	_, _ = a.out.Write(append(data, '\n'))
}

// HandleCommand принимает команду в текстовом формате и исполняет через core.
func (a *Adapter) HandleCommand(ctx context.Context, subjectID, text string) (core.Response, error) {
	return a.svc.ExecuteText(ctx, subjectID, text)
}
