package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(`
agent:
  log_level: error
sqlite:
  path: %s
sysfs:
  root: %s
properties:
  files: [%s]
ipc:
  socket_path: ""
security:
  rate_limit:
    tokens: 0
`, filepath.Join(dir, "state.db"), filepath.Join(dir, "root"), filepath.Join(dir, "missing.prop"))
	path := filepath.Join(dir, "hwshim.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := New("1.2.3")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil || strings.TrimSpace(out) != "1.2.3" {
		t.Fatalf("version: %q %v", out, err)
	}
}

func TestModules(t *testing.T) {
	out, err := run(t, "--config", writeConfig(t), "modules")
	if err != nil {
		t.Fatalf("modules: %v", err)
	}
	var mods map[string][]string
	if err := json.Unmarshal([]byte(out), &mods); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(mods["power"]) == 0 || len(mods["atfwd"]) == 0 {
		t.Fatalf("modules = %v", mods)
	}
}

func TestExecAndAudit(t *testing.T) {
	cfg := writeConfig(t)
	out, err := run(t, "--config", cfg, "exec", "wm", "tap", "26")
	if err != nil {
		t.Fatalf("exec: %v (%s)", err, out)
	}
	if !strings.Contains(out, `"status": "ok"`) {
		t.Fatalf("exec output = %s", out)
	}

	if _, err := run(t, "--config", cfg, "exec", "--", "wm", "tap", "-1"); err == nil {
		t.Fatal("negative keycode must fail")
	}

	out, err = run(t, "--config", cfg, "audit", "--source", "console")
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	var events []map[string]any
	if err := json.Unmarshal([]byte(out), &events); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(events) != 2 {
		t.Fatalf("console audit events = %d", len(events))
	}
}
