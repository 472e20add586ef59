package atfwd

import (
	"testing"
	"unsafe"
)

func sameBacking(a, b string) bool {
	return len(a) > 0 && len(b) > 0 && unsafe.StringData(a) == unsafe.StringData(b)
}

func TestCloneDeepCopies(t *testing.T) {
	orig := &Command{Opcode: 3, Name: "+CKPD", Tokens: []string{"1", "abc", "é"}}
	cp := orig.Clone()

	if cp == orig {
		t.Fatal("clone must be a new record")
	}
	if cp.Opcode != orig.Opcode || cp.Name != orig.Name || len(cp.Tokens) != len(orig.Tokens) {
		t.Fatalf("clone differs: %v vs %v", cp, orig)
	}
	for i := range orig.Tokens {
		if cp.Tokens[i] != orig.Tokens[i] {
			t.Fatalf("token %d = %q, want %q", i, cp.Tokens[i], orig.Tokens[i])
		}
		if sameBacking(cp.Tokens[i], orig.Tokens[i]) {
			t.Fatalf("token %d aliases the original", i)
		}
	}
	if sameBacking(cp.Name, orig.Name) {
		t.Fatal("name aliases the original")
	}

	cp.Tokens[0] = "changed"
	if orig.Tokens[0] != "1" {
		t.Fatal("mutating clone tokens changed the original")
	}
}

func TestCloneEmptyTokens(t *testing.T) {
	orig := &Command{Opcode: 1, Name: "+CFUN"}
	cp := orig.Clone()
	if cp == nil || cp.TokenCount() != 0 || cp.Name != "+CFUN" || cp.Opcode != 1 {
		t.Fatalf("unexpected clone: %v", cp)
	}
}

func TestNilCommandAndResponse(t *testing.T) {
	var c *Command
	if c.Clone() != nil {
		t.Fatal("clone of nil must be nil")
	}
	if c.TokenCount() != 0 || c.String() != "<nil>" {
		t.Fatal("nil command helpers must not fault")
	}
	var r *Response
	if r.String() != "<nil>" {
		t.Fatal("nil response helpers must not fault")
	}
}
