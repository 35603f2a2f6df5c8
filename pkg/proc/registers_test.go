package proc

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestRegistersGetSet(t *testing.T) {
	var regs Registers
	for i, name := range RegisterNames {
		if err := regs.Set(name, uint64(i+1)); err != nil {
			t.Fatalf("set %s: %v", name, err)
		}
	}
	for i, name := range RegisterNames {
		v, err := regs.Get(name)
		if err != nil {
			t.Fatalf("get %s: %v", name, err)
		}
		if v != uint64(i+1) {
			t.Errorf("%s = %d, expected %d", name, v, i+1)
		}
	}
	if regs.Eflags != uint64(len(RegisterNames)) {
		t.Errorf("flags not mapped to eflags: %d", regs.Eflags)
	}
	if regs.PC() != regs.Rip {
		t.Error("PC mismatch")
	}
}

func TestRegistersUnknown(t *testing.T) {
	var regs Registers
	_, err := regs.Get("eax")
	var ure *UnknownRegisterError
	if !errors.As(err, &ure) || ure.Name != "eax" {
		t.Fatalf("expected UnknownRegisterError, got %v", err)
	}
	if err := regs.Set("cs", 1); err == nil {
		t.Fatal("set of unsupported register succeeded")
	}
}

func TestRegistersFormat(t *testing.T) {
	regs := Registers{Rax: 0x1c, Rip: 0x401000, Eflags: 0x246, Rsp: 0x7ffe3a3a5f20}
	var buf bytes.Buffer
	regs.Format(&buf)
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "RAX 1c                RBX 0 ") {
		t.Errorf("bad first row %q", lines[0])
	}
	if !strings.Contains(lines[3], "RSP 7ffe3a3a5f20") {
		t.Errorf("bad fourth row %q", lines[3])
	}
	if lines[4] != "RIP 401000            FLAGS 0000000000000246" {
		t.Errorf("bad last row %q", lines[4])
	}
}

func TestParseRegisterValue(t *testing.T) {
	for _, tc := range []struct {
		in  string
		out uint64
	}{
		{"0x4000b0", 0x4000b0},
		{"0X10", 16},
		{"0b101", 5},
		{"42", 42},
		{"18446744073709551615", 1<<64 - 1},
	} {
		v, err := ParseRegisterValue(tc.in)
		if err != nil || v != tc.out {
			t.Errorf("ParseRegisterValue(%q) = %d, %v", tc.in, v, err)
		}
	}
	for _, in := range []string{"", "0x", "abc", "-1", "0b2"} {
		if _, err := ParseRegisterValue(in); err == nil {
			t.Errorf("ParseRegisterValue(%q) succeeded", in)
		}
	}
}
