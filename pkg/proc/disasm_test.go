package proc

import (
	"bytes"
	"strings"
	"testing"
)

func TestDecodeX86(t *testing.T) {
	code := []byte{
		0x55,             // push rbp
		0x48, 0x89, 0xe5, // mov rbp, rsp
		0x06,             // invalid in 64 bit mode
		0xc3,             // ret
	}
	insts := decodeX86(code, 0x401000)
	if len(insts) != 4 {
		t.Fatalf("expected 4 instructions, got %d", len(insts))
	}
	for i, tc := range []struct {
		addr uint64
		len  int
		text string
	}{
		{0x401000, 1, "push rbp"},
		{0x401001, 3, "mov rbp, rsp"},
		{0x401004, 1, badInstruction},
		{0x401005, 1, "ret"},
	} {
		inst := insts[i]
		if inst.Addr != tc.addr || inst.Len() != tc.len || inst.Text() != tc.text {
			t.Errorf("instruction %d: %#x %d %q, expected %#x %d %q", i, inst.Addr, inst.Len(), inst.Text(), tc.addr, tc.len, tc.text)
		}
	}
}

func TestSplitAsm(t *testing.T) {
	for _, tc := range []struct {
		in, mnemonic, operands string
	}{
		{"ret", "ret", ""},
		{"mov rbp, rsp", "mov", "rbp, rsp"},
		{"rep stosq qword ptr [rdi], rax", "rep stosq", "qword ptr [rdi], rax"},
		{"lock", "lock", ""},
	} {
		m, o := splitAsm(tc.in)
		if m != tc.mnemonic || o != tc.operands {
			t.Errorf("splitAsm(%q) = %q, %q", tc.in, m, o)
		}
	}
}

func TestInstructionTableFrom(t *testing.T) {
	tbl := newInstructionTable(decodeX86([]byte{0x55, 0x48, 0x89, 0xe5, 0x90, 0x90, 0xc3}, 0x1000))
	if tbl.Len() != 5 {
		t.Fatalf("table length %d", tbl.Len())
	}
	if got := tbl.From(0x1001, 2); len(got) != 2 || got[0].Addr != 0x1001 || got[1].Addr != 0x1004 {
		t.Fatalf("From(0x1001, 2) = %v", got)
	}
	// an address inside an instruction starts at the next one
	if got := tbl.From(0x1002, 1); len(got) != 1 || got[0].Addr != 0x1004 {
		t.Fatalf("From(0x1002, 1) = %v", got)
	}
	if got := tbl.From(0x1000, 0); len(got) != 5 {
		t.Fatalf("From(0x1000, 0) returned %d instructions", len(got))
	}
	if got := tbl.From(0x2000, 10); len(got) != 0 {
		t.Fatalf("From past the end returned %v", got)
	}
	if _, ok := tbl.Lookup(0x1002); ok {
		t.Fatal("lookup inside instruction succeeded")
	}
	var empty *InstructionTable
	if empty.Len() != 0 || empty.From(0, 0) != nil {
		t.Fatal("nil table not empty")
	}
}

func TestFormatInstruction(t *testing.T) {
	inst := &Instruction{Addr: 0x401001, Bytes: []byte{0x48, 0x89, 0xe5}, Mnemonic: "mov", Operands: "rbp, rsp"}
	var buf bytes.Buffer
	FormatInstruction(&buf, inst)
	want := "      401001: 48 89 e5" + strings.Repeat("   ", 13) + "\tmov\trbp, rsp\n"
	if buf.String() != want {
		t.Fatalf("mismatch:\n%q\n%q", buf.String(), want)
	}

	buf.Reset()
	FormatBreakpointHit(&buf, 0x401001, inst)
	if want := "** breakpoint @       401001: 48 89 e5\tmov\trbp, rsp\n"; buf.String() != want {
		t.Fatalf("mismatch:\n%q\n%q", buf.String(), want)
	}

	buf.Reset()
	FormatBreakpointHit(&buf, 0x401001, nil)
	if want := "** breakpoint @       401001:\n"; buf.String() != want {
		t.Fatalf("mismatch:\n%q\n%q", buf.String(), want)
	}
}
