package terminal

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"testing"

	"github.com/adkevin3307/sdb/pkg/config"
	"github.com/adkevin3307/sdb/pkg/proc"
	protest "github.com/adkevin3307/sdb/pkg/proc/test"
)

type testTerm struct {
	*Term
	backend *protest.FakeBackend
	out     bytes.Buffer
	errOut  bytes.Buffer
}

func newTestTerm(t *testing.T, conf *config.Config) *testTerm {
	tt := &testTerm{backend: &protest.FakeBackend{}}
	tt.Term = newTerm(proc.NewSession(tt.backend), conf, strings.NewReader(""), &tt.out, &tt.errOut)
	return tt
}

// exec runs cmdstr and returns everything it printed on stdout and stderr.
func (tt *testTerm) exec(cmdstr string) (string, string) {
	tt.out.Reset()
	tt.errOut.Reset()
	tt.execute(cmdstr)
	return tt.out.String(), tt.errOut.String()
}

// loadSelf loads the test binary and points the child at a run of
// straight line code that ends with the child exiting.
func (tt *testTerm) loadSelf(t *testing.T) []*proc.Instruction {
	t.Helper()
	protest.SkipUnsupported(t)
	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	out, errOut := tt.exec("load " + exe + " -test.run=none")
	if errOut != "" {
		t.Fatalf("load: %s", errOut)
	}
	if want := fmt.Sprintf("** program '%s' loaded. entry point 0x%x\n", exe, tt.sess.Entry()); out != want {
		t.Fatalf("load banner %q, want %q", out, want)
	}

	var run []*proc.Instruction
	for _, inst := range tt.sess.Instructions().From(0, 0) {
		if inst.Bytes[0] == proc.BreakpointInstruction || inst.Mnemonic == "(bad)" ||
			(len(run) > 0 && run[len(run)-1].Addr+uint64(run[len(run)-1].Len()) != inst.Addr) {
			run = run[:0]
			if inst.Bytes[0] == proc.BreakpointInstruction || inst.Mnemonic == "(bad)" {
				continue
			}
		}
		run = append(run, inst)
		if len(run) == 6 {
			break
		}
	}
	if len(run) != 6 {
		t.Fatal("no straight line code in test binary")
	}
	tt.backend.ExitAt = run[len(run)-1].Addr
	if err := tt.sess.SetRegister("rip", run[0].Addr); err != nil {
		t.Fatal(err)
	}
	return run
}

func TestHelpAndList(t *testing.T) {
	tt := newTestTerm(t, nil)

	out, _ := tt.exec("help")
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 16 {
		t.Fatalf("help printed %d lines:\n%s", len(lines), out)
	}
	if lines[0] != "- break {instruction-address}: add a break point" || lines[15] != "- start: start the program and stop at the first instruction" {
		t.Fatalf("unexpected help output:\n%s", out)
	}

	if out, _ := tt.exec("h si"); out != "- si: step into instruction\n" {
		t.Fatalf("help si: %q", out)
	}
	if out, _ := tt.exec("list"); out != "no break point\n" {
		t.Fatalf("list: %q", out)
	}
}

func TestCommandErrors(t *testing.T) {
	tt := newTestTerm(t, nil)

	for _, tc := range []struct{ cmd, stderr string }{
		{"load", "** [command] error, argument not enough\n"},
		{"frobnicate", "** [command] error, status: NONE, 'frobnicate' not allow\n"},
		{"cont", "** [command] error, status: NONE, 'cont' not allow\n"},
		{"start", "** [command] error, status: NONE, 'start' not allow\n"},
		{"load /nonexistent/program", "** [load] error, "},
	} {
		out, errOut := tt.exec(tc.cmd)
		if out != "" || !strings.HasPrefix(errOut, tc.stderr) {
			t.Errorf("%s: stdout %q stderr %q", tc.cmd, out, errOut)
		}
	}
	if out, errOut := tt.exec("   "); out != "" || errOut != "" {
		t.Errorf("blank line printed %q %q", out, errOut)
	}
}

func TestBreakpointSession(t *testing.T) {
	tt := newTestTerm(t, nil)
	run := tt.loadSelf(t)
	pid := tt.sess.Pid()

	if _, errOut := tt.exec(fmt.Sprintf("break %x", run[2].Addr)); !strings.Contains(errOut, "'break' not allow") {
		t.Fatalf("break while loaded: %q", errOut)
	}
	if out, _ := tt.exec("start"); out != fmt.Sprintf("** pid %d\n", pid) {
		t.Fatalf("start: %q", out)
	}

	tt.exec(fmt.Sprintf("b 0x%x", run[2].Addr))
	tt.exec(fmt.Sprintf("b %x", run[4].Addr))
	if out, _ := tt.exec(fmt.Sprintf("break %x", run[4].Addr)); out != "breakpoint already exist\n" {
		t.Fatalf("duplicate: %q", out)
	}
	if out, _ := tt.exec("l"); out != fmt.Sprintf("0: %x\n1: %x\n", run[2].Addr, run[4].Addr) {
		t.Fatalf("list: %q", out)
	}

	var want bytes.Buffer
	proc.FormatBreakpointHit(&want, run[2].Addr, run[2])
	if out, _ := tt.exec("c"); out != want.String() {
		t.Fatalf("first hit %q, want %q", out, want.String())
	}

	if out, _ := tt.exec("delete 5"); out != "breakpoint not exist\n" {
		t.Fatalf("delete missing: %q", out)
	}
	tt.exec("delete 1")
	if out, _ := tt.exec("list"); out != fmt.Sprintf("0: %x\n", run[2].Addr) {
		t.Fatalf("list after delete: %q", out)
	}

	if out, _ := tt.exec("get rip"); out != fmt.Sprintf("rip = %d (0x%x)\n", run[2].Addr, run[2].Addr) {
		t.Fatalf("get rip: %q", out)
	}
	if _, errOut := tt.exec("get xmm0"); !strings.HasPrefix(errOut, "** [register] error, ") {
		t.Fatalf("unknown register: %q", errOut)
	}

	// Stepping over the breakpoint leaves the child on the next instruction.
	if out, _ := tt.exec("si"); out != "" {
		t.Fatalf("si: %q", out)
	}
	if v, _ := tt.sess.GetRegister("rip"); v != run[3].Addr {
		t.Fatalf("rip after si %#x, want %#x", v, run[3].Addr)
	}

	if out, _ := tt.exec("run"); out != fmt.Sprintf("** program %s is already running.\n** child process %d terminiated normally (code 0)\n", tt.sess.Path(), pid) {
		t.Fatalf("run: %q", out)
	}
	if tt.sess.Status() != proc.StatusNone {
		t.Fatalf("status after exit %s", tt.sess.Status())
	}
	if out, _ := tt.exec("list"); out != "no break point\n" {
		t.Fatalf("breakpoints survived exit: %q", out)
	}
	if out, errOut := tt.exec("run"); out != "" || errOut != "** [command] error, status: NONE, 'run' not allow\n" {
		t.Fatalf("run after exit: %q %q", out, errOut)
	}
	if out, errOut := tt.exec(fmt.Sprintf("break %x", run[2].Addr)); out != "" || errOut != "** [command] error, status: NONE, 'break' not allow\n" {
		t.Fatalf("break after exit: %q %q", out, errOut)
	}
}

func TestAbnormalTermination(t *testing.T) {
	tt := newTestTerm(t, nil)
	run := tt.loadSelf(t)
	tt.backend.KillAt = run[1].Addr
	tt.backend.KillSignal = 11
	pid := tt.sess.Pid()

	out, _ := tt.exec("r")
	if want := fmt.Sprintf("** pid %d\n** child process %d terminiated abnormally (code 11)\n", pid, pid); out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestForeignTrapReported(t *testing.T) {
	tt := newTestTerm(t, nil)
	run := tt.loadSelf(t)
	tt.exec("start")
	child := tt.backend.Processes[0]
	word, err := child.PeekWord(run[2].Addr)
	if err != nil {
		t.Fatal(err)
	}
	if err := child.PokeWord(run[2].Addr, word&^0xff|proc.BreakpointInstruction); err != nil {
		t.Fatal(err)
	}

	out, errOut := tt.exec("cont")
	if want := fmt.Sprintf("** child process %d stopped by signal %v\n", child.Pid(), syscall.SIGTRAP); out != want || errOut != "" {
		t.Fatalf("got %q %q, want %q", out, errOut, want)
	}
}

func TestDisasmAndDump(t *testing.T) {
	tt := newTestTerm(t, &config.Config{DisassembleCount: intptr(3), DumpLength: intptr(20)})
	run := tt.loadSelf(t)
	tt.exec("start")
	tt.exec(fmt.Sprintf("break %x", run[1].Addr))

	var want bytes.Buffer
	for _, inst := range run[:3] {
		proc.FormatInstruction(&want, inst)
	}
	if out, _ := tt.exec(fmt.Sprintf("disasm %x", run[0].Addr)); out != want.String() {
		t.Fatalf("disasm:\n%s\nwant:\n%s", out, want.String())
	}
	if out, _ := tt.exec(fmt.Sprintf("d %x 1", run[1].Addr)); !strings.Contains(out, run[1].Mnemonic) || strings.Count(out, "\n") != 1 {
		t.Fatalf("disasm with count: %q", out)
	}
	if out, _ := tt.exec("disasm 1"); out != "** the address is out of the range of the text segment\n" {
		t.Fatalf("disasm out of range: %q", out)
	}

	out, errOut := tt.exec(fmt.Sprintf("dump %x", run[0].Addr))
	if errOut != "" || strings.Count(out, "\n") != 2 {
		t.Fatalf("dump: %q %q", out, errOut)
	}
	if !strings.HasPrefix(out, fmt.Sprintf("%12x:", run[0].Addr)) {
		t.Fatalf("dump row: %q", out)
	}
	if out, _ := tt.exec(fmt.Sprintf("x %x 36", run[0].Addr)); strings.Count(out, "\n") != 3 {
		t.Fatalf("dump 36: %q", out)
	}
}

func TestDumpLengthLimit(t *testing.T) {
	tt := newTestTerm(t, &config.Config{DumpLength: intptr(1 << 30)})
	run := tt.loadSelf(t)
	tt.exec("start")

	for _, length := range []string{"9223372036854775807", fmt.Sprint(proc.MaxReadLength + 1), "0", "-4"} {
		out, errOut := tt.exec(fmt.Sprintf("dump %x %s", run[0].Addr, length))
		if out != "" || errOut != fmt.Sprintf("** [command] error, invalid length '%s'\n", length) {
			t.Errorf("dump length %s: %q %q", length, out, errOut)
		}
	}
	// An oversized default from the config file is refused by the reader.
	if out, errOut := tt.exec(fmt.Sprintf("dump %x", run[0].Addr)); out != "" || !strings.HasPrefix(errOut, "** [command] error, read of ") {
		t.Errorf("dump with oversized default: %q %q", out, errOut)
	}
	if tt.sess.Status() != proc.StatusRunning {
		t.Fatalf("status %s", tt.sess.Status())
	}
}

func TestSetRegister(t *testing.T) {
	tt := newTestTerm(t, nil)
	tt.loadSelf(t)
	tt.exec("start")

	if _, errOut := tt.exec("set rax 0x2a"); errOut != "" {
		t.Fatalf("set: %q", errOut)
	}
	if out, _ := tt.exec("g rax"); out != "rax = 42 (0x2a)\n" {
		t.Fatalf("get rax: %q", out)
	}
	if _, errOut := tt.exec("set rax"); errOut != "** [command] error, argument not enough\n" {
		t.Fatalf("set without value: %q", errOut)
	}
	out, _ := tt.exec("getregs")
	if !strings.HasPrefix(out, "RAX 2a") {
		t.Fatalf("getregs: %q", out)
	}
}

func TestCompleter(t *testing.T) {
	cmds := DebugCommands()
	cmds.Merge(map[string][]string{"set": {"poke"}})
	complete := newCompleter(cmds)
	for _, tc := range []struct {
		line string
		want []string
	}{
		{"dis", []string{"disasm"}},
		{"GETR", []string{"getregs"}},
		{"get r1", []string{"get r10", "get r11", "get r12", "get r13", "get r14", "get r15"}},
		{"g rs", []string{"g rsi", "g rsp"}},
		{"poke fl", []string{"poke flags"}},
		{"set rip 0x", nil},
		{"dump r", nil},
		{"nosuch r", nil},
	} {
		got := complete(tc.line)
		sort.Strings(got)
		if strings.Join(got, ",") != strings.Join(tc.want, ",") {
			t.Errorf("%q: got %q, want %q", tc.line, got, tc.want)
		}
	}
	if got := complete("s "); len(got) != len(proc.RegisterNames) {
		t.Errorf("expected every register, got %q", got)
	}
}

func TestScriptFile(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "cmds")
	if err := os.WriteFile(script, []byte("list\n\nhelp list\n"), 0600); err != nil {
		t.Fatal(err)
	}
	tt := newTestTerm(t, nil)
	tt.ScriptFile = script

	code, err := tt.Run()
	if err != nil || code != 0 {
		t.Fatalf("Run() = (%d, %v)", code, err)
	}
	if want := "no break point\n- list: list break points\n"; tt.out.String() != want {
		t.Fatalf("got %q, want %q", tt.out.String(), want)
	}
}

func TestScriptExitKillsChild(t *testing.T) {
	protest.SkipUnsupported(t)
	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	tt := newTestTerm(t, nil)
	tt.stdin = strings.NewReader(fmt.Sprintf("load %s\nstart\nexit\nlist\n", exe))

	code, err := tt.Run()
	if err != nil || code != 0 {
		t.Fatalf("Run() = (%d, %v)", code, err)
	}
	if strings.Contains(tt.out.String(), "no break point") {
		t.Fatal("commands after exit were executed")
	}
	p := tt.backend.Processes[0]
	if !p.Dead {
		t.Fatal("child still alive after exit")
	}
	if tt.sess.Status() != proc.StatusNone {
		t.Fatalf("status %s", tt.sess.Status())
	}
}

func TestMissingScript(t *testing.T) {
	tt := newTestTerm(t, nil)
	tt.ScriptFile = filepath.Join(t.TempDir(), "missing")
	if code, err := tt.Run(); err == nil || code != 1 {
		t.Fatalf("Run() = (%d, %v)", code, err)
	}
}

func TestColorBanner(t *testing.T) {
	tt := newTestTerm(t, nil)
	tt.color = true
	tt.banner("** pid %d", 7)
	if want := "\033[32m** pid 7\033[0m\n"; tt.out.String() != want {
		t.Fatalf("got %q, want %q", tt.out.String(), want)
	}
}

func intptr(n int) *int { return &n }
