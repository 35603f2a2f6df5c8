package proc

import (
	"fmt"
	"os"
	"syscall"

	"github.com/adkevin3307/sdb/pkg/logflags"
)

// Status is the state of a debug session.
type Status uint8

const (
	// StatusNone means no program is loaded.
	StatusNone Status = iota
	// StatusLoaded means the child exists, stopped at its first instruction.
	StatusLoaded
	// StatusRunning means the child has been started.
	StatusRunning
)

func (s Status) String() string {
	switch s {
	case StatusNone:
		return "NONE"
	case StatusLoaded:
		return "LOADED"
	case StatusRunning:
		return "RUNNING"
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// StopState describes where a resume or step request left the child.
type StopState struct {
	Pid int

	// Exited is set when the child terminated, in which case Normal and
	// Code describe how.
	Exited bool
	Normal bool
	Code   int

	// PC is the instruction pointer of the stopped child.
	PC uint64
	// Breakpoint is set when the child stopped at a breakpoint. Instruction
	// is the decoded instruction at PC, nil if PC is not in the table.
	Breakpoint  bool
	Instruction *Instruction
	// Signal is the signal that stopped the child when it is not a
	// breakpoint or step trap. A SIGTRAP raised by the child itself after
	// a continue is reported here too.
	Signal syscall.Signal
}

// Session owns the lifecycle of one debugged child, its breakpoint table
// and the instruction table of its image. It is driven by a single control
// loop and is not safe for concurrent use.
type Session struct {
	backend Backend
	log     logflags.Logger

	proc     Process
	status   Status
	attached bool

	path  string
	args  []string
	entry uint64
	base  uint64

	bi          *BinaryInfo
	insts       *InstructionTable
	breakpoints BreakpointTable

	// pendingSignal is delivered to the child on the next continue.
	pendingSignal syscall.Signal
}

// NewSession returns an empty session that creates processes with backend.
func NewSession(backend Backend) *Session {
	return &Session{
		backend: backend,
		log:     logflags.DebuggerLogger(),
	}
}

// Status returns the current status of the session.
func (s *Session) Status() Status { return s.status }

// Pid returns the process id of the child, or 0.
func (s *Session) Pid() int {
	if s.proc == nil {
		return 0
	}
	return s.proc.Pid()
}

// Path returns the path of the loaded program.
func (s *Session) Path() string { return s.path }

// Args returns the argument vector of the loaded program.
func (s *Session) Args() []string { return s.args }

// Entry returns the runtime entry point of the loaded program.
func (s *Session) Entry() uint64 { return s.entry }

// LoadBase returns the address a position independent image was loaded at,
// zero otherwise.
func (s *Session) LoadBase() uint64 { return s.base }

// Instructions returns the instruction table of the loaded program.
func (s *Session) Instructions() *InstructionTable { return s.insts }

// Breakpoints returns the breakpoints in insertion order.
func (s *Session) Breakpoints() []Breakpoint { return s.breakpoints.List() }

// Load spawns path with args as a traced child stopped at its first
// instruction and builds the instruction table of its image. Any previous
// child is terminated first.
func (s *Session) Load(path string, args []string) error {
	if err := s.Close(); err != nil {
		s.log.Warnf("could not terminate previous child: %v", err)
	}

	bi, err := LoadBinaryInfo(path)
	if err != nil {
		return err
	}

	cmd := append([]string{path}, args...)
	p, err := s.backend.Launch(cmd)
	if err != nil {
		return &SpawnError{Path: path, Err: err}
	}
	s.setup(p, bi, path, args, false)
	s.log.WithField("pid", p.Pid()).Infof("program %s loaded", path)
	return nil
}

// Attach starts tracing process pid. If path is empty the executable is
// read through /proc/<pid>/exe.
func (s *Session) Attach(pid int, path string) error {
	if err := s.Close(); err != nil {
		s.log.Warnf("could not terminate previous child: %v", err)
	}
	if path == "" {
		exe := fmt.Sprintf("/proc/%d/exe", pid)
		if resolved, err := os.Readlink(exe); err == nil {
			path = resolved
		} else {
			path = exe
		}
	}

	bi, err := LoadBinaryInfo(path)
	if err != nil {
		return err
	}
	p, err := s.backend.Attach(pid)
	if err != nil {
		return &SpawnError{Path: path, Err: err}
	}
	s.setup(p, bi, path, nil, true)
	s.log.WithField("pid", pid).Infof("attached to %s", path)
	return nil
}

func (s *Session) setup(p Process, bi *BinaryInfo, path string, args []string, attached bool) {
	s.proc = p
	s.attached = attached
	s.path = path
	s.args = args
	s.bi = bi
	s.base = 0
	if bi.PositionIndependent() {
		if regions, err := LoadMaps(p.Pid()); err == nil {
			if base, ok := LoadBase(regions, path); ok {
				s.base = base
			}
		} else {
			s.log.Warnf("could not compute load base: %v", err)
		}
	}
	s.entry = bi.Entry + s.base
	s.insts = bi.Instructions(s.base)
	s.breakpoints.Clear()
	s.pendingSignal = 0
	s.status = StatusLoaded
}

// DisassemblyFailed returns true if the instruction table of the loaded
// program is empty.
func (s *Session) DisassemblyFailed() bool {
	return s.status != StatusNone && s.insts.Len() == 0
}

// Start moves a loaded session to running. It does not execute any code.
func (s *Session) Start() error {
	if s.status != StatusLoaded {
		return &InvalidStatusError{Op: "start", Status: s.status}
	}
	s.status = StatusRunning
	return nil
}

// Cont resumes the child until the next stop or its termination. If the
// child sits on a breakpoint, the original instruction is executed first
// and the trap re-armed before resuming.
func (s *Session) Cont() (*StopState, error) {
	if err := s.requireRunning("cont"); err != nil {
		return nil, err
	}
	regs, err := s.registers()
	if err != nil {
		return nil, err
	}
	if s.breakpoints.Find(regs.PC()) >= 0 {
		st, err := s.stepOverBreakpoint(regs.PC())
		if err != nil || st.Exited {
			return st, err
		}
		if s.breakpoints.Find(st.PC) >= 0 {
			return s.breakpointHit(st.PC), nil
		}
	}

	sig := s.pendingSignal
	s.pendingSignal = 0
	s.log.Debugf("continue pid %d", s.proc.Pid())
	ev, err := s.proc.Continue(sig)
	if err != nil {
		return nil, traceError("continue", err)
	}
	return s.handleStop(ev, false)
}

// SingleStep executes exactly one instruction. A breakpoint at the current
// instruction is stepped over and re-armed afterwards.
func (s *Session) SingleStep() (*StopState, error) {
	if err := s.requireRunning("si"); err != nil {
		return nil, err
	}
	regs, err := s.registers()
	if err != nil {
		return nil, err
	}
	if s.breakpoints.Find(regs.PC()) >= 0 {
		st, err := s.stepOverBreakpoint(regs.PC())
		if err != nil || st.Exited {
			return st, err
		}
		if s.breakpoints.Find(st.PC) >= 0 {
			return s.breakpointHit(st.PC), nil
		}
		return st, nil
	}

	ev, err := s.proc.SingleStep()
	if err != nil {
		return nil, traceError("single step", err)
	}
	return s.handleStop(ev, true)
}

// stepOverBreakpoint restores the original byte at pc, executes that one
// instruction and writes the trap back. The trap is written back even if
// the step fails, so the table never records a breakpoint that is not in
// memory.
func (s *Session) stepOverBreakpoint(pc uint64) (*StopState, error) {
	if err := s.breakpoints.Disarm(s.proc, pc); err != nil {
		return nil, err
	}
	ev, err := s.proc.SingleStep()
	if err != nil {
		if aerr := s.breakpoints.Arm(s.proc, pc); aerr != nil {
			s.log.Warnf("breakpoint at %#x dropped: %v", pc, aerr)
			s.breakpoints.forget(pc)
		}
		return nil, traceError("single step", err)
	}
	if !ev.Alive() {
		return s.terminated(ev), nil
	}
	if err := s.breakpoints.Arm(s.proc, pc); err != nil {
		return nil, err
	}
	return s.handleStop(ev, true)
}

// handleStop converts a stop event into a StopState. After a continue, a
// SIGTRAP whose preceding byte is a trap we planted is a breakpoint hit:
// the instruction pointer is rolled back onto the breakpoint address so the
// original instruction runs once the byte is restored.
func (s *Session) handleStop(ev StopEvent, stepping bool) (*StopState, error) {
	if !ev.Alive() {
		return s.terminated(ev), nil
	}
	regs, err := s.registers()
	if err != nil {
		return nil, err
	}
	st := &StopState{Pid: s.proc.Pid(), PC: regs.PC()}

	if ev.Signal != syscall.SIGTRAP {
		s.pendingSignal = ev.Signal
		st.Signal = ev.Signal
		return st, nil
	}

	if stepping {
		if s.breakpoints.Find(st.PC) >= 0 {
			return s.breakpointHit(st.PC), nil
		}
		return st, nil
	}

	addr := st.PC - 1
	if s.breakpoints.Find(addr) < 0 {
		return s.foreignTrap(st), nil
	}
	word, err := s.proc.PeekWord(addr)
	if err != nil {
		return nil, traceError("check breakpoint", err)
	}
	if byte(word) != BreakpointInstruction {
		return s.foreignTrap(st), nil
	}
	regs.SetPC(addr)
	if err := s.proc.SetRegisters(regs); err != nil {
		return nil, traceError("set regs", err)
	}
	return s.breakpointHit(addr), nil
}

// foreignTrap reports a SIGTRAP that no breakpoint of ours explains, such
// as an int3 compiled into the child. It is not delivered again.
func (s *Session) foreignTrap(st *StopState) *StopState {
	s.log.Debugf("SIGTRAP at %#x without a breakpoint", st.PC)
	st.Signal = syscall.SIGTRAP
	return st
}

func (s *Session) breakpointHit(addr uint64) *StopState {
	inst, _ := s.insts.Lookup(addr)
	s.log.Debugf("breakpoint hit at %#x", addr)
	return &StopState{Pid: s.proc.Pid(), PC: addr, Breakpoint: true, Instruction: inst}
}

// terminated resets the session after the child is gone. The breakpoint
// table is dropped without restoring memory.
func (s *Session) terminated(ev StopEvent) *StopState {
	st := &StopState{
		Pid:    s.proc.Pid(),
		Exited: true,
		Normal: ev.Kind == StopExited,
		Code:   ev.Code(),
	}
	s.log.WithField("pid", st.Pid).Infof("child %s", ev)
	s.breakpoints.Clear()
	s.proc = nil
	s.status = StatusNone
	s.pendingSignal = 0
	return st
}

// AddBreakpoint sets a breakpoint at addr.
func (s *Session) AddBreakpoint(addr uint64) error {
	if err := s.requireRunning("break"); err != nil {
		return err
	}
	return s.breakpoints.Add(s.proc, addr)
}

// DeleteBreakpoint removes the breakpoint at index, restoring memory.
func (s *Session) DeleteBreakpoint(index int) error {
	if err := s.requireRunning("delete"); err != nil {
		return err
	}
	return s.breakpoints.Remove(s.proc, index)
}

// Registers returns the general purpose registers of the child.
func (s *Session) Registers() (*Registers, error) {
	if err := s.requireProcess(); err != nil {
		return nil, err
	}
	return s.registers()
}

func (s *Session) registers() (*Registers, error) {
	regs, err := s.proc.Registers()
	if err != nil {
		return nil, traceError("get regs", err)
	}
	return regs, nil
}

// GetRegister returns the value of the named register.
func (s *Session) GetRegister(name string) (uint64, error) {
	regs, err := s.Registers()
	if err != nil {
		return 0, err
	}
	return regs.Get(name)
}

// SetRegister changes the value of the named register in the child.
func (s *Session) SetRegister(name string, value uint64) error {
	regs, err := s.Registers()
	if err != nil {
		return err
	}
	if err := regs.Set(name, value); err != nil {
		return err
	}
	return traceError("set regs", s.proc.SetRegisters(regs))
}

// ReadMemory reads n bytes of the child's memory starting at addr.
func (s *Session) ReadMemory(addr uint64, n int) ([]byte, error) {
	if err := s.requireProcess(); err != nil {
		return nil, err
	}
	return readMemory(s.proc, addr, n)
}

// MemoryMap returns the current memory map of the child.
func (s *Session) MemoryMap() ([]MemoryRegion, error) {
	if err := s.requireProcess(); err != nil {
		return nil, err
	}
	return LoadMaps(s.proc.Pid())
}

// Disassemble returns up to count instructions of the loaded image
// starting at addr, or none if addr is outside of .text. The table reflects the image on disk, so planted
// breakpoints are never visible in it.
func (s *Session) Disassemble(addr uint64, count int) []*Instruction {
	if s.bi == nil {
		return nil
	}
	lo := s.bi.TextAddr + s.base
	if addr < lo || addr >= lo+uint64(len(s.bi.Text)) {
		return nil
	}
	return s.insts.From(addr, count)
}

// Close terminates a launched child or detaches from an attached one and
// resets the session.
func (s *Session) Close() error {
	if s.proc == nil {
		s.status = StatusNone
		return nil
	}
	var err error
	if s.attached {
		for _, bp := range s.breakpoints.List() {
			if rerr := s.breakpoints.Disarm(s.proc, bp.Addr); rerr != nil && err == nil {
				err = rerr
			}
		}
		if derr := s.proc.Detach(); derr != nil && err == nil {
			err = traceError("detach", derr)
		}
	} else {
		err = s.proc.Kill()
	}
	s.proc = nil
	s.breakpoints.Clear()
	s.status = StatusNone
	s.pendingSignal = 0
	return err
}

func (s *Session) requireProcess() error {
	if s.proc == nil {
		return ErrNoProcess
	}
	return nil
}

func (s *Session) requireRunning(op string) error {
	if s.proc == nil {
		return ErrNoProcess
	}
	if s.status != StatusRunning {
		return &InvalidStatusError{Op: op, Status: s.status}
	}
	return nil
}
