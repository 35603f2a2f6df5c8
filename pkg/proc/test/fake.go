package test

import (
	"encoding/binary"
	"errors"
	"syscall"

	"github.com/adkevin3307/sdb/pkg/proc"
)

const maxFakeSteps = 1 << 20

// FakeBackend creates FakeProcess children. The fake CPU executes the .text
// section of the launched image linearly: every instruction advances the
// instruction pointer by its decoded length, control flow is ignored and a
// 0xCC byte raises SIGTRAP the way INT 3 does.
type FakeBackend struct {
	// ExitAt is the address at which the fake child exits with ExitStatus.
	// When zero the child exits once it runs off the end of .text.
	ExitAt     uint64
	ExitStatus int
	// KillAt terminates the child with KillSignal when it reaches the
	// address.
	KillAt     uint64
	KillSignal syscall.Signal
	// Signals stops the child with the given signal the first time it
	// reaches an address.
	Signals map[uint64]syscall.Signal
	// StepErr, if set, is returned by every SingleStep request.
	StepErr error

	// Processes lists every child created, most recent last.
	Processes []*FakeProcess

	nextPid int
}

// Launch implements proc.Backend.
func (b *FakeBackend) Launch(cmd []string) (proc.Process, error) {
	bi, err := proc.LoadBinaryInfo(cmd[0])
	if err != nil {
		return nil, err
	}
	return b.newProcess(bi), nil
}

// Attach implements proc.Backend. Attaching is only possible to a pid
// previously launched through b.
func (b *FakeBackend) Attach(pid int) (proc.Process, error) {
	for _, p := range b.Processes {
		if p.pid == pid && !p.Dead {
			p.Detached = false
			return p, nil
		}
	}
	return nil, syscall.ESRCH
}

func (b *FakeBackend) newProcess(bi *proc.BinaryInfo) *FakeProcess {
	b.nextPid++
	p := &FakeProcess{
		backend:  b,
		pid:      1000 + b.nextPid,
		textAddr: bi.TextAddr,
		mem:      append([]byte(nil), bi.Text...),
		lengths:  make(map[uint64]int),
		fired:    make(map[uint64]bool),
	}
	for _, inst := range bi.Instructions(0).From(0, 0) {
		p.lengths[inst.Addr] = inst.Len()
	}
	p.regs.Rip = bi.Entry
	p.regs.Rsp = 0x7ffffffde000
	b.Processes = append(b.Processes, p)
	return p
}

// FakeProcess is a proc.Process whose memory is a copy of the .text
// section of its image.
type FakeProcess struct {
	backend *FakeBackend
	pid     int

	textAddr uint64
	mem      []byte
	lengths  map[uint64]int
	fired    map[uint64]bool
	regs     proc.Registers

	// Delivered records the signals passed to Continue.
	Delivered []syscall.Signal

	Dead     bool
	Detached bool
}

var errDead = errors.New("no such process")

// Pid implements proc.Process.
func (p *FakeProcess) Pid() int { return p.pid }

// Byte returns the byte of fake memory at addr.
func (p *FakeProcess) Byte(addr uint64) byte {
	return p.mem[addr-p.textAddr]
}

// PeekWord implements proc.WordAccessor.
func (p *FakeProcess) PeekWord(addr uint64) (uint64, error) {
	off, err := p.offset(addr)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(p.mem[off:]), nil
}

// PokeWord implements proc.WordAccessor.
func (p *FakeProcess) PokeWord(addr, word uint64) error {
	off, err := p.offset(addr)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(p.mem[off:], word)
	return nil
}

func (p *FakeProcess) offset(addr uint64) (uint64, error) {
	if p.Dead {
		return 0, errDead
	}
	if addr < p.textAddr || addr+8 > p.textAddr+uint64(len(p.mem)) {
		return 0, syscall.EIO
	}
	return addr - p.textAddr, nil
}

// Registers implements proc.Process.
func (p *FakeProcess) Registers() (*proc.Registers, error) {
	if p.Dead {
		return nil, errDead
	}
	regs := p.regs
	return &regs, nil
}

// SetRegisters implements proc.Process.
func (p *FakeProcess) SetRegisters(regs *proc.Registers) error {
	if p.Dead {
		return errDead
	}
	p.regs = *regs
	return nil
}

// Continue implements proc.Process.
func (p *FakeProcess) Continue(sig syscall.Signal) (proc.StopEvent, error) {
	if p.Dead {
		return proc.StopEvent{}, errDead
	}
	p.Delivered = append(p.Delivered, sig)
	for i := 0; i < maxFakeSteps; i++ {
		ev, stopped := p.step()
		if stopped {
			return ev, nil
		}
	}
	return proc.StopEvent{}, errors.New("fake child did not stop")
}

// SingleStep implements proc.Process.
func (p *FakeProcess) SingleStep() (proc.StopEvent, error) {
	if p.Dead {
		return proc.StopEvent{}, errDead
	}
	if p.backend.StepErr != nil {
		return proc.StopEvent{}, p.backend.StepErr
	}
	ev, stopped := p.step()
	if stopped {
		return ev, nil
	}
	return proc.StopEvent{Kind: proc.StopSignal, Signal: syscall.SIGTRAP}, nil
}

// step executes the instruction at rip. The second return value is true if
// execution stopped for a reason other than completing a single step.
func (p *FakeProcess) step() (proc.StopEvent, bool) {
	pc := p.regs.Rip
	b := p.backend
	if b.KillAt != 0 && pc == b.KillAt {
		p.Dead = true
		return proc.StopEvent{Kind: proc.StopKilled, Signal: b.KillSignal}, true
	}
	if (b.ExitAt != 0 && pc == b.ExitAt) || pc < p.textAddr || pc >= p.textAddr+uint64(len(p.mem)) {
		p.Dead = true
		return proc.StopEvent{Kind: proc.StopExited, Status: b.ExitStatus}, true
	}
	if sig, ok := b.Signals[pc]; ok && !p.fired[pc] {
		p.fired[pc] = true
		return proc.StopEvent{Kind: proc.StopSignal, Signal: sig}, true
	}
	if p.mem[pc-p.textAddr] == proc.BreakpointInstruction {
		p.regs.Rip = pc + 1
		return proc.StopEvent{Kind: proc.StopSignal, Signal: syscall.SIGTRAP}, true
	}
	n, ok := p.lengths[pc]
	if !ok {
		n = 1
	}
	p.regs.Rip = pc + uint64(n)
	return proc.StopEvent{}, false
}

// Kill implements proc.Process.
func (p *FakeProcess) Kill() error {
	p.Dead = true
	return nil
}

// Detach implements proc.Process.
func (p *FakeProcess) Detach() error {
	if p.Dead {
		return errDead
	}
	p.Detached = true
	return nil
}
