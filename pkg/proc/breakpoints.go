package proc

import (
	"fmt"
)

// BreakpointInstruction is INT 3, the software breakpoint trap.
const BreakpointInstruction = 0xCC

// Breakpoint represents a single software breakpoint. Stores the address
// and the byte of data that originally was stored at that address.
type Breakpoint struct {
	Addr         uint64
	OriginalByte byte
}

func (bp Breakpoint) String() string {
	return fmt.Sprintf("Breakpoint at %#x", bp.Addr)
}

// BreakpointTable holds the breakpoints of a session in insertion order.
// An index into the table is a live position, not a stable identifier:
// removing an entry shifts every following index down by one.
type BreakpointTable struct {
	bps []Breakpoint
}

// Add patches the trap opcode at addr and records the byte it replaced.
func (t *BreakpointTable) Add(mem WordAccessor, addr uint64) error {
	if t.Find(addr) >= 0 {
		return &DuplicateBreakpointError{Addr: addr}
	}
	word, err := mem.PeekWord(addr)
	if err != nil {
		return traceError("set breakpoint", err)
	}
	if err := mem.PokeWord(addr, withLowByte(word, BreakpointInstruction)); err != nil {
		return traceError("set breakpoint", err)
	}
	t.bps = append(t.bps, Breakpoint{Addr: addr, OriginalByte: byte(word)})
	return nil
}

// Remove writes back the original byte of the breakpoint at index and
// erases it from the table.
func (t *BreakpointTable) Remove(mem WordAccessor, index int) error {
	if index < 0 || index >= len(t.bps) {
		return &BreakpointNotFoundError{Index: index}
	}
	bp := t.bps[index]
	if err := t.restore(mem, bp, "delete breakpoint"); err != nil {
		return err
	}
	t.bps = append(t.bps[:index], t.bps[index+1:]...)
	return nil
}

// Disarm temporarily writes back the original byte at addr, keeping the
// entry in the table so that Arm can patch the trap again.
func (t *BreakpointTable) Disarm(mem WordAccessor, addr uint64) error {
	i := t.Find(addr)
	if i < 0 {
		return nil
	}
	return t.restore(mem, t.bps[i], "restore code")
}

// Arm writes the trap opcode at addr if a breakpoint is recorded there.
func (t *BreakpointTable) Arm(mem WordAccessor, addr uint64) error {
	if t.Find(addr) < 0 {
		return nil
	}
	word, err := mem.PeekWord(addr)
	if err != nil {
		return traceError("rearm breakpoint", err)
	}
	return traceError("rearm breakpoint", mem.PokeWord(addr, withLowByte(word, BreakpointInstruction)))
}

func (t *BreakpointTable) restore(mem WordAccessor, bp Breakpoint, op string) error {
	word, err := mem.PeekWord(bp.Addr)
	if err != nil {
		return traceError(op, err)
	}
	return traceError(op, mem.PokeWord(bp.Addr, withLowByte(word, bp.OriginalByte)))
}

// forget drops the entry at addr without touching memory.
func (t *BreakpointTable) forget(addr uint64) {
	if i := t.Find(addr); i >= 0 {
		t.bps = append(t.bps[:i], t.bps[i+1:]...)
	}
}

// List returns a copy of the breakpoints in insertion order.
func (t *BreakpointTable) List() []Breakpoint {
	r := make([]Breakpoint, len(t.bps))
	copy(r, t.bps)
	return r
}

// Clear drops every entry without touching target memory. It must only be
// used once the target process is gone.
func (t *BreakpointTable) Clear() {
	t.bps = t.bps[:0]
}

// Find returns the index of the breakpoint at addr or -1.
func (t *BreakpointTable) Find(addr uint64) int {
	for i := range t.bps {
		if t.bps[i].Addr == addr {
			return i
		}
	}
	return -1
}
