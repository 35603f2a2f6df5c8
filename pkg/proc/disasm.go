package proc

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/exp/slices"
)

// Instruction is a single decoded machine instruction.
type Instruction struct {
	Addr     uint64
	Bytes    []byte
	Mnemonic string
	Operands string
}

// Len returns the encoded length of the instruction.
func (inst *Instruction) Len() int {
	return len(inst.Bytes)
}

// Text returns the instruction in Intel syntax.
func (inst *Instruction) Text() string {
	if inst.Operands == "" {
		return inst.Mnemonic
	}
	return inst.Mnemonic + " " + inst.Operands
}

// InstructionTable is the address ordered, immutable result of
// disassembling the executable section of an image.
type InstructionTable struct {
	addrs []uint64
	insts map[uint64]*Instruction
}

func newInstructionTable(insts []*Instruction) *InstructionTable {
	t := &InstructionTable{
		addrs: make([]uint64, 0, len(insts)),
		insts: make(map[uint64]*Instruction, len(insts)),
	}
	for _, inst := range insts {
		if _, dup := t.insts[inst.Addr]; !dup {
			t.addrs = append(t.addrs, inst.Addr)
		}
		t.insts[inst.Addr] = inst
	}
	slices.Sort(t.addrs)
	return t
}

// Len returns the number of instructions in the table.
func (t *InstructionTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.addrs)
}

// Lookup returns the instruction starting exactly at addr.
func (t *InstructionTable) Lookup(addr uint64) (*Instruction, bool) {
	if t == nil {
		return nil, false
	}
	inst, ok := t.insts[addr]
	return inst, ok
}

// From returns up to count instructions starting at or after addr, in
// address order. A count of zero or less returns all of them.
func (t *InstructionTable) From(addr uint64, count int) []*Instruction {
	if t == nil {
		return nil
	}
	i, _ := slices.BinarySearch(t.addrs, addr)
	end := len(t.addrs)
	if count > 0 && i+count < end {
		end = i + count
	}
	r := make([]*Instruction, 0, end-i)
	for _, a := range t.addrs[i:end] {
		r = append(r, t.insts[a])
	}
	return r
}

// FormatInstruction writes inst as a disasm row: the address right aligned
// in 12 columns, a 16 slot byte column and the instruction text.
func FormatInstruction(w io.Writer, inst *Instruction) {
	var b strings.Builder
	fmt.Fprintf(&b, "%12x:", inst.Addr)
	for i := 0; i < 16; i++ {
		if i < len(inst.Bytes) {
			fmt.Fprintf(&b, " %02x", inst.Bytes[i])
		} else {
			b.WriteString("   ")
		}
	}
	fmt.Fprintf(&b, "\t%s\t%s\n", inst.Mnemonic, inst.Operands)
	io.WriteString(w, b.String())
}

// FormatBreakpointHit writes the line reported when the child stops at a
// breakpoint. inst may be nil if the address is outside of the table.
func FormatBreakpointHit(w io.Writer, addr uint64, inst *Instruction) {
	var b strings.Builder
	fmt.Fprintf(&b, "** breakpoint @ %12x:", addr)
	if inst != nil {
		for _, c := range inst.Bytes {
			fmt.Fprintf(&b, " %02x", c)
		}
		fmt.Fprintf(&b, "\t%s\t%s", inst.Mnemonic, inst.Operands)
	}
	b.WriteByte('\n')
	io.WriteString(w, b.String())
}
