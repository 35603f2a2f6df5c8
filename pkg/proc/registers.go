package proc

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Registers is the set of general purpose registers of an amd64 thread,
// laid out like the user_regs_struct the linux kernel exchanges through
// PTRACE_GETREGS/PTRACE_SETREGS.
type Registers struct {
	R15      uint64
	R14      uint64
	R13      uint64
	R12      uint64
	Rbp      uint64
	Rbx      uint64
	R11      uint64
	R10      uint64
	R9       uint64
	R8       uint64
	Rax      uint64
	Rcx      uint64
	Rdx      uint64
	Rsi      uint64
	Rdi      uint64
	Orig_rax uint64
	Rip      uint64
	Cs       uint64
	Eflags   uint64
	Rsp      uint64
	Ss       uint64
	Fs_base  uint64
	Gs_base  uint64
	Ds       uint64
	Es       uint64
	Fs       uint64
	Gs       uint64
}

// PC returns the instruction pointer.
func (r *Registers) PC() uint64 { return r.Rip }

// SetPC sets the instruction pointer.
func (r *Registers) SetPC(pc uint64) { r.Rip = pc }

// RegisterNames lists the registers accepted by Get and Set.
var RegisterNames = []string{
	"rax", "rbx", "rcx", "rdx",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
	"rdi", "rsi", "rbp", "rsp", "rip", "flags",
}

func (r *Registers) lookup(name string) (*uint64, error) {
	switch name {
	case "rax":
		return &r.Rax, nil
	case "rbx":
		return &r.Rbx, nil
	case "rcx":
		return &r.Rcx, nil
	case "rdx":
		return &r.Rdx, nil
	case "r8":
		return &r.R8, nil
	case "r9":
		return &r.R9, nil
	case "r10":
		return &r.R10, nil
	case "r11":
		return &r.R11, nil
	case "r12":
		return &r.R12, nil
	case "r13":
		return &r.R13, nil
	case "r14":
		return &r.R14, nil
	case "r15":
		return &r.R15, nil
	case "rdi":
		return &r.Rdi, nil
	case "rsi":
		return &r.Rsi, nil
	case "rbp":
		return &r.Rbp, nil
	case "rsp":
		return &r.Rsp, nil
	case "rip":
		return &r.Rip, nil
	case "flags":
		return &r.Eflags, nil
	}
	return nil, &UnknownRegisterError{Name: name}
}

// Get returns the value of the named register.
func (r *Registers) Get(name string) (uint64, error) {
	p, err := r.lookup(name)
	if err != nil {
		return 0, err
	}
	return *p, nil
}

// Set changes the value of the named register. Only the in-memory copy is
// modified, the caller is responsible for writing it back to the thread.
func (r *Registers) Set(name string, value uint64) error {
	p, err := r.lookup(name)
	if err != nil {
		return err
	}
	*p = value
	return nil
}

// Format writes the register dump printed by getregs: four registers per
// row and the flags on their own trailing position.
func (r *Registers) Format(w io.Writer) {
	rows := [][]struct {
		name  string
		value uint64
	}{
		{{"RAX", r.Rax}, {"RBX", r.Rbx}, {"RCX", r.Rcx}, {"RDX", r.Rdx}},
		{{"R8", r.R8}, {"R9", r.R9}, {"R10", r.R10}, {"R11", r.R11}},
		{{"R12", r.R12}, {"R13", r.R13}, {"R14", r.R14}, {"R15", r.R15}},
		{{"RDI", r.Rdi}, {"RSI", r.Rsi}, {"RBP", r.Rbp}, {"RSP", r.Rsp}},
	}
	for _, row := range rows {
		for _, reg := range row {
			fmt.Fprintf(w, "%-3s %-18x", reg.name, reg.value)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "%-3s %-18x", "RIP", r.Rip)
	fmt.Fprintf(w, "FLAGS %016x\n", r.Eflags)
}

// ParseRegisterValue parses a register value written as 0x-prefixed
// hexadecimal, 0b-prefixed binary or plain decimal.
func ParseRegisterValue(s string) (uint64, error) {
	switch {
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		return strconv.ParseUint(s[2:], 16, 64)
	case strings.HasPrefix(s, "0b"), strings.HasPrefix(s, "0B"):
		return strconv.ParseUint(s[2:], 2, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}
