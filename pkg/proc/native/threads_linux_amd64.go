//go:build linux && amd64

package native

import (
	"encoding/binary"

	sys "golang.org/x/sys/unix"

	"github.com/adkevin3307/sdb/pkg/proc"
)

// Registers returns the general purpose registers of the process.
func (dbp *Process) Registers() (*proc.Registers, error) {
	if dbp.Exited() {
		return nil, proc.ErrNoProcess
	}
	var (
		regs proc.Registers
		err  error
	)
	dbp.execPtraceFunc(func() { err = sys.PtraceGetRegs(dbp.pid, (*sys.PtraceRegs)(&regs)) })
	if err != nil {
		return nil, err
	}
	return &regs, nil
}

// SetRegisters writes back all general purpose registers.
func (dbp *Process) SetRegisters(regs *proc.Registers) error {
	if dbp.Exited() {
		return proc.ErrNoProcess
	}
	var err error
	dbp.execPtraceFunc(func() { err = sys.PtraceSetRegs(dbp.pid, (*sys.PtraceRegs)(regs)) })
	return err
}

// PeekWord reads the 8 bytes at addr with PTRACE_PEEKDATA.
func (dbp *Process) PeekWord(addr uint64) (uint64, error) {
	if dbp.Exited() {
		return 0, proc.ErrNoProcess
	}
	var (
		buf [8]byte
		err error
	)
	dbp.execPtraceFunc(func() { _, err = sys.PtracePeekData(dbp.pid, uintptr(addr), buf[:]) })
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// PokeWord writes the 8 bytes at addr with PTRACE_POKEDATA.
func (dbp *Process) PokeWord(addr, word uint64) error {
	if dbp.Exited() {
		return proc.ErrNoProcess
	}
	var (
		buf [8]byte
		err error
	)
	binary.LittleEndian.PutUint64(buf[:], word)
	dbp.execPtraceFunc(func() { _, err = sys.PtracePokeData(dbp.pid, uintptr(addr), buf[:]) })
	dbp.log.WithField("pid", dbp.pid).Debugf("PTRACE_POKEDATA %#x %#016x", addr, word)
	return err
}
