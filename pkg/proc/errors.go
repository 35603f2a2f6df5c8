package proc

import (
	"errors"
	"fmt"
)

// ErrNoProcess is returned by operations that need a live child when no
// process is being debugged.
var ErrNoProcess = errors.New("no process is being debugged")

// ErrNoMaps is returned when the memory map of the child could not be
// opened, usually because the process has already exited.
var ErrNoMaps = errors.New("memory map not available")

// LoadError is returned when the target image can not be opened or is not
// an ELF64 x86-64 executable.
type LoadError struct {
	Path string
	Err  error
}

func (le *LoadError) Error() string {
	return fmt.Sprintf("could not load program '%s': %v", le.Path, le.Err)
}

func (le *LoadError) Unwrap() error { return le.Err }

// SpawnError is returned when the child process could not be created.
type SpawnError struct {
	Path string
	Err  error
}

func (se *SpawnError) Error() string {
	return fmt.Sprintf("could not spawn '%s': %v", se.Path, se.Err)
}

func (se *SpawnError) Unwrap() error { return se.Err }

// TraceError is returned when a request to the tracing facility fails.
type TraceError struct {
	Op  string
	Err error
}

func (te *TraceError) Error() string {
	return fmt.Sprintf("%s: %v", te.Op, te.Err)
}

func (te *TraceError) Unwrap() error { return te.Err }

func traceError(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TraceError
	if errors.As(err, &te) {
		return err
	}
	return &TraceError{Op: op, Err: err}
}

// DuplicateBreakpointError is returned when trying to set a breakpoint at
// an address that already has a breakpoint set for it.
type DuplicateBreakpointError struct {
	Addr uint64
}

func (dbe *DuplicateBreakpointError) Error() string {
	return fmt.Sprintf("breakpoint already exist at %#x", dbe.Addr)
}

// BreakpointNotFoundError is returned when a breakpoint index is out of range.
type BreakpointNotFoundError struct {
	Index int
}

func (bnf *BreakpointNotFoundError) Error() string {
	return fmt.Sprintf("breakpoint %d not exist", bnf.Index)
}

// UnknownRegisterError is returned for register names outside of the
// supported general purpose set.
type UnknownRegisterError struct {
	Name string
}

func (ure *UnknownRegisterError) Error() string {
	return fmt.Sprintf("unknown register '%s'", ure.Name)
}

// InvalidStatusError is returned when a session operation is requested in
// a status that does not allow it.
type InvalidStatusError struct {
	Op     string
	Status Status
}

func (ise *InvalidStatusError) Error() string {
	return fmt.Sprintf("%s not allowed in status %s", ise.Op, ise.Status)
}
