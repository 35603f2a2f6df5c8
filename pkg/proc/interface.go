package proc

import (
	"fmt"
	"syscall"
)

// WordAccessor reads and writes target memory one 8 byte word at a time.
// Callers must preserve the bytes of the word they do not intend to change.
type WordAccessor interface {
	PeekWord(addr uint64) (uint64, error)
	PokeWord(addr, word uint64) error
}

// Process represents a single traced child as seen by the session
// controller. Every method except Pid requires the child to be stopped.
type Process interface {
	WordAccessor

	Pid() int

	Registers() (*Registers, error)
	SetRegisters(regs *Registers) error

	// Continue resumes the child, delivering sig (0 for none), and blocks
	// until it stops again or terminates.
	Continue(sig syscall.Signal) (StopEvent, error)
	// SingleStep executes exactly one machine instruction and blocks until
	// the child stops again or terminates.
	SingleStep() (StopEvent, error)

	// Kill terminates the child and reaps it.
	Kill() error
	// Detach releases an attached child, leaving it running.
	Detach() error
}

// Backend creates traced processes.
type Backend interface {
	// Launch starts cmd[0] with arguments cmd and returns it stopped at
	// its first instruction.
	Launch(cmd []string) (Process, error)
	// Attach starts tracing an existing process.
	Attach(pid int) (Process, error)
}

// StopKind describes why a resume request returned.
type StopKind uint8

const (
	// StopSignal means the child is stopped and still alive.
	StopSignal StopKind = iota
	// StopExited means the child called exit.
	StopExited
	// StopKilled means the child was terminated by a signal.
	StopKilled
)

// StopEvent is the synchronous outcome of a resume request.
type StopEvent struct {
	Kind StopKind
	// Signal is the stop signal for StopSignal and the terminating signal
	// for StopKilled.
	Signal syscall.Signal
	// Status is the exit status for StopExited.
	Status int
}

// Alive returns true if the child is still stopped under the tracer.
func (ev StopEvent) Alive() bool {
	return ev.Kind == StopSignal
}

// Code is the value reported in the termination banner.
func (ev StopEvent) Code() int {
	if ev.Kind == StopKilled {
		return int(ev.Signal)
	}
	return ev.Status
}

func (ev StopEvent) String() string {
	switch ev.Kind {
	case StopExited:
		return fmt.Sprintf("exited with status %d", ev.Status)
	case StopKilled:
		return fmt.Sprintf("killed by %v", ev.Signal)
	default:
		return fmt.Sprintf("stopped by %v", ev.Signal)
	}
}
