//go:build linux && amd64

package native

import (
	"os"
	"runtime"
	"syscall"

	"github.com/adkevin3307/sdb/pkg/logflags"
	"github.com/adkevin3307/sdb/pkg/proc"
)

// Process is a single threaded child traced with ptrace(2).
type Process struct {
	pid int

	ptraceChan     chan func()
	ptraceDoneChan chan interface{}

	childProcess bool // this process was launched, not attached to
	ctty         *os.File
	log          logflags.Logger

	exited, detached bool
}

// newProcess returns an initialized Process struct. Before returning,
// it will also launch a goroutine in order to handle ptrace(2)
// functions. For more information, see the documentation on
// `handlePtraceFuncs`.
func newProcess(pid int) *Process {
	dbp := &Process{
		pid:            pid,
		ptraceChan:     make(chan func()),
		ptraceDoneChan: make(chan interface{}),
		log:            logflags.PtraceLogger(),
	}
	go dbp.handlePtraceFuncs()
	return dbp
}

// Pid returns the process ID.
func (dbp *Process) Pid() int {
	return dbp.pid
}

// Exited returns true if the process has terminated or was released.
func (dbp *Process) Exited() bool {
	return dbp.exited
}

func (dbp *Process) handlePtraceFuncs() {
	// We must ensure here that we are running on the same thread during
	// while invoking the ptrace(2) syscall. This is due to the fact that ptrace(2) expects
	// all commands after PTRACE_ATTACH to come from the same thread.
	runtime.LockOSThread()

	for fn := range dbp.ptraceChan {
		fn()
		dbp.ptraceDoneChan <- nil
	}
}

func (dbp *Process) execPtraceFunc(fn func()) {
	dbp.ptraceChan <- fn
	<-dbp.ptraceDoneChan
}

func (dbp *Process) postExit() {
	if dbp.Exited() {
		return
	}
	dbp.exited = true
	close(dbp.ptraceChan)
	close(dbp.ptraceDoneChan)
	if dbp.ctty != nil {
		dbp.ctty.Close()
	}
}

// Continue resumes the process delivering sig, 0 for none, and waits for
// the next stop.
func (dbp *Process) Continue(sig syscall.Signal) (proc.StopEvent, error) {
	if dbp.Exited() {
		return proc.StopEvent{}, proc.ErrNoProcess
	}
	var err error
	dbp.execPtraceFunc(func() { err = ptraceCont(dbp.pid, sig) })
	if err != nil {
		return proc.StopEvent{}, err
	}
	dbp.log.WithField("pid", dbp.pid).Debugf("PTRACE_CONT sig=%d", sig)
	return dbp.wait()
}

// SingleStep executes one instruction and waits for the resulting stop.
func (dbp *Process) SingleStep() (proc.StopEvent, error) {
	if dbp.Exited() {
		return proc.StopEvent{}, proc.ErrNoProcess
	}
	var err error
	dbp.execPtraceFunc(func() { err = ptraceSingleStep(dbp.pid) })
	if err != nil {
		return proc.StopEvent{}, err
	}
	dbp.log.WithField("pid", dbp.pid).Debug("PTRACE_SINGLESTEP")
	return dbp.wait()
}

// Kill terminates a launched process and reaps it. Attached processes are
// detached instead.
func (dbp *Process) Kill() error {
	if dbp.Exited() {
		return nil
	}
	if !dbp.childProcess {
		return dbp.Detach()
	}
	if err := killProcess(dbp.pid); err != nil && err != syscall.ESRCH {
		return err
	}
	for !dbp.Exited() {
		if _, err := dbp.wait(); err != nil {
			dbp.postExit()
			if err == syscall.ECHILD {
				return nil
			}
			return err
		}
	}
	return nil
}

// Detach releases the process, leaving it running.
func (dbp *Process) Detach() error {
	if dbp.Exited() {
		return nil
	}
	var err error
	dbp.execPtraceFunc(func() { err = ptraceDetach(dbp.pid) })
	if err != nil {
		return err
	}
	dbp.detached = true
	dbp.postExit()
	return nil
}
