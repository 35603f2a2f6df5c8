//go:build linux && amd64

package native

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	sys "golang.org/x/sys/unix"

	"github.com/adkevin3307/sdb/pkg/proc"
)

// Backend launches and attaches to processes with ptrace(2).
type Backend struct {
	// TTY is the terminal the launched processes use for their standard
	// streams. When empty they inherit the streams of the debugger.
	TTY string
}

// Launch implements proc.Backend.
func (b *Backend) Launch(cmd []string) (proc.Process, error) {
	return Launch(cmd, b.TTY)
}

// Attach implements proc.Backend.
func (b *Backend) Attach(pid int) (proc.Process, error) {
	return Attach(pid)
}

// Launch creates and begins debugging a new process. First entry in
// `cmd` is the program to run, and then rest are the arguments
// to be supplied to that process. The process is returned stopped at the
// first instruction after execve and is killed if the debugger exits.
func Launch(cmd []string, tty string) (*Process, error) {
	var (
		process *exec.Cmd
		err     error
	)

	dbp := newProcess(0)
	dbp.execPtraceFunc(func() {
		process = exec.Command(cmd[0])
		process.Args = cmd
		process.Stdin = os.Stdin
		process.Stdout = os.Stdout
		process.Stderr = os.Stderr
		process.SysProcAttr = &syscall.SysProcAttr{Ptrace: true}
		if tty != "" {
			if dbp.ctty, err = openTerminal(tty); err != nil {
				return
			}
			useTerminal(process, dbp.ctty)
		}
		err = process.Start()
	})
	if err != nil {
		dbp.postExit()
		return nil, err
	}
	dbp.pid = process.Process.Pid
	dbp.childProcess = true

	ev, err := dbp.wait()
	if err != nil {
		dbp.abandon()
		return nil, fmt.Errorf("waiting for target execve failed: %s", err)
	}
	if !ev.Alive() {
		return nil, fmt.Errorf("process %d %s before its first instruction", dbp.pid, ev)
	}
	dbp.execPtraceFunc(func() { err = ptraceSetOptions(dbp.pid, sys.PTRACE_O_EXITKILL) })
	if err != nil {
		dbp.abandon()
		return nil, err
	}
	dbp.log.WithField("pid", dbp.pid).Debugf("launched %v", cmd)
	return dbp, nil
}

// Attach to an existing process with the given PID.
func Attach(pid int) (*Process, error) {
	dbp := newProcess(pid)

	var err error
	dbp.execPtraceFunc(func() { err = ptraceAttach(dbp.pid) })
	if err != nil {
		dbp.postExit()
		return nil, err
	}
	ev, err := dbp.wait()
	if err != nil {
		dbp.Detach()
		return nil, err
	}
	if !ev.Alive() {
		return nil, fmt.Errorf("process %d %s", pid, ev)
	}
	dbp.log.WithField("pid", pid).Debug("attached")
	return dbp, nil
}

// wait blocks until the process changes state and translates the wait
// status. Once the process has terminated it is marked as exited.
func (dbp *Process) wait() (proc.StopEvent, error) {
	var s sys.WaitStatus
	for {
		_, err := sys.Wait4(dbp.pid, &s, sys.WALL, nil)
		if err == sys.EINTR {
			continue
		}
		if err != nil {
			return proc.StopEvent{}, err
		}
		break
	}

	switch {
	case s.Exited():
		dbp.postExit()
		return proc.StopEvent{Kind: proc.StopExited, Status: s.ExitStatus()}, nil
	case s.Signaled():
		dbp.postExit()
		return proc.StopEvent{Kind: proc.StopKilled, Signal: s.Signal()}, nil
	case s.Stopped():
		dbp.log.WithField("pid", dbp.pid).Debugf("stopped by %v", s.StopSignal())
		return proc.StopEvent{Kind: proc.StopSignal, Signal: s.StopSignal()}, nil
	}
	return proc.StopEvent{}, fmt.Errorf("unexpected wait status %#x", uint32(s))
}

// abandon kills a child whose launch could not be completed, reaps it
// and stops the ptrace goroutine. Wait errors are ignored, the child is
// gone either way.
func (dbp *Process) abandon() {
	if err := killProcess(dbp.pid); err != nil {
		dbp.log.WithField("pid", dbp.pid).Debugf("kill: %v", err)
	}
	var s sys.WaitStatus
	for {
		_, err := sys.Wait4(dbp.pid, &s, sys.WALL, nil)
		if err == sys.EINTR {
			continue
		}
		if err != nil || s.Exited() || s.Signaled() {
			break
		}
	}
	dbp.postExit()
}

func killProcess(pid int) error {
	return sys.Kill(pid, sys.SIGKILL)
}
