//go:build linux && amd64

package native

import (
	"syscall"

	sys "golang.org/x/sys/unix"
)

// ptraceRequest issues a ptrace(2) request that takes no address and an
// integer data argument. It must be called from the ptrace goroutine.
func ptraceRequest(req, pid int, data uintptr) error {
	_, _, errno := sys.Syscall6(sys.SYS_PTRACE, uintptr(req), uintptr(pid), 0, data, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func ptraceAttach(pid int) error {
	return ptraceRequest(sys.PTRACE_ATTACH, pid, 0)
}

// ptraceDetach lets the process run untraced without delivering a signal.
func ptraceDetach(pid int) error {
	return ptraceRequest(sys.PTRACE_DETACH, pid, 0)
}

func ptraceCont(pid int, sig syscall.Signal) error {
	return ptraceRequest(sys.PTRACE_CONT, pid, uintptr(sig))
}

func ptraceSingleStep(pid int) error {
	return ptraceRequest(sys.PTRACE_SINGLESTEP, pid, 0)
}

func ptraceSetOptions(pid, options int) error {
	return ptraceRequest(sys.PTRACE_SETOPTIONS, pid, uintptr(options))
}
