//go:build unix

package main

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcessGroup puts cmd in its own process group so the driver can
// signal the whole toolchain invocation (clang plus whatever it forks
// for assembly and linking) at once, rather than just its immediate
// child.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup sends SIGTERM to cmd's whole process group.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	unix.Kill(-cmd.Process.Pid, unix.SIGTERM)
}

func interruptSignals() []os.Signal {
	return []os.Signal{os.Interrupt, unix.SIGTERM}
}
