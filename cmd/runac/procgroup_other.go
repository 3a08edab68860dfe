//go:build !unix

package main

import (
	"os"
	"os/exec"
)

// setProcessGroup is a no-op outside Unix: Setpgid has no Windows
// equivalent reachable through syscall.SysProcAttr here.
func setProcessGroup(cmd *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		cmd.Process.Kill()
	}
}

func interruptSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
