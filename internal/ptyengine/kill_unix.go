//go:build !windows

package ptyengine

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts the child in its own process group so killProcessTree
// can signal the whole tree rather than just the direct child.
func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// killProcessTree sends SIGKILL to the process group rooted at pid, falling
// back to killing just pid if the group signal is rejected.
func killProcessTree(pid int) error {
	if err := syscall.Kill(-pid, syscall.SIGKILL); err == nil {
		return nil
	}
	return syscall.Kill(pid, syscall.SIGKILL)
}
