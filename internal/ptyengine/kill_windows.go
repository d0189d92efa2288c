//go:build windows

package ptyengine

import (
	"os/exec"
	"strconv"
)

// setProcessGroup is a no-op on Windows: taskkill /T walks the tree itself.
func setProcessGroup(cmd *exec.Cmd) {}

// killProcessTree shells out to taskkill /T /F, which terminates pid and
// every process it spawned.
func killProcessTree(pid int) error {
	return exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(pid)).Run()
}
