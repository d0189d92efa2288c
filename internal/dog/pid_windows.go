//go:build windows

package dog

import (
	"os/exec"
	"strconv"
	"strings"
)

// pidAlive parses `tasklist /FI "PID eq <pid>"` output for a matching row.
func pidAlive(pid int) bool {
	out, err := exec.Command("tasklist", "/FI", "PID eq "+strconv.Itoa(pid)).Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(out), strconv.Itoa(pid))
}
