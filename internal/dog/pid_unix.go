//go:build !windows

package dog

import (
	"os"
	"strconv"
)

// pidAlive checks /proc/<pid> existence.
func pidAlive(pid int) bool {
	_, err := os.Stat("/proc/" + strconv.Itoa(pid))
	return err == nil
}
