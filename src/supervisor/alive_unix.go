//go:build unix

package supervisor

import (
	"errors"

	"golang.org/x/sys/unix"
)

// processAlive sends signal 0, which only checks that pid exists. EPERM
// means it exists but belongs to someone else.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
