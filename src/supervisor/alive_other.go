//go:build !unix && !windows

package supervisor

// Without a way to query the process table the poll relies on Wait
// returning, so the process is reported alive until then.
func processAlive(pid int) bool {
	return pid > 0
}
