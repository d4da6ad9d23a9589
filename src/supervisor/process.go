package supervisor

import (
	"errors"
	"io"
	"os"
	"os/exec"
)

// Process is a running lokinet daemon.
type Process interface {
	Pid() int
	Stdout() io.Reader
	Stderr() io.Reader
	Signal(os.Signal) error
	Kill() error
	// Wait blocks until the process has exited and returns its exit code. It
	// must only be called once both output streams have been read to EOF.
	Wait() (int, error)
}

// Spawner starts processes.
type Spawner interface {
	Spawn(path string, args []string) (Process, error)
}

// ExecSpawner starts real processes with os/exec.
type ExecSpawner struct{}

// Spawn implements Spawner.
func (ExecSpawner) Spawn(path string, args []string) (Process, error) {
	cmd := exec.Command(path, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader
	stderr io.Reader
}

func (p *execProcess) Pid() int                   { return p.cmd.Process.Pid }
func (p *execProcess) Stdout() io.Reader          { return p.stdout }
func (p *execProcess) Stderr() io.Reader          { return p.stderr }
func (p *execProcess) Signal(sig os.Signal) error { return p.cmd.Process.Signal(sig) }
func (p *execProcess) Kill() error                { return p.cmd.Process.Kill() }

func (p *execProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return -1, err
	}
	return p.cmd.ProcessState.ExitCode(), nil
}
