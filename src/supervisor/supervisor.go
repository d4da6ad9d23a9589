// Package supervisor runs the lokinet daemon: it writes the configuration
// to a temporary file, starts the process, forwards its output, restarts it
// after an unexpected exit and stops it with an interrupt followed, if
// needed, by a kill.
package supervisor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/Arceliar/phony"
	"github.com/benbjohnson/clock"
	"github.com/gologme/log"
	"go.uber.org/multierr"

	"github.com/oxen-io/lokinet/src/util"
)

// MaxStopRetries is how many further Stop calls are tolerated while a stop
// is already in progress.
const MaxStopRetries = 3

var (
	ErrBinaryNotFound = errors.New("lokinet binary not found")
	ErrNotIdle        = errors.New("supervisor already started")
	ErrStopTimeout    = errors.New("lokinet is still running after being killed")
	ErrTooManyStops   = errors.New("lokinet did not respond to repeated stop requests")
)

// State is the lifecycle state of the supervised process.
type State int

const (
	Idle State = iota
	Starting
	Running
	// Restarting is the cooldown between an unexpected exit and the next
	// Starting.
	Restarting
	StopRequested
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Restarting:
		return "restarting"
	case StopRequested:
		return "stop requested"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// OutputSink receives the daemon's output, one line at a time.
type OutputSink interface {
	Message(line string)
	Error(line string)
}

type Logger interface {
	Printf(string, ...interface{})
	Println(...interface{})
	Infof(string, ...interface{})
	Infoln(...interface{})
	Warnf(string, ...interface{})
	Warnln(...interface{})
	Errorf(string, ...interface{})
	Errorln(...interface{})
	Debugf(string, ...interface{})
	Debugln(...interface{})
}

// Supervisor owns at most one lokinet process at a time.
type Supervisor struct {
	phony.Inbox
	log      Logger
	clock    clock.Clock
	spawner  Spawner
	sink     OutputSink
	alive    func(int) bool
	shutdown *util.Shutdown
	onFatal  func(error)
	config   struct {
		binary    string
		text      []byte
		verbose   bool
		restart   bool
		bootstrap string
		timeouts  Timeouts
	}
	done          chan struct{}
	_state        State
	_proc         Process
	_pid          int
	_generation   int
	_configPath   string
	_stopAt       time.Time
	_killed       bool
	_stopRetries  int
	_restarts     int
	_exitCode     int
	_logging      bool
	_pollTimer    *clock.Timer
	_restartTimer *clock.Timer
}

// New returns an idle supervisor for binary, which will be started with
// text as its configuration.
func New(binary string, text []byte, logger Logger, opts ...SetupOption) *Supervisor {
	s := &Supervisor{
		log:      logger,
		clock:    clock.New(),
		spawner:  ExecSpawner{},
		alive:    processAlive,
		done:     make(chan struct{}),
		_logging: true,
	}
	s.config.binary = binary
	s.config.text = text
	s.config.timeouts = DefaultTimeouts()
	for _, opt := range opts {
		s._applyOption(opt)
	}
	if s.log == nil {
		s.log = log.New(io.Discard, "", 0)
	}
	if s.shutdown == nil {
		s.shutdown = util.NewShutdown()
	}
	if s.onFatal == nil {
		s.onFatal = func(err error) { s.log.Errorln("Supervisor:", err) }
	}
	return s
}

// Start writes the configuration and launches the daemon. It fails if the
// binary does not exist, the configuration cannot be written or the
// process cannot be spawned.
func (s *Supervisor) Start() (err error) {
	phony.Block(s, func() {
		if s._state != Idle {
			err = ErrNotIdle
			return
		}
		if err = s._launch(); err != nil {
			s._terminate()
		}
	})
	return
}

// Stop asks the daemon to exit.
func (s *Supervisor) Stop() {
	s.Act(nil, s._stop)
}

// Done is closed once the supervisor reaches Terminated.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// State returns the current lifecycle state.
func (s *Supervisor) State() (state State) {
	phony.Block(s, func() { state = s._state })
	return
}

// PID returns the pid of the running daemon, or 0.
func (s *Supervisor) PID() (pid int) {
	phony.Block(s, func() { pid = s._pid })
	return
}

// IsRunning reports whether a daemon process exists and is alive.
func (s *Supervisor) IsRunning() (running bool) {
	phony.Block(s, func() {
		running = s._proc != nil && s.alive(s._pid)
	})
	return
}

// Restarts returns how many times the daemon has been relaunched.
func (s *Supervisor) Restarts() (n int) {
	phony.Block(s, func() { n = s._restarts })
	return
}

// ExitCode returns the exit code of the last process that exited.
func (s *Supervisor) ExitCode() (code int) {
	phony.Block(s, func() { code = s._exitCode })
	return
}

// EnableLogging resumes forwarding of the daemon's standard output.
func (s *Supervisor) EnableLogging() {
	s.Act(nil, func() { s._logging = true })
}

// DisableLogging stops forwarding the daemon's standard output. Error
// output is always forwarded.
func (s *Supervisor) DisableLogging() {
	s.Act(nil, func() { s._logging = false })
}

func (s *Supervisor) _setState(state State) {
	if s._state != state {
		s.log.Debugf("Supervisor: %s -> %s\n", s._state, state)
	}
	s._state = state
}

// _launch moves through Starting to Running.
func (s *Supervisor) _launch() error {
	s._setState(Starting)
	if _, err := os.Stat(s.config.binary); err != nil {
		return fmt.Errorf("%w: %s", ErrBinaryNotFound, s.config.binary)
	}
	f, err := os.CreateTemp("", "*.lokinet_ini")
	if err != nil {
		return fmt.Errorf("creating configuration file: %w", err)
	}
	s._configPath = f.Name()
	_, err = f.Write(s.config.text)
	err = multierr.Append(err, f.Close())
	if err != nil {
		return fmt.Errorf("writing configuration file: %w", err)
	}
	args := []string{s._configPath}
	if s.config.verbose {
		args = append(args, "-v")
	}
	proc, err := s.spawner.Spawn(s.config.binary, args)
	if err != nil {
		return fmt.Errorf("starting %s: %w", s.config.binary, err)
	}
	s._generation++
	s._proc = proc
	s._pid = proc.Pid()
	s._killed = false
	s._stopRetries = 0
	s._setState(Running)
	s.log.Infof("Started lokinet with pid %d using %s\n", s._pid, s._configPath)

	gen := s._generation
	var wg sync.WaitGroup
	wg.Add(2)
	go s.pipe(&wg, proc.Stdout(), false)
	go s.pipe(&wg, proc.Stderr(), true)
	go func() {
		wg.Wait()
		code, err := proc.Wait()
		s.Act(nil, func() { s._exited(gen, code, err) })
	}()
	return nil
}

// MaxLineLength caps a forwarded output line; the rest of a longer line is
// dropped.
const MaxLineLength = 1024 * 1024

// pipe forwards r line by line until EOF.
func (s *Supervisor) pipe(wg *sync.WaitGroup, r io.Reader, stderr bool) {
	defer wg.Done()
	reader := bufio.NewReaderSize(r, 64*1024)
	var buf []byte
	truncated := false
	for {
		chunk, more, err := reader.ReadLine()
		if err != nil {
			if err != io.EOF {
				s.log.Debugln("Supervisor: output:", err)
			}
			return
		}
		if room := MaxLineLength - len(buf); len(chunk) > room {
			chunk = chunk[:room]
			if !truncated {
				truncated = true
				s.log.Debugln("Supervisor: output line truncated to", MaxLineLength, "bytes")
			}
		}
		buf = append(buf, chunk...)
		if more {
			continue
		}
		line := string(buf)
		buf, truncated = buf[:0], false
		s.Act(nil, func() {
			switch {
			case s.sink == nil:
			case stderr:
				s.sink.Error(line)
			case s._logging:
				s.sink.Message(line)
			}
		})
	}
}

func (s *Supervisor) _exited(gen, code int, err error) {
	if gen != s._generation || s._proc == nil {
		return
	}
	s._proc = nil
	s._pid = 0
	s._exitCode = code
	s._stopTimers()
	if err != nil {
		s.log.Warnln("Supervisor: waiting for lokinet:", err)
	}
	s._removeConfig()
	switch {
	case s._state == StopRequested:
		s.log.Infof("Lokinet exited with code %d\n", code)
		s._terminate()
	case code == 0 || !s.config.restart || s.shutdown.Requested():
		s.log.Infof("Lokinet exited with code %d, not restarting\n", code)
		s._terminate()
	default:
		s.log.Warnf("Lokinet exited with code %d, restarting in %s\n", code, s.config.timeouts.Cooldown)
		s._setState(Restarting)
		s._restartTimer = s.clock.AfterFunc(s.config.timeouts.Cooldown, func() {
			s.Act(nil, s._restart)
		})
	}
}

func (s *Supervisor) _restart() {
	if s._state != Restarting {
		return
	}
	if s.shutdown.Requested() {
		s._terminate()
		return
	}
	s._restarts++
	if err := s._launch(); err != nil {
		s._terminate()
		s.onFatal(err)
	}
}

func (s *Supervisor) _stop() {
	switch s._state {
	case Idle, Restarting:
		s._terminate()
	case Running:
		s._setState(StopRequested)
		s._stopAt = s.clock.Now()
		s.log.Infof("Stopping lokinet pid %d\n", s._pid)
		if err := s._proc.Signal(os.Interrupt); err != nil {
			// Interrupt is not available everywhere
			s.log.Debugln("Supervisor: interrupt failed, killing:", err)
			s._kill()
		}
		s._schedulePoll()
	case StopRequested:
		s._stopRetries++
		s.log.Warnf("Lokinet pid %d is already stopping (%d/%d)\n", s._pid, s._stopRetries, MaxStopRetries)
		if s._stopRetries > MaxStopRetries {
			s.onFatal(ErrTooManyStops)
		}
	}
}

func (s *Supervisor) _schedulePoll() {
	s._pollTimer = s.clock.AfterFunc(s.config.timeouts.Poll, func() {
		s.Act(nil, s._poll)
	})
}

func (s *Supervisor) _poll() {
	if s._state != StopRequested || s._proc == nil {
		return
	}
	if !s.alive(s._pid) {
		s.log.Infof("Lokinet pid %d is gone\n", s._pid)
		s._proc = nil
		s._pid = 0
		s._removeConfig()
		s._terminate()
		return
	}
	elapsed := s.clock.Since(s._stopAt)
	switch escalation(elapsed, s._killed, s.config.timeouts) {
	case sendKill:
		s.log.Warnf("Lokinet pid %d still running after %s, killing\n", s._pid, elapsed.Round(time.Second))
		s._kill()
	case abandon:
		s._dump(elapsed)
		s.onFatal(fmt.Errorf("%w: pid %d after %s", ErrStopTimeout, s._pid, elapsed.Round(time.Second)))
		return
	}
	s._schedulePoll()
}

func (s *Supervisor) _kill() {
	s._killed = true
	if err := s._proc.Kill(); err != nil {
		s.log.Warnln("Supervisor: kill:", err)
	}
}

// _dump logs everything known about a process that refuses to die.
func (s *Supervisor) _dump(elapsed time.Duration) {
	s.log.Errorf("Lokinet pid %d did not exit %s after the interrupt\n", s._pid, elapsed.Round(time.Second))
	s.log.Errorf("  state=%s killed=%v stop retries=%d restarts=%d\n", s._state, s._killed, s._stopRetries, s._restarts)
	s.log.Errorf("  config=%q bootstrap=%q binary=%q\n", s._configPath, s.config.bootstrap, s.config.binary)
	buf := make([]byte, 1<<16)
	buf = buf[:runtime.Stack(buf, true)]
	s.log.Errorf("  %d goroutines:\n%s\n", runtime.NumGoroutine(), buf)
}

func (s *Supervisor) _stopTimers() {
	if s._pollTimer != nil {
		s._pollTimer.Stop()
		s._pollTimer = nil
	}
	if s._restartTimer != nil {
		s._restartTimer.Stop()
		s._restartTimer = nil
	}
}

func (s *Supervisor) _removeConfig() {
	if s._configPath == "" {
		return
	}
	if err := os.Remove(s._configPath); err != nil && !os.IsNotExist(err) {
		s.log.Warnln("Supervisor: removing configuration:", err)
	}
	s._configPath = ""
}

func (s *Supervisor) _terminate() {
	if s._state == Terminated {
		return
	}
	s._stopTimers()
	s._removeConfig()
	if s.config.bootstrap != "" {
		if err := os.Remove(s.config.bootstrap); err != nil && !os.IsNotExist(err) {
			s.log.Warnln("Supervisor: removing bootstrap:", err)
		}
	}
	s._setState(Terminated)
	close(s.done)
}

type action int

const (
	keepWaiting action = iota
	sendKill
	abandon
)

// escalation decides what to do about a process that is still alive
// elapsed after it was interrupted.
func escalation(elapsed time.Duration, killed bool, t Timeouts) action {
	switch {
	case elapsed > t.Abandon:
		return abandon
	case elapsed > t.Kill && !killed:
		return sendKill
	default:
		return keepWaiting
	}
}
