package supervisor

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/oxen-io/lokinet/src/util"
)

func (s *Supervisor) _applyOption(opt SetupOption) {
	switch v := opt.(type) {
	case Verbose:
		s.config.verbose = bool(v)
	case AutoRestart:
		s.config.restart = bool(v)
	case BootstrapFile:
		s.config.bootstrap = string(v)
	case Timeouts:
		s.config.timeouts = v
	case Clock:
		s.clock = v.Clock
	case WithSpawner:
		s.spawner = v.Spawner
	case WithSink:
		s.sink = v.Sink
	case WithShutdown:
		s.shutdown = v.Shutdown
	case OnFatal:
		s.onFatal = v
	case Liveness:
		s.alive = v
	}
}

type SetupOption interface {
	isSetupOption()
}

// Verbose starts lokinet with -v.
type Verbose bool

// AutoRestart relaunches lokinet after an unexpected exit.
type AutoRestart bool

// BootstrapFile is a temporary bootstrap file created for this run. It is
// deleted once the supervisor terminates.
type BootstrapFile string

// Timeouts govern liveness polling, stop escalation and the restart
// cooldown. Kill and Abandon are measured from the interrupt signal.
type Timeouts struct {
	Poll     time.Duration
	Kill     time.Duration
	Abandon  time.Duration
	Cooldown time.Duration
}

// DefaultTimeouts returns the timeouts used unless others are given.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Poll:     time.Second,
		Kill:     15 * time.Second,
		Abandon:  30 * time.Second,
		Cooldown: 30 * time.Second,
	}
}

type Clock struct{ clock.Clock }
type WithSpawner struct{ Spawner }
type WithSink struct{ Sink OutputSink }
type WithShutdown struct{ Shutdown *util.Shutdown }

// OnFatal is called when supervision cannot continue. It is called from
// inside the supervisor and must not wait on it.
type OnFatal func(error)

// Liveness reports whether pid is still running.
type Liveness func(pid int) bool

func (a Verbose) isSetupOption()       {}
func (a AutoRestart) isSetupOption()   {}
func (a BootstrapFile) isSetupOption() {}
func (a Timeouts) isSetupOption()      {}
func (a Clock) isSetupOption()         {}
func (a WithSpawner) isSetupOption()   {}
func (a WithSink) isSetupOption()      {}
func (a WithShutdown) isSetupOption()  {}
func (a OnFatal) isSetupOption()       {}
func (a Liveness) isSetupOption()      {}
