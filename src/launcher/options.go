package launcher

import (
	"context"
	"net"
	"net/http"

	"github.com/benbjohnson/clock"

	"github.com/oxen-io/lokinet/src/probe"
	"github.com/oxen-io/lokinet/src/supervisor"
)

func (l *Launcher) _applyOption(opt SetupOption) {
	switch v := opt.(type) {
	case WithGetter:
		l.getter = v.Getter
	case WithQuerier:
		l.querier = v.Querier
	case WithHTTPClient:
		l.client = v.Client
	case Network:
		if v.Outbound != nil {
			l.network.Outbound = v.Outbound
		}
		if v.Addresses != nil {
			l.network.Addresses = v.Addresses
		}
		if v.Resolvers != nil {
			l.network.Resolvers = v.Resolvers
		}
	case WithSpawner:
		l.supervise = append(l.supervise, supervisor.WithSpawner{Spawner: v.Spawner})
	case WithSink:
		l.supervise = append(l.supervise, supervisor.WithSink{Sink: v.Sink})
	case Clock:
		l.supervise = append(l.supervise, supervisor.Clock{Clock: v.Clock})
	case Timeouts:
		l.supervise = append(l.supervise, v.Timeouts)
	case Liveness:
		l.supervise = append(l.supervise, supervisor.Liveness(v))
	case Progress:
		l.progress = bool(v)
	case OnFatal:
		l.onFatal = v
	}
}

type SetupOption interface {
	isSetupOption()
}

type WithGetter struct{ probe.Getter }
type WithQuerier struct{ probe.Querier }
type WithHTTPClient struct{ Client *http.Client }
type WithSpawner struct{ supervisor.Spawner }
type WithSink struct{ Sink supervisor.OutputSink }
type Clock struct{ clock.Clock }
type Timeouts struct{ supervisor.Timeouts }

// Liveness reports whether the daemon with the given pid is running.
type Liveness func(pid int) bool

// Network replaces how the host is inspected. Nil fields keep the default.
type Network struct {
	Outbound  func(ctx context.Context, targets []string, port int) (probe.Outbound, error)
	Addresses func() ([]net.IP, error)
	Resolvers func() ([]string, error)
}

// Progress draws a progress bar while the bootstrap file downloads.
type Progress bool

// OnFatal is called once when the launcher cannot continue. The default
// only logs the error.
type OnFatal func(error)

func (a WithGetter) isSetupOption()     {}
func (a WithQuerier) isSetupOption()    {}
func (a WithHTTPClient) isSetupOption() {}
func (a WithSpawner) isSetupOption()    {}
func (a WithSink) isSetupOption()       {}
func (a Clock) isSetupOption()          {}
func (a Timeouts) isSetupOption()       {}
func (a Liveness) isSetupOption()       {}
func (a Network) isSetupOption()        {}
func (a Progress) isSetupOption()       {}
func (a OnFatal) isSetupOption()        {}
