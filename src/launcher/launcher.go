// Package launcher ties the probes, the join barrier, the configuration
// synthesiser and the process supervisor together into a single run.
//
// A Launcher is an actor. All of its state is owned by its inbox; the
// probes run on their own goroutines and post their results back, each
// writing only its own field of the results before reporting to the
// barrier.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/Arceliar/phony"
	"github.com/gologme/log"
	"github.com/google/uuid"

	"github.com/oxen-io/lokinet/src/config"
	"github.com/oxen-io/lokinet/src/daemonconf"
	"github.com/oxen-io/lokinet/src/defaults"
	"github.com/oxen-io/lokinet/src/join"
	"github.com/oxen-io/lokinet/src/probe"
	"github.com/oxen-io/lokinet/src/supervisor"
	"github.com/oxen-io/lokinet/src/synth"
	"github.com/oxen-io/lokinet/src/util"
)

var (
	ErrAlreadyStarted = errors.New("launcher already started")
	ErrNoOutbound     = errors.New("can't detect default adapter IP address")
	ErrNotRunning     = errors.New("lokinet is not running")
	ErrNoAddress      = errors.New("lokinet did not report an address")
)

// RetryInterval is how often the blockchain daemon and the lokinet API are
// polled while waiting for them to come up.
const RetryInterval = time.Second

// profilesFile is left behind empty by some crashes and then stops lokinet
// from starting.
const profilesFile = "profiles.dat"

type Logger = supervisor.Logger

// Launcher configures and supervises one lokinet daemon.
type Launcher struct {
	phony.Inbox
	log       Logger
	cfg       *config.LauncherConfig
	runID     uuid.UUID
	ctx       context.Context
	cancel    context.CancelFunc
	shutdown  *util.Shutdown
	client    *http.Client
	getter    probe.Getter
	querier   probe.Querier
	network   Network
	supervise []supervisor.SetupOption
	progress  bool
	onFatal   func(error)
	done      chan struct{}
	_started  bool
	_finished bool
	_profile  synth.Profile
	_barrier  *join.Barrier
	_results  synth.Results
	_result   *synth.Result
	_sup      *supervisor.Supervisor
	_err      error
	_report   func(synth.Results)
}

// New returns a launcher for cfg. Nothing happens until StartClient,
// StartServiceNode or Probe is called.
func New(cfg *config.LauncherConfig, logger Logger, opts ...SetupOption) *Launcher {
	l := &Launcher{
		log:      logger,
		cfg:      cfg,
		runID:    uuid.New(),
		shutdown: util.NewShutdown(),
		done:     make(chan struct{}),
	}
	l.ctx, l.cancel = context.WithCancel(context.Background())
	l.network = Network{
		Outbound:  probe.DetectOutbound,
		Addresses: probe.BoundAddresses,
		Resolvers: func() ([]string, error) {
			path := defaults.GetDefaults().ResolvConf
			if path == "" {
				return nil, nil
			}
			return probe.SystemResolvers(path)
		},
	}
	for _, opt := range opts {
		l._applyOption(opt)
	}
	if l.log == nil {
		l.log = log.New(io.Discard, "", 0)
	}
	if l.client == nil {
		l.client = &http.Client{}
	}
	if l.getter == nil {
		l.getter = &probe.HTTPGetter{Client: l.client, Shutdown: l.shutdown}
	}
	if l.querier == nil {
		l.querier = &probe.DNSClient{}
	}
	if l.onFatal == nil {
		l.onFatal = func(err error) {}
	}
	return l
}

// RunID identifies this launcher in the logs.
func (l *Launcher) RunID() uuid.UUID {
	return l.runID
}

// StartClient probes the host and launches lokinet as a client. A client
// needs a bootstrap file.
func (l *Launcher) StartClient() error {
	return l.begin(synth.Client, nil)
}

// StartServiceNode probes the host, waits for the blockchain daemon and
// launches lokinet as a service node. A service node is always restarted
// when it exits unexpectedly.
func (l *Launcher) StartServiceNode() error {
	return l.begin(synth.ServiceNode, nil)
}

// Probe runs the probes for profile and returns what they found without
// launching anything.
func (l *Launcher) Probe(profile synth.Profile) (synth.Results, error) {
	found := make(chan synth.Results, 1)
	if err := l.begin(profile, func(res synth.Results) { found <- res }); err != nil {
		return synth.Results{}, err
	}
	select {
	case res := <-found:
		return res, nil
	case <-l.done:
		select {
		case res := <-found:
			return res, nil
		default:
		}
		if err := l.Err(); err != nil {
			return synth.Results{}, err
		}
		return synth.Results{}, util.ErrShutdown
	}
}

func (l *Launcher) begin(profile synth.Profile, report func(synth.Results)) (err error) {
	if err := l.cfg.Validate(); err != nil {
		return err
	}
	phony.Block(l, func() {
		switch {
		case l._started:
			err = ErrAlreadyStarted
			return
		case l.shutdown.Requested():
			err = util.ErrShutdown
			return
		}
		l._started = true
		l._profile = profile
		l._report = report
		l._startProbes()
	})
	return
}

// Stop requests shutdown. Probes still in flight finish without effect and
// a running daemon is interrupted. Calling Stop again while the daemon is
// stopping is tolerated a few times.
func (l *Launcher) Stop() {
	if l.shutdown.Request(nil) {
		l.cancel()
	}
	l.Act(nil, func() {
		if l._barrier != nil {
			l._barrier.Cancel()
		}
		if l._sup != nil {
			l._sup.Stop()
			return
		}
		l._finish()
	})
}

// Done is closed when the run is over: the daemon has terminated, the
// launcher was stopped before it launched one, or a fatal error occurred.
func (l *Launcher) Done() <-chan struct{} {
	return l.done
}

// Err returns the fatal error that ended the run, if any.
func (l *Launcher) Err() (err error) {
	phony.Block(l, func() { err = l._err })
	return
}

// Config returns the daemon configuration, or nil before one is built.
func (l *Launcher) Config() (c *daemonconf.Config) {
	phony.Block(l, func() {
		if l._result != nil {
			c = l._result.Config
		}
	})
	return
}

func (l *Launcher) current() (sup *supervisor.Supervisor) {
	phony.Block(l, func() { sup = l._sup })
	return
}

// PID returns the pid of the running daemon, or 0.
func (l *Launcher) PID() int {
	if sup := l.current(); sup != nil {
		return sup.PID()
	}
	return 0
}

// IsRunning reports whether the daemon process is alive.
func (l *Launcher) IsRunning() bool {
	if sup := l.current(); sup != nil {
		return sup.IsRunning()
	}
	return false
}

// EnableLogging resumes forwarding of the daemon's output.
func (l *Launcher) EnableLogging() {
	if sup := l.current(); sup != nil {
		sup.EnableLogging()
	}
}

// DisableLogging stops forwarding the daemon's normal output.
func (l *Launcher) DisableLogging() {
	if sup := l.current(); sup != nil {
		sup.DisableLogging()
	}
}

// Lookup resolves host through the running daemon's DNS server. A name
// that does not exist gives no addresses and no error.
func (l *Launcher) Lookup(ctx context.Context, host string) ([]net.IP, error) {
	c := l.Config()
	if c == nil {
		return nil, ErrNotRunning
	}
	bind, ok := c.Get("dns", "bind")
	if !ok {
		return nil, ErrNotRunning
	}
	return probe.Lookup(ctx, l.querier, bind, host)
}

// DaemonAddress waits for the daemon's API to answer and then asks its DNS
// server for the address of this router.
func (l *Launcher) DaemonAddress(ctx context.Context) (net.IP, error) {
	c := l.Config()
	if c == nil {
		return nil, ErrNotRunning
	}
	if api, ok := c.Get("api", "bind"); ok {
		if enabled, _ := c.Bool("api", "enabled"); enabled {
			l.log.Debugln("Waiting for lokinet API on", api)
			if err := probe.WaitForURL(ctx, l.getter, "http://"+api+"/", RetryInterval); err != nil {
				return nil, err
			}
		}
	}
	ips, err := l.Lookup(ctx, defaults.LocalProbeName)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, ErrNoAddress
	}
	return ips[0], nil
}

// FindManagedDNS looks for a lokinet DNS server, possibly from another
// run, on any of the host's addresses.
func (l *Launcher) FindManagedDNS(ctx context.Context) (net.IP, bool) {
	addrs, err := l.network.Addresses()
	if err != nil {
		l.log.Debugln("Listing addresses:", err)
		return nil, false
	}
	return probe.FindManagedDNS(ctx, l.querier, addrs, defaults.LocalProbeName)
}

func (l *Launcher) _startProbes() {
	cfg := l.cfg
	l.log.Infof("Configuring lokinet %s (run %s)\n", l._profile, l.runID)
	l._barrier = join.NewBarrier(l._finalize, l._profile.RequiredProbes(cfg)...)
	l._barrier.Add(synth.ProbeNetIf, false)
	l._barrier.Add(synth.ProbePublicIP, false)
	ctx := l.ctx

	if url := cfg.BootstrapURL; url != "" {
		go func() {
			path, err := probe.FetchBootstrap(ctx, l.client, url, l.shutdown, l.progress)
			l.Act(nil, func() {
				if err != nil {
					l.log.Warnln("Bootstrap download failed:", err)
				} else if l.shutdown.Requested() {
					os.Remove(path)
				} else {
					l.log.Infoln("Bootstrap written to", path)
					l._results.BootstrapPath = path
				l._results.BootstrapFetched = true
				}
				l._done(synth.ProbeBootstrap)
			})
		}()
	} else {
		l._done(synth.ProbeBootstrap)
	}

	go func() {
		resolvers := cfg.Upstreams
		if len(resolvers) == 0 {
			var err error
			if resolvers, err = l.network.Resolvers(); err != nil {
				l.log.Warnln("Reading system resolvers:", err)
			}
		}
		local, err := l.network.Addresses()
		if err != nil {
			l.log.Debugln("Listing addresses:", err)
		}
		keep := probe.ClassifyResolvers(ctx, l.querier, resolvers, local, cfg.DNSIP, defaults.LocalProbeName)
		l.Act(nil, func() {
			l.log.Debugln("Upstream resolvers:", keep)
			l._results.Upstreams = keep
			l._done(synth.ProbeUpstream)
		})
	}()

	if cfg.RPCPort != 0 {
		go func() {
			port := probe.CheckRPCPort(ctx, l.getter, cfg.RPCIP, cfg.RPCPort)
			l.Act(nil, func() {
				if port != cfg.RPCPort {
					l.log.Infof("Something answers on %s:%d, using RPC port %d\n", cfg.RPCIP, cfg.RPCPort, port)
				}
				l._results.RPCPort = port
				l._done(synth.ProbeRPCCheck)
			})
		}()
	} else {
		l._done(synth.ProbeRPCCheck)
	}

	if cfg.ExplicitDNS() {
		l._done(synth.ProbeDNSBind)
	}

	go func() {
		out, err := l.network.Outbound(ctx, cfg.TestTargets, cfg.TestPort)
		l.Act(nil, func() { l._outbound(out, err) })
	}()

	if l._profile == synth.ServiceNode && cfg.PublicIP == "" {
		go func() {
			ip, err := probe.PublicIP(ctx, l.getter, cfg.PublicIPServices)
			l.Act(nil, func() {
				if err != nil {
					l._fatal(err)
					return
				}
				l.log.Infoln("Public IP is", ip)
				l._results.PublicIP = ip
				l._done(synth.ProbePublicIP)
			})
		}()
	}
}

func (l *Launcher) _outbound(out probe.Outbound, err error) {
	if l.shutdown.Requested() {
		return
	}
	scan := !l.cfg.ExplicitDNS()
	if err != nil {
		if l._profile == synth.ServiceNode || scan {
			l._fatal(fmt.Errorf("%w: %v", ErrNoOutbound, err))
			return
		}
		l.log.Warnln("Outbound interface:", err)
		l._done(synth.ProbeNetIf)
		return
	}
	l.log.Infof("Outbound interface is %s (%s)\n", out.Interface, out.IP)
	l._results.OutboundIP = out.IP
	l._results.Interface = out.Interface
	l._done(synth.ProbeNetIf)
	if !scan {
		return
	}
	candidates := append([]string(nil), defaults.GetDefaults().DNSBindCandidates...)
	candidates = append(candidates, out.IP.String())
	ctx := l.ctx
	go func() {
		free, err := probe.FindFreeDNSPort(ctx, l.querier, candidates, l.cfg.TestHost)
		l.Act(nil, func() {
			if err != nil {
				l._fatal(err)
				return
			}
			l.log.Infoln("Binding DNS port 53 to", free)
			l._results.DNSBindIP = free
			l._done(synth.ProbeDNSBind)
		})
	}()
}

func (l *Launcher) _done(name string) {
	if l.shutdown.Requested() {
		l._barrier.Cancel()
		return
	}
	if !l._barrier.Fired() {
		if pending := l._barrier.Pending(); len(pending) > 1 {
			l.log.Debugf("Probe %s done, waiting for %v\n", name, pending)
		}
	}
	l._barrier.Done(name)
}

// _finalize runs once, when the last required probe has reported.
func (l *Launcher) _finalize() {
	if l.shutdown.Requested() {
		return
	}
	if l._report != nil {
		// the download is removed by _finish, so it is not reported
		res := l._results
		res.BootstrapPath = ""
		l._report(res)
		l._finish()
		return
	}
	result, err := synth.Build(l._profile, l.cfg, l._results)
	if err != nil {
		l._fatal(err)
		return
	}
	l._result = result
	if result.NAT {
		l.log.Warnf("NAT detected: make sure UDP port %d on %s is forwarded to %s\n",
			l.cfg.PublicPort, l._results.PublicIP, l._results.OutboundIP)
	}
	if err := os.MkdirAll(l.cfg.NodeDBDir(), 0o700); err != nil {
		l.log.Warnln("Creating node database directory:", err)
	}
	removeEmptyProfiles(l.log)
	l.log.Debugf("Lokinet configuration:\n%s", result.Text)

	if l._profile != synth.ServiceNode {
		l._launch()
		return
	}
	url := l.cfg.LokidURL()
	ctx := l.ctx
	go func() {
		l.log.Infof("Waiting for lokid on %s:%d\n", l.cfg.Lokid.RPCIP, l.cfg.Lokid.RPCPort)
		err := probe.WaitForURL(ctx, l.getter, url, RetryInterval)
		l.Act(nil, func() {
			if err != nil || l.shutdown.Requested() {
				l._finish()
				return
			}
			l._launch()
		})
	}()
}

func (l *Launcher) _launch() {
	if l.shutdown.Requested() {
		return
	}
	restart := l.cfg.AutoRestart || l._profile == synth.ServiceNode
	opts := append([]supervisor.SetupOption{
		supervisor.Verbose(l.cfg.Verbose),
		supervisor.AutoRestart(restart),
		supervisor.WithShutdown{Shutdown: l.shutdown},
		supervisor.OnFatal(func(err error) {
			l.Act(nil, func() { l._fatal(err) })
		}),
	}, l.supervise...)
	if path := l._results.BootstrapPath; path != "" {
		opts = append(opts, supervisor.BootstrapFile(path))
	}
	sup := supervisor.New(l.cfg.BinaryPath, l._result.Text, l.log, opts...)
	l._sup = sup
	if err := sup.Start(); err != nil {
		l._fatal(err)
		return
	}
	go func() {
		<-sup.Done()
		l.Act(nil, l._finish)
	}()
}

// _fatal ends the run. Errors arriving after shutdown was requested are
// the tail of work that was already in flight and are dropped.
func (l *Launcher) _fatal(err error) {
	if !l.shutdown.Request(err) {
		l.log.Debugln("Ignoring error after shutdown:", err)
		if errors.Is(err, supervisor.ErrStopTimeout) || errors.Is(err, supervisor.ErrTooManyStops) {
			l.log.Errorln("Fatal:", err)
			l._err = err
			l._finish()
			l.onFatal(err)
		}
		return
	}
	l.cancel()
	l.log.Errorln("Fatal:", err)
	l._err = err
	if l._barrier != nil {
		l._barrier.Cancel()
	}
	if l._sup != nil {
		l._sup.Stop()
	}
	l._finish()
	l.onFatal(err)
}

func (l *Launcher) _finish() {
	if l._finished {
		return
	}
	l._finished = true
	if l._sup == nil && l._results.BootstrapPath != "" {
		os.Remove(l._results.BootstrapPath)
	}
	close(l.done)
}

func removeEmptyProfiles(logger Logger) {
	info, err := os.Stat(profilesFile)
	if err != nil || info.Size() != 0 {
		return
	}
	logger.Infoln("Removing empty", profilesFile)
	if err := os.Remove(profilesFile); err != nil {
		logger.Warnln("Removing", profilesFile+":", err)
	}
}
