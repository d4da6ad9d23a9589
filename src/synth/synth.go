// Package synth turns probe results and the operator's launcher
// configuration into the configuration handed to the lokinet daemon.
package synth

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/oxen-io/lokinet/src/config"
	"github.com/oxen-io/lokinet/src/daemonconf"
	"github.com/oxen-io/lokinet/src/defaults"
	"github.com/oxen-io/lokinet/src/probe"
)

// Probe names, as reported to the join barrier.
const (
	ProbeBootstrap = "bootstrap"
	ProbeUpstream  = "upstream"
	ProbeRPCCheck  = "rpcCheck"
	ProbeDNSBind   = "dnsBind"
	ProbeNetIf     = "netIf"
	ProbePublicIP  = "publicIP"
)

var (
	// ErrNoBootstrapForClient is returned for a client with neither a
	// downloaded nor a configured bootstrap file. Only a service node can
	// run as a seed.
	ErrNoBootstrapForClient = errors.New("no bootstrap for client")
	// ErrNoInterface is returned for a service node whose outbound interface
	// could not be named.
	ErrNoInterface = errors.New("no outbound interface to bind")
	// ErrNoDNSBind is returned when no address was found for the DNS server.
	ErrNoDNSBind = errors.New("no address to bind DNS on")
)

// Profile selects what kind of router is launched.
type Profile int

const (
	Client Profile = iota
	ServiceNode
)

func (p Profile) String() string {
	switch p {
	case Client:
		return "client"
	case ServiceNode:
		return "service node"
	default:
		return "Profile(" + strconv.Itoa(int(p)) + ")"
	}
}

// RequiredProbes returns the probes that must report before a configuration
// for this profile can be built.
func (p Profile) RequiredProbes(cfg *config.LauncherConfig) []string {
	names := []string{ProbeBootstrap, ProbeUpstream, ProbeRPCCheck, ProbeDNSBind}
	if p == ServiceNode {
		names = append(names, ProbeNetIf)
		if cfg.PublicIP == "" {
			names = append(names, ProbePublicIP)
		}
	}
	return names
}

// Results holds what the probes found. Each probe only fills in its own
// field.
type Results struct {
	// netIf
	OutboundIP net.IP
	Interface  string
	// publicIP
	PublicIP net.IP
	// dnsBind, empty when the operator chose the DNS address
	DNSBindIP string
	// upstream
	Upstreams []string
	// bootstrap, the downloaded file if there is one
	BootstrapPath    string
	BootstrapFetched bool
	// rpcCheck
	RPCPort int
}

// Result is a finished daemon configuration.
type Result struct {
	Config *daemonconf.Config
	Text   []byte
	// NAT is set when the public address differs from the outbound one, in
	// which case the operator has to forward PublicPort.
	NAT bool
	// Bootstrap is the add-node path, empty for a seed.
	Bootstrap string
}

// Build merges probe results and operator overrides. Overrides always win.
// The returned configuration is frozen.
func Build(profile Profile, cfg *config.LauncherConfig, res Results) (*Result, error) {
	out := &Result{Config: daemonconf.New()}
	c := out.Config

	router := c.Section("router")
	router.Set("nickname", defaults.DefaultNickname)

	var bind string
	switch {
	case cfg.ExplicitDNS():
		bind = cfg.DNSBind()
	case res.DNSBindIP != "":
		bind = net.JoinHostPort(res.DNSBindIP, strconv.Itoa(defaults.DefaultDNSPort))
	default:
		return nil, ErrNoDNSBind
	}
	dns := c.Section("dns")
	for _, upstream := range res.Upstreams {
		// never forward to ourselves
		if probe.Host(upstream) == probe.Host(bind) {
			continue
		}
		dns.Add("upstream", upstream)
	}
	dns.Set("bind", bind)

	c.Section("netdb").Set("dir", cfg.NodeDBDir())

	if profile == ServiceNode {
		if res.Interface == "" {
			return nil, ErrNoInterface
		}
		port := cfg.PublicPort
		if cfg.InternalPort != 0 {
			port = cfg.InternalPort
		}
		c.Section("bind").Set(res.Interface, port)

		if res.PublicIP != nil && res.OutboundIP != nil && !res.PublicIP.Equal(res.OutboundIP) {
			out.NAT = true
			router.Set("public-ip", res.PublicIP.String())
			router.Set("public-port", cfg.PublicPort)
		}
		if cfg.PublicIP != "" {
			router.Set("public-ip", cfg.PublicIP)
			router.Set("public-port", cfg.PublicPort)
		}
	}

	network := c.Section("network")

	rpcPort := res.RPCPort
	if rpcPort == 0 {
		rpcPort = defaults.DefaultRPCPort
	}
	c.Section("api").
		Set("enabled", true).
		Set("bind", net.JoinHostPort(cfg.RPCIP, strconv.Itoa(rpcPort)))

	if profile == ServiceNode {
		c.Section("lokid").
			Set("enabled", true).
			Set("jsonrpc", net.JoinHostPort(cfg.Lokid.RPCIP, strconv.Itoa(cfg.Lokid.RPCPort))).
			Set("username", cfg.Lokid.RPCUser).
			Set("password", cfg.Lokid.RPCPass).
			Set("service-node-seed", cfg.ServiceNodeKey())
	}

	// overrides
	if cfg.Nickname != "" {
		router.Set("nickname", cfg.Nickname)
	}
	if cfg.Lokid.Network == "test" {
		router.Set("netid", "service")
	}
	if cfg.NetID != "" {
		router.Set("netid", cfg.NetID)
	}
	if cfg.IfName != "" {
		network.Set("ifname", cfg.IfName)
	}
	if cfg.IfAddr != "" {
		network.Set("ifaddr", cfg.IfAddr)
	}

	out.Bootstrap = res.BootstrapPath
	if out.Bootstrap == "" {
		out.Bootstrap = cfg.BootstrapPath
	}
	if out.Bootstrap != "" {
		c.Section("bootstrap").Set("add-node", out.Bootstrap)
	} else if profile == Client {
		return nil, ErrNoBootstrapForClient
	}

	c.Freeze()
	text, err := c.Marshal()
	if err != nil {
		return nil, fmt.Errorf("serialising configuration: %w", err)
	}
	out.Text = text
	return out, nil
}
