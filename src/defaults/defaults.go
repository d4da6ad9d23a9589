package defaults

import (
	"os"

	"github.com/adrg/xdg"
)

// Defines which parameters are expected by default for configuration on a
// specific platform. These values are populated in the relevant defaults_*.go
// for the platform being targeted. They must be set.
type platformDefaultParameters struct {
	// Daemon executable
	DefaultBinaryPath string

	// Launcher configuration
	DefaultConfigFile string

	// Addresses tried, in order, for a free DNS port before falling back to
	// the detected outbound address
	DNSBindCandidates []string

	// Where the system resolvers are listed, empty if the platform has no
	// such file
	ResolvConf string
}

// Platform-independent defaults used by the probes.
var (
	// Hosts that should always accept a TCP connection, used to discover the
	// outbound interface.
	TestTargets = []string{"1.1.1.1", "8.8.8.8"}
	TestPort    = 80

	// An externally resolvable name used to check if something answers DNS
	// on a candidate address.
	TestHost = "www.imdb.com"

	// Only a running lokinet answers for this name.
	LocalProbeName = "localhost.loki"

	// Independent "what is my IP" services. Two are picked at random per
	// round and must agree.
	PublicIPServices = []string{
		"https://api.ipify.org",
		"https://ipinfo.io/ip",
		"https://ipecho.net/plain",
		"http://ifconfig.me",
		"http://ipv4.icanhazip.com",
		"http://v4.ident.me",
		"http://checkip.amazonaws.com",
	}

	DefaultBootstrapURL = "https://i2p.rocks/bootstrap.signed"
	DefaultNickname     = "ldl"
	DefaultRPCIP        = "127.0.0.1"
	DefaultRPCPort      = 1190
	DefaultPublicPort   = 1090
	DefaultDNSPort      = 53
)

// FindConfigFile returns the platform default configuration file if it
// exists, or else the first launcher configuration found on the XDG search
// path.
func FindConfigFile() (string, bool) {
	if _, err := os.Stat(GetDefaults().DefaultConfigFile); err == nil {
		return GetDefaults().DefaultConfigFile, true
	}
	if path, err := xdg.SearchConfigFile("lokinet/launcher.conf"); err == nil {
		return path, true
	}
	return "", false
}
