/*
Package config defines the launcher configuration: the values an operator
sets to override what the network probes would otherwise discover, plus the
locations of the daemon and its data.

The configuration is read as HJSON or JSON. Any field left out keeps the
value from GenerateConfig, so a minimal file only needs the overrides:

	{
	  BinaryPath: /opt/lokinet/bin/lokinet
	  PublicIP: 203.0.113.10
	  PublicPort: 1090
	}
*/
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	"github.com/hjson/hjson-go"
	"github.com/mitchellh/mapstructure"
	"golang.org/x/text/encoding/unicode"

	"github.com/oxen-io/lokinet/src/defaults"
)

// LauncherConfig defines all values needed to configure and supervise a
// single lokinet daemon.
type LauncherConfig struct {
	BinaryPath       string      `comment:"Path to the lokinet executable."`
	Verbose          bool        `comment:"Start lokinet with -v for verbose logging."`
	AutoRestart      bool        `comment:"Restart a client daemon that exits unexpectedly. Service nodes\nare always restarted."`
	Nickname         string      `comment:"Router nickname."`
	NetID            string      `comment:"Network ID. Leave empty for the main network. Service nodes on the\ntest network default to \"service\"."`
	IfName           string      `comment:"Name of the tunnel interface lokinet should create."`
	IfAddr           string      `comment:"Address range of the tunnel interface, e.g. 10.200.0.1/16."`
	PublicIP         string      `comment:"Public IP to advertise. Set this to skip public IP detection,\ne.g. when the host is behind a NAT you configured by hand."`
	PublicPort       int         `comment:"Public UDP port to advertise and to bind on the outbound interface."`
	InternalPort     int         `comment:"Port to bind on the outbound interface when it differs from\nPublicPort because of port forwarding."`
	DNSIP            string      `comment:"Address for the lokinet DNS server. Set this or DNSPort to skip\nthe search for a free port 53."`
	DNSPort          int         `comment:"Port for the lokinet DNS server. Zero means 53 when DNSIP is set."`
	Upstreams        []string    `comment:"Upstream resolvers. If empty the system resolvers are used,\nafter removing any that are lokinet itself."`
	RPCIP            string      `comment:"Address of the lokinet RPC endpoint."`
	RPCPort          int         `comment:"Port of the lokinet RPC endpoint. If something already answers\nthere the next port is used instead."`
	BootstrapURL     string      `comment:"URL to download bootstrap router contacts from."`
	BootstrapPath    string      `comment:"Path to an existing bootstrap file. Takes effect when no\nBootstrapURL is set or the download fails."`
	DataDir          string      `comment:"Directory holding the lokinet node database. Defaults to\n~/.lokinet."`
	TestTargets      []string    `comment:"Hosts connected to in order to find the outbound interface."`
	TestPort         int         `comment:"Port used with TestTargets."`
	TestHost         string      `comment:"Hostname resolved to check whether something answers DNS."`
	PublicIPServices []string    `comment:"Services that echo back the caller's public IP. Two of them\nmust agree before the result is used."`
	Lokid            LokidConfig `comment:"Connection to the blockchain daemon. Only used by service nodes."`
}

// LokidConfig describes how a service node reaches its blockchain daemon.
type LokidConfig struct {
	RPCIP   string `comment:"Address of the blockchain daemon RPC server."`
	RPCPort int    `comment:"Port of the blockchain daemon RPC server."`
	RPCUser string `comment:"RPC username."`
	RPCPass string `comment:"RPC password."`
	DataDir string `comment:"Blockchain daemon data directory, where the service node key\nis kept. Defaults to ~/.loki."`
	Network string `comment:"Blockchain network: mainnet, test or demo."`
}

// Errors returned by Validate.
var (
	ErrInvalidAddress = errors.New("invalid IP address")
	ErrInvalidPort    = errors.New("invalid port")
)

// GenerateConfig returns the default configuration. This is used when
// outputting the -genconf parameter and as the base that a configuration
// file is decoded onto.
func GenerateConfig() *LauncherConfig {
	cfg := LauncherConfig{}
	cfg.BinaryPath = defaults.GetDefaults().DefaultBinaryPath
	cfg.Nickname = defaults.DefaultNickname
	cfg.PublicPort = defaults.DefaultPublicPort
	cfg.RPCIP = defaults.DefaultRPCIP
	cfg.RPCPort = defaults.DefaultRPCPort
	cfg.BootstrapURL = defaults.DefaultBootstrapURL
	cfg.Upstreams = []string{}
	cfg.TestTargets = append([]string(nil), defaults.TestTargets...)
	cfg.TestPort = defaults.TestPort
	cfg.TestHost = defaults.TestHost
	cfg.PublicIPServices = append([]string(nil), defaults.PublicIPServices...)
	cfg.Lokid.RPCIP = "127.0.0.1"
	cfg.Lokid.RPCPort = 22023
	cfg.Lokid.Network = "mainnet"
	return &cfg
}

// ReadFrom decodes a HJSON or JSON configuration onto cfg. Fields that are
// not present keep their current values.
func (cfg *LauncherConfig) ReadFrom(r io.Reader) (int64, error) {
	conf, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	n := int64(len(conf))
	// If there's a byte order mark - which Windows 10 is now incredibly fond of
	// throwing everywhere when it's converting things into UTF-16 for the hell
	// of it - remove it and decode back down into UTF-8. This is necessary
	// because hjson doesn't know what to do with UTF-16 and will panic
	if len(conf) >= 2 && (bytes.Equal(conf[0:2], []byte{0xFF, 0xFE}) ||
		bytes.Equal(conf[0:2], []byte{0xFE, 0xFF})) {
		utf := unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
		decoder := utf.NewDecoder()
		conf, err = decoder.Bytes(conf)
		if err != nil {
			return n, fmt.Errorf("decoding UTF-16: %w", err)
		}
	}
	var dat map[string]interface{}
	if err := hjson.Unmarshal(conf, &dat); err != nil {
		return n, fmt.Errorf("parsing configuration: %w", err)
	}
	if err := mapstructure.Decode(dat, cfg); err != nil {
		return n, fmt.Errorf("decoding configuration: %w", err)
	}
	return n, nil
}

// ReadFile reads a configuration file onto cfg.
func (cfg *LauncherConfig) ReadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = cfg.ReadFrom(f)
	return err
}

// Marshal encodes the configuration as HJSON, or as indented JSON if asJSON
// is set.
func (cfg *LauncherConfig) Marshal(asJSON bool) ([]byte, error) {
	if asJSON {
		return json.MarshalIndent(cfg, "", "  ")
	}
	return hjson.Marshal(cfg)
}

// Validate checks the values the synthesised daemon configuration depends on.
func (cfg *LauncherConfig) Validate() error {
	for name, ip := range map[string]string{
		"PublicIP": cfg.PublicIP,
		"DNSIP":    cfg.DNSIP,
		"RPCIP":    cfg.RPCIP,
	} {
		if ip != "" && net.ParseIP(ip) == nil {
			return fmt.Errorf("%s %q: %w", name, ip, ErrInvalidAddress)
		}
	}
	for name, port := range map[string]int{
		"PublicPort":    cfg.PublicPort,
		"InternalPort":  cfg.InternalPort,
		"DNSPort":       cfg.DNSPort,
		"RPCPort":       cfg.RPCPort,
		"TestPort":      cfg.TestPort,
		"Lokid.RPCPort": cfg.Lokid.RPCPort,
	} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%s %d: %w", name, port, ErrInvalidPort)
		}
	}
	return nil
}

// ExplicitDNS reports whether the operator chose the DNS bind address, in
// which case no free port needs to be searched for.
func (cfg *LauncherConfig) ExplicitDNS() bool {
	return cfg.DNSIP != "" || cfg.DNSPort != 0
}

// DNSBind returns the operator's DNS bind address with the missing half
// filled in.
func (cfg *LauncherConfig) DNSBind() string {
	ip := cfg.DNSIP
	if ip == "" {
		ip = "127.0.0.1"
	}
	port := cfg.DNSPort
	if port == 0 {
		port = defaults.DefaultDNSPort
	}
	return net.JoinHostPort(ip, fmt.Sprint(port))
}

// NodeDBDir returns the node database directory, which is kept separately
// per network ID.
func (cfg *LauncherConfig) NodeDBDir() string {
	dir := cfg.DataDir
	if dir == "" {
		dir = filepath.Join(homeDir(), ".lokinet")
	}
	dir = filepath.Join(dir, "netdb")
	if cfg.NetID != "" {
		dir += "-" + cfg.NetID
	}
	return dir
}

// TestNetwork reports whether the blockchain daemon runs on a test network.
func (cfg *LauncherConfig) TestNetwork() bool {
	return cfg.Lokid.Network == "test" || cfg.Lokid.Network == "demo"
}

// ServiceNodeKey returns the path of the service node key kept by the
// blockchain daemon.
func (cfg *LauncherConfig) ServiceNodeKey() string {
	dir := cfg.Lokid.DataDir
	if dir == "" {
		dir = filepath.Join(homeDir(), ".loki")
	}
	if cfg.TestNetwork() {
		dir = filepath.Join(dir, "testnet")
	}
	return filepath.Join(dir, "key")
}

// LokidURL is polled until the blockchain daemon answers.
func (cfg *LauncherConfig) LokidURL() string {
	return fmt.Sprintf("http://%s:%s@%s", cfg.Lokid.RPCUser, cfg.Lokid.RPCPass,
		net.JoinHostPort(cfg.Lokid.RPCIP, fmt.Sprint(cfg.Lokid.RPCPort)))
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return os.TempDir()
}
