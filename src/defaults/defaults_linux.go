//go:build linux
// +build linux

package defaults

// Sane defaults for the Linux platform. The "default" options may be
// may be replaced by the running configuration.
func GetDefaults() platformDefaultParameters {
	return platformDefaultParameters{
		DefaultBinaryPath: "/usr/local/bin/lokinet",
		DefaultConfigFile: "/etc/loki/launcher.conf",

		// 127.3.2.1 is a secondary loopback alias that is usually free even
		// when a local caching resolver holds 127.0.0.1:53
		DNSBindCandidates: []string{"127.0.0.1", "127.3.2.1"},

		ResolvConf: "/etc/resolv.conf",
	}
}
