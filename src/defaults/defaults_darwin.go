//go:build darwin
// +build darwin

package defaults

// Sane defaults for the macOS/Darwin platform. The "default" options may be
// may be replaced by the running configuration.
func GetDefaults() platformDefaultParameters {
	return platformDefaultParameters{
		DefaultBinaryPath: "/usr/local/bin/lokinet",
		DefaultConfigFile: "/usr/local/etc/loki/launcher.conf",
		DNSBindCandidates: []string{"127.0.0.1"},
		ResolvConf:        "/etc/resolv.conf",
	}
}
