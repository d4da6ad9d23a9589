//go:build !linux && !darwin && !windows
// +build !linux,!darwin,!windows

package defaults

// Sane defaults for the other platforms. The "default" options may be
// may be replaced by the running configuration.
func GetDefaults() platformDefaultParameters {
	return platformDefaultParameters{
		DefaultBinaryPath: "/usr/local/bin/lokinet",
		DefaultConfigFile: "/etc/loki/launcher.conf",
		DNSBindCandidates: []string{"127.0.0.1"},
		ResolvConf:        "/etc/resolv.conf",
	}
}
