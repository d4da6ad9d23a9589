//go:build windows
// +build windows

package defaults

// Sane defaults for the Windows platform. The "default" options may be
// may be replaced by the running configuration.
func GetDefaults() platformDefaultParameters {
	return platformDefaultParameters{
		DefaultBinaryPath: "C:\\Program Files\\Lokinet\\lokinet.exe",
		DefaultConfigFile: "C:\\ProgramData\\lokinet\\launcher.conf",
		DNSBindCandidates: []string{"127.0.0.1"},

		// Windows keeps resolvers in the registry, so they must be given in
		// the launcher configuration instead.
		ResolvConf: "",
	}
}
