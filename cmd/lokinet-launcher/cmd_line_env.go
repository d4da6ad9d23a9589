package main

import (
	"flag"
	"fmt"
	"os"
)

type CmdLineEnv struct {
	client      bool
	servicenode bool
	probe       bool
	genconf     bool
	useconf     bool
	useconffile string
	confjson    bool
	progress    bool
	ver         bool
	verbose     bool
	logto       string
	loglevel    string
}

func (cmdLineEnv *CmdLineEnv) parseFlagsAndArgs() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [options] -client|-servicenode\n\n", os.Args[0])
		fmt.Println("Options:")
		flag.PrintDefaults()
		fmt.Println()
		fmt.Println("Without -useconf or -useconffile the launcher looks for lokinet-launcher.conf\nin the usual configuration directories and otherwise uses the defaults.")
	}

	client := flag.Bool("client", false, "launch lokinet as a client")
	servicenode := flag.Bool("servicenode", false, "launch lokinet as a service node (requires a running lokid)")
	probe := flag.Bool("probe", false, "use in combination with -client or -servicenode, prints what the network probes find and exits")
	genconf := flag.Bool("genconf", false, "print a new launcher config to stdout")
	useconf := flag.Bool("useconf", false, "read HJSON/JSON config from stdin")
	useconffile := flag.String("useconffile", "", "read HJSON/JSON config from specified file path")
	confjson := flag.Bool("json", false, "print configuration from -genconf as JSON instead of HJSON")
	progress := flag.Bool("progress", false, "show a progress bar while the bootstrap file downloads")
	ver := flag.Bool("version", false, "prints the version of this build")
	verbose := flag.Bool("v", false, "run lokinet itself in verbose mode")
	logto := flag.String("logto", "stdout", "file path to log to, \"syslog\" or \"stdout\"")
	loglevel := flag.String("loglevel", "info", "loglevel to enable")

	flag.Parse()

	cmdLineEnv.client = *client
	cmdLineEnv.servicenode = *servicenode
	cmdLineEnv.probe = *probe
	cmdLineEnv.genconf = *genconf
	cmdLineEnv.useconf = *useconf
	cmdLineEnv.useconffile = *useconffile
	cmdLineEnv.confjson = *confjson
	cmdLineEnv.progress = *progress
	cmdLineEnv.ver = *ver
	cmdLineEnv.verbose = *verbose
	cmdLineEnv.logto = *logto
	cmdLineEnv.loglevel = *loglevel
}
