package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gologme/log"
	gsyslog "github.com/hashicorp/go-syslog"
	"github.com/kardianos/minwinsvc"
	"github.com/olekukonko/tablewriter"

	"github.com/oxen-io/lokinet/src/config"
	"github.com/oxen-io/lokinet/src/defaults"
	"github.com/oxen-io/lokinet/src/launcher"
	"github.com/oxen-io/lokinet/src/synth"
	"github.com/oxen-io/lokinet/src/util"
	"github.com/oxen-io/lokinet/src/version"
)

// logSink forwards the daemon's output into the launcher log.
type logSink struct {
	logger *log.Logger
}

func (s logSink) Message(line string) { s.logger.Printf("lokinet: %s\n", line) }
func (s logSink) Error(line string)   { s.logger.Printf("lokineterr: %s\n", line) }

func main() {
	// makes sure we can use defer and still return an error code to the OS
	os.Exit(run())
}

func run() int {
	var cmdLineEnv CmdLineEnv
	cmdLineEnv.parseFlagsAndArgs()

	// Create a new logger that logs output to stdout.
	var logger *log.Logger
	switch cmdLineEnv.logto {
	case "stdout":
		logger = log.New(os.Stdout, "", log.Flags())

	case "syslog":
		if syslogger, err := gsyslog.NewLogger(gsyslog.LOG_NOTICE, "DAEMON", version.BuildName()); err == nil {
			logger = log.New(syslogger, "", log.Flags()&^(log.Ldate|log.Ltime))
		}

	default:
		if logfd, err := os.OpenFile(cmdLineEnv.logto, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
			logger = log.New(logfd, "", log.Flags())
		}
	}
	if logger == nil {
		logger = log.New(os.Stdout, "", log.Flags())
		logger.Warnln("Logging defaulting to stdout")
	}
	setLogLevel(cmdLineEnv.loglevel, logger)

	cfg := config.GenerateConfig()
	switch {
	case cmdLineEnv.ver:
		fmt.Println("Build name:", version.BuildName())
		fmt.Println("Build version:", version.BuildVersion())
		return 0

	case cmdLineEnv.genconf:
		bs, err := cfg.Marshal(cmdLineEnv.confjson)
		if err != nil {
			logger.Errorln("Generating config:", err)
			return 1
		}
		fmt.Println(string(bs))
		return 0

	case cmdLineEnv.useconf:
		if _, err := cfg.ReadFrom(os.Stdin); err != nil {
			logger.Errorln("Reading config from stdin:", err)
			return 1
		}

	case cmdLineEnv.useconffile != "":
		if err := cfg.ReadFile(cmdLineEnv.useconffile); err != nil {
			logger.Errorln("Reading config:", err)
			return 1
		}

	default:
		if path, ok := defaults.FindConfigFile(); ok {
			if err := cfg.ReadFile(path); err != nil {
				logger.Errorln("Reading config:", err)
				return 1
			}
			logger.Infoln("Using config", path)
		}
	}
	if cmdLineEnv.verbose {
		cfg.Verbose = true
	}

	var profile synth.Profile
	switch {
	case cmdLineEnv.client && cmdLineEnv.servicenode:
		fmt.Println("Error: -client and -servicenode can't be used together.")
		return 1
	case cmdLineEnv.client:
		profile = synth.Client
	case cmdLineEnv.servicenode:
		profile = synth.ServiceNode
	default:
		flag.Usage()
		return 0
	}

	l := launcher.New(cfg, logger,
		launcher.WithSink{Sink: logSink{logger}},
		launcher.Progress(cmdLineEnv.progress),
	)

	// Catch interrupts from the operating system to exit gracefully. Every
	// further interrupt asks again, which ends in a kill if lokinet hangs.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	// Capture the service being stopped on Windows.
	minwinsvc.SetOnExit(l.Stop)

	go func() {
		for range sigs {
			logger.Infoln("Interrupted, stopping lokinet")
			l.Stop()
		}
	}()

	if cmdLineEnv.probe {
		res, err := l.Probe(profile)
		if err != nil {
			if errors.Is(err, util.ErrShutdown) {
				return 0
			}
			logger.Errorln("Probing:", err)
			return 1
		}
		printResults(res)
		return 0
	}

	var err error
	if profile == synth.ServiceNode {
		err = l.StartServiceNode()
	} else {
		err = l.StartClient()
	}
	if err != nil {
		logger.Errorln("Starting:", err)
		return 1
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		go func() {
			select {
			case <-l.Done():
				cancel()
			case <-ctx.Done():
			}
		}()
		if ip, err := l.DaemonAddress(ctx); err == nil {
			logger.Infoln("Lokinet address is", ip)
		} else if !errors.Is(err, context.Canceled) {
			logger.Debugln("Lokinet address:", err)
		}
	}()

	<-l.Done()
	if err := l.Err(); err != nil {
		return 1
	}
	return 0
}

func printResults(res synth.Results) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t") // pad with tabs
	table.SetNoWhiteSpace(true)
	table.SetAutoWrapText(false)

	orDash := func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	}
	table.SetHeader([]string{"Probe", "Result"})
	outbound, public, rpc := "", "", ""
	if res.OutboundIP != nil {
		outbound = res.OutboundIP.String()
	}
	if res.PublicIP != nil {
		public = res.PublicIP.String()
	}
	if res.RPCPort != 0 {
		rpc = strconv.Itoa(res.RPCPort)
	}
	bootstrap := res.BootstrapPath
	if res.BootstrapFetched {
		bootstrap = "downloaded"
	}
	table.AppendBulk([][]string{
		{synth.ProbeNetIf, orDash(strings.TrimSpace(res.Interface + " " + outbound))},
		{synth.ProbePublicIP, orDash(public)},
		{synth.ProbeDNSBind, orDash(res.DNSBindIP)},
		{synth.ProbeUpstream, orDash(strings.Join(res.Upstreams, ", "))},
		{synth.ProbeRPCCheck, orDash(rpc)},
		{synth.ProbeBootstrap, orDash(bootstrap)},
	})
	table.Render()
}

func setLogLevel(loglevel string, logger *log.Logger) {
	levels := [...]string{"error", "warn", "info", "debug", "trace"}
	loglevel = strings.ToLower(loglevel)

	contains := func() bool {
		for _, l := range levels {
			if l == loglevel {
				return true
			}
		}
		return false
	}

	if !contains() { // set default log level
		logger.Infoln("Loglevel parse failed. Set default level(info)")
		loglevel = "info"
	}

	for _, l := range levels {
		logger.EnableLevel(l)
		if l == loglevel {
			break
		}
	}
}
