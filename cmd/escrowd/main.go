// Command escrowd is the rendezvous daemon: it listens on a Unix domain
// socket and answers ADD/DEL/TAG/GET requests against an in-memory store,
// for exactly one client at a time.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/kdalton/escrowd/internal/daemon"
	"github.com/kdalton/escrowd/internal/logging"
)

func main() {
	var (
		daemonize = pflag.BoolP("daemonize", "d", false, "detach from the controlling terminal and run in the background")
		verbose   = pflag.BoolP("verbose", "v", false, "log every received request and sent reply")
		force     = pflag.BoolP("force", "f", false, "unlink an existing rendezvous path before binding")
		tags      = pflag.IntP("tags", "t", 0, "number of tags the store manages (default: internal/constants.DefaultTags)")
		help      = pflag.BoolP("help", "h", false, "show usage")
	)
	pflag.Parse()

	if *help || pflag.NArg() != 1 {
		usage()
		if *help {
			os.Exit(0)
		}
		os.Exit(2)
	}
	path := pflag.Arg(0)

	if *daemonize {
		daemonizeSelf(path, *verbose, *force, *tags)
		return
	}

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	d, err := daemon.New(path, daemon.Options{
		NrTags:  *tags,
		Verbose: *verbose,
		Force:   *force,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to start", "err", err)
		os.Exit(1)
	}

	installMetricsDumpHandler(d, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		if err := d.Shutdown(); err != nil {
			logger.Error("shutdown", "err", err)
		}
	}()

	logger.Info("serving", "path", path, "tags", *tags)
	if err := d.Serve(); err != nil {
		logger.Error("serve failed", "err", err)
		os.Exit(1)
	}
}

// installMetricsDumpHandler writes the daemon's Prometheus text exposition
// to stderr on SIGUSR1, the escrow-domain descendant of the teacher's
// SIGUSR1-dumps-goroutine-stacks handler in cmd/ublk-mem/main.go — escrowd
// has no goroutine pool worth dumping (it is strictly single-threaded), so
// operational counters take the stack dump's place.
func installMetricsDumpHandler(d *daemon.Daemon, logger *logging.Logger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	go func() {
		for range ch {
			if err := d.Metrics().WriteText(os.Stderr); err != nil {
				logger.Error("metrics dump failed", "err", err)
			}
		}
	}()
}

// daemonizeSelf re-execs the current binary with -d stripped, detached via
// Setsid, then exits. Go cannot fork and keep running in the child, so this
// re-exec is the idiomatic substitute for the source's fork-based
// daemonization (spec.md §1 scopes full daemonization/process-rename out of
// detailed coverage; this is the minimal Go-native version it still ships).
func daemonizeSelf(path string, verbose, force bool, tags int) {
	self, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "escrowd: locate self: %v\n", err)
		os.Exit(1)
	}

	args := []string{}
	if verbose {
		args = append(args, "-v")
	}
	if force {
		args = append(args, "-f")
	}
	if tags > 0 {
		args = append(args, "-t", strconv.Itoa(tags))
	}
	args = append(args, path)

	cmd := exec.Command(self, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "escrowd: daemonize: %v\n", err)
		os.Exit(1)
	}
	_ = cmd.Process.Release()
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: escrowd [-d] [-v] [-f] [-t tags] <rendezvous-path>\n\n")
	pflag.PrintDefaults()
}
