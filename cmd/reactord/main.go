// Command reactord is a readiness-driven, prefork static file server.
// The supervisor process binds the listening socket and forks
// -w/--workers copies of itself; each re-exec'd copy inherits the
// listening socket on fd 3 and runs exactly one reactor.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/anamul-dev/reactord/internal/channel"
	"github.com/anamul-dev/reactord/internal/httpd"
	"github.com/anamul-dev/reactord/internal/logging"
	"github.com/anamul-dev/reactord/internal/prefork"
	"github.com/anamul-dev/reactord/internal/reactor"
)

type config struct {
	port        int
	host        string
	workers     int
	root        string
	logPath     string
	verbose     bool
	pollTimeout time.Duration
}

func parseFlags() config {
	var cfg config
	var pollTimeoutSecs float64

	pflag.IntVarP(&cfg.port, "port", "p", 8080, "Listen port")
	pflag.StringVarP(&cfg.host, "host", "H", "localhost", "Listen host")
	pflag.IntVarP(&cfg.workers, "workers", "w", 5, "Number of worker processes")
	pflag.StringVarP(&cfg.root, "root", "r", "", "Document root")
	pflag.StringVarP(&cfg.logPath, "log", "l", "", "Log file (default stderr)")
	pflag.BoolVarP(&cfg.verbose, "verbose", "v", false, "Log per-connection detail at debug level")
	pflag.Float64VarP(&pollTimeoutSecs, "poll-timeout", "t", 0.25, "Poller wait timeout in seconds")
	pflag.Parse()

	cfg.pollTimeout = time.Duration(pollTimeoutSecs * float64(time.Second))
	return cfg
}

func buildLogger(cfg config) (*logrus.Logger, func(), error) {
	level := logrus.InfoLevel
	if cfg.verbose {
		level = logrus.DebugLevel
	}

	if cfg.logPath == "" {
		return logging.New(os.Stderr, level), func() {}, nil
	}
	f, err := logging.OpenLogFile(cfg.logPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", cfg.logPath, err)
	}
	return logging.New(f, level), func() { _ = f.Close() }, nil
}

func main() {
	cfg := parseFlags()
	log, closeLog, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closeLog()

	if prefork.IsWorker() {
		os.Exit(runWorker(cfg, log))
	}
	os.Exit(runSupervisor(cfg, log))
}

// runSupervisor binds the listening socket and forks the worker pool.
func runSupervisor(cfg config, log *logrus.Logger) int {
	entry := log.WithField("role", "supervisor")

	sup, err := prefork.New(prefork.Config{
		Workers: cfg.workers,
		Host:    cfg.host,
		Port:    cfg.port,
	}, entry)
	if err != nil {
		entry.WithError(err).Error("bind failed")
		return 1
	}
	defer sup.Close()

	entry.WithFields(logrus.Fields{"workers": cfg.workers, "port": cfg.port, "host": cfg.host}).Info("listening")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := sup.Run(ctx); err != nil {
		entry.WithError(err).Error("supervisor error")
		return 1
	}
	entry.Info("clean shutdown")
	return 0
}

// runWorker adopts the inherited listening socket and runs one reactor
// until graceful shutdown drains every connection.
func runWorker(cfg config, log *logrus.Logger) int {
	entry := log.WithField("role", "worker").WithField("pid", os.Getpid())

	re, err := reactor.New(entry)
	if err != nil {
		entry.WithError(err).Error("create poller failed")
		return 1
	}
	defer re.Close()

	listenerCh := channel.WrapListener(prefork.InheritedListenerFD())
	listener := httpd.NewListener(cfg.root, entry, re)
	re.Register(listenerCh, listener)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	entry.Info("worker ready")
	if err := re.Run(ctx, cfg.pollTimeout, 0); err != nil {
		entry.WithError(err).Error("reactor error")
		return 1
	}
	entry.Info("worker drained, exiting")
	return 0
}
