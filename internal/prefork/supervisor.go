// Package prefork implements the supervisor: bind and listen once,
// fork N worker processes sharing that listening socket via os/exec's
// ExtraFiles, and join them with golang.org/x/sync/errgroup so the
// first worker failure cancels the rest.
package prefork

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// workerEnvVar marks a re-exec'd process as a prefork worker rather
// than the supervisor itself.
const workerEnvVar = "REACTORD_WORKER"

// listenerFD is the conventional fd a worker finds its inherited
// listening socket on: stdin/stdout/stderr occupy 0-2, ExtraFiles
// start at 3.
const listenerFD = 3

// Config supplies the process count and listen address, gathered by
// the CLI and handed to the supervisor at construction.
type Config struct {
	Workers int
	Host    string
	Port    int
}

// Supervisor owns the listening socket and the forked worker
// processes.
type Supervisor struct {
	cfg Config
	log *logrus.Entry
	ln  *net.TCPListener
}

// New binds and listens on cfg.Host:cfg.Port. The returned Supervisor
// owns that listener until Run forks workers and hands it off.
func New(cfg Config, log *logrus.Entry) (*Supervisor, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &Supervisor{cfg: cfg, log: log, ln: ln}, nil
}

// ListenerFile dup's the bound socket as an *os.File suitable for
// passing to a child process via exec.Cmd.ExtraFiles.
func (s *Supervisor) ListenerFile() (*os.File, error) {
	return s.ln.File()
}

// Close releases the supervisor's own handle to the listening socket.
// Workers hold their own dup'd copy via ExtraFiles and are unaffected.
func (s *Supervisor) Close() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

// Run forks cfg.Workers copies of the current executable, each
// inheriting the listening socket on fd 3, and waits for all of them.
// ctx cancellation is relayed to every worker as an interrupt so each
// one can drain and exit 0 on its own; the first non-zero exit cancels
// the errgroup's context, and the remaining workers are then killed.
func (s *Supervisor) Run(ctx context.Context) error {
	lf, err := s.ListenerFile()
	if err != nil {
		return fmt.Errorf("dup listener fd: %w", err)
	}
	defer lf.Close()

	// Workers are plain exec.Command, not exec.CommandContext: ctx
	// cancellation must relay a clean interrupt (below) rather than an
	// immediate SIGKILL, so a graceful shutdown still gets to drain.
	eg, egCtx := errgroup.WithContext(ctx)
	cmds := make([]*exec.Cmd, 0, s.cfg.Workers)

	for i := 0; i < s.cfg.Workers; i++ {
		id := i
		cmd := exec.Command(os.Args[0], os.Args[1:]...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Stdin = os.Stdin
		cmd.ExtraFiles = []*os.File{lf}
		cmd.Env = append(os.Environ(), workerEnvVar+"=1")
		cmds = append(cmds, cmd)

		if err := cmd.Start(); err != nil {
			return fmt.Errorf("start worker %d: %w", id, err)
		}
		s.log.WithField("worker", id).WithField("pid", cmd.Process.Pid).Info("worker started")

		eg.Go(func() error {
			if werr := cmd.Wait(); werr != nil {
				return fmt.Errorf("worker %d: %w", id, werr)
			}
			return nil
		})
	}

	relay := make(chan struct{})
	go func() {
		select {
		case <-egCtx.Done():
			sig := os.Interrupt
			if ctx.Err() == nil {
				// egCtx ended without a shutdown request: a worker failed
				// (or every worker has already exited), so kill the rest.
				sig = os.Kill
			} else {
				s.log.Info("graceful shutdown: relaying interrupt to workers")
			}
			for _, cmd := range cmds {
				if cmd.Process != nil {
					_ = cmd.Process.Signal(sig)
				}
			}
		case <-relay:
		}
	}()

	err = eg.Wait()
	close(relay)
	if err != nil {
		// A worker failure is fatal to the whole pool, unlike a clean
		// shutdown.
		for _, cmd := range cmds {
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
		}
	}
	return err
}

// IsWorker reports whether the current process was exec'd by a
// Supervisor as a prefork worker.
func IsWorker() bool {
	return os.Getenv(workerEnvVar) == "1"
}

// InheritedListenerFD returns the fd a worker process should wrap as
// its listening channel.
func InheritedListenerFD() int {
	return listenerFD
}
